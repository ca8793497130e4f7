package task

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "TaxAdvisor/internal/errors"
)

type brokenProducer struct{}

func (brokenProducer) Publish(context.Context, string) error {
	return errors.New("broker down")
}

func (brokenProducer) Close() error { return nil }

func TestSubmitAssignsIDAndDefaults(t *testing.T) {
	queue := NewMemoryQueue(4)
	service := NewService(NewMemoryStore(), queue, 0)

	job, err := service.Submit(context.Background(), Request{Question: "절세 방법?"})
	require.NoError(t, err)

	_, parseErr := uuid.Parse(job.ID)
	assert.NoError(t, parseErr)
	assert.Equal(t, "me", job.UserID)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, 3, job.MaxRetries)
	assert.Equal(t, job.ID, <-queue.ch)
}

func TestSubmitIsIdempotentOnCallerID(t *testing.T) {
	queue := NewMemoryQueue(4)
	service := NewService(NewMemoryStore(), queue, 2)
	ctx := context.Background()

	first, err := service.Submit(ctx, Request{ID: "fixed", Question: "a"})
	require.NoError(t, err)
	second, err := service.Submit(ctx, Request{ID: "fixed", Question: "b"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "a", second.Question)
	assert.Len(t, queue.ch, 1)
}

func TestSubmitMarksJobFailedWhenPublishFails(t *testing.T) {
	store := NewMemoryStore()
	service := NewService(store, brokenProducer{}, 1)
	ctx := context.Background()

	_, err := service.Submit(ctx, Request{ID: "j"})
	require.Error(t, err)
	assert.True(t, xerrors.HasCode(err, CodeJobPublish))

	job, err := store.Get(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, string(CodeJobPublish), job.ErrorCode)
}

func TestSubmitRejectsLongID(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(1), 1)
	_, err := service.Submit(context.Background(), Request{ID: strings.Repeat("x", 65)})
	assert.True(t, xerrors.HasCode(err, CodeJobValidation))
}

func TestServiceWithoutStore(t *testing.T) {
	service := NewService(nil, nil, 1)
	_, err := service.Submit(context.Background(), Request{})
	assert.True(t, xerrors.HasCode(err, xerrors.CodeInitializationFailure))
	_, err = service.Get(context.Background(), "x")
	assert.True(t, xerrors.HasCode(err, xerrors.CodeInitializationFailure))
}

func TestGetUnknownJob(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(1), 1)
	_, err := service.Get(context.Background(), "nope")
	assert.True(t, IsJobError(err, CodeJobNotFound))
}
