package task

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "TaxAdvisor/internal/errors"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := &Job{ID: "job-1", UserID: "me", Status: StatusPending, MaxRetries: 2}
	require.NoError(t, store.Create(ctx, job))
	assert.True(t, errors.Is(store.Create(ctx, job), ErrJobConflict))

	claimed, err := store.Claim(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)

	_, err = store.Claim(ctx, "job-1")
	assert.True(t, IsJobError(err, CodeJobConflict))

	require.NoError(t, store.MarkFailed(ctx, "job-1", CodeJobProcessing, "boom", false))
	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "boom", got.LastError)
	assert.False(t, got.IsTerminal())

	_, err = store.Claim(ctx, "job-1")
	require.NoError(t, err)
	require.NoError(t, store.MarkSucceeded(ctx, "job-1", AdviceResult{PrimaryStrategy: "전략"}))

	got, err = store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Empty(t, got.LastError)
	require.NotNil(t, got.Result)
	assert.Equal(t, "전략", got.Result.PrimaryStrategy)

	_, err = store.Claim(ctx, "job-1")
	assert.True(t, IsJobError(err, CodeJobCompleted))
}

func TestMemoryStoreExhaustsRetries(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &Job{ID: "j", MaxRetries: 1}))

	_, err := store.Claim(ctx, "j")
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed(ctx, "j", CodeJobProcessing, "x", false))

	_, err = store.Claim(ctx, "j")
	assert.True(t, IsJobError(err, CodeJobExhausted))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &Job{ID: "j", MaxRetries: 1}))
	require.NoError(t, store.MarkSucceeded(ctx, "j", AdviceResult{AuditReview: "원본"}))

	got, err := store.Get(ctx, "j")
	require.NoError(t, err)
	got.Result.AuditReview = "변경"

	again, err := store.Get(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, "원본", again.Result.AuditReview)
}

func TestMemoryStoreUnknownJob(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.True(t, xerrors.HasCode(err, CodeJobNotFound))
	assert.True(t, errors.Is(store.MarkSucceeded(ctx, "missing", AdviceResult{}), ErrJobNotFound))
	assert.True(t, errors.Is(store.MarkFailed(ctx, "missing", CodeJobProcessing, "", true), ErrJobNotFound))
	assert.True(t, xerrors.HasCode(store.Create(ctx, &Job{}), xerrors.CodeInvalidArgument))
}
