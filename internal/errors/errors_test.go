package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCauseAndCode(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := Wrap(CodeModelFailure, cause, "调用模型失败")

	assert.Equal(t, CodeModelFailure, CodeOf(err))
	assert.ErrorIs(t, err, cause)
	assert.True(t, err.Retryable())
	assert.Contains(t, err.Error(), "MODEL_FAILURE")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestFromThroughFmtWrap(t *testing.T) {
	inner := New(CodeStorageFailure, "", WithMetadata("table", "portfolio"))
	outer := fmt.Errorf("查询失败: %w", inner)

	got, ok := From(outer)
	require.True(t, ok)
	assert.Equal(t, CodeStorageFailure, got.Code())
	assert.Equal(t, "storage failure", got.Message())
	assert.Equal(t, map[string]string{"table": "portfolio"}, got.Metadata())
	assert.True(t, HasCode(outer, CodeStorageFailure))
}

func TestIsComparesCodes(t *testing.T) {
	a := New(CodeNotConfigured, "a")
	b := New(CodeNotConfigured, "b")
	c := New(CodeTimeout, "c")

	assert.True(t, stdErrors.Is(a, b))
	assert.False(t, stdErrors.Is(a, c))
}

func TestUnknownCodeFallsBackToUnknownAttributes(t *testing.T) {
	err := New(Code("NOT_REGISTERED"), "")
	assert.Equal(t, "unknown error", err.Message())
	assert.Equal(t, SeverityCritical, err.Severity())
	assert.False(t, RetryableError(err))
	assert.Equal(t, CodeUnknown, CodeOf(stdErrors.New("plain")))
}

func TestWithRetryableOverridesRegistry(t *testing.T) {
	err := New(CodeTimeout, "", WithRetryable(false))
	assert.False(t, err.Retryable())
}
