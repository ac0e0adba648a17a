package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeProviderTransient, "embedding request timed out", nil)

	assert.Equal(t, ErrCodeProviderTransient, err.Code)
	assert.Equal(t, CategoryProvider, err.Category)
	assert.Equal(t, SeverityError, err.Severity)
	assert.True(t, err.Retryable)
	assert.Contains(t, err.Error(), "ERR_301_PROVIDER_TRANSIENT")
	assert.Contains(t, err.Error(), "embedding request timed out")
}

func TestNew_WithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := New(ErrCodeSourceUnavailable, "cannot read notes directory", cause)

	assert.ErrorIs(t, err, cause)
}

func TestWrap_NilCause(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeStoreWrite, nil))
}

func TestCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		category Category
	}{
		{ErrCodeConfigNotFound, CategoryConfig},
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeSourceUnavailable, CategoryIO},
		{ErrCodeIndexCorrupt, CategoryIO},
		{ErrCodeProviderTransient, CategoryProvider},
		{ErrCodeDimensionMismatch, CategoryValidation},
		{ErrCodeIngestRunning, CategoryIngest},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.category, categoryFromCode(tt.code))
		})
	}
}

func TestDimensionMismatch(t *testing.T) {
	err := DimensionMismatch(768, 1024)

	assert.Equal(t, ErrCodeDimensionMismatch, err.Code)
	assert.False(t, err.Retryable)
	assert.Contains(t, err.Message, "expected 768")
	assert.Contains(t, err.Message, "got 1024")
	assert.Contains(t, err.Suggestion, "memdex ingest --full-scan")
}

func TestIngestRunning(t *testing.T) {
	err := IngestRunning()

	assert.Equal(t, ErrCodeIngestRunning, err.Code)
	assert.Equal(t, SeverityFatal, err.Severity)
	assert.False(t, err.Retryable)
}

func TestIndexCorruption(t *testing.T) {
	err := IndexCorruption("chunk count mismatch between stores")

	assert.Equal(t, ErrCodeIndexCorrupt, err.Code)
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Suggestion, "--full-scan")
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(ProviderTransient("rate limited", nil)))
	require.False(t, IsRetryable(DimensionMismatch(768, 512)))
	require.False(t, IsRetryable(fmt.Errorf("plain error")))
	require.False(t, IsRetryable(nil))

	wrapped := fmt.Errorf("batch 3: %w", ProviderTransient("timeout", nil))
	require.True(t, IsRetryable(wrapped))
}

func TestGetCode(t *testing.T) {
	err := SourceUnavailable("notes", fmt.Errorf("no such directory"))
	assert.Equal(t, ErrCodeSourceUnavailable, GetCode(err))

	wrapped := fmt.Errorf("scan failed: %w", err)
	assert.Equal(t, ErrCodeSourceUnavailable, GetCode(wrapped))

	assert.Equal(t, "", GetCode(fmt.Errorf("plain error")))
}

func TestErrorIs_MatchesByCode(t *testing.T) {
	err := IngestRunning()
	target := New(ErrCodeIngestRunning, "different message", nil)

	assert.ErrorIs(t, err, target)
}

func TestWithDetail(t *testing.T) {
	err := New(ErrCodeStoreWrite, "insert failed", nil).
		WithDetail("doc_id", "a1b2c3d4e5f60718").
		WithDetail("table", "chunks")

	assert.Equal(t, "a1b2c3d4e5f60718", err.Details["doc_id"])
	assert.Equal(t, "chunks", err.Details["table"])
}
