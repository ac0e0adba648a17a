package ingest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memdexerrors "github.com/openclaw/memdex/internal/errors"
)

func TestRunLockAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "ingest.lock")
	lock := NewRunLock(path)

	require.NoError(t, lock.Acquire())
	assert.Equal(t, path, lock.Path())
	require.NoError(t, lock.Release())

	// Released locks can be re-acquired.
	require.NoError(t, lock.Acquire())
	require.NoError(t, lock.Release())
}

func TestRunLockConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.lock")

	first := NewRunLock(path)
	require.NoError(t, first.Acquire())
	defer func() { _ = first.Release() }()

	second := NewRunLock(path)
	err := second.Acquire()
	require.Error(t, err)
	assert.Equal(t, memdexerrors.ErrCodeIngestRunning, memdexerrors.GetCode(err))

	require.NoError(t, first.Release())
	require.NoError(t, second.Acquire())
	require.NoError(t, second.Release())
}

func TestRunLockReleaseWithoutAcquire(t *testing.T) {
	lock := NewRunLock(filepath.Join(t.TempDir(), "ingest.lock"))
	assert.NoError(t, lock.Release())
	assert.NoError(t, lock.Release())
}
