package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memdexerrors "github.com/openclaw/memdex/internal/errors"
)

func newTestVector(t *testing.T, dims int) *HNSWIndex {
	t.Helper()
	idx, err := NewHNSWIndex(DefaultVectorConfig(dims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestHNSW_AddAndSearch(t *testing.T) {
	idx := newTestVector(t, 3)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]string{"c1", "c2", "c3"},
		[][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0.9, 0.1, 0},
		}))

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Equal(t, "c3", results[1].ChunkID)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.001)
}

func TestHNSW_DimensionMismatch(t *testing.T) {
	idx := newTestVector(t, 4)
	ctx := context.Background()

	err := idx.Add(ctx, []string{"c1"}, [][]float32{{1, 0}})
	require.Error(t, err)
	assert.Equal(t, memdexerrors.ErrCodeDimensionMismatch, memdexerrors.GetCode(err))

	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	require.Error(t, err)
	assert.Equal(t, memdexerrors.ErrCodeDimensionMismatch, memdexerrors.GetCode(err))
}

func TestHNSW_Replace(t *testing.T) {
	idx := newTestVector(t, 2)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []string{"c1"}, [][]float32{{1, 0}}))
	require.NoError(t, idx.Add(ctx, []string{"c1"}, [][]float32{{0, 1}}))

	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.001)
}

func TestHNSW_LazyDelete(t *testing.T) {
	idx := newTestVector(t, 2)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]string{"c1", "c2"},
		[][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, idx.Delete(ctx, []string{"c1"}))

	assert.Equal(t, 1, idx.Count())
	assert.False(t, idx.Contains("c1"))
	assert.True(t, idx.Contains("c2"))

	// Deleted vector never surfaces, even as the nearest neighbor
	results, err := idx.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c2", results[0].ChunkID)
}

func TestHNSW_EmptySearch(t *testing.T) {
	idx := newTestVector(t, 2)

	results, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSW_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")
	ctx := context.Background()

	idx := newTestVector(t, 3)
	require.NoError(t, idx.Add(ctx,
		[]string{"c1", "c2"},
		[][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, idx.Save(path))

	loaded, err := NewHNSWIndex(DefaultVectorConfig(3))
	require.NoError(t, err)
	defer loaded.Close()
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 2, loaded.Count())
	assert.ElementsMatch(t, []string{"c1", "c2"}, loaded.AllIDs())

	results, err := loaded.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
}

func TestReadHNSWDimensions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")

	dims, err := ReadHNSWDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 0, dims)

	idx := newTestVector(t, 5)
	require.NoError(t, idx.Add(context.Background(), []string{"c1"}, [][]float32{{1, 0, 0, 0, 0}}))
	require.NoError(t, idx.Save(path))

	dims, err = ReadHNSWDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 5, dims)
}

func TestNormalizeVectorInPlace(t *testing.T) {
	v := []float32{3, 4}
	normalizeVectorInPlace(v)
	assert.InDelta(t, 0.6, float64(v[0]), 0.001)
	assert.InDelta(t, 0.8, float64(v[1]), 0.001)

	zero := []float32{0, 0}
	normalizeVectorInPlace(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}
