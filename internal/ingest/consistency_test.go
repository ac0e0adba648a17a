package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/memdex/internal/store"
)

func newChecker(p *testPipeline) *ConsistencyChecker {
	return NewConsistencyChecker(p.store, p.lexical, p.vector, p.embedder.ModelName(), nil)
}

func TestConsistencyCleanAfterIngest(t *testing.T) {
	p := newTestPipeline(t)
	p.writeNote(t, "alpha.md", noteText("gardening"))

	_, err := p.orch.Run(context.Background(), Options{})
	require.NoError(t, err)

	result, err := newChecker(p).Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Inconsistencies)
	assert.Greater(t, result.Checked, 0)

	ok, err := newChecker(p).QuickCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConsistencyDetectsOrphans(t *testing.T) {
	p := newTestPipeline(t)
	p.writeNote(t, "alpha.md", noteText("gardening"))

	_, err := p.orch.Run(context.Background(), Options{})
	require.NoError(t, err)

	ctx := context.Background()
	orphan := &store.Chunk{ID: "feedfeedfeedfeed", DocID: "nosuchdoc", Seq: 0, Text: "orphaned text"}
	require.NoError(t, p.lexical.Index(ctx, []*store.Chunk{orphan}))

	vec := make([]float32, testDims)
	vec[0] = 1
	require.NoError(t, p.vector.Add(ctx, []string{"feedfeedfeedfeed"}, [][]float32{vec}))

	checker := newChecker(p)
	result, err := checker.Check(ctx)
	require.NoError(t, err)
	require.Len(t, result.Inconsistencies, 2)

	types := map[string]bool{}
	for _, issue := range result.Inconsistencies {
		types[issue.Type.String()] = true
		assert.Equal(t, "feedfeedfeedfeed", issue.ChunkID)
	}
	assert.True(t, types["orphan_lexical"])
	assert.True(t, types["orphan_vector"])

	missing := checker.Repair(ctx, result.Inconsistencies)
	assert.Zero(t, missing)

	result, err = checker.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Inconsistencies)
}

func TestConsistencyRepairsMissingEntries(t *testing.T) {
	p := newTestPipeline(t)
	p.writeNote(t, "alpha.md", noteText("gardening"))

	_, err := p.orch.Run(context.Background(), Options{})
	require.NoError(t, err)

	ctx := context.Background()
	ids, err := p.store.AllChunkIDs(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	require.NoError(t, p.lexical.Delete(ctx, ids[:1]))
	require.NoError(t, p.vector.Delete(ctx, ids[:1]))

	checker := newChecker(p)
	result, err := checker.Check(ctx)
	require.NoError(t, err)
	require.Len(t, result.Inconsistencies, 2)

	unrepaired := checker.Repair(ctx, result.Inconsistencies)
	assert.Zero(t, unrepaired)

	// The lexical entry is rebuilt from the store immediately; the
	// vector goes back on the pending queue for the next embed pass.
	lexicalIDs, err := p.lexical.AllIDs()
	require.NoError(t, err)
	assert.Contains(t, lexicalIDs, ids[0])

	pending, err := p.store.PendingChunkIDs(ctx, p.embedder.ModelName())
	require.NoError(t, err)
	assert.Contains(t, pending, ids[0])
}

func TestFullScanHealsMissingEntries(t *testing.T) {
	p := newTestPipeline(t)
	p.writeNote(t, "alpha.md", noteText("gardening"))

	ctx := context.Background()
	_, err := p.orch.Run(ctx, Options{})
	require.NoError(t, err)

	ids, err := p.store.AllChunkIDs(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, ids)
	require.NoError(t, p.lexical.Delete(ctx, ids[:1]))
	require.NoError(t, p.vector.Delete(ctx, ids[:1]))

	// First full scan re-indexes the lexical entry and requeues the
	// vector; the second embeds it. Both runs succeed.
	_, err = p.orch.Run(ctx, Options{FullScan: true})
	require.NoError(t, err)
	_, err = p.orch.Run(ctx, Options{FullScan: true})
	require.NoError(t, err)

	result, err := newChecker(p).Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Inconsistencies)
}

func TestConsistencyPendingChunksNotMissingFromVector(t *testing.T) {
	p := newTestPipeline(t)
	p.writeNote(t, "alpha.md", noteText("gardening"))
	p.embedder.available = false

	_, err := p.orch.Run(context.Background(), Options{})
	require.NoError(t, err)

	// Chunks await vectors; that is pending work, not corruption.
	result, err := newChecker(p).Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Inconsistencies)
}
