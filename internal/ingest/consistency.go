package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/openclaw/memdex/internal/store"
)

// InconsistencyType categorizes a cross-index issue.
type InconsistencyType int

const (
	// InconsistencyOrphanLexical is a lexical entry whose chunk is gone.
	InconsistencyOrphanLexical InconsistencyType = iota
	// InconsistencyOrphanVector is a vector entry whose chunk is gone.
	InconsistencyOrphanVector
	// InconsistencyMissingLexical is a stored chunk absent from the lexical index.
	InconsistencyMissingLexical
	// InconsistencyMissingVector is an embedded chunk absent from the vector index.
	InconsistencyMissingVector
)

func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanLexical:
		return "orphan_lexical"
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyMissingLexical:
		return "missing_lexical"
	case InconsistencyMissingVector:
		return "missing_vector"
	default:
		return "unknown"
	}
}

// Inconsistency is one detected cross-index issue.
type Inconsistency struct {
	Type    InconsistencyType
	ChunkID string
}

// CheckResult is the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of stored chunks verified.
	Checked int
	// Inconsistencies are all detected issues.
	Inconsistencies []Inconsistency
	// Duration is how long the check took.
	Duration time.Duration
}

// ConsistencyChecker validates that the document store, the lexical
// index, and the vector index agree on which chunks exist. The store
// is the source of truth.
type ConsistencyChecker struct {
	store   store.DocumentStore
	lexical store.LexicalIndex
	vector  store.VectorIndex
	model   string
	logger  *slog.Logger
}

// NewConsistencyChecker creates a checker. The model identifies which
// chunks are expected to have vectors.
func NewConsistencyChecker(docStore store.DocumentStore, lexical store.LexicalIndex, vector store.VectorIndex, model string, logger *slog.Logger) *ConsistencyChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsistencyChecker{
		store:   docStore,
		lexical: lexical,
		vector:  vector,
		model:   model,
		logger:  logger,
	}
}

// Check scans all three stores for orphaned and missing entries.
// O(n) in the total number of chunks.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()
	var issues []Inconsistency

	allIDs, err := c.store.AllChunkIDs(ctx)
	if err != nil {
		return nil, err
	}
	storedSet := make(map[string]bool, len(allIDs))
	for _, id := range allIDs {
		storedSet[id] = true
	}

	// Chunks still awaiting a vector are legitimately absent from the
	// vector index; only embedded chunks count as missing there.
	pending, err := c.store.PendingChunkIDs(ctx, c.model)
	if err != nil {
		return nil, err
	}
	pendingSet := make(map[string]bool, len(pending))
	for _, id := range pending {
		pendingSet[id] = true
	}

	lexicalIDs, err := c.lexical.AllIDs()
	if err != nil {
		c.logger.Warn("lexical_ids_unavailable", slog.String("error", err.Error()))
	}
	lexicalSet := make(map[string]bool, len(lexicalIDs))
	for _, id := range lexicalIDs {
		lexicalSet[id] = true
		if !storedSet[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanLexical, ChunkID: id})
		}
	}

	vectorIDs := c.vector.AllIDs()
	vectorSet := make(map[string]bool, len(vectorIDs))
	for _, id := range vectorIDs {
		vectorSet[id] = true
		if !storedSet[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanVector, ChunkID: id})
		}
	}

	for _, id := range allIDs {
		if !lexicalSet[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingLexical, ChunkID: id})
		}
		if !vectorSet[id] && !pendingSet[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingVector, ChunkID: id})
		}
	}

	return &CheckResult{
		Checked:         len(allIDs),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair fixes what it can: orphans are deleted from their index,
// missing lexical entries are re-indexed from the store, and missing
// vectors are re-marked pending so the next embedding pass restores
// them. Returns the number of chunks it could not repair.
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Inconsistency) int {
	var orphanLexical, orphanVector, missingLexical, missingVector []string

	for _, issue := range issues {
		switch issue.Type {
		case InconsistencyOrphanLexical:
			orphanLexical = append(orphanLexical, issue.ChunkID)
		case InconsistencyOrphanVector:
			orphanVector = append(orphanVector, issue.ChunkID)
		case InconsistencyMissingLexical:
			missingLexical = append(missingLexical, issue.ChunkID)
		case InconsistencyMissingVector:
			missingVector = append(missingVector, issue.ChunkID)
		}
	}

	if len(orphanLexical) > 0 {
		if err := c.lexical.Delete(ctx, orphanLexical); err != nil {
			c.logger.Warn("orphan_lexical_delete_failed",
				slog.Int("count", len(orphanLexical)),
				slog.String("error", err.Error()))
		} else {
			c.logger.Info("orphan_lexical_deleted", slog.Int("count", len(orphanLexical)))
		}
	}

	if len(orphanVector) > 0 {
		if err := c.vector.Delete(ctx, orphanVector); err != nil {
			c.logger.Warn("orphan_vector_delete_failed",
				slog.Int("count", len(orphanVector)),
				slog.String("error", err.Error()))
		} else {
			c.logger.Info("orphan_vector_deleted", slog.Int("count", len(orphanVector)))
		}
	}

	unrepaired := 0
	unrepaired += c.restoreLexical(ctx, missingLexical)
	unrepaired += c.resetVectorMarks(ctx, missingVector)
	return unrepaired
}

// restoreLexical re-indexes stored chunks whose lexical entries were
// lost. The store is the source of truth, so this is loss-free.
func (c *ConsistencyChecker) restoreLexical(ctx context.Context, ids []string) int {
	if len(ids) == 0 {
		return 0
	}

	chunks, err := c.store.GetChunks(ctx, ids)
	if err != nil {
		c.logger.Warn("missing_lexical_fetch_failed",
			slog.Int("count", len(ids)),
			slog.String("error", err.Error()))
		return len(ids)
	}
	if err := c.lexical.Index(ctx, chunks); err != nil {
		c.logger.Warn("missing_lexical_reindex_failed",
			slog.Int("count", len(ids)),
			slog.String("error", err.Error()))
		return len(ids)
	}

	c.logger.Info("missing_lexical_restored", slog.Int("count", len(ids)))
	return 0
}

// resetVectorMarks clears the embedded mark for chunks whose vectors
// were lost, putting them back in the pending set for the next
// embedding pass.
func (c *ConsistencyChecker) resetVectorMarks(ctx context.Context, ids []string) int {
	if len(ids) == 0 {
		return 0
	}

	if err := c.store.MarkEmbedded(ctx, ids, ""); err != nil {
		c.logger.Warn("missing_vector_reset_failed",
			slog.Int("count", len(ids)),
			slog.String("error", err.Error()))
		return len(ids)
	}

	c.logger.Info("missing_vector_requeued", slog.Int("count", len(ids)))
	return 0
}

// QuickCheck compares entry counts only. Cheap enough to run on every
// incremental ingest.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) (bool, error) {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return false, err
	}

	lexicalCount := c.lexical.Count()
	vectorCount := c.vector.Count()

	consistent := stats.ChunkCount == lexicalCount && stats.EmbeddedCount == vectorCount
	if !consistent {
		c.logger.Debug("index_count_mismatch",
			slog.Int("stored", stats.ChunkCount),
			slog.Int("embedded", stats.EmbeddedCount),
			slog.Int("lexical", lexicalCount),
			slog.Int("vector", vectorCount))
	}
	return consistent, nil
}
