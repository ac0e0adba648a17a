// Package ingest runs the ingestion pipeline: enumerate sources,
// detect changes, chunk, index, embed, and reconcile the three stores.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openclaw/memdex/internal/chunk"
	"github.com/openclaw/memdex/internal/config"
	"github.com/openclaw/memdex/internal/embed"
	memdexerrors "github.com/openclaw/memdex/internal/errors"
	"github.com/openclaw/memdex/internal/source"
	"github.com/openclaw/memdex/internal/store"
)

// Ingestion stages persisted in store state, so an interrupted run is
// visible to status.
const (
	StageIdle        = "idle"
	StageScanning    = "scanning"
	StageIndexing    = "indexing"
	StageEmbedding   = "embedding"
	StageReconciling = "reconciling"
)

// Options modify a single ingestion run.
type Options struct {
	// FullScan re-hashes every file, reconciles deletions, backs up
	// the indexes, and repairs cross-index inconsistencies.
	FullScan bool

	// Since skips files whose mtime is older than the window. Zero
	// means no cutoff. Incompatible with FullScan removal semantics,
	// so full scans ignore it.
	Since time.Duration

	// DryRun detects changes and fills the report without touching
	// any index.
	DryRun bool
}

// Report summarizes an ingestion run.
type Report struct {
	Scanned   int
	Added     int
	Modified  int
	Unchanged int
	Removed   int

	ChunksIndexed  int
	ChunksEmbedded int
	EmbedFailures  int

	// PendingChunks counts chunks still awaiting a vector after the
	// run (embed failures plus anything skipped while the provider
	// was down).
	PendingChunks int

	Duration time.Duration
}

// Partial reports whether the run completed with degraded coverage.
func (r *Report) Partial() bool {
	return r.EmbedFailures > 0 || r.PendingChunks > 0
}

// OrchestratorConfig wires the pipeline dependencies.
type OrchestratorConfig struct {
	Config     *config.Config
	Store      store.DocumentStore
	Lexical    store.LexicalIndex
	Vector     store.VectorIndex
	Embedder   embed.Embedder
	Enumerator source.Enumerator
	Logger     *slog.Logger
}

// Orchestrator drives ingestion runs. One run at a time per data
// directory, enforced by a cross-process file lock.
type Orchestrator struct {
	cfg     *config.Config
	store   store.DocumentStore
	lexical store.LexicalIndex
	vector  store.VectorIndex
	embed   embed.Embedder
	enum    source.Enumerator
	chunker *chunk.Chunker
	batcher *embed.Batcher
	logger  *slog.Logger
}

// NewOrchestrator creates an ingestion orchestrator.
func NewOrchestrator(oc OrchestratorConfig) *Orchestrator {
	logger := oc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := oc.Config
	batcher := embed.NewBatcher(oc.Embedder, embed.BatcherConfig{
		BatchSize:         cfg.Embeddings.BatchSize,
		MaxBatchTokens:    cfg.Embeddings.MaxBatchTokens,
		RequestsPerSecond: cfg.Embeddings.RequestsPerSecond,
		Workers:           cfg.Ingest.Workers,
	}, logger)

	return &Orchestrator{
		cfg:     cfg,
		store:   oc.Store,
		lexical: oc.Lexical,
		vector:  oc.Vector,
		embed:   oc.Embedder,
		enum:    oc.Enumerator,
		chunker: chunk.NewChunker(cfg.Ingest.ChunkMaxChars, cfg.Ingest.ChunkMinChars),
		batcher: batcher,
		logger:  logger,
	}
}

// Run executes one ingestion pass. Store write failures abort the run;
// embedding failures degrade it, leaving chunks pending for the next
// run while lexical search stays current.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()

	lock := NewRunLock(o.cfg.LockPath())
	if err := lock.Acquire(); err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	// Dry runs never embed, so a model mismatch doesn't matter.
	if !opts.DryRun {
		if err := o.ensureModelCompatible(ctx, opts.FullScan); err != nil {
			return nil, err
		}
	}

	report := &Report{}

	// Scan.
	o.setStage(ctx, StageScanning)
	docs, err := o.enum.Enumerate(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Since > 0 && !opts.FullScan {
		cutoff := time.Now().Add(-opts.Since)
		recent := docs[:0]
		for _, doc := range docs {
			if !doc.ModTime.Before(cutoff) {
				recent = append(recent, doc)
			}
		}
		docs = recent
	}
	report.Scanned = len(docs)

	detector := NewDetector(o.store, o.logger)
	changes, err := detector.Detect(ctx, docs, opts.FullScan)
	if err != nil {
		return nil, err
	}
	report.Unchanged = changes.Unchanged

	o.logger.Info("ingest_scan_complete",
		slog.Int("scanned", report.Scanned),
		slog.Int("added", len(changes.Added)),
		slog.Int("modified", len(changes.Modified)),
		slog.Int("removed", len(changes.Removed)),
		slog.Int("unchanged", changes.Unchanged),
		slog.Bool("full_scan", opts.FullScan))

	if opts.DryRun {
		o.setStage(ctx, StageIdle)
		report.Added = len(changes.Added)
		report.Modified = len(changes.Modified)
		report.Removed = len(changes.Removed)
		report.Duration = time.Since(start)
		return report, nil
	}

	// Even a changeless full scan mutates: reconciliation may delete
	// orphaned index entries. Snapshot before anything is touched.
	if opts.FullScan {
		o.backupIndexes()
	}

	// Index document changes: store first, then lexical. Vectors come
	// later so a provider outage never blocks keyword search.
	o.setStage(ctx, StageIndexing)

	for _, stored := range changes.Removed {
		if err := o.removeDocument(ctx, stored); err != nil {
			return nil, err
		}
		report.Removed++
	}

	for _, change := range changes.Added {
		n, err := o.indexDocument(ctx, change)
		if err != nil {
			return nil, err
		}
		report.Added++
		report.ChunksIndexed += n
	}
	for _, change := range changes.Modified {
		n, err := o.indexDocument(ctx, change)
		if err != nil {
			return nil, err
		}
		report.Modified++
		report.ChunksIndexed += n
	}

	// Embed everything pending for the current model: new chunks, past
	// failures, and anything orphaned by a model switch.
	o.setStage(ctx, StageEmbedding)
	if err := o.embedPending(ctx, report); err != nil {
		return nil, err
	}

	// Reconcile. Corruption found here fails the run, but only after
	// finishRun persists the indexing and embedding already done.
	o.setStage(ctx, StageReconciling)
	reconcileErr := o.reconcile(ctx, opts.FullScan)

	o.finishRun(ctx, opts.FullScan)

	report.Duration = time.Since(start)
	o.logger.Info("ingest_complete",
		slog.Int("added", report.Added),
		slog.Int("modified", report.Modified),
		slog.Int("removed", report.Removed),
		slog.Int("chunks_indexed", report.ChunksIndexed),
		slog.Int("chunks_embedded", report.ChunksEmbedded),
		slog.Int("embed_failures", report.EmbedFailures),
		slog.Int("pending_chunks", report.PendingChunks),
		slog.Duration("duration", report.Duration))

	if reconcileErr != nil {
		return report, reconcileErr
	}
	return report, nil
}

// ensureModelCompatible refuses an incremental run after the embedding
// model changed; vectors from different models are not comparable. A
// full scan clears the vector index and re-embeds from scratch.
func (o *Orchestrator) ensureModelCompatible(ctx context.Context, fullScan bool) error {
	storedModel, err := o.store.GetState(ctx, store.StateKeyIndexModel)
	if err != nil {
		return err
	}
	current := o.embed.ModelName()
	if storedModel == "" || storedModel == current {
		return nil
	}

	if !fullScan {
		return memdexerrors.New(memdexerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedding model changed from %q to %q", storedModel, current), nil).
			WithSuggestion("run 'memdex ingest --full-scan' to rebuild the vector index")
	}

	o.logger.Warn("vector_index_reset",
		slog.String("old_model", storedModel),
		slog.String("new_model", current))
	if ids := o.vector.AllIDs(); len(ids) > 0 {
		if err := o.vector.Delete(ctx, ids); err != nil {
			return err
		}
	}
	return nil
}

// removeDocument deletes a document from all three stores. Store
// first: leftover index entries become orphans that reconciliation
// cleans up.
func (o *Orchestrator) removeDocument(ctx context.Context, doc *store.Document) error {
	chunkIDs, err := o.store.ChunkIDs(ctx, doc.ID)
	if err != nil {
		return memdexerrors.Wrap(memdexerrors.ErrCodeStoreWrite, err)
	}
	if err := o.store.DeleteDocument(ctx, doc.ID); err != nil {
		return memdexerrors.Wrap(memdexerrors.ErrCodeStoreWrite, err)
	}

	if len(chunkIDs) > 0 {
		if err := o.lexical.Delete(ctx, chunkIDs); err != nil {
			o.logger.Warn("lexical_delete_failed",
				slog.String("doc_id", doc.ID),
				slog.String("error", err.Error()))
		}
		if err := o.vector.Delete(ctx, chunkIDs); err != nil {
			o.logger.Warn("vector_delete_failed",
				slog.String("doc_id", doc.ID),
				slog.String("error", err.Error()))
		}
	}

	o.logger.Debug("document_removed",
		slog.String("path", doc.Path),
		slog.Int("chunks", len(chunkIDs)))
	return nil
}

// indexDocument chunks one changed document and updates the store and
// the lexical index. Returns the chunk count.
func (o *Orchestrator) indexDocument(ctx context.Context, change Change) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	oldIDs, err := o.store.ChunkIDs(ctx, change.DocID)
	if err != nil {
		return 0, memdexerrors.Wrap(memdexerrors.ErrCodeStoreWrite, err)
	}

	chunks := o.chunker.Split(change.DocID, change.Text)

	doc := &store.Document{
		ID:          change.DocID,
		Path:        change.Doc.Path,
		Kind:        change.Doc.Kind,
		Title:       change.Doc.Title,
		ContentHash: change.ContentHash,
		ModTime:     change.Doc.ModTime,
		Size:        change.Doc.Size,
		ChunkCount:  len(chunks),
		IndexedAt:   time.Now().Truncate(time.Second),
	}

	storeChunks := make([]*store.Chunk, len(chunks))
	for i, c := range chunks {
		storeChunks[i] = &store.Chunk{
			ID:            c.ID,
			DocID:         c.DocID,
			Seq:           c.Seq,
			Text:          c.Text,
			TokenEstimate: c.TokenEstimate,
		}
	}

	if err := o.store.SaveDocument(ctx, doc, storeChunks); err != nil {
		return 0, memdexerrors.Wrap(memdexerrors.ErrCodeStoreWrite, err)
	}

	if err := o.lexical.Index(ctx, storeChunks); err != nil {
		// Keyword coverage degrades for this document only; the
		// consistency check will flag the gap.
		o.logger.Warn("lexical_index_failed",
			slog.String("doc_id", change.DocID),
			slog.String("error", err.Error()))
	}

	// A shrunk document leaves stale trailing chunks in the indexes.
	newSet := make(map[string]bool, len(storeChunks))
	for _, c := range storeChunks {
		newSet[c.ID] = true
	}
	var stale []string
	for _, id := range oldIDs {
		if !newSet[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := o.lexical.Delete(ctx, stale); err != nil {
			o.logger.Warn("lexical_delete_failed",
				slog.String("doc_id", change.DocID),
				slog.String("error", err.Error()))
		}
		if err := o.vector.Delete(ctx, stale); err != nil {
			o.logger.Warn("vector_delete_failed",
				slog.String("doc_id", change.DocID),
				slog.String("error", err.Error()))
		}
	}

	return len(storeChunks), nil
}

// embedPending embeds every chunk without a current-model vector and
// records results. Provider downtime leaves chunks pending instead of
// failing the run.
func (o *Orchestrator) embedPending(ctx context.Context, report *Report) error {
	model := o.embed.ModelName()

	pendingIDs, err := o.store.PendingChunkIDs(ctx, model)
	if err != nil {
		return err
	}
	if len(pendingIDs) == 0 {
		return nil
	}

	if !o.embed.Available(ctx) {
		o.logger.Warn("embedding_skipped_provider_down",
			slog.Int("pending", len(pendingIDs)))
		report.PendingChunks = len(pendingIDs)
		return nil
	}

	chunks, err := o.store.GetChunks(ctx, pendingIDs)
	if err != nil {
		return err
	}

	items := make([]embed.BatchItem, len(chunks))
	for i, c := range chunks {
		items[i] = embed.BatchItem{ID: c.ID, Text: c.Text, TokenEstimate: c.TokenEstimate}
	}

	results, err := o.batcher.EmbedAll(ctx, items)
	if err != nil {
		return err
	}

	var ids []string
	var vectors [][]float32
	for _, res := range results {
		if res.Err != nil {
			report.EmbedFailures++
			continue
		}
		ids = append(ids, res.ID)
		vectors = append(vectors, res.Vector)
	}

	if len(ids) > 0 {
		if err := o.vector.Add(ctx, ids, vectors); err != nil {
			return err
		}
		if err := o.store.MarkEmbedded(ctx, ids, model); err != nil {
			return memdexerrors.Wrap(memdexerrors.ErrCodeStoreWrite, err)
		}
		report.ChunksEmbedded = len(ids)
	}
	report.PendingChunks += report.EmbedFailures

	return nil
}

// reconcile verifies cross-index agreement. Full scans do the O(n)
// ID-level check and repair; incremental runs only compare counts.
func (o *Orchestrator) reconcile(ctx context.Context, fullScan bool) error {
	checker := NewConsistencyChecker(o.store, o.lexical, o.vector, o.embed.ModelName(), o.logger)

	if !fullScan {
		consistent, err := checker.QuickCheck(ctx)
		if err != nil {
			return err
		}
		if !consistent {
			o.logger.Warn("index_counts_diverged",
				slog.String("remedy", "run 'memdex ingest --full-scan'"))
		}
		return nil
	}

	result, err := checker.Check(ctx)
	if err != nil {
		return err
	}
	if len(result.Inconsistencies) > 0 {
		o.logger.Warn("index_inconsistencies_found",
			slog.Int("count", len(result.Inconsistencies)),
			slog.Int("checked", result.Checked))
		// Repair deletes orphans and rebuilds missing entries from the
		// store. Anything left over means the rebuild itself failed.
		if unrepaired := checker.Repair(ctx, result.Inconsistencies); unrepaired > 0 {
			return memdexerrors.IndexCorruption(
				fmt.Sprintf("%d chunks could not be restored to the indexes", unrepaired))
		}
	}
	return nil
}

// backupIndexes snapshots the on-disk indexes before a full scan
// mutates them. Best effort.
func (o *Orchestrator) backupIndexes() {
	keep := o.cfg.Ingest.BackupsToKeep
	for _, path := range []string{
		o.cfg.DatabasePath(),
		o.cfg.VectorIndexPath(),
		o.cfg.VectorIndexPath() + ".meta",
		o.cfg.LexicalBasePath() + ".db",
	} {
		if backup, err := BackupFile(path, keep); err != nil {
			o.logger.Warn("index_backup_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		} else if backup != "" {
			o.logger.Debug("index_backed_up", slog.String("backup", backup))
		}
	}
}

// finishRun persists indexes and run state. Failures here are logged,
// not returned; the data is already consistent in memory and SQLite.
func (o *Orchestrator) finishRun(ctx context.Context, fullScan bool) {
	if err := o.vector.Save(o.cfg.VectorIndexPath()); err != nil {
		o.logger.Warn("vector_save_failed", slog.String("error", err.Error()))
	}
	if err := o.lexical.Save(); err != nil {
		o.logger.Warn("lexical_save_failed", slog.String("error", err.Error()))
	}

	now := time.Now().UTC().Format(time.RFC3339)
	o.setState(ctx, store.StateKeyLastIngest, now)
	o.setState(ctx, store.StateKeyIndexModel, o.embed.ModelName())
	o.setState(ctx, store.StateKeyIndexDimension, fmt.Sprintf("%d", o.embed.Dimensions()))
	if fullScan {
		o.setState(ctx, store.StateKeyLastFullScan, now)
		if err := o.store.Vacuum(ctx); err != nil {
			o.logger.Warn("vacuum_failed", slog.String("error", err.Error()))
		}
	}
	o.setStage(ctx, StageIdle)
}

func (o *Orchestrator) setStage(ctx context.Context, stage string) {
	o.setState(ctx, store.StateKeyIngestStage, stage)
	o.logger.Debug("ingest_stage", slog.String("stage", stage))
}

func (o *Orchestrator) setState(ctx context.Context, key, value string) {
	if err := o.store.SetState(ctx, key, value); err != nil {
		o.logger.Warn("state_write_failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}
