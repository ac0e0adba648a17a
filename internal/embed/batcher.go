package embed

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	memdexerrors "github.com/openclaw/memdex/internal/errors"
)

// DefaultRequestsPerSecond limits provider request rate so bulk
// ingestion does not trip local-server or API rate limits.
const DefaultRequestsPerSecond = 4

// BatcherConfig configures the embedding pipeline.
type BatcherConfig struct {
	// BatchSize caps items per provider request.
	BatchSize int

	// MaxBatchTokens caps the estimated token sum of a request. A
	// single oversized item still goes out alone.
	MaxBatchTokens int

	// RequestsPerSecond throttles provider calls across all workers.
	RequestsPerSecond float64

	// Workers bounds concurrent provider requests.
	Workers int

	// Retry governs backoff for transient provider failures.
	Retry memdexerrors.RetryConfig
}

// DefaultBatcherConfig returns the standard pipeline settings.
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		BatchSize:         DefaultBatchSize,
		MaxBatchTokens:    DefaultMaxBatchTokens,
		RequestsPerSecond: DefaultRequestsPerSecond,
		Workers:           runtime.NumCPU(),
		Retry:             memdexerrors.DefaultRetryConfig(),
	}
}

// BatchItem is one text to embed, identified by chunk ID.
type BatchItem struct {
	ID            string
	Text          string
	TokenEstimate int
}

// BatchResult carries the vector or the per-item failure for one input.
type BatchResult struct {
	ID     string
	Vector []float32
	Err    error
}

// Batcher drives an Embedder through batched, rate-limited, retried
// requests. Batch failures degrade to per-item requests so one bad
// chunk cannot sink its whole batch.
type Batcher struct {
	embedder Embedder
	config   BatcherConfig
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewBatcher creates a batching pipeline around the given embedder.
func NewBatcher(embedder Embedder, cfg BatcherConfig, logger *slog.Logger) *Batcher {
	if cfg.BatchSize < MinBatchSize || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxBatchTokens <= 0 {
		cfg.MaxBatchTokens = DefaultMaxBatchTokens
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = memdexerrors.DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batcher{
		embedder: embedder,
		config:   cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:   logger,
	}
}

// EmbedAll embeds every item and returns results index-aligned with the
// input. Per-item failures are recorded in BatchResult.Err; the error
// return is reserved for context cancellation.
func (b *Batcher) EmbedAll(ctx context.Context, items []BatchItem) ([]BatchResult, error) {
	results := make([]BatchResult, len(items))
	for i, item := range items {
		results[i] = BatchResult{ID: item.ID}
	}
	if len(items) == 0 {
		return results, nil
	}

	batches := b.planBatches(items)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.config.Workers)

	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			vecs, itemErrs, err := b.embedBatch(gctx, batch.items)
			if err != nil {
				return err
			}
			mu.Lock()
			for j, idx := range batch.indices {
				results[idx].Vector = vecs[j]
				results[idx].Err = itemErrs[j]
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// plannedBatch groups consecutive items with their input positions.
type plannedBatch struct {
	items   []BatchItem
	indices []int
}

// planBatches splits items into batches bounded by count and token
// budget.
func (b *Batcher) planBatches(items []BatchItem) []plannedBatch {
	var batches []plannedBatch
	var current plannedBatch
	tokens := 0

	flush := func() {
		if len(current.items) > 0 {
			batches = append(batches, current)
			current = plannedBatch{}
			tokens = 0
		}
	}

	for i, item := range items {
		overCount := len(current.items) >= b.config.BatchSize
		overBudget := len(current.items) > 0 && tokens+item.TokenEstimate > b.config.MaxBatchTokens
		if overCount || overBudget {
			flush()
		}
		current.items = append(current.items, item)
		current.indices = append(current.indices, i)
		tokens += item.TokenEstimate
	}
	flush()

	return batches
}

// embedBatch embeds one batch with retry, falling back to per-item
// requests when the batch as a whole keeps failing. The returned error
// is non-nil only for context cancellation.
func (b *Batcher) embedBatch(ctx context.Context, items []BatchItem) ([][]float32, []error, error) {
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Text
	}

	vecs, err := memdexerrors.RetryWithResult(ctx, b.config.Retry, func() ([][]float32, error) {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return b.embedder.EmbedBatch(ctx, texts)
	})
	if err == nil {
		return vecs, make([]error, len(items)), nil
	}
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}
	if len(items) == 1 {
		b.logger.Warn("chunk_embed_failed",
			slog.String("chunk_id", items[0].ID),
			slog.String("error", err.Error()))
		return make([][]float32, 1), []error{err}, nil
	}

	b.logger.Warn("batch_embed_failed",
		slog.Int("batch_size", len(items)),
		slog.String("error", err.Error()))

	// Isolate the failure: retry each item on its own so siblings of a
	// poisoned chunk still get embedded.
	outVecs := make([][]float32, len(items))
	outErrs := make([]error, len(items))
	for i, item := range items {
		vec, itemErr := memdexerrors.RetryWithResult(ctx, b.config.Retry, func() ([]float32, error) {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return b.embedder.Embed(ctx, item.Text)
		})
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		if itemErr != nil {
			b.logger.Warn("chunk_embed_failed",
				slog.String("chunk_id", item.ID),
				slog.String("error", itemErr.Error()))
			outErrs[i] = itemErr
			continue
		}
		outVecs[i] = vec
	}
	return outVecs, outErrs, nil
}
