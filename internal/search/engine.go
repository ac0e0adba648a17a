package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openclaw/memdex/internal/embed"
	memdexerrors "github.com/openclaw/memdex/internal/errors"
	"github.com/openclaw/memdex/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// EngineConfig carries the default knobs for the engine, usually taken
// from the search section of the config.
type EngineConfig struct {
	LexicalWeight float64
	VectorWeight  float64
	Overfetch     int
	MaxResults    int
	SnippetLength int
}

// Engine runs hybrid searches: both indexes are queried in parallel,
// chunk candidates are fused by weighted normalized score, and the
// winners are collapsed to document-level results.
type Engine struct {
	store    store.DocumentStore
	lexical  store.LexicalIndex
	vector   store.VectorIndex
	embedder embed.Embedder
	config   EngineConfig
	logger   *slog.Logger
}

var _ Searcher = (*Engine)(nil)

// NewEngine creates a hybrid search engine. All dependencies are
// required.
func NewEngine(docStore store.DocumentStore, lexical store.LexicalIndex, vector store.VectorIndex, embedder embed.Embedder, config EngineConfig, logger *slog.Logger) (*Engine, error) {
	if docStore == nil {
		return nil, fmt.Errorf("%w: document store is required", ErrNilDependency)
	}
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical index is required", ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector index is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    docStore,
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}, nil
}

// Search executes one hybrid query.
//
// The vector leg degrades gracefully: an unreachable provider or an
// empty vector index leaves keyword results intact, reweighted to
// lexical-only so scores stay in [0,1].
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]*Result, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, memdexerrors.New(memdexerrors.ErrCodeInvalidInput, "query is empty", nil)
	}

	opts = e.applyDefaults(opts)
	fetch := opts.Limit * opts.Overfetch

	lexResults, vecResults, err := e.parallelSearch(ctx, query, fetch, opts.LexicalOnly)
	if err != nil {
		return nil, err
	}

	lw, vw := opts.LexicalWeight, opts.VectorWeight
	if len(vecResults) == 0 {
		// Lexical-only: requested, provider down, or nothing embedded
		// yet. Full weight to the one signal we have.
		lw, vw = 1, 0
	}

	fused := NewFusion(lw, vw).Fuse(lexResults, vecResults)

	results, err := e.collapseToDocuments(ctx, fused, opts)
	if err != nil {
		return nil, err
	}
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	e.logger.Debug("search_complete",
		slog.String("query", query),
		slog.Int("lexical_hits", len(lexResults)),
		slog.Int("vector_hits", len(vecResults)),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	return results, nil
}

func (e *Engine) applyDefaults(opts Options) Options {
	if opts.Limit <= 0 {
		opts.Limit = e.config.MaxResults
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Overfetch <= 0 {
		opts.Overfetch = e.config.Overfetch
	}
	if opts.Overfetch <= 0 {
		opts.Overfetch = DefaultOverfetch
	}
	if opts.LexicalWeight <= 0 && opts.VectorWeight <= 0 {
		opts.LexicalWeight = e.config.LexicalWeight
		opts.VectorWeight = e.config.VectorWeight
	}
	if opts.LexicalWeight <= 0 && opts.VectorWeight <= 0 {
		opts.LexicalWeight = DefaultLexicalWeight
		opts.VectorWeight = DefaultVectorWeight
	}
	if opts.SnippetLength <= 0 {
		opts.SnippetLength = e.config.SnippetLength
	}
	if opts.SnippetLength <= 0 {
		opts.SnippetLength = DefaultSnippetLength
	}
	return opts
}

// parallelSearch runs both index legs concurrently. A single failed
// leg degrades the search; both failing fails it.
func (e *Engine) parallelSearch(ctx context.Context, query string, limit int, lexicalOnly bool) ([]*store.LexicalResult, []*store.VectorResult, error) {
	var lexResults []*store.LexicalResult
	var vecResults []*store.VectorResult
	var lexErr, vecErr error

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lexResults, lexErr = e.lexical.Search(gctx, query, limit)
		return nil
	})

	if !lexicalOnly {
		g.Go(func() error {
			if e.vector.Count() == 0 {
				return nil
			}
			if !e.embedder.Available(gctx) {
				vecErr = memdexerrors.New(memdexerrors.ErrCodeProviderUnavailable,
					"embedding provider unreachable", nil)
				return nil
			}
			embedding, err := e.embedder.Embed(gctx, query)
			if err != nil {
				vecErr = err
				return nil
			}
			vecResults, vecErr = e.vector.Search(gctx, embedding, limit)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if lexErr != nil && vecErr != nil {
		return nil, nil, errors.Join(lexErr, vecErr)
	}
	if lexErr != nil {
		e.logger.Warn("lexical_search_failed", slog.String("error", lexErr.Error()))
	}
	if vecErr != nil {
		e.logger.Warn("vector_search_degraded", slog.String("error", vecErr.Error()))
	}

	return lexResults, vecResults, nil
}

// collapseToDocuments enriches fused chunks and keeps only the
// best-scoring chunk per document, preserving fused order.
func (e *Engine) collapseToDocuments(ctx context.Context, fused []*FusedChunk, opts Options) ([]*Result, error) {
	if len(fused) == 0 {
		return []*Result{}, nil
	}

	ids := make([]string, len(fused))
	fusedByID := make(map[string]*FusedChunk, len(fused))
	for i, f := range fused {
		ids[i] = f.ChunkID
		fusedByID[f.ChunkID] = f
	}

	chunks, err := e.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	kindFilter := make(map[string]bool, len(opts.Kinds))
	for _, kind := range opts.Kinds {
		kindFilter[kind] = true
	}

	docCache := make(map[string]*store.Document)
	seenDocs := make(map[string]bool)
	results := make([]*Result, 0, len(chunks))

	// GetChunks preserves the requested (fused) order, so the first
	// chunk seen for a document is its best.
	for _, chunk := range chunks {
		if seenDocs[chunk.DocID] {
			continue
		}

		doc, ok := docCache[chunk.DocID]
		if !ok {
			doc, err = e.store.GetDocument(ctx, chunk.DocID)
			if err != nil {
				return nil, err
			}
			docCache[chunk.DocID] = doc
		}
		if doc == nil {
			// Index ahead of store; reconciliation will catch it.
			continue
		}
		if len(kindFilter) > 0 && !kindFilter[doc.Kind] {
			continue
		}

		seenDocs[chunk.DocID] = true
		f := fusedByID[chunk.ID]
		results = append(results, &Result{
			DocID:        doc.ID,
			Path:         doc.Path,
			Kind:         doc.Kind,
			Title:        doc.Title,
			ChunkID:      chunk.ID,
			Snippet:      MakeSnippet(chunk.Text, f.MatchedTerms, opts.SnippetLength),
			Score:        f.Score,
			LexicalScore: f.LexicalScore,
			VectorScore:  f.VectorScore,
			InBoth:       f.InBoth,
			MatchedTerms: f.MatchedTerms,
		})
	}

	return results, nil
}
