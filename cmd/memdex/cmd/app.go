package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openclaw/memdex/internal/config"
	"github.com/openclaw/memdex/internal/embed"
	memdexerrors "github.com/openclaw/memdex/internal/errors"
	"github.com/openclaw/memdex/internal/logging"
	"github.com/openclaw/memdex/internal/store"
)

// app bundles the components every command needs: resolved config,
// file logger, the three stores, and the embedder.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.SQLiteStore
	lexical  store.LexicalIndex
	vector   *store.HNSWIndex
	embedder embed.Embedder

	logCleanup func()
}

// openApp loads configuration, sets up logging, and opens the stores.
// fullScan relaxes the vector dimension check: a mismatched index is
// discarded and rebuilt instead of rejected.
func openApp(ctx context.Context, fullScan bool) (*app, error) {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}

	cfg, err := config.Load(wd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	if verboseMode {
		logCfg = logging.VerboseConfig()
	}
	logger, logCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		logCleanup()
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, logCleanup: logCleanup}

	a.store, err = store.NewSQLiteStore(cfg.DatabasePath(), cfg.Storage.SQLiteCacheMB)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.lexical, err = store.NewLexicalIndex(cfg.LexicalBasePath(), store.DefaultLexicalConfig(), cfg.Storage.LexicalBackend)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.embedder, err = embed.NewEmbedder(ctx, cfg.Embeddings, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.vector, err = openVectorIndex(cfg, a.embedder, fullScan, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// openVectorIndex opens (or rebuilds) the HNSW index, enforcing the
// dimension policy: the on-disk dimension wins unless it disagrees
// with the active embedder, in which case a full scan rebuilds the
// index and anything else is an error.
func openVectorIndex(cfg *config.Config, embedder embed.Embedder, fullScan bool, logger *slog.Logger) (*store.HNSWIndex, error) {
	path := cfg.VectorIndexPath()

	dims := embedder.Dimensions()
	if dims <= 0 {
		dims = cfg.Embeddings.Dimensions
	}

	stored, err := store.ReadHNSWDimensions(path)
	if err != nil {
		return nil, err
	}
	if stored > 0 && stored != dims {
		if !fullScan {
			return nil, memdexerrors.DimensionMismatch(stored, dims)
		}
		logger.Warn("vector_index_discarded",
			slog.Int("stored_dimensions", stored),
			slog.Int("embedder_dimensions", dims))
		for _, p := range []string{path, path + ".meta"} {
			if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, fmt.Errorf("failed to remove stale vector index: %w", rmErr)
			}
		}
		stored = 0
	}

	idx, err := store.NewHNSWIndex(store.DefaultVectorConfig(dims))
	if err != nil {
		return nil, err
	}

	if stored > 0 {
		if loadErr := idx.Load(path); loadErr != nil {
			// A broken index is recoverable: pending-state tracking
			// re-embeds everything on the next full scan.
			logger.Warn("vector_index_load_failed", slog.String("error", loadErr.Error()))
			idx, err = store.NewHNSWIndex(store.DefaultVectorConfig(dims))
			if err != nil {
				return nil, err
			}
		}
	}

	return idx, nil
}

// Close releases all resources, tolerating partially constructed apps.
func (a *app) Close() {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.vector != nil {
		_ = a.vector.Close()
	}
	if a.lexical != nil {
		_ = a.lexical.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logCleanup != nil {
		a.logCleanup()
	}
}
