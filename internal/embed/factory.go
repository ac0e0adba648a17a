package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openclaw/memdex/internal/config"
)

// Provider names accepted by NewEmbedder.
const (
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
)

// NewEmbedder builds the embedder selected by config, wrapped in the
// LRU cache. An empty provider auto-detects: the OpenAI-compatible
// endpoint when reachable, otherwise the static fallback.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig, logger *slog.Logger) (Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var inner Embedder
	switch cfg.Provider {
	case ProviderOpenAI:
		inner = newOpenAIFromConfig(cfg)
	case ProviderStatic:
		inner = NewStaticEmbedder()
	case "":
		candidate := newOpenAIFromConfig(cfg)
		if candidate.Available(ctx) {
			inner = candidate
		} else {
			_ = candidate.Close()
			logger.Warn("embedding_provider_unreachable",
				slog.String("endpoint", cfg.Endpoint),
				slog.String("fallback", ProviderStatic))
			inner = NewStaticEmbedder()
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	logger.Debug("embedder_selected",
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}

func newOpenAIFromConfig(cfg config.EmbeddingsConfig) *OpenAIEmbedder {
	return NewOpenAIEmbedder(OpenAIConfig{
		Endpoint:   cfg.Endpoint,
		APIKeyEnv:  cfg.APIKeyEnv,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		BatchSize:  cfg.BatchSize,
		Timeout:    cfg.Timeout,
	})
}
