// Package embed generates vector embeddings for text chunks.
//
// Two providers are available: an OpenAI-compatible HTTP provider for
// real semantic embeddings, and a deterministic hash-based static
// provider that works offline. Both can be wrapped with an LRU cache
// and driven through the batch pipeline in batcher.go.
package embed

import (
	"context"
	"math"
)

// Batch size constraints.
const (
	MinBatchSize     = 1
	MaxBatchSize     = 256
	DefaultBatchSize = 32

	// DefaultMaxBatchTokens caps the estimated token budget of a single
	// provider request so oversized chunks do not blow request limits.
	DefaultMaxBatchTokens = 8000
)

// StaticDimensions is the vector size produced by the static provider.
const StaticDimensions = 256

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	// Empty or whitespace-only input yields a zero vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	// The result slice is index-aligned with the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// ModelName returns the model identifier used for embedding.
	ModelName() string

	// Available reports whether the provider can serve requests.
	Available(ctx context.Context) bool

	// Close releases provider resources. Safe to call multiple times.
	Close() error
}

// normalizeVector scales a vector to unit length. Zero vectors are
// returned unchanged so empty-input embeddings stay zero.
func normalizeVector(vector []float32) []float32 {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vector
	}
	norm := float32(math.Sqrt(sum))
	for i := range vector {
		vector[i] /= norm
	}
	return vector
}
