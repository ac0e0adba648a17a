// Package store provides the persistence layer: document metadata
// (SQLite), the lexical full-text index (SQLite FTS5 or Bleve), and
// the vector index (HNSW).
package store

import (
	"context"
	"time"
)

// State keys for the document store's key-value state table.
const (
	// StateKeyIndexDimension stores the embedding dimension used for the index.
	StateKeyIndexDimension = "index_embedding_dimension"
	// StateKeyIndexModel stores the embedding model name used for the index.
	StateKeyIndexModel = "index_embedding_model"
	// StateKeyLastIngest stores the RFC3339 timestamp of the last completed cycle.
	StateKeyLastIngest = "last_ingest_at"
	// StateKeyLastFullScan stores the RFC3339 timestamp of the last full scan.
	StateKeyLastFullScan = "last_full_scan_at"
	// StateKeyIngestStage stores the current ingestion stage for status reporting.
	StateKeyIngestStage = "ingest_stage"
)

// Document is the ledger entry for one source file.
type Document struct {
	ID          string    // First 16 hex chars of SHA256(absolute path)
	Path        string    // Absolute source path
	Kind        string    // Source kind: notes, summary, memory, logs
	Title       string    // File name without extension
	ContentHash string    // SHA256 of normalized content
	ModTime     time.Time // Source mtime, truncated to seconds
	Size        int64     // Source size in bytes
	ChunkCount  int
	IndexedAt   time.Time
}

// Chunk is one indexable unit of a document.
type Chunk struct {
	ID            string // First 16 hex chars of SHA256(doc_id:seq)
	DocID         string
	Seq           int
	Text          string
	TokenEstimate int

	// EmbeddedModel is the model whose vector covers this chunk,
	// empty while the chunk awaits embedding.
	EmbeddedModel string
}

// StoreStats summarizes document store contents for status reporting.
type StoreStats struct {
	DocumentCount int
	ChunkCount    int
	EmbeddedCount int
	PendingCount  int
	ByKind        map[string]int
}

// DocumentStore persists documents, chunks, and ingestion state.
type DocumentStore interface {
	// SaveDocument atomically replaces a document and its chunks.
	SaveDocument(ctx context.Context, doc *Document, chunks []*Chunk) error

	GetDocument(ctx context.Context, id string) (*Document, error)
	GetDocumentByPath(ctx context.Context, path string) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)

	// DeleteDocument removes a document and cascades to its chunks.
	DeleteDocument(ctx context.Context, id string) error

	ChunkIDs(ctx context.Context, docID string) ([]string, error)
	AllChunkIDs(ctx context.Context) ([]string, error)
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)

	// MarkEmbedded records which model's vector covers each chunk.
	MarkEmbedded(ctx context.Context, chunkIDs []string, model string) error

	// PendingChunkIDs returns chunks without a vector for the given model.
	PendingChunkIDs(ctx context.Context, model string) ([]string, error)

	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	Stats(ctx context.Context) (*StoreStats, error)

	// Vacuum reclaims space and refreshes planner statistics.
	Vacuum(ctx context.Context) error

	Close() error
}

// LexicalResult is a single full-text search hit.
type LexicalResult struct {
	ChunkID      string
	Score        float64 // Higher is better
	MatchedTerms []string
}

// LexicalIndex provides keyword search over chunks with BM25 scoring.
type LexicalIndex interface {
	// Index adds chunks to the index, replacing existing entries.
	Index(ctx context.Context, chunks []*Chunk) error

	Search(ctx context.Context, query string, limit int) ([]*LexicalResult, error)

	Delete(ctx context.Context, chunkIDs []string) error

	// AllIDs returns all chunk IDs in the index (for consistency checks).
	AllIDs() ([]string, error)

	Count() int

	// Save flushes pending writes to disk.
	Save() error
	Close() error
}

// VectorResult is a single nearest-neighbor search hit.
type VectorResult struct {
	ChunkID  string
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// VectorIndex provides approximate nearest-neighbor search over chunk vectors.
type VectorIndex interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	Delete(ctx context.Context, ids []string) error

	// AllIDs returns all chunk IDs in the index (for consistency checks).
	AllIDs() []string

	Contains(id string) bool
	Count() int

	Save(path string) error
	Load(path string) error
	Close() error
}

// VectorConfig configures the vector index.
type VectorConfig struct {
	// Dimensions is the embedding dimension.
	Dimensions int

	// Metric is the distance metric: "cos" (cosine) or "l2" (euclidean).
	Metric string

	// M is HNSW max connections per layer.
	M int

	// EfSearch is HNSW query-time search width.
	EfSearch int
}

// DefaultVectorConfig returns sensible defaults for the vector index.
func DefaultVectorConfig(dimensions int) VectorConfig {
	return VectorConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// LexicalConfig configures the lexical index.
type LexicalConfig struct {
	// StopWords is a list of words to filter out during tokenization.
	StopWords []string

	// MinTokenLength is the minimum token length to index.
	MinTokenLength int
}

// DefaultLexicalConfig returns the default lexical index configuration.
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DefaultStopWords contains common English words excluded from the index.
var DefaultStopWords = []string{
	"the", "a", "an", "and", "or", "but", "of", "to", "in", "on",
	"for", "with", "at", "by", "from", "as", "is", "are", "was",
	"were", "be", "been", "it", "this", "that", "these", "those",
}
