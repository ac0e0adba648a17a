// Package search provides hybrid retrieval over the corpus, combining
// BM25 keyword matching and vector similarity with weighted score
// fusion.
package search

import (
	"context"
)

// Default search parameters, overridable per query and via config.
const (
	DefaultLimit         = 10
	DefaultOverfetch     = 5
	DefaultLexicalWeight = 0.6
	DefaultVectorWeight  = 0.4
	DefaultSnippetLength = 240
)

// Options control a single search.
type Options struct {
	// Limit is the maximum number of documents returned.
	Limit int

	// Overfetch multiplies Limit when querying each index, giving
	// fusion deeper candidate lists before document deduplication.
	Overfetch int

	// LexicalWeight and VectorWeight blend the two normalized score
	// lists. They should sum to 1.
	LexicalWeight float64
	VectorWeight  float64

	// LexicalOnly skips the vector leg entirely.
	LexicalOnly bool

	// Kinds restricts results to the given source kinds. Empty means
	// all kinds.
	Kinds []string

	// SnippetLength caps the snippet in characters.
	SnippetLength int
}

// Result is one document-level search hit. The snippet and scores come
// from the document's best-scoring chunk.
type Result struct {
	DocID   string `json:"doc_id"`
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	ChunkID string `json:"chunk_id"`
	Snippet string `json:"snippet"`

	// Score is the fused score in [0,1].
	Score float64 `json:"score"`

	// LexicalScore and VectorScore are the raw per-index scores of the
	// winning chunk, zero when the chunk missed that index's list.
	LexicalScore float64 `json:"lexical_score,omitempty"`
	VectorScore  float64 `json:"vector_score,omitempty"`

	// InBoth marks chunks that appeared in both candidate lists.
	InBoth bool `json:"in_both,omitempty"`

	// MatchedTerms are the query terms the lexical index matched.
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

// Searcher is the query-side interface implemented by Engine.
type Searcher interface {
	Search(ctx context.Context, query string, opts Options) ([]*Result, error)
}
