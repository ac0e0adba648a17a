package search

import (
	"sort"

	"github.com/openclaw/memdex/internal/store"
)

// FusedChunk is one chunk after weighted score fusion.
type FusedChunk struct {
	ChunkID string

	// Score is the fused weighted score in [0,1].
	Score float64

	// LexicalScore and VectorScore are the raw per-index scores,
	// preserved for display. Zero when absent from that list.
	LexicalScore float64
	VectorScore  float64

	// LexicalNorm and VectorNorm are the min-max normalized
	// contributions in [0,1].
	LexicalNorm float64
	VectorNorm  float64

	// InBoth marks chunks present in both candidate lists.
	InBoth bool

	MatchedTerms []string
}

// Fusion blends lexical and vector candidate lists with min-max score
// normalization and a weighted sum:
//
//	fused(c) = w_lex * norm_lex(c) + w_vec * norm_vec(c)
//
// A chunk absent from one list contributes zero for that component, so
// agreement between the two retrievers is rewarded.
type Fusion struct {
	LexicalWeight float64
	VectorWeight  float64
}

// NewFusion creates a fusion with the given weights. Non-positive
// weight pairs fall back to the defaults.
func NewFusion(lexicalWeight, vectorWeight float64) *Fusion {
	if lexicalWeight <= 0 && vectorWeight <= 0 {
		lexicalWeight = DefaultLexicalWeight
		vectorWeight = DefaultVectorWeight
	}
	return &Fusion{LexicalWeight: lexicalWeight, VectorWeight: vectorWeight}
}

// Fuse merges the two candidate lists into one ranking.
//
// Sort order: fused score desc, then both-lists first, then raw
// lexical score desc, then chunk ID asc for determinism.
func (f *Fusion) Fuse(lexical []*store.LexicalResult, vector []*store.VectorResult) []*FusedChunk {
	if len(lexical) == 0 && len(vector) == 0 {
		return []*FusedChunk{}
	}

	byID := make(map[string]*FusedChunk, len(lexical)+len(vector))

	lexNorms := normalizeLexical(lexical)
	for i, r := range lexical {
		c := &FusedChunk{
			ChunkID:      r.ChunkID,
			LexicalScore: r.Score,
			LexicalNorm:  lexNorms[i],
			MatchedTerms: r.MatchedTerms,
		}
		byID[r.ChunkID] = c
	}

	vecNorms := normalizeVector(vector)
	for i, r := range vector {
		c, ok := byID[r.ChunkID]
		if !ok {
			c = &FusedChunk{ChunkID: r.ChunkID}
			byID[r.ChunkID] = c
		} else {
			c.InBoth = true
		}
		c.VectorScore = float64(r.Score)
		c.VectorNorm = vecNorms[i]
	}

	results := make([]*FusedChunk, 0, len(byID))
	for _, c := range byID {
		c.Score = f.LexicalWeight*c.LexicalNorm + f.VectorWeight*c.VectorNorm
		results = append(results, c)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.InBoth != b.InBoth {
			return a.InBoth
		}
		if a.LexicalScore != b.LexicalScore {
			return a.LexicalScore > b.LexicalScore
		}
		return a.ChunkID < b.ChunkID
	})

	return results
}

// normalizeLexical min-max scales BM25 scores to [0,1]. A list with a
// single score level maps everything to 1: those are that retriever's
// best answers.
func normalizeLexical(results []*store.LexicalResult) []float64 {
	norms := make([]float64, len(results))
	if len(results) == 0 {
		return norms
	}
	min, max := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	for i, r := range results {
		if max == min {
			norms[i] = 1
		} else {
			norms[i] = (r.Score - min) / (max - min)
		}
	}
	return norms
}

// normalizeVector min-max scales similarity scores to [0,1].
func normalizeVector(results []*store.VectorResult) []float64 {
	norms := make([]float64, len(results))
	if len(results) == 0 {
		return norms
	}
	min, max := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	for i, r := range results {
		if max == min {
			norms[i] = 1
		} else {
			norms[i] = float64(r.Score-min) / float64(max-min)
		}
	}
	return norms
}
