// Package chunk splits normalized document text into indexable chunks.
//
// Documents split on blank lines into paragraphs; paragraphs above the
// maximum size split further on sentence boundaries. Fragments below
// the minimum size merge forward into their successor so the index
// carries no near-empty chunks.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMaxChars is the default maximum chunk size.
	DefaultMaxChars = 2000

	// DefaultMinChars is the size below which a chunk merges forward.
	DefaultMinChars = 100
)

// Chunk is one indexable unit of a document.
type Chunk struct {
	// ID is the deterministic chunk identifier, derived from the
	// document ID and the chunk sequence number.
	ID string

	// DocID is the owning document's identifier.
	DocID string

	// Seq is the zero-based position of the chunk within the document.
	Seq int

	// Text is the chunk content.
	Text string

	// TokenEstimate approximates the provider token count (chars/4).
	TokenEstimate int
}

// Chunker splits document text with configurable size bounds.
type Chunker struct {
	maxChars int
	minChars int
}

// NewChunker creates a Chunker. Non-positive bounds fall back to defaults.
func NewChunker(maxChars, minChars int) *Chunker {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if minChars <= 0 || minChars >= maxChars {
		minChars = DefaultMinChars
	}
	return &Chunker{maxChars: maxChars, minChars: minChars}
}

// Split chunks the given document text. Identical input always yields
// identical chunks with identical IDs.
func (c *Chunker) Split(docID, text string) []Chunk {
	parts := c.splitText(text)

	chunks := make([]Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, Chunk{
			ID:            ChunkID(docID, i),
			DocID:         docID,
			Seq:           i,
			Text:          part,
			TokenEstimate: EstimateTokens(part),
		})
	}
	return chunks
}

// splitText produces the chunk texts: paragraphs, sentence-split when
// oversized, merged forward when undersized.
func (c *Chunker) splitText(text string) []string {
	var pieces []string
	for _, para := range splitParagraphs(text) {
		if utf8.RuneCountInString(para) <= c.maxChars {
			pieces = append(pieces, para)
			continue
		}
		pieces = append(pieces, c.splitOversized(para)...)
	}
	return c.mergeForward(pieces)
}

// splitOversized breaks a paragraph into sentence groups under maxChars.
// A single sentence longer than maxChars is hard-split on rune bounds.
func (c *Chunker) splitOversized(para string) []string {
	var out []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if curLen > 0 {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
			curLen = 0
		}
	}

	for _, sent := range splitSentences(para) {
		n := utf8.RuneCountInString(sent)
		if n > c.maxChars {
			flush()
			out = append(out, hardSplit(sent, c.maxChars)...)
			continue
		}
		if curLen > 0 && curLen+1+n > c.maxChars {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(sent)
		curLen += n
	}
	flush()
	return out
}

// mergeForward merges fragments below minChars into their successor.
// A trailing short fragment merges backward into the previous chunk.
func (c *Chunker) mergeForward(pieces []string) []string {
	var out []string
	carry := ""

	for _, piece := range pieces {
		if carry != "" {
			piece = carry + "\n\n" + piece
			carry = ""
		}
		if utf8.RuneCountInString(piece) < c.minChars {
			carry = piece
			continue
		}
		out = append(out, piece)
	}

	if carry != "" {
		if len(out) > 0 {
			out[len(out)-1] = out[len(out)-1] + "\n\n" + carry
		} else {
			out = append(out, carry)
		}
	}
	return out
}

// splitParagraphs splits text on blank lines, dropping empty parts.
func splitParagraphs(text string) []string {
	var paras []string
	for _, part := range strings.Split(text, "\n\n") {
		part = strings.TrimSpace(part)
		if part != "" {
			paras = append(paras, part)
		}
	}
	return paras
}

// splitSentences splits a paragraph on sentence-ending punctuation
// followed by whitespace.
func splitSentences(text string) []string {
	var sents []string
	var cur strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		cur.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') &&
			i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			sent := strings.TrimSpace(cur.String())
			if sent != "" {
				sents = append(sents, sent)
			}
			cur.Reset()
			// Consume the whitespace run after the terminator
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
			}
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		sents = append(sents, rest)
	}
	return sents
}

// hardSplit cuts text into maxChars-rune pieces on rune boundaries.
func hardSplit(text string, maxChars int) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += maxChars {
		end := start + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			out = append(out, piece)
		}
	}
	return out
}

// ChunkID derives the deterministic chunk identifier:
// first 16 hex chars of SHA-256 over "docID:seq".
func ChunkID(docID string, seq int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", docID, seq)))
	return hex.EncodeToString(sum[:])[:16]
}

// DocumentID derives the deterministic document identifier:
// first 16 hex chars of SHA-256 over the absolute source path.
func DocumentID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])[:16]
}

// ContentHash returns the full SHA-256 hex digest of normalized text,
// used by change detection.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EstimateTokens approximates provider token usage at 4 chars/token.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}
