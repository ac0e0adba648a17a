package search

import (
	"strings"
	"unicode"
)

// MakeSnippet extracts a window of up to maxLen runes from text,
// centered on the first occurrence of any matched term. Without a
// match it takes the leading window. Cuts land on word boundaries and
// truncated edges get an ellipsis.
func MakeSnippet(text string, terms []string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultSnippetLength
	}

	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}

	center := findFirstTerm(text, terms)

	// Convert the byte offset of the match to a rune offset.
	runeCenter := len([]rune(text[:center]))

	start := runeCenter - maxLen/2
	if start < 0 {
		start = 0
	}
	end := start + maxLen
	if end > len(runes) {
		end = len(runes)
		start = end - maxLen
	}

	snippet := string(runes[start:end])

	// Trim partial words at cut edges.
	if start > 0 {
		if idx := strings.IndexFunc(snippet, unicode.IsSpace); idx >= 0 {
			snippet = snippet[idx+1:]
		}
		snippet = "…" + snippet
	}
	if end < len(runes) {
		if idx := strings.LastIndexFunc(snippet, unicode.IsSpace); idx >= 0 {
			snippet = snippet[:idx]
		}
		snippet = snippet + "…"
	}

	return snippet
}

// findFirstTerm returns the byte offset of the earliest matched term,
// or 0 when nothing matches.
func findFirstTerm(text string, terms []string) int {
	lower := strings.ToLower(text)
	best := -1
	for _, term := range terms {
		if term == "" {
			continue
		}
		if idx := strings.Index(lower, strings.ToLower(term)); idx >= 0 {
			if best == -1 || idx < best {
				best = idx
			}
		}
	}
	if best < 0 {
		return 0
	}
	return best
}
