package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeSnippetShortTextUnchanged(t *testing.T) {
	text := "A short note about gardening."
	assert.Equal(t, text, MakeSnippet(text, []string{"gardening"}, 240))
}

func TestMakeSnippetCollapsesWhitespace(t *testing.T) {
	got := MakeSnippet("line one\n\nline  two", nil, 240)
	assert.Equal(t, "line one line two", got)
}

func TestMakeSnippetCentersOnMatch(t *testing.T) {
	text := strings.Repeat("filler words here ", 30) +
		"the keyword appears once " +
		strings.Repeat("more filler after ", 30)

	got := MakeSnippet(text, []string{"keyword"}, 80)
	assert.Contains(t, got, "keyword")
	assert.LessOrEqual(t, len([]rune(got)), 82)
	assert.True(t, strings.HasPrefix(got, "…"))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestMakeSnippetNoMatchTakesLeading(t *testing.T) {
	text := "leading content " + strings.Repeat("tail padding ", 50)
	got := MakeSnippet(text, []string{"absent"}, 60)
	assert.True(t, strings.HasPrefix(got, "leading content"))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestMakeSnippetCaseInsensitiveMatch(t *testing.T) {
	text := strings.Repeat("pad ", 100) + "GARDENING tips" + strings.Repeat(" pad", 100)
	got := MakeSnippet(text, []string{"gardening"}, 60)
	assert.Contains(t, got, "GARDENING")
}
