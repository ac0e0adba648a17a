package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		minLength int
		want      []string
	}{
		{
			name:      "basic prose",
			input:     "Deployment checklist for staging",
			minLength: 2,
			want:      []string{"deployment", "checklist", "for", "staging"},
		},
		{
			name:      "punctuation stripped",
			input:     "retry, backoff... done!",
			minLength: 2,
			want:      []string{"retry", "backoff", "done"},
		},
		{
			name:      "short tokens dropped",
			input:     "a I go on",
			minLength: 2,
			want:      []string{"go", "on"},
		},
		{
			name:      "higher minimum drops more",
			input:     "db has no replicas",
			minLength: 3,
			want:      []string{"has", "replicas"},
		},
		{
			name:      "zero minimum keeps everything",
			input:     "a I go",
			minLength: 0,
			want:      []string{"a", "i", "go"},
		},
		{
			name:      "numbers kept",
			input:     "error 502 at 3am",
			minLength: 2,
			want:      []string{"error", "502", "3am"},
		},
		{
			name:      "empty",
			input:     "",
			minLength: 2,
			want:      nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.input, tt.minLength))
		})
	}
}

func TestFilterStopWords(t *testing.T) {
	stop := BuildStopWordMap([]string{"the", "of"})
	got := FilterStopWords([]string{"the", "state", "of", "things"}, stop)
	assert.Equal(t, []string{"state", "things"}, got)
}

func TestBuildStopWordMap_CaseInsensitive(t *testing.T) {
	stop := BuildStopWordMap([]string{"The"})
	_, ok := stop["the"]
	assert.True(t, ok)
}
