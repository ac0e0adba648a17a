package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferOutputIsPlain(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	assert.False(t, w.Interactive())

	w.Success("ingest complete")
	w.Warning("provider down")
	w.Error("store write failed")

	got := buf.String()
	assert.Equal(t, "ingest complete\nprovider down\nstore write failed\n", got)
}

func TestStatusfFormatting(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Statusf("", "indexed %d documents", 7)
	assert.Equal(t, "indexed 7 documents\n", buf.String())
}

func TestField(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Field("Documents", 42)
	assert.Contains(t, buf.String(), "Documents:")
	assert.Contains(t, buf.String(), "42")
}

func TestNewPlainNeverDecorates(t *testing.T) {
	var buf bytes.Buffer
	w := NewPlain(&buf)
	assert.False(t, w.Interactive())

	w.Section("Index")
	assert.Equal(t, "Index\n", buf.String())
}
