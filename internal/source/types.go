// Package source enumerates ingestible documents from configured
// corpus directories. Each source kind (notes, summary, memory, logs)
// maps to a directory of markdown files.
package source

import (
	"context"
	"time"
)

// Document is a raw document discovered in a source directory,
// before chunking and indexing.
type Document struct {
	// Path is the absolute path to the file.
	Path string

	// Kind is the source kind the document came from (notes, logs, ...).
	Kind string

	// Title is derived from the file name without extension.
	Title string

	// ModTime is the file modification time, truncated to seconds.
	ModTime time.Time

	// Size is the file size in bytes.
	Size int64
}

// Enumerator lists documents available for ingestion.
type Enumerator interface {
	// Enumerate returns all documents across configured sources.
	// A source whose directory is missing or unreadable is skipped
	// with a warning; only the documents of healthy sources return.
	Enumerate(ctx context.Context) ([]Document, error)

	// Kinds returns the configured source kinds in sorted order.
	Kinds() []string
}

// ReadText reads and normalizes the document content.
// Line endings are normalized to \n and a UTF-8 BOM is stripped,
// so content hashes are stable across platforms.
func ReadText(doc Document) (string, error) {
	return readText(doc.Path)
}
