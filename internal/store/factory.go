package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// LexicalBackend represents the lexical index backend type.
type LexicalBackend string

const (
	// LexicalBackendSQLite uses SQLite FTS5 (default).
	// WAL mode allows concurrent reader processes.
	LexicalBackendSQLite LexicalBackend = "sqlite"

	// LexicalBackendBleve uses Bleve v2.
	// BoltDB's exclusive lock restricts it to a single process.
	LexicalBackendBleve LexicalBackend = "bleve"
)

// NewLexicalIndex creates a LexicalIndex using the specified backend.
// basePath is the path without extension; the backend appends its own
// (.db for SQLite, .bleve for Bleve). An empty basePath creates an
// in-memory index for testing.
func NewLexicalIndex(basePath string, config LexicalConfig, backend string) (LexicalIndex, error) {
	switch backend {
	case string(LexicalBackendSQLite), "":
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewSQLiteLexicalIndex(path, config)

	case string(LexicalBackendBleve):
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveLexicalIndex(path, config)

	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// DetectLexicalBackend detects which backend an existing index uses.
// Returns an empty string if no index exists.
func DetectLexicalBackend(basePath string) LexicalBackend {
	if info, err := os.Stat(basePath + ".db"); err == nil && !info.IsDir() {
		return LexicalBackendSQLite
	}
	if info, err := os.Stat(basePath + ".bleve"); err == nil && info.IsDir() {
		if _, err := os.Stat(filepath.Join(basePath+".bleve", "index_meta.json")); err == nil {
			return LexicalBackendBleve
		}
	}
	return ""
}
