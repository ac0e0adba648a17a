package source

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	memdexerrors "github.com/openclaw/memdex/internal/errors"
)

// FSEnumerator walks source directories for markdown files.
type FSEnumerator struct {
	// dirs maps source kind to its root directory.
	dirs map[string]string

	logger *slog.Logger
}

var _ Enumerator = (*FSEnumerator)(nil)

// NewFSEnumerator creates an enumerator over the given kind -> directory map.
func NewFSEnumerator(dirs map[string]string, logger *slog.Logger) *FSEnumerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSEnumerator{dirs: dirs, logger: logger}
}

// Kinds returns the configured source kinds in sorted order.
func (e *FSEnumerator) Kinds() []string {
	kinds := make([]string, 0, len(e.dirs))
	for kind := range e.dirs {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Enumerate walks all source directories and returns their markdown
// documents sorted by path. An unavailable source is logged and
// skipped; its previously indexed documents are not treated as removed.
func (e *FSEnumerator) Enumerate(ctx context.Context) ([]Document, error) {
	var docs []Document

	for _, kind := range e.Kinds() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		dir := e.dirs[kind]
		kindDocs, err := e.enumerateDir(kind, dir)
		if err != nil {
			e.logger.Warn("source_skipped",
				"kind", kind,
				"dir", dir,
				"error", err)
			continue
		}
		docs = append(docs, kindDocs...)
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Path < docs[j].Path
	})
	return docs, nil
}

// UnavailableKinds returns the kinds whose directories cannot be read.
func (e *FSEnumerator) UnavailableKinds() []string {
	var kinds []string
	for _, kind := range e.Kinds() {
		info, err := os.Stat(e.dirs[kind])
		if err != nil || !info.IsDir() {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

func (e *FSEnumerator) enumerateDir(kind, dir string) ([]Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, memdexerrors.SourceUnavailable(kind, err)
	}
	if !info.IsDir() {
		return nil, memdexerrors.SourceUnavailable(kind, fs.ErrInvalid)
	}

	var docs []Document
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree: skip it, keep the rest of the source
			e.logger.Warn("source_entry_skipped", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			// Hidden directories below the root are never indexed
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			e.logger.Warn("source_entry_skipped", "path", path, "error", err)
			return nil
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}

		docs = append(docs, Document{
			Path:  abs,
			Kind:  kind,
			Title: strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())),
			// Truncate to seconds so change detection is stable
			// across filesystems with coarse timestamps.
			ModTime: fi.ModTime().Truncate(time.Second),
			Size:    fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, memdexerrors.SourceUnavailable(kind, err)
	}

	return docs, nil
}

// readText reads a file and normalizes its content for hashing and chunking.
func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	data = bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))
	return string(data), nil
}
