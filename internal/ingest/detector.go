package ingest

import (
	"context"
	"log/slog"

	"github.com/openclaw/memdex/internal/chunk"
	"github.com/openclaw/memdex/internal/source"
	"github.com/openclaw/memdex/internal/store"
)

// Change is one document that needs (re-)indexing, with its normalized
// content already read so the pipeline does not touch the file twice.
type Change struct {
	Doc         source.Document
	DocID       string
	ContentHash string
	Text        string
}

// ChangeSet classifies enumerated documents against the store.
type ChangeSet struct {
	Added    []Change
	Modified []Change
	Removed  []*store.Document
	// Unchanged counts documents skipped because content is current.
	Unchanged int
}

// Total returns the number of documents that require work.
func (cs *ChangeSet) Total() int {
	return len(cs.Added) + len(cs.Modified) + len(cs.Removed)
}

// Detector compares enumerated documents against stored state to find
// the minimal set of ingestion work.
type Detector struct {
	store  store.DocumentStore
	logger *slog.Logger
}

// NewDetector creates a change detector over the given store.
func NewDetector(docStore store.DocumentStore, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{store: docStore, logger: logger}
}

// Detect classifies documents as added, modified, or unchanged.
//
// For incremental runs, a stored document with matching mtime and size
// is assumed unchanged without reading its content. Full scans skip
// that fast path and re-hash every file, and additionally report
// stored documents whose files are gone as removed.
func (d *Detector) Detect(ctx context.Context, docs []source.Document, fullScan bool) (*ChangeSet, error) {
	cs := &ChangeSet{}
	seen := make(map[string]bool, len(docs))

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seen[doc.Path] = true

		stored, err := d.store.GetDocumentByPath(ctx, doc.Path)
		if err != nil {
			return nil, err
		}

		if stored != nil && !fullScan &&
			stored.ModTime.Equal(doc.ModTime) && stored.Size == doc.Size {
			cs.Unchanged++
			continue
		}

		text, err := source.ReadText(doc)
		if err != nil {
			// The file disappeared or became unreadable between
			// enumeration and read. Skip it; the next run settles it.
			d.logger.Warn("document_read_failed",
				slog.String("path", doc.Path),
				slog.String("error", err.Error()))
			continue
		}

		change := Change{
			Doc:         doc,
			DocID:       chunk.DocumentID(doc.Path),
			ContentHash: chunk.ContentHash(text),
			Text:        text,
		}

		switch {
		case stored == nil:
			cs.Added = append(cs.Added, change)
		case stored.ContentHash != change.ContentHash:
			cs.Modified = append(cs.Modified, change)
		default:
			// Content identical despite a touched mtime. Refresh the
			// stored mtime so the fast path works again next run.
			cs.Unchanged++
			if !stored.ModTime.Equal(doc.ModTime) || stored.Size != doc.Size {
				d.refreshMetadata(ctx, stored, doc)
			}
		}
	}

	if fullScan {
		storedDocs, err := d.store.ListDocuments(ctx)
		if err != nil {
			return nil, err
		}
		for _, stored := range storedDocs {
			if !seen[stored.Path] {
				cs.Removed = append(cs.Removed, stored)
			}
		}
	}

	return cs, nil
}

// refreshMetadata re-saves a document whose content is unchanged but
// whose mtime or size drifted (touch, copy). Best effort; a failure
// just means the next run re-hashes the file.
func (d *Detector) refreshMetadata(ctx context.Context, stored *store.Document, doc source.Document) {
	ids, err := d.store.ChunkIDs(ctx, stored.ID)
	if err != nil {
		return
	}
	chunks, err := d.store.GetChunks(ctx, ids)
	if err != nil {
		return
	}

	updated := *stored
	updated.ModTime = doc.ModTime
	updated.Size = doc.Size
	if err := d.store.SaveDocument(ctx, &updated, chunks); err != nil {
		d.logger.Warn("document_metadata_refresh_failed",
			slog.String("path", doc.Path),
			slog.String("error", err.Error()))
	}
}
