package ingest

import (
	"context"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openclaw/memdex/internal/config"
	"github.com/openclaw/memdex/internal/source"
	"github.com/openclaw/memdex/internal/store"
)

const testDims = 8

// fakeEmbedder is a deterministic embedder with a configurable model
// name and call recording, for pipeline tests.
type fakeEmbedder struct {
	mu        sync.Mutex
	model     string
	available bool
	textsSeen []string
}

func newFakeEmbedder(model string) *fakeEmbedder {
	return &fakeEmbedder{model: model, available: true}
}

func (f *fakeEmbedder) vectorFor(text string) []float32 {
	vec := make([]float32, testDims)
	h := fnv.New32a()
	_, _ = h.Write([]byte(f.model + ":" + text))
	vec[int(h.Sum32())%testDims] = 1
	return vec
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textsSeen = append(f.textsSeen, text)
	return f.vectorFor(text), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textsSeen = append(f.textsSeen, texts...)
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = f.vectorFor(text)
	}
	return vecs, nil
}

func (f *fakeEmbedder) Dimensions() int { return testDims }

func (f *fakeEmbedder) ModelName() string { return f.model }

func (f *fakeEmbedder) Available(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeEmbedder) Close() error { return nil }

func (f *fakeEmbedder) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.textsSeen...)
}

func (f *fakeEmbedder) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textsSeen = nil
}

// testPipeline bundles a full in-memory ingestion stack over a temp
// notes directory.
type testPipeline struct {
	cfg      *config.Config
	store    store.DocumentStore
	lexical  store.LexicalIndex
	vector   store.VectorIndex
	embedder *fakeEmbedder
	notesDir string
	orch     *Orchestrator
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()

	notesDir := t.TempDir()

	cfg := config.NewConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Sources.Notes = notesDir
	cfg.Sources.Summary = ""
	cfg.Sources.Memory = ""
	cfg.Sources.Logs = ""
	cfg.Embeddings.RequestsPerSecond = 10000
	cfg.Ingest.Workers = 2

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	docStore, err := store.NewSQLiteStore("", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = docStore.Close() })

	lexical, err := store.NewLexicalIndex("", store.DefaultLexicalConfig(), string(store.LexicalBackendSQLite))
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	vector, err := store.NewHNSWIndex(store.DefaultVectorConfig(testDims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vector.Close() })

	embedder := newFakeEmbedder("fake-model-a")

	p := &testPipeline{
		cfg:      cfg,
		store:    docStore,
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
		notesDir: notesDir,
	}
	p.orch = p.newOrchestrator(logger)
	return p
}

func (p *testPipeline) newOrchestrator(logger *slog.Logger) *Orchestrator {
	return NewOrchestrator(OrchestratorConfig{
		Config:     p.cfg,
		Store:      p.store,
		Lexical:    p.lexical,
		Vector:     p.vector,
		Embedder:   p.embedder,
		Enumerator: source.NewFSEnumerator(p.cfg.SourceDirs(), logger),
		Logger:     logger,
	})
}

func (p *testPipeline) writeNote(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(p.notesDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// touchDistinct moves a file's mtime forward so change detection sees
// a different timestamp even within a one-second test.
func touchDistinct(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(5 * time.Second).Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, future, future))
}

func noteText(word string) string {
	return "This note discusses " + word + " in enough detail to index.\n\nA second paragraph mentions " + strings.ToUpper(word) + " again."
}
