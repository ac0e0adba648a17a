package search

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/memdex/internal/chunk"
	memdexerrors "github.com/openclaw/memdex/internal/errors"
	"github.com/openclaw/memdex/internal/store"
)

const testDims = 16

// wordEmbedder builds bag-of-words one-hot vectors so texts sharing
// vocabulary land near each other, which makes vector recall testable.
type wordEmbedder struct {
	available bool
}

func (w *wordEmbedder) vectorFor(text string) []float32 {
	vec := make([]float32, testDims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[int(h.Sum32())%testDims] += 1
	}
	return vec
}

func (w *wordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return w.vectorFor(text), nil
}

func (w *wordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = w.vectorFor(t)
	}
	return vecs, nil
}

func (w *wordEmbedder) Dimensions() int { return testDims }

func (w *wordEmbedder) ModelName() string { return "word-test" }

func (w *wordEmbedder) Available(ctx context.Context) bool { return w.available }

func (w *wordEmbedder) Close() error { return nil }

type testEngine struct {
	engine   *Engine
	store    store.DocumentStore
	lexical  store.LexicalIndex
	vector   store.VectorIndex
	embedder *wordEmbedder
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	docStore, err := store.NewSQLiteStore("", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = docStore.Close() })

	lexical, err := store.NewLexicalIndex("", store.DefaultLexicalConfig(), string(store.LexicalBackendSQLite))
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	vector, err := store.NewHNSWIndex(store.DefaultVectorConfig(testDims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vector.Close() })

	embedder := &wordEmbedder{available: true}

	engine, err := NewEngine(docStore, lexical, vector, embedder, EngineConfig{
		LexicalWeight: 0.6,
		VectorWeight:  0.4,
		Overfetch:     5,
		MaxResults:    10,
		SnippetLength: 240,
	}, nil)
	require.NoError(t, err)

	return &testEngine{
		engine:   engine,
		store:    docStore,
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
	}
}

// addDocument indexes one document with the given paragraphs across
// all three stores, embedding with the word embedder.
func (te *testEngine) addDocument(t *testing.T, path, kind string, paragraphs ...string) {
	t.Helper()
	ctx := context.Background()

	text := strings.Join(paragraphs, "\n\n")
	docID := chunk.DocumentID(path)
	chunks := chunk.NewChunker(2000, 100).Split(docID, text)
	require.NotEmpty(t, chunks)

	title := strings.TrimSuffix(path[strings.LastIndex(path, "/")+1:], ".md")
	doc := &store.Document{
		ID:          docID,
		Path:        path,
		Kind:        kind,
		Title:       title,
		ContentHash: chunk.ContentHash(text),
		ModTime:     time.Now().Truncate(time.Second),
		Size:        int64(len(text)),
		ChunkCount:  len(chunks),
		IndexedAt:   time.Now().Truncate(time.Second),
	}

	storeChunks := make([]*store.Chunk, len(chunks))
	ids := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		storeChunks[i] = &store.Chunk{
			ID: c.ID, DocID: c.DocID, Seq: c.Seq,
			Text: c.Text, TokenEstimate: c.TokenEstimate,
		}
		ids[i] = c.ID
		vectors[i] = te.embedder.vectorFor(c.Text)
	}

	require.NoError(t, te.store.SaveDocument(ctx, doc, storeChunks))
	require.NoError(t, te.lexical.Index(ctx, storeChunks))
	require.NoError(t, te.vector.Add(ctx, ids, vectors))
	require.NoError(t, te.store.MarkEmbedded(ctx, ids, te.embedder.ModelName()))
}

func TestSearchFindsKeywordMatch(t *testing.T) {
	te := newTestEngine(t)
	te.addDocument(t, "/notes/garden.md", "notes",
		"Planting tomatoes requires patience and rich composted soil every spring season.")
	te.addDocument(t, "/notes/stars.md", "notes",
		"The telescope revealed distant galaxies and nebulae through the winter night sky.")

	results, err := te.engine.Search(context.Background(), "tomatoes soil", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "/notes/garden.md", results[0].Path)
	assert.Equal(t, "notes", results[0].Kind)
	assert.Equal(t, "garden", results[0].Title)
	assert.NotEmpty(t, results[0].Snippet)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestSearchEmptyQueryRejected(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.engine.Search(context.Background(), "   ", Options{})
	require.Error(t, err)
	assert.Equal(t, memdexerrors.ErrCodeInvalidInput, memdexerrors.GetCode(err))
}

func TestSearchCollapsesToDocuments(t *testing.T) {
	te := newTestEngine(t)

	// Many paragraphs about the same topic produce multiple chunks in
	// one document; results must contain the document once.
	paragraphs := make([]string, 12)
	for i := range paragraphs {
		paragraphs[i] = fmt.Sprintf(
			"Section %d covers gardening techniques with detailed watering schedules and soil preparation advice for beds.", i)
	}
	te.addDocument(t, "/notes/garden.md", "notes", paragraphs...)

	results, err := te.engine.Search(context.Background(), "gardening watering", Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "/notes/garden.md", results[0].Path)
}

func TestSearchLexicalOnlyWhenProviderDown(t *testing.T) {
	te := newTestEngine(t)
	te.addDocument(t, "/notes/garden.md", "notes",
		"Planting tomatoes requires patience and rich composted soil every spring season.")

	te.embedder.available = false

	results, err := te.engine.Search(context.Background(), "tomatoes", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Zero(t, results[0].VectorScore)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestSearchLexicalOnlyOption(t *testing.T) {
	te := newTestEngine(t)
	te.addDocument(t, "/notes/garden.md", "notes",
		"Planting tomatoes requires patience and rich composted soil every spring season.")

	results, err := te.engine.Search(context.Background(), "tomatoes", Options{LexicalOnly: true})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.False(t, results[0].InBoth)
}

func TestSearchKindFilter(t *testing.T) {
	te := newTestEngine(t)
	te.addDocument(t, "/notes/garden.md", "notes",
		"Planting tomatoes requires patience and rich composted soil every spring season.")
	te.addDocument(t, "/logs/2026-03-01.md", "logs",
		"Watered the tomatoes and checked the composted soil before the morning standup.")

	results, err := te.engine.Search(context.Background(), "tomatoes soil", Options{Kinds: []string{"logs"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "logs", results[0].Kind)
}

func TestSearchLimit(t *testing.T) {
	te := newTestEngine(t)
	for i := 0; i < 5; i++ {
		te.addDocument(t, fmt.Sprintf("/notes/garden-%d.md", i), "notes",
			fmt.Sprintf("Note %d about gardening with tomatoes and composted soil in raised beds.", i))
	}

	results, err := te.engine.Search(context.Background(), "gardening tomatoes", Options{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchNoMatches(t *testing.T) {
	te := newTestEngine(t)
	te.addDocument(t, "/notes/garden.md", "notes",
		"Planting tomatoes requires patience and rich composted soil every spring season.")

	results, err := te.engine.Search(context.Background(), "xylophone", Options{LexicalOnly: true})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchHybridBeatsOneLeg(t *testing.T) {
	te := newTestEngine(t)

	// Shares both the exact keyword and surrounding vocabulary.
	te.addDocument(t, "/notes/both.md", "notes",
		"The compost pile heats up when garden soil mixes with kitchen scraps and leaves.")
	// Shares vocabulary but not the keyword.
	te.addDocument(t, "/notes/veconly.md", "notes",
		"Garden soil improves when mixed with kitchen scraps and autumn leaves.")

	results, err := te.engine.Search(context.Background(), "compost soil scraps", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "/notes/both.md", results[0].Path)
}

func TestNewEngineRequiresDependencies(t *testing.T) {
	te := newTestEngine(t)

	_, err := NewEngine(nil, te.lexical, te.vector, te.embedder, EngineConfig{}, nil)
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewEngine(te.store, nil, te.vector, te.embedder, EngineConfig{}, nil)
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewEngine(te.store, te.lexical, nil, te.embedder, EngineConfig{}, nil)
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewEngine(te.store, te.lexical, te.vector, nil, EngineConfig{}, nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}
