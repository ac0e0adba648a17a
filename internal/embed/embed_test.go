package embed

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// countingEmbedder is a deterministic in-memory embedder that records
// call counts for cache and batcher tests.
type countingEmbedder struct {
	mu          sync.Mutex
	embedCalls  int
	batchCalls  int
	textsSeen   []string
	failTexts   map[string]error
	failBatches int
	batchErr    error
	dims        int
	model       string
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{
		dims:      4,
		model:     "counting-test",
		failTexts: map[string]error{},
	}
}

func (c *countingEmbedder) vectorFor(text string) []float32 {
	vec := make([]float32, c.dims)
	if strings.TrimSpace(text) == "" {
		return vec
	}
	for i, r := range text {
		vec[i%c.dims] += float32(r)
	}
	return normalizeVector(vec)
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.embedCalls++
	c.textsSeen = append(c.textsSeen, text)
	if err, ok := c.failTexts[text]; ok {
		return nil, err
	}
	return c.vectorFor(text), nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batchCalls++
	c.textsSeen = append(c.textsSeen, texts...)
	if c.failBatches > 0 {
		c.failBatches--
		if c.batchErr != nil {
			return nil, c.batchErr
		}
		return nil, fmt.Errorf("batch failure injected")
	}
	for _, text := range texts {
		if err, ok := c.failTexts[text]; ok {
			return nil, err
		}
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = c.vectorFor(text)
	}
	return vecs, nil
}

func (c *countingEmbedder) Dimensions() int { return c.dims }

func (c *countingEmbedder) ModelName() string { return c.model }

func (c *countingEmbedder) Available(ctx context.Context) bool { return true }

func (c *countingEmbedder) Close() error { return nil }

func (c *countingEmbedder) calls() (embeds, batches int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.embedCalls, c.batchCalls
}
