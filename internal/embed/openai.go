package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	memdexerrors "github.com/openclaw/memdex/internal/errors"
)

// OpenAI provider defaults.
const (
	DefaultOpenAIEndpoint = "http://localhost:11434/v1"
	DefaultOpenAIModel    = "nomic-embed-text"
	DefaultTimeout        = 30 * time.Second
	openAIPoolSize        = 4
)

// OpenAIConfig configures the OpenAI-compatible embedding provider.
type OpenAIConfig struct {
	// Endpoint is the API base URL, e.g. "http://localhost:11434/v1".
	Endpoint string

	// APIKey is the bearer token. If empty, APIKeyEnv is consulted.
	APIKey string

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string

	// Model is the embedding model identifier.
	Model string

	// Dimensions is the expected vector size. Zero means accept
	// whatever the provider returns on the first call.
	Dimensions int

	// BatchSize caps texts per request.
	BatchSize int

	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// openAIEmbedRequest is the POST /embeddings body.
type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// openAIEmbedResponse is the POST /embeddings response.
type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// OpenAIEmbedder generates embeddings via an OpenAI-compatible HTTP API
// (Ollama's /v1 endpoint, OpenAI itself, or any compatible server).
type OpenAIEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OpenAIConfig
	apiKey    string

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder for an OpenAI-compatible endpoint.
// No network call is made here; availability is checked lazily.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultOpenAIEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	apiKey := cfg.APIKey
	if apiKey == "" && cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}

	transport := &http.Transport{
		MaxIdleConns:        openAIPoolSize,
		MaxIdleConnsPerHost: openAIPoolSize,
		MaxConnsPerHost:     openAIPoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	return &OpenAIEmbedder{
		// Timeout is enforced per request via context so callers can
		// cancel long batches; the client itself has no static timeout.
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		apiKey:    apiKey,
		dims:      cfg.Dimensions,
	}
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts. Empty texts get
// zero vectors without hitting the provider.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var nonEmptyIdx []int
	var nonEmpty []string
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.Dimensions())
		} else {
			nonEmptyIdx = append(nonEmptyIdx, i)
			nonEmpty = append(nonEmpty, text)
		}
	}
	if len(nonEmpty) == 0 {
		return results, nil
	}

	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + e.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}

		vecs, err := e.doEmbed(ctx, nonEmpty[start:end])
		if err != nil {
			return nil, err
		}
		for j, vec := range vecs {
			results[nonEmptyIdx[start+j]] = vec
		}
	}

	return results, nil
}

// doEmbed performs a single POST /embeddings request.
func (e *OpenAIEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(openAIEmbedRequest{
		Model: e.config.Model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := e.config.Endpoint + "/embeddings"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Connection refused, DNS failure, request timeout: all worth retrying.
		return nil, memdexerrors.ProviderTransient(
			fmt.Sprintf("embedding request to %s failed", e.config.Endpoint), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, e.statusError(resp.StatusCode, string(respBody))
	}

	var result openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, memdexerrors.ProviderTransient("failed to decode embedding response", err)
	}
	if len(result.Data) != len(texts) {
		return nil, memdexerrors.New(memdexerrors.ErrCodeProviderUnavailable,
			fmt.Sprintf("provider returned %d embeddings for %d inputs", len(result.Data), len(texts)), nil)
	}

	// The response is index-annotated; order by index rather than
	// trusting slice position.
	vecs := make([][]float32, len(texts))
	for _, item := range result.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, memdexerrors.New(memdexerrors.ErrCodeProviderUnavailable,
				fmt.Sprintf("provider returned out-of-range index %d", item.Index), nil)
		}
		vecs[item.Index] = normalizeVector(item.Embedding)
	}

	e.mu.Lock()
	if e.dims == 0 && len(vecs) > 0 && len(vecs[0]) > 0 {
		e.dims = len(vecs[0])
	}
	expected := e.dims
	e.mu.Unlock()

	for _, vec := range vecs {
		if expected > 0 && len(vec) != expected {
			return nil, memdexerrors.DimensionMismatch(expected, len(vec))
		}
	}

	return vecs, nil
}

// statusError maps an HTTP status to a provider error.
func (e *OpenAIEmbedder) statusError(status int, body string) error {
	msg := fmt.Sprintf("embedding request failed with status %d: %s", status, strings.TrimSpace(body))
	switch {
	case status == http.StatusTooManyRequests:
		return memdexerrors.ProviderTransient(msg, nil)
	case status >= 500:
		return memdexerrors.ProviderTransient(msg, nil)
	default:
		// 401/403/404 and other client errors will not fix themselves.
		return memdexerrors.New(memdexerrors.ErrCodeProviderUnavailable, msg, nil).
			WithSuggestion("check embeddings.endpoint, embeddings.model, and the API key environment variable")
	}
}

// Dimensions returns the vector size, or the configured hint before the
// first successful call.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the configured model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Available probes the endpoint's model listing with a short timeout.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, e.config.Endpoint+"/models", nil)
	if err != nil {
		return false
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode == http.StatusOK
}

// Close shuts down idle connections. Safe to call multiple times.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
