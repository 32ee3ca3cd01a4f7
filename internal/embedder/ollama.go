package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

const (
	// DefaultOllamaBaseURL is the default Ollama API endpoint.
	DefaultOllamaBaseURL = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model, matching the
	// model the catalog collection is ingested with.
	DefaultOllamaModel = "embeddinggemma:300m"

	// DefaultBatchConcurrency bounds concurrent embedding requests so a
	// large catalog ingest does not overwhelm a local Ollama instance.
	DefaultBatchConcurrency = 4
)

// modelDimensions maps known embedding models to their vector size.
// Models not listed here need WithDimension.
var modelDimensions = map[string]int{
	"embeddinggemma:300m": 768,
	"nomic-embed-text":    768,
	"mxbai-embed-large":   1024,
	"all-minilm":          384,
}

// OllamaEmbedder produces embeddings via Ollama's embeddings API.
// Vectors must come from the same model the collection was built with,
// or similarity scores are meaningless.
type OllamaEmbedder struct {
	baseURL          string
	model            string
	dimension        int
	batchConcurrency int
	client           *http.Client
}

// OllamaOption is a functional option for configuring OllamaEmbedder.
type OllamaOption func(*OllamaEmbedder)

// WithBaseURL sets a custom base URL for the Ollama API.
func WithBaseURL(url string) OllamaOption {
	return func(e *OllamaEmbedder) {
		e.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithModel sets the embedding model. The dimension is looked up from
// the known-model table; combine with WithDimension for other models.
func WithModel(model string) OllamaOption {
	return func(e *OllamaEmbedder) {
		if model == "" {
			return
		}
		e.model = model
		if dim, ok := modelDimensions[model]; ok {
			e.dimension = dim
		}
	}
}

// WithDimension overrides the embedding dimension.
func WithDimension(dim int) OllamaOption {
	return func(e *OllamaEmbedder) {
		if dim > 0 {
			e.dimension = dim
		}
	}
}

// WithBatchConcurrency sets the number of concurrent batch requests.
func WithBatchConcurrency(n int) OllamaOption {
	return func(e *OllamaEmbedder) {
		if n > 0 {
			e.batchConcurrency = n
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) OllamaOption {
	return func(e *OllamaEmbedder) {
		e.client = client
	}
}

// NewOllamaEmbedder creates an Ollama embedder with the given options.
func NewOllamaEmbedder(opts ...OllamaOption) *OllamaEmbedder {
	e := &OllamaEmbedder{
		baseURL:          DefaultOllamaBaseURL,
		model:            DefaultOllamaModel,
		dimension:        modelDimensions[DefaultOllamaModel],
		batchConcurrency: DefaultBatchConcurrency,
		client:           http.DefaultClient,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed generates an embedding vector for a single text input.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned from Ollama")
	}

	vector := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}

// EmbedBatch embeds multiple texts with bounded concurrency, preserving
// input order. One failed text fails the whole batch, so ingestion never
// uploads a partially embedded set.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	sem := make(chan struct{}, e.batchConcurrency)

	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(idx int, t string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs[idx] = ctx.Err()
				return
			}

			vector, err := e.Embed(ctx, t)
			if err != nil {
				errs[idx] = err
				return
			}
			vectors[idx] = vector
		}(i, text)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to embed text at index %d: %w", i, err)
		}
	}
	return vectors, nil
}

// Dimension returns the dimensionality of the embedding vectors.
func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

// ModelName returns the name of the embedding model being used.
func (e *OllamaEmbedder) ModelName() string {
	return e.model
}

// Ensure OllamaEmbedder implements Embedder interface.
var _ Embedder = (*OllamaEmbedder)(nil)
