// TEI (Text Embeddings Inference) embedder client.
// TEI is a high-performance embedding server that supports OpenAI-compatible APIs.
// See: https://github.com/huggingface/text-embeddings-inference
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/embedding"
)

// TEIConfig holds configuration for the TEI embedder.
type TEIConfig struct {
	// BaseURL is the TEI server URL (e.g., "http://localhost:8080")
	BaseURL string

	// Model is the model name (optional, TEI typically serves a single model)
	Model string

	// Timeout for HTTP requests (default: 30s)
	Timeout time.Duration
}

// TEIEmbedder implements the eino embedding.Embedder interface for TEI
// servers. It prefers the OpenAI-compatible /v1/embeddings endpoint and falls
// back to the native /embed endpoint.
type TEIEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewTEIEmbedder creates a new TEI embedder.
func NewTEIEmbedder(ctx context.Context, cfg *TEIConfig) (*TEIEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("TEI base URL is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &TEIEmbedder{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// EmbedStrings implements the embedding.Embedder interface.
func (e *TEIEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := e.embedOpenAICompatible(ctx, texts)
	if err != nil {
		vectors, err = e.embedNative(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("TEI embedding failed: %w", err)
		}
	}
	return vectors, nil
}

// teiOpenAIRequest is the request payload for /v1/embeddings.
type teiOpenAIRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model,omitempty"`
}

// teiOpenAIResponse is the response from /v1/embeddings.
type teiOpenAIResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// teiNativeRequest is the native TEI /embed request format.
type teiNativeRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate,omitempty"`
}

func (e *TEIEmbedder) embedOpenAICompatible(ctx context.Context, texts []string) ([][]float64, error) {
	body, err := e.post(ctx, "/v1/embeddings", teiOpenAIRequest{Input: texts, Model: e.model})
	if err != nil {
		return nil, err
	}

	var parsed teiOpenAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// The endpoint may return items out of order; place by index.
	vectors := make([][]float64, len(texts))
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	return vectors, nil
}

func (e *TEIEmbedder) embedNative(ctx context.Context, texts []string) ([][]float64, error) {
	body, err := e.post(ctx, "/embed", teiNativeRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, err
	}

	// Native TEI returns [][]float64 directly, input order preserved.
	var vectors [][]float64
	if err := json.Unmarshal(body, &vectors); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return vectors, nil
}

func (e *TEIEmbedder) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TEI returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// Dimensions probes the server with a one-word request and reports the
// embedding width. Useful for validating compatibility with a stored index.
func (e *TEIEmbedder) Dimensions(ctx context.Context) (int, error) {
	vectors, err := e.EmbedStrings(ctx, []string{"probe"})
	if err != nil {
		return 0, fmt.Errorf("probe embedding: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return 0, fmt.Errorf("empty embedding returned")
	}
	return len(vectors[0]), nil
}

// Close releases any resources held by the embedder.
func (e *TEIEmbedder) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

// Verify interface compliance at compile time
var _ embedding.Embedder = (*TEIEmbedder)(nil)
