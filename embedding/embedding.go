// Package embedding provides the vector embedding client the DICL variant
// uses to retrieve nearest-neighbor demonstrations (spec §4.E.4), grounded
// on the teacher's llm/embedding package (BaseProvider/OpenAIProvider):
// same request/response shape and HTTP plumbing, trimmed to the one
// concern DICL needs (embed text, get back float64 vectors) rather than
// the teacher's full multi-provider catalog.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/tensorzero/gateway/types"
)

// Embedder embeds a batch of text inputs into fixed-length vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// OpenAIEmbedder talks to an OpenAI-compatible POST /v1/embeddings
// endpoint (spec §4.E.4 "an embedding provider, configured like any other
// model provider").
type OpenAIEmbedder struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	dims    int
}

// NewOpenAIEmbedder builds an embedder from static config. baseURL
// defaults to OpenAI proper; model defaults to text-embedding-3-small to
// keep the stored-example table's dimensionality modest (spec §9 "DICL's
// example pool is a small, operator-curated set, not a general vector
// store").
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIEmbedder{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   model,
		dims:    cfg.Dimensions,
	}
}

type embedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(embedRequest{Input: texts, Model: e.model, Dimensions: e.dims})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &types.Error{Code: types.ErrProviderUnavailable, Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedding: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &types.Error{
			Code:       types.ErrProviderUnavailable,
			Message:    fmt.Sprintf("embedding endpoint returned %d: %s", resp.StatusCode, string(raw)),
			Retryable:  resp.StatusCode >= 500,
			HTTPStatus: resp.StatusCode,
		}
	}

	var parsed embedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("embedding: decode response: %w", err)
	}
	out := make([][]float64, len(parsed.Data))
	for _, d := range parsed.Data {
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// CosineSimilarity implements the teacher's llm/retrieval.cosineSimilarity
// for two equal-length vectors, returning 0 for dimension mismatch rather
// than panicking.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
