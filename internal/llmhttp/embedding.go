package llmhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	deskmirror "github.com/mjhale/deskmirror"
)

// VoyageEmbeddingProvider adapts deskmirror.EmbeddingProvider to the Voyage
// AI embeddings endpoint (Anthropic's recommended embedding partner), the
// same thin wire-adapter idiom as AnthropicProvider and
// internal/workspace.HTTPClient.
type VoyageEmbeddingProvider struct {
	apiKey  string
	model   string
	dim     int
	baseURL string
	hc      *http.Client
}

// VoyageOption configures a VoyageEmbeddingProvider at construction.
type VoyageOption func(*VoyageEmbeddingProvider)

// WithEmbeddingBaseURL overrides the default Voyage API host, used by tests
// to point at an httptest server.
func WithEmbeddingBaseURL(url string) VoyageOption {
	return func(p *VoyageEmbeddingProvider) { p.baseURL = url }
}

// NewVoyageEmbeddingProvider builds an embedding provider bound to model
// with output dimension dim (must match the Store's configured vector
// column width per spec.md §6).
func NewVoyageEmbeddingProvider(apiKey, model string, dim int, opts ...VoyageOption) *VoyageEmbeddingProvider {
	p := &VoyageEmbeddingProvider{
		apiKey:  apiKey,
		model:   model,
		dim:     dim,
		baseURL: "https://api.voyageai.com",
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *VoyageEmbeddingProvider) Name() string    { return "voyage" }
func (p *VoyageEmbeddingProvider) Dimensions() int { return p.dim }

type voyageRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	OutputDimension int     `json:"output_dimension,omitempty"`
}

type voyageResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Detail string `json:"detail"`
}

func (p *VoyageEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(voyageRequest{Input: texts, Model: p.model, OutputDimension: p.dim})
	if err != nil {
		return nil, fmt.Errorf("llmhttp: marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llmhttp: embed request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llmhttp: read embed response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ErrThrottled{RetryAfter: retryAfterHeader(resp.Header.Get("Retry-After"))}
	}

	var out voyageResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("llmhttp: unmarshal embed response: %w", err)
	}
	if out.Detail != "" {
		return nil, fmt.Errorf("llmhttp: voyage error: %s", out.Detail)
	}

	vecs := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

var _ deskmirror.EmbeddingProvider = (*VoyageEmbeddingProvider)(nil)
