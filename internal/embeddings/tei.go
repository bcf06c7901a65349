package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TEIConfig holds configuration for the Text Embeddings Inference
// HTTP provider.
type TEIConfig struct {
	// BaseURL is the TEI server endpoint, e.g. http://localhost:8080.
	BaseURL string

	// Model is informational; the TEI server decides the actual model.
	Model string

	// Timeout bounds each HTTP request. Defaults to 30s.
	Timeout time.Duration
}

// TEIProvider generates embeddings against a TEI server.
type TEIProvider struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
}

// NewTEIProvider creates a TEI embedding provider.
func NewTEIProvider(cfg TEIConfig) (*TEIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &TEIProvider{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		dimension: detectDimensionFromModel(cfg.Model),
		client:    &http.Client{Timeout: timeout},
	}, nil
}

type teiRequest struct {
	Inputs []string `json:"inputs"`
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *TEIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	return p.embed(ctx, texts)
}

// EmbedQuery generates an embedding for a single query.
func (p *TEIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	embeddings, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (p *TEIProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(teiRequest{Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: TEI returned %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(msg))
	}

	var embeddings [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&embeddings); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrEmbeddingFailed, err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbeddingFailed, len(texts), len(embeddings))
	}

	if p.dimension == 0 && len(embeddings) > 0 {
		p.dimension = len(embeddings[0])
	}
	return embeddings, nil
}

// Dimension returns the embedding dimension for the configured model.
func (p *TEIProvider) Dimension() int {
	return p.dimension
}

// Close releases provider resources.
func (p *TEIProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
