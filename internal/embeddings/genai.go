package embeddings

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIConfig holds configuration for the Google GenAI provider.
type GenAIConfig struct {
	APIKey string
	// Model defaults to gemini-embedding-001.
	Model string
}

// GenAIProvider generates embeddings using Google's Gemini API.
type GenAIProvider struct {
	client *genai.Client
	model  string
}

// NewGenAIProvider creates a GenAI embedding provider.
func NewGenAIProvider(cfg GenAIConfig) (*GenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating GenAI client: %w", err)
	}

	return &GenAIProvider{client: client, model: model}, nil
}

// EmbedDocuments generates embeddings for multiple texts in one call.
func (p *GenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbeddingFailed, len(texts), len(result.Embeddings))
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *GenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	result, err := p.client.Models.EmbedContent(ctx, p.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{TaskType: "RETRIEVAL_QUERY"},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrEmbeddingFailed)
	}
	return result.Embeddings[0].Values, nil
}

// Dimension returns the embedding dimension.
// gemini-embedding-001 produces 768-dimensional vectors.
func (p *GenAIProvider) Dimension() int {
	return 768
}

// Close releases provider resources.
func (p *GenAIProvider) Close() error {
	return nil
}
