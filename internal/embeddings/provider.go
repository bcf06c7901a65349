// Package embeddings provides embedding generation via multiple providers.
package embeddings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/fraudintel/internal/vectorstore"
)

// Sentinel errors for embedding providers.
var (
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid embeddings config")

	// ErrEmptyInput indicates empty text input.
	ErrEmptyInput = errors.New("empty input")

	// ErrEmbeddingFailed indicates the backend failed to produce embeddings.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is the interface for embedding providers.
type Provider interface {
	vectorstore.Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "fastembed", "tei", or "genai".
	Provider string
	// Model is the embedding model name.
	Model string
	// BaseURL is the TEI endpoint (tei provider only).
	BaseURL string
	// APIKey authenticates the genai provider.
	APIKey string
	// CacheDir is the model cache directory (fastembed provider only).
	CacheDir string
}

// NewProvider creates an embedding provider from config.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "fastembed":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "tei":
		return NewTEIProvider(TEIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	case "genai":
		return NewGenAIProvider(GenAIConfig{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// detectDimensionFromModel returns the embedding dimension for a model
// name, falling back to 384.
func detectDimensionFromModel(model string) int {
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	switch {
	case strings.Contains(model, "base"):
		return 768
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "small"), strings.Contains(model, "mini"):
		return 384
	default:
		return 384
	}
}
