// Package websearch collects candidate article URLs for fraud pattern
// queries via web search.
package websearch

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// Sentinel errors for search providers.
var (
	// ErrInvalidConfig indicates unusable provider configuration.
	ErrInvalidConfig = errors.New("invalid websearch config")

	// ErrSearchFailed indicates the search backend failed.
	ErrSearchFailed = errors.New("web search failed")
)

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	// Query is the variant query that surfaced this result, recorded
	// by the collector for provenance.
	Query string `json:"query,omitempty"`
}

// SearchProvider runs a web search and returns ranked results.
type SearchProvider interface {
	Search(ctx context.Context, query string, num int) ([]Result, error)
}

// GoogleConfig configures the Google Custom Search provider.
type GoogleConfig struct {
	// APIKey is the Google API key.
	APIKey string
	// EngineID is the programmable search engine ID (cx).
	EngineID string
}

// GoogleProvider implements SearchProvider on Google Custom Search.
type GoogleProvider struct {
	svc      *customsearch.Service
	engineID string
}

// NewGoogleProvider creates a Google Custom Search provider.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.APIKey == "" || cfg.EngineID == "" {
		return nil, fmt.Errorf("%w: API key and engine ID are required", ErrInvalidConfig)
	}

	svc, err := customsearch.NewService(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating customsearch service: %w", err)
	}

	return &GoogleProvider{svc: svc, engineID: cfg.EngineID}, nil
}

// Search runs one query. num is capped at 10, the API per-request
// maximum.
func (p *GoogleProvider) Search(ctx context.Context, query string, num int) ([]Result, error) {
	if num <= 0 || num > 10 {
		num = 10
	}

	resp, err := p.svc.Cse.List().
		Cx(p.engineID).
		Q(query).
		Num(int64(num)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	results := make([]Result, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Link == "" {
			continue
		}
		results = append(results, Result{
			Title:   item.Title,
			URL:     item.Link,
			Snippet: item.Snippet,
		})
	}
	return results, nil
}
