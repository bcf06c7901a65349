// Package router decides whether a query is answerable from the
// pattern store or needs fresh collection.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/fraudintel/internal/vectorstore"
	"go.uber.org/zap"
)

// Route is the retrieval routing outcome.
type Route string

const (
	// RouteHit means stored knowledge covers the query.
	RouteHit Route = "HIT"
	// RouteMiss means the store has nothing relevant enough.
	RouteMiss Route = "MISS"
)

// ErrEmptyQuery indicates a blank routing query.
var ErrEmptyQuery = errors.New("empty query")

// Decision is the result of routing a query against the store.
type Decision struct {
	Route Route
	// Hits are the results at or above the relevance threshold,
	// ranked by similarity.
	Hits []vectorstore.SearchResult
	// BestScore is the top similarity seen, 0 when the store returned
	// nothing.
	BestScore float32
}

// Config holds router settings.
type Config struct {
	// TopK is how many candidates to retrieve.
	TopK int
	// MinRelevance is the hit threshold. A candidate scoring exactly
	// at the threshold counts as a hit.
	MinRelevance float64
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.MinRelevance == 0 {
		c.MinRelevance = 0.75
	}
}

// Router routes queries against a vector store.
type Router struct {
	store  vectorstore.Store
	config Config
	logger *zap.Logger
}

// New creates a Router.
func New(store vectorstore.Store, config Config, logger *zap.Logger) (*Router, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	return &Router{store: store, config: config, logger: logger}, nil
}

// Route retrieves the top candidates for query and classifies the
// outcome. An empty store always routes to MISS.
func (r *Router) Route(ctx context.Context, query string) (*Decision, error) {
	return r.RouteWithThreshold(ctx, query, r.config.MinRelevance)
}

// RouteWithThreshold routes with a caller-supplied relevance threshold.
func (r *Router) RouteWithThreshold(ctx context.Context, query string, minRelevance float64) (*Decision, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}

	results, err := r.store.SearchWithScores(ctx, query, r.config.TopK, nil)
	if err != nil {
		return nil, fmt.Errorf("searching store: %w", err)
	}

	decision := &Decision{Route: RouteMiss}
	for _, res := range results {
		if res.Score > decision.BestScore {
			decision.BestScore = res.Score
		}
		if float64(res.Score) >= minRelevance {
			decision.Hits = append(decision.Hits, res)
		}
	}
	if len(decision.Hits) > 0 {
		decision.Route = RouteHit
	}

	r.logger.Info("routed query",
		zap.String("route", string(decision.Route)),
		zap.Float32("best_score", decision.BestScore),
		zap.Int("candidates", len(results)),
		zap.Int("hits", len(decision.Hits)),
	)

	return decision, nil
}
