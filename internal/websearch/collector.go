package websearch

import (
	"context"
	"errors"
	"math/rand"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// queryQualifiers are appended to the base query to widen coverage of
// recent reporting around a fraud topic.
var queryQualifiers = []string{
	"최신 수법",
	"사례",
	"뉴스",
}

// Collector expands a topic query into multiple searches, filters out
// hub pages, and rotates results through the recent-URL cache so
// repeated runs surface fresh articles.
type Collector struct {
	provider   SearchProvider
	cache      *RecentURLCache
	maxResults int
	logger     *zap.Logger
}

// NewCollector creates a Collector. cache may be nil to disable
// rotation.
func NewCollector(provider SearchProvider, cache *RecentURLCache, maxResults int, logger *zap.Logger) (*Collector, error) {
	if provider == nil {
		return nil, errors.New("search provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Collector{
		provider:   provider,
		cache:      cache,
		maxResults: maxResults,
		logger:     logger,
	}, nil
}

// Collect gathers up to limit article candidates for the topic.
// Unseen URLs are preferred; if too few remain, recently served ones
// fill the gap. Per-query search failures reduce the pool instead of
// failing the run; if every query fails the result is an empty list.
func (c *Collector) Collect(ctx context.Context, topic string, limit int) ([]Result, error) {
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	if limit <= 0 {
		limit = c.maxResults
	}

	queries := expandQueries(topic)

	seen := make(map[string]struct{})
	var pool []Result
	var failures int
	for _, q := range queries {
		results, err := c.provider.Search(ctx, q, c.maxResults)
		if err != nil {
			failures++
			c.logger.Warn("search query failed",
				zap.String("query", q),
				zap.Error(err),
			)
			continue
		}
		for _, r := range results {
			if _, dup := seen[r.URL]; dup {
				continue
			}
			if isHubURL(r.URL) {
				continue
			}
			seen[r.URL] = struct{}{}
			r.Query = q
			pool = append(pool, r)
		}
	}

	if failures == len(queries) {
		c.logger.Warn("all search queries failed", zap.String("topic", topic))
		return []Result{}, nil
	}

	var fresh, served []Result
	for _, r := range pool {
		if c.cache != nil && c.cache.Contains(r.URL) {
			served = append(served, r)
		} else {
			fresh = append(fresh, r)
		}
	}

	rand.Shuffle(len(fresh), func(i, j int) { fresh[i], fresh[j] = fresh[j], fresh[i] })
	rand.Shuffle(len(served), func(i, j int) { served[i], served[j] = served[j], served[i] })

	picked := fresh
	if len(picked) < limit {
		picked = append(picked, served...)
	}
	if len(picked) > limit {
		picked = picked[:limit]
	}

	if c.cache != nil {
		urls := make([]string, len(picked))
		for i, r := range picked {
			urls[i] = r.URL
		}
		c.cache.Add(urls...)
	}

	c.logger.Info("collected article candidates",
		zap.String("topic", topic),
		zap.Int("pool", len(pool)),
		zap.Int("fresh", len(fresh)),
		zap.Int("picked", len(picked)),
	)

	return picked, nil
}

// expandQueries builds the query fan-out for a topic.
func expandQueries(topic string) []string {
	queries := make([]string, 0, len(queryQualifiers)+1)
	queries = append(queries, topic)
	for _, q := range queryQualifiers {
		queries = append(queries, topic+" "+q)
	}
	return queries
}

// isHubURL reports whether u points at a listing or hub page rather
// than an article.
func isHubURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return true
	}
	path := strings.TrimSuffix(parsed.Path, "/")
	if path == "" || path == "/news" || path == "/tag" || path == "/topic" {
		return true
	}
	if strings.Contains(parsed.Path, "/tag/") || strings.Contains(parsed.Path, "/topic/") {
		return true
	}
	return false
}
