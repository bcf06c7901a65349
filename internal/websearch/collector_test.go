package websearch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider returns fixed results per query.
type fakeProvider struct {
	results map[string][]Result
	err     error
	queries []string
}

func (f *fakeProvider) Search(ctx context.Context, query string, num int) ([]Result, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[query], nil
}

func TestCollect_ExpandsQueries(t *testing.T) {
	provider := &fakeProvider{results: map[string][]Result{}}
	c, err := NewCollector(provider, nil, 10, nil)
	require.NoError(t, err)

	_, err = c.Collect(context.Background(), "보이스피싱", 5)
	require.NoError(t, err)

	require.Len(t, provider.queries, 4)
	assert.Equal(t, "보이스피싱", provider.queries[0])
	assert.Contains(t, provider.queries, "보이스피싱 최신 수법")
	assert.Contains(t, provider.queries, "보이스피싱 사례")
	assert.Contains(t, provider.queries, "보이스피싱 뉴스")
}

func TestCollect_TagsResultsWithVariantQuery(t *testing.T) {
	provider := &fakeProvider{results: map[string][]Result{
		"보이스피싱 사례": {{Title: "a", URL: "https://news.example.com/articles/1"}},
	}}
	c, err := NewCollector(provider, nil, 10, nil)
	require.NoError(t, err)

	results, err := c.Collect(context.Background(), "보이스피싱", 5)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "보이스피싱 사례", results[0].Query)
}

func TestCollect_DeduplicatesAndFiltersHubs(t *testing.T) {
	article := Result{Title: "a", URL: "https://news.example.com/articles/123"}
	provider := &fakeProvider{results: map[string][]Result{
		"topic": {
			article,
			article, // duplicate
			{Title: "hub", URL: "https://news.example.com/"},
			{Title: "tag", URL: "https://news.example.com/tag/fraud/"},
			{Title: "topic hub", URL: "https://news.example.com/topic/scams"},
			{Title: "news root", URL: "https://news.example.com/news/"},
		},
	}}
	c, err := NewCollector(provider, nil, 10, nil)
	require.NoError(t, err)

	got, err := c.Collect(context.Background(), "topic", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, article.URL, got[0].URL)
}

func TestCollect_PrefersFreshURLs(t *testing.T) {
	cache := NewRecentURLCache(10, "")
	cache.Add("https://example.com/old-article")

	provider := &fakeProvider{results: map[string][]Result{
		"topic": {
			{Title: "old", URL: "https://example.com/old-article"},
			{Title: "new", URL: "https://example.com/new-article"},
		},
	}}
	c, err := NewCollector(provider, cache, 10, nil)
	require.NoError(t, err)

	got, err := c.Collect(context.Background(), "topic", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://example.com/new-article", got[0].URL)
}

func TestCollect_FallsBackToServedURLs(t *testing.T) {
	cache := NewRecentURLCache(10, "")
	cache.Add("https://example.com/old-article")

	provider := &fakeProvider{results: map[string][]Result{
		"topic": {{Title: "old", URL: "https://example.com/old-article"}},
	}}
	c, err := NewCollector(provider, cache, 10, nil)
	require.NoError(t, err)

	got, err := c.Collect(context.Background(), "topic", 3)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCollect_AllQueriesFailedYieldsEmptyList(t *testing.T) {
	provider := &fakeProvider{err: errors.New("quota exceeded")}
	c, err := NewCollector(provider, nil, 10, nil)
	require.NoError(t, err)

	got, err := c.Collect(context.Background(), "topic", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCollect_RecordsServedURLs(t *testing.T) {
	cache := NewRecentURLCache(10, "")
	provider := &fakeProvider{results: map[string][]Result{
		"topic": {{Title: "new", URL: "https://example.com/article-1"}},
	}}
	c, err := NewCollector(provider, cache, 10, nil)
	require.NoError(t, err)

	_, err = c.Collect(context.Background(), "topic", 5)
	require.NoError(t, err)
	assert.True(t, cache.Contains("https://example.com/article-1"))
}

func TestRecentURLCache_EvictsOldest(t *testing.T) {
	cache := NewRecentURLCache(2, "")
	cache.Add("a", "b", "c")

	assert.False(t, cache.Contains("a"))
	assert.True(t, cache.Contains("b"))
	assert.True(t, cache.Contains("c"))
	assert.Equal(t, 2, cache.Len())
}

func TestRecentURLCache_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recent.json")

	cache := NewRecentURLCache(10, path)
	cache.Add("https://example.com/a", "https://example.com/b")

	reloaded := NewRecentURLCache(10, path)
	assert.True(t, reloaded.Contains("https://example.com/a"))
	assert.True(t, reloaded.Contains("https://example.com/b"))
	assert.Equal(t, 2, reloaded.Len())
}

func TestRecentURLCache_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recent.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	cache := NewRecentURLCache(10, path)
	assert.Equal(t, 0, cache.Len())
}

func TestIsHubURL(t *testing.T) {
	assert.True(t, isHubURL("https://example.com"))
	assert.True(t, isHubURL("https://example.com/"))
	assert.True(t, isHubURL("https://example.com/tag/fraud"))
	assert.True(t, isHubURL("https://example.com/news/"))
	assert.False(t, isHubURL("https://example.com/news/2026/voice-phishing-case"))
	assert.False(t, isHubURL("https://example.com/articles/123"))
}
