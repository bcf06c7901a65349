// Package extract fetches web pages and pulls out readable article
// text.
package extract

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// contentSelectors is the selector chain tried in order for the
// article body. The first selector yielding enough text wins.
var contentSelectors = []string{
	"article",
	"div.content",
	"div.post-content",
	"div.article-body",
	"div.entry-content",
	"div#content",
	"main",
	"div.post_content",
	"div.article_body",
}

// noiseSelectors are stripped from the page before text extraction.
var noiseSelectors = []string{
	"script", "style", "nav", "header", "footer", "aside", "iframe", "noscript",
}

const (
	maxTitleRunes   = 150
	maxSnippetRunes = 500
	batchWorkers    = 5
)

// Config controls extraction behavior.
type Config struct {
	// Timeout bounds a single page fetch.
	Timeout time.Duration
	// MinLength is the minimum rune count for extracted text to be
	// considered an article body.
	MinLength int
	// MaxLength caps extracted text, in runes.
	MaxLength int
	// UserAgent is sent with every request.
	UserAgent string
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 12 * time.Second
	}
	if c.MinLength == 0 {
		c.MinLength = 100
	}
	if c.MaxLength == 0 {
		c.MaxLength = 3000
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	}
}

// Article is the extraction result for one URL.
type Article struct {
	URL     string
	Title   string
	Content string
	// SourceQuery is the search query that surfaced the URL.
	SourceQuery string
	// Fallback is true when the page could not be read and Content
	// holds the search snippet instead.
	Fallback  bool
	FetchedAt time.Time
}

// Candidate pairs a URL with search metadata used as fallback.
type Candidate struct {
	URL     string
	Title   string
	Snippet string
	// SourceQuery is the search query that surfaced the URL.
	SourceQuery string
}

// Extractor fetches pages and extracts readable text.
type Extractor struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// New creates an Extractor.
func New(config Config, logger *zap.Logger) *Extractor {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

// Extract fetches the URL and extracts the article body. It never
// returns an error: any failure degrades to the candidate's search
// snippet with Fallback set.
func (e *Extractor) Extract(ctx context.Context, cand Candidate) Article {
	article := Article{
		URL:         cand.URL,
		Title:       truncateRunes(cand.Title, maxTitleRunes),
		SourceQuery: cand.SourceQuery,
		FetchedAt:   time.Now().UTC(),
	}

	doc, err := e.fetch(ctx, cand.URL)
	if err != nil {
		e.logger.Warn("page fetch failed, using snippet",
			zap.String("url", cand.URL),
			zap.Error(err),
		)
		article.Content = truncateRunes(cand.Snippet, maxSnippetRunes)
		article.Fallback = true
		return article
	}

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		article.Title = truncateRunes(title, maxTitleRunes)
	}

	for _, sel := range noiseSelectors {
		doc.Find(sel).Remove()
	}

	content := e.selectContent(doc)
	if runeLen(content) < e.config.MinLength {
		e.logger.Debug("extracted text too short, using snippet",
			zap.String("url", cand.URL),
			zap.Int("length", runeLen(content)),
		)
		article.Content = truncateRunes(cand.Snippet, maxSnippetRunes)
		article.Fallback = true
		return article
	}

	article.Content = truncateRunes(content, e.config.MaxLength)
	return article
}

// ExtractBatch extracts all candidates with bounded parallelism,
// preserving input order. Candidates whose extraction and snippet are
// both empty are dropped.
func (e *Extractor) ExtractBatch(ctx context.Context, cands []Candidate) []Article {
	results := make([]Article, len(cands))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchWorkers)
	for i, cand := range cands {
		g.Go(func() error {
			results[i] = e.Extract(gctx, cand)
			return nil
		})
	}
	// Workers never return errors.
	_ = g.Wait()

	articles := make([]Article, 0, len(results))
	for _, a := range results {
		if a.Content == "" {
			continue
		}
		articles = append(articles, a)
	}
	return articles
}

func (e *Extractor) fetch(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", e.config.UserAgent)
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en;q=0.5")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}
	return doc, nil
}

// selectContent walks the selector chain and returns the first block
// of sufficient text, falling back to the whole body.
func (e *Extractor) selectContent(doc *goquery.Document) string {
	for _, sel := range contentSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		text := cleanWhitespace(node.Text())
		if runeLen(text) >= e.config.MinLength {
			return text
		}
	}
	return cleanWhitespace(doc.Find("body").Text())
}

// cleanWhitespace collapses space runs within lines and blank-line
// runs to a single blank line, keeping paragraph breaks intact.
func cleanWhitespace(s string) string {
	var lines []string
	blank := true
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				lines = append(lines, "")
			}
			blank = true
			continue
		}
		lines = append(lines, line)
		blank = false
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

func runeLen(s string) int {
	return len([]rune(s))
}

// truncateRunes caps s at n runes. Multibyte text is never split
// mid-rune.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
