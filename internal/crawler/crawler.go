// Package crawler walks paginated article boards and collects article
// links.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Strategy selects how the crawler advances to the next listing page.
type Strategy string

const (
	// StrategyURLParam increments a page number query parameter.
	StrategyURLParam Strategy = "url_param"
	// StrategyPath increments a trailing numeric path segment.
	StrategyPath Strategy = "path"
	// StrategyNextButton follows the page's next link.
	StrategyNextButton Strategy = "next_button"
	// StrategyAuto detects the strategy from the seed URL.
	StrategyAuto Strategy = "auto"
)

// rowSelectors is the chain tried in order to find listing rows. The
// first selector matching at least minRows anchors wins for the page.
var rowSelectors = []string{
	"table tbody tr td a",
	"ul.board_list li a",
	"ul.list li a",
	"div.board-list a",
	"div.list a",
	"article h2 a",
	"article a",
	"li a",
}

const minRows = 3

// nextSelectors locate the next-page link for next_button pagination.
var nextSelectors = []string{
	"a[rel=next]",
	"a.next",
	"a.btn-next",
	".pagination a.next",
}

// ErrInvalidRequest indicates an unusable crawl request.
var ErrInvalidRequest = errors.New("invalid crawl request")

// Config holds crawler-wide settings.
type Config struct {
	// Delay is the politeness pause between page fetches.
	Delay time.Duration
	// MaxPages bounds pages visited per crawl.
	MaxPages int
	// MaxArticles bounds links collected per crawl.
	MaxArticles int
	// Timeout bounds one page fetch.
	Timeout time.Duration
	// UserAgent is sent with every request.
	UserAgent string
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Delay == 0 {
		c.Delay = 1500 * time.Millisecond
	}
	if c.MaxPages == 0 {
		c.MaxPages = 5
	}
	if c.MaxArticles == 0 {
		c.MaxArticles = 20
	}
	if c.Timeout == 0 {
		c.Timeout = 12 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	}
}

// Request describes one board crawl.
type Request struct {
	// BoardURL is the first listing page.
	BoardURL string
	// Strategy selects pagination. Defaults to auto.
	Strategy Strategy
	// Keywords filter listing titles; a title matches when it
	// contains any keyword, case-insensitively. Empty keeps
	// everything.
	Keywords []string
	// PageParam is the query parameter for url_param pagination.
	// Defaults to "page".
	PageParam string
	// MaxPages and MaxArticles override the crawler config when
	// positive.
	MaxPages    int
	MaxArticles int
}

// Article is one collected article link.
type Article struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	// MatchedKeywords are the request keywords found in the title.
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	// Page is the listing page number the article came from.
	Page int `json:"page"`
}

// Result is the outcome of one crawl.
type Result struct {
	// Pages is how many listing pages were fetched.
	Pages    int       `json:"pages_crawled"`
	Articles []Article `json:"articles"`
}

// Crawler walks article boards.
type Crawler struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// New creates a Crawler.
func New(config Config, logger *zap.Logger) *Crawler {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

// Crawl walks listing pages in order until a terminal condition hits:
// the article limit, a page with no matching articles, a missing next
// link, or the page budget. A page fetch error is transient: it ends
// the crawl and returns what was collected so far with a nil error.
// Only an unusable request or context cancellation returns an error.
func (c *Crawler) Crawl(ctx context.Context, req Request) (*Result, error) {
	board, err := url.Parse(req.BoardURL)
	if err != nil || !board.IsAbs() {
		return nil, fmt.Errorf("%w: board URL %q", ErrInvalidRequest, req.BoardURL)
	}

	pageParam := req.PageParam
	if pageParam == "" {
		pageParam = "page"
	}
	strategy := req.Strategy
	if strategy == "" || strategy == StrategyAuto {
		strategy = detectStrategy(board, pageParam)
	}
	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = c.config.MaxPages
	}
	maxArticles := req.MaxArticles
	if maxArticles <= 0 {
		maxArticles = c.config.MaxArticles
	}

	result := &Result{Articles: []Article{}}
	seen := make(map[string]struct{})
	pageURL := req.BoardURL

	for page := 1; ; page++ {
		doc, err := c.fetch(ctx, pageURL)
		if err != nil {
			c.logger.Warn("listing page fetch failed, stopping crawl",
				zap.String("url", pageURL),
				zap.Int("page", page),
				zap.Error(err),
			)
			return result, nil
		}
		result.Pages = page

		pageBase, _ := url.Parse(pageURL)
		matched := 0
		for _, row := range c.extractRows(doc, pageBase) {
			if _, dup := seen[row.url]; dup {
				continue
			}
			kws := matchedKeywords(row.title, req.Keywords)
			if len(req.Keywords) > 0 && len(kws) == 0 {
				continue
			}
			seen[row.url] = struct{}{}
			result.Articles = append(result.Articles, Article{
				Title:           row.title,
				URL:             row.url,
				MatchedKeywords: kws,
				Page:            page,
			})
			matched++
			if len(result.Articles) >= maxArticles {
				c.logger.Info("crawl reached article limit",
					zap.Int("articles", len(result.Articles)),
					zap.Int("pages", page),
				)
				return result, nil
			}
		}

		if matched == 0 {
			c.logger.Debug("no matching articles on page, stopping", zap.Int("page", page))
			break
		}

		next, ok := c.nextPageURL(strategy, doc, pageBase, board, pageParam, page)
		if !ok {
			break
		}
		if page >= maxPages {
			break
		}
		pageURL = next

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(c.config.Delay):
		}
	}

	c.logger.Info("crawl finished",
		zap.String("board", req.BoardURL),
		zap.Int("pages", result.Pages),
		zap.Int("articles", len(result.Articles)),
	)
	return result, nil
}

// detectStrategy picks pagination from the seed URL: a page query
// parameter means url_param, a trailing numeric path segment means
// path, anything else follows next links.
func detectStrategy(board *url.URL, pageParam string) Strategy {
	if board.Query().Has(pageParam) {
		return StrategyURLParam
	}
	segments := strings.Split(strings.Trim(board.Path, "/"), "/")
	if len(segments) > 0 {
		if _, err := strconv.Atoi(segments[len(segments)-1]); err == nil {
			return StrategyPath
		}
	}
	return StrategyNextButton
}

func (c *Crawler) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

type row struct {
	title string
	url   string
}

// extractRows finds listing rows using the selector chain.
func (c *Crawler) extractRows(doc *goquery.Document, base *url.URL) []row {
	for _, sel := range rowSelectors {
		nodes := doc.Find(sel)
		if nodes.Length() < minRows {
			continue
		}
		var rows []row
		nodes.Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok {
				return
			}
			resolved, ok := resolveLink(base, href)
			if !ok {
				return
			}
			title := strings.TrimSpace(a.Text())
			if title == "" {
				return
			}
			rows = append(rows, row{title: title, url: resolved})
		})
		if len(rows) > 0 {
			return rows
		}
	}
	return nil
}

// nextPageURL computes the next page per strategy.
func (c *Crawler) nextPageURL(strategy Strategy, doc *goquery.Document, pageBase, board *url.URL, pageParam string, page int) (string, bool) {
	switch strategy {
	case StrategyNextButton:
		return findNextLink(doc, pageBase)
	case StrategyPath:
		next := *board
		segments := strings.Split(strings.Trim(board.Path, "/"), "/")
		if len(segments) > 0 {
			if _, err := strconv.Atoi(segments[len(segments)-1]); err == nil {
				segments = segments[:len(segments)-1]
			}
		}
		segments = append(segments, strconv.Itoa(page+1))
		next.Path = "/" + strings.Join(segments, "/")
		return next.String(), true
	default: // url_param
		next := *board
		q := next.Query()
		q.Set(pageParam, strconv.Itoa(page+1))
		next.RawQuery = q.Encode()
		return next.String(), true
	}
}

// findNextLink locates a next-page link in the document.
func findNextLink(doc *goquery.Document, base *url.URL) (string, bool) {
	for _, sel := range nextSelectors {
		if href, ok := doc.Find(sel).First().Attr("href"); ok {
			return resolveLink(base, href)
		}
	}
	var found string
	doc.Find(".pagination a, .paging a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := strings.TrimSpace(a.Text())
		if text == "다음" || text == "다음 페이지" || text == ">" {
			if href, ok := a.Attr("href"); ok {
				found = href
				return false
			}
		}
		return true
	})
	if found == "" {
		return "", false
	}
	return resolveLink(base, found)
}

// resolveLink resolves href against base, rejecting non-HTTP schemes.
func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	return resolved.String(), true
}

// matchedKeywords returns the keywords found in title.
func matchedKeywords(title string, keywords []string) []string {
	lower := strings.ToLower(title)
	var matched []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched
}
