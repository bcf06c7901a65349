package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boardPage(titles []string, nextHref string) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="board_list">`)
	for i, title := range titles {
		fmt.Fprintf(&b, `<li><a href="/articles/%s-%d">%s</a></li>`, strings.ReplaceAll(title, " ", "-"), i, title)
	}
	b.WriteString(`</ul>`)
	if nextHref != "" {
		fmt.Fprintf(&b, `<div class="pagination"><a rel="next" href="%s">다음</a></div>`, nextHref)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func testCrawler() *Crawler {
	return New(Config{Delay: time.Millisecond}, nil)
}

func mustParse(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	require.NoError(t, err)
	return u
}

func TestCrawl_URLParamPagination(t *testing.T) {
	var gotPages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		gotPages = append(gotPages, page)
		switch page {
		case "", "1":
			fmt.Fprint(w, boardPage([]string{"보이스피싱 급증", "신종 사기 경보", "일반 공지"}, ""))
		case "2":
			fmt.Fprint(w, boardPage([]string{"환급 사기 주의", "기관 사칭 전화", "모집 안내"}, ""))
		default:
			fmt.Fprint(w, `<html><body></body></html>`)
		}
	}))
	defer srv.Close()

	res, err := testCrawler().Crawl(context.Background(), Request{
		BoardURL: srv.URL + "/board",
		Strategy: StrategyURLParam,
		MaxPages: 2,
	})
	require.NoError(t, err)
	assert.Len(t, res.Articles, 6)
	assert.Equal(t, 2, res.Pages)
	assert.Contains(t, gotPages, "2")
	assert.Equal(t, 1, res.Articles[0].Page)
	assert.Equal(t, 2, res.Articles[5].Page)
}

func TestCrawl_StopsOnPageWithoutMatches(t *testing.T) {
	pages := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		if pages == 1 {
			fmt.Fprint(w, boardPage([]string{"첫 기사", "둘째 기사", "셋째 기사"}, ""))
			return
		}
		fmt.Fprint(w, `<html><body><p>no list here</p></body></html>`)
	}))
	defer srv.Close()

	res, err := testCrawler().Crawl(context.Background(), Request{
		BoardURL: srv.URL,
		Strategy: StrategyURLParam,
		MaxPages: 10,
	})
	require.NoError(t, err)
	assert.Len(t, res.Articles, 3)
	assert.Equal(t, 2, pages)
	assert.Equal(t, 2, res.Pages)
}

func TestCrawl_ArticleLimitStopsEarly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, boardPage([]string{"하나", "둘", "셋", "넷", "다섯"}, ""))
	}))
	defer srv.Close()

	res, err := testCrawler().Crawl(context.Background(), Request{
		BoardURL:    srv.URL,
		Strategy:    StrategyURLParam,
		MaxArticles: 2,
		MaxPages:    10,
	})
	require.NoError(t, err)
	assert.Len(t, res.Articles, 2)
	assert.Equal(t, 1, res.Pages)
}

func TestCrawl_KeywordFilterAndMatchedKeywords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, boardPage([]string{"보이스피싱 사례", "날씨 소식", "피싱 문자 주의"}, ""))
	}))
	defer srv.Close()

	res, err := testCrawler().Crawl(context.Background(), Request{
		BoardURL: srv.URL,
		Strategy: StrategyURLParam,
		Keywords: []string{"피싱", "사기"},
		MaxPages: 1,
	})
	require.NoError(t, err)
	require.Len(t, res.Articles, 2)
	assert.Equal(t, "보이스피싱 사례", res.Articles[0].Title)
	assert.Equal(t, []string{"피싱"}, res.Articles[0].MatchedKeywords)
}

func TestCrawl_NextButtonPagination(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/board", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, boardPage([]string{"일번", "이번", "삼번"}, "/board2"))
	})
	mux.HandleFunc("/board2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, boardPage([]string{"사번", "오번", "육번"}, ""))
	})

	res, err := testCrawler().Crawl(context.Background(), Request{
		BoardURL: srv.URL + "/board",
		Strategy: StrategyNextButton,
		MaxPages: 5,
	})
	require.NoError(t, err)
	assert.Len(t, res.Articles, 6)
	// Second page has no next link.
	assert.Equal(t, 2, res.Pages)
}

func TestCrawl_PartialResultsOnError(t *testing.T) {
	pages := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		if pages == 1 {
			fmt.Fprint(w, boardPage([]string{"일번", "이번", "삼번"}, ""))
			return
		}
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	res, err := testCrawler().Crawl(context.Background(), Request{
		BoardURL: srv.URL,
		Strategy: StrategyURLParam,
		MaxPages: 3,
	})
	require.NoError(t, err)
	assert.Len(t, res.Articles, 3)
}

func TestCrawl_FirstPageFetchFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	res, err := testCrawler().Crawl(context.Background(), Request{
		BoardURL: srv.URL,
		Strategy: StrategyURLParam,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pages)
	assert.Empty(t, res.Articles)
}

func TestCrawl_InvalidBoardURL(t *testing.T) {
	_, err := testCrawler().Crawl(context.Background(), Request{BoardURL: "not a url"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCrawl_PathStrategy(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/board/1" {
			fmt.Fprint(w, boardPage([]string{"일번", "이번", "삼번"}, ""))
			return
		}
		fmt.Fprint(w, `<html><body></body></html>`)
	}))
	defer srv.Close()

	_, err := testCrawler().Crawl(context.Background(), Request{
		BoardURL: srv.URL + "/board/1",
		Strategy: StrategyPath,
		MaxPages: 2,
	})
	require.NoError(t, err)
	assert.Contains(t, paths, "/board/2")
}

func TestDetectStrategy(t *testing.T) {
	assert.Equal(t, StrategyURLParam, detectStrategy(mustParse(t, "https://example.com/board?page=1"), "page"))
	assert.Equal(t, StrategyPath, detectStrategy(mustParse(t, "https://example.com/board/2"), "page"))
	assert.Equal(t, StrategyNextButton, detectStrategy(mustParse(t, "https://example.com/board"), "page"))
}

func TestMatchedKeywords(t *testing.T) {
	assert.Equal(t, []string{"피싱"}, matchedKeywords("보이스피싱 주의보", []string{"피싱", "사기"}))
	assert.Equal(t, []string{"voice"}, matchedKeywords("Voice Phishing Alert", []string{"voice"}))
	assert.Empty(t, matchedKeywords("날씨 소식", []string{"피싱"}))
}

func TestResolveLink(t *testing.T) {
	base := mustParse(t, "https://example.com/board/list")

	got, ok := resolveLink(base, "/articles/1")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/articles/1", got)

	_, ok = resolveLink(base, "javascript:void(0)")
	assert.False(t, ok)

	_, ok = resolveLink(base, "#top")
	assert.False(t, ok)
}
