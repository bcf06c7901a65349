package guidance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/fraudintel/internal/crawler"
	"github.com/fyrsmithlabs/fraudintel/internal/extract"
	"github.com/fyrsmithlabs/fraudintel/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore serves canned search hits and records added documents.
type fakeStore struct {
	vectorstore.Store
	hits   []vectorstore.SearchResult
	added  []vectorstore.Document
	nextID int
}

func (f *fakeStore) SearchWithScores(ctx context.Context, query string, k int, filter map[string]string) ([]vectorstore.SearchResult, error) {
	return f.hits, nil
}

func (f *fakeStore) AddDocuments(ctx context.Context, docs []vectorstore.Document) ([]string, error) {
	ids := make([]string, len(docs))
	for i := range docs {
		f.nextID++
		docs[i].ID = fmt.Sprintf("g-%d", f.nextID)
		ids[i] = docs[i].ID
		f.added = append(f.added, docs[i])
	}
	return ids, nil
}

type fakeGenerator struct {
	response string
	calls    int
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.response, nil
}

const guidanceJSON = `{"summary":"기관 사칭 대응","patterns":[{"name":"기관 사칭","description":"수사기관 사칭 후 송금 유도"}],"recommendations":["공식 번호로 재확인"]}`

func TestLookup_FoundInDB(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.SearchResult{
		{ID: "stored-1", Content: guidanceJSON, Score: 0.85},
	}}
	gen := &fakeGenerator{response: "unused"}
	svc, err := New(store, gen, nil, nil, Config{}, nil)
	require.NoError(t, err)

	res, err := svc.Lookup(context.Background(), "기관 사칭")
	require.NoError(t, err)
	assert.Equal(t, StatusFoundInDB, res.Status)
	assert.Equal(t, "stored-1", res.DocID)
	assert.Equal(t, float32(0.85), res.Score)
	assert.Equal(t, "기관 사칭 대응", res.Guidance.Summary)
	assert.Zero(t, gen.calls)
	assert.Empty(t, store.added)
}

func TestLookup_BoundaryEqualityIsFound(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.SearchResult{
		{ID: "stored-1", Content: guidanceJSON, Score: 0.80},
	}}
	svc, err := New(store, &fakeGenerator{}, nil, nil, Config{Threshold: 0.80}, nil)
	require.NoError(t, err)

	res, err := svc.Lookup(context.Background(), "topic")
	require.NoError(t, err)
	assert.Equal(t, StatusFoundInDB, res.Status)
}

func TestLookup_GeneratesBelowThreshold(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.SearchResult{
		{ID: "stored-1", Content: guidanceJSON, Score: 0.79},
	}}
	gen := &fakeGenerator{response: "```json\n" + guidanceJSON + "\n```"}
	svc, err := New(store, gen, nil, nil, Config{}, nil)
	require.NoError(t, err)

	res, err := svc.Lookup(context.Background(), "환급 사기")
	require.NoError(t, err)
	assert.Equal(t, StatusGeneratedNew, res.Status)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, float32(0.79), res.Score)

	require.Len(t, store.added, 1)
	assert.Equal(t, KindGuidance, store.added[0].Metadata["kind"])
	assert.Equal(t, "환급 사기", store.added[0].Metadata["title"])
	assert.NotEmpty(t, store.added[0].Metadata["created_at"])
}

func TestLookup_EmptyStoreGenerates(t *testing.T) {
	gen := &fakeGenerator{response: guidanceJSON}
	svc, err := New(&fakeStore{}, gen, nil, nil, Config{}, nil)
	require.NoError(t, err)

	res, err := svc.Lookup(context.Background(), "topic")
	require.NoError(t, err)
	assert.Equal(t, StatusGeneratedNew, res.Status)
}

func TestLookup_EmptyTopic(t *testing.T) {
	svc, err := New(&fakeStore{}, &fakeGenerator{}, nil, nil, Config{}, nil)
	require.NoError(t, err)

	_, err = svc.Lookup(context.Background(), "")
	assert.Error(t, err)
}

func TestFromCrawl_Success(t *testing.T) {
	body := strings.Repeat("보이스피싱 수법 기사 본문 ", 20)
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/board", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><ul class="board_list">
			<li><a href="/articles/1">피싱 기사 하나</a></li>
			<li><a href="/articles/2">피싱 기사 둘</a></li>
			<li><a href="/articles/3">피싱 기사 셋</a></li>
		</ul></body></html>`)
	})
	mux.HandleFunc("/articles/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><article>`+body+`</article></body></html>`)
	})

	store := &fakeStore{}
	gen := &fakeGenerator{response: guidanceJSON}
	svc, err := New(store, gen,
		extract.New(extract.Config{}, nil),
		crawler.New(crawler.Config{Delay: time.Millisecond}, nil),
		Config{}, nil)
	require.NoError(t, err)

	res, err := svc.FromCrawl(context.Background(), crawler.Request{
		BoardURL: srv.URL + "/board",
		Strategy: crawler.StrategyURLParam,
		Keywords: []string{"피싱"},
		MaxPages: 1,
	}, "보이스피싱")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 3, res.Articles)

	require.Len(t, store.added, 1)
	assert.Equal(t, KindCrawledGuidance, store.added[0].Metadata["kind"])
}

func TestFromCrawl_NoArticles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>empty board</p></body></html>`)
	}))
	defer srv.Close()

	gen := &fakeGenerator{response: guidanceJSON}
	svc, err := New(&fakeStore{}, gen,
		extract.New(extract.Config{}, nil),
		crawler.New(crawler.Config{Delay: time.Millisecond}, nil),
		Config{}, nil)
	require.NoError(t, err)

	res, err := svc.FromCrawl(context.Background(), crawler.Request{
		BoardURL: srv.URL,
		Strategy: crawler.StrategyURLParam,
	}, "topic")
	require.NoError(t, err)
	assert.Equal(t, StatusNoArticles, res.Status)
	assert.Zero(t, gen.calls)
}

func TestFromCrawl_UnreachableBoardIsNoArticles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	gen := &fakeGenerator{response: guidanceJSON}
	svc, err := New(&fakeStore{}, gen,
		extract.New(extract.Config{}, nil),
		crawler.New(crawler.Config{Delay: time.Millisecond}, nil),
		Config{}, nil)
	require.NoError(t, err)

	res, err := svc.FromCrawl(context.Background(), crawler.Request{
		BoardURL: srv.URL,
		Strategy: crawler.StrategyURLParam,
	}, "topic")
	require.NoError(t, err)
	assert.Equal(t, StatusNoArticles, res.Status)
	assert.Zero(t, gen.calls)
}

func TestFromCrawl_RequiresCollaborators(t *testing.T) {
	svc, err := New(&fakeStore{}, &fakeGenerator{}, nil, nil, Config{}, nil)
	require.NoError(t, err)

	_, err = svc.FromCrawl(context.Background(), crawler.Request{BoardURL: "https://example.com"}, "topic")
	assert.Error(t, err)
}
