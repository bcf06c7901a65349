package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/fraudintel/internal/extract"
	"github.com/fyrsmithlabs/fraudintel/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store covering the filter and add paths.
type memStore struct {
	vectorstore.Store
	docs   []vectorstore.Document
	nextID int
}

func (m *memStore) AddDocuments(ctx context.Context, docs []vectorstore.Document) ([]string, error) {
	ids := make([]string, len(docs))
	for i, d := range docs {
		m.nextID++
		if d.ID == "" {
			d.ID = strings.Repeat("x", m.nextID)
		}
		ids[i] = d.ID
		m.docs = append(m.docs, d)
	}
	return ids, nil
}

func TestContentHash_Stable(t *testing.T) {
	assert.Equal(t, ContentHash("abc"), ContentHash("abc"))
	assert.NotEqual(t, ContentHash("abc"), ContentHash("abd"))
}

func TestContentHash_WindowBound(t *testing.T) {
	base := strings.Repeat("가", 20000)
	assert.Equal(t, ContentHash(base), ContentHash(base+"tail differs"))
	assert.NotEqual(t, ContentHash(base), ContentHash("x"+base))
}

func TestDedupKey_Format(t *testing.T) {
	key := DedupKey("https://example.com/a", "content")
	assert.True(t, strings.HasPrefix(key, "https://example.com/a::"))
	assert.Len(t, strings.SplitN(key, "::", 2)[1], 64)
}

func TestStoreBatch_StoresWithMetadata(t *testing.T) {
	store := &memStore{}
	ing, err := New(store, nil)
	require.NoError(t, err)

	fetched := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	res, err := ing.StoreBatch(context.Background(), "보이스피싱", []extract.Article{
		{URL: "https://example.com/a", Title: "기사 제목", Content: "본문 내용", FetchedAt: fetched},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stored)
	assert.Equal(t, 0, res.Skipped)
	require.Len(t, store.docs, 1)

	md := store.docs[0].Metadata
	assert.Equal(t, "https://example.com/a", md["source"])
	assert.Equal(t, "기사 제목", md["title"])
	assert.Equal(t, "보이스피싱", md["query"])
	assert.Equal(t, KindArticle, md["kind"])
	assert.Equal(t, "2026-08-30T12:00:00Z", md["fetched_at"])
	assert.Equal(t, ContentHash("본문 내용"), md["content_hash"])
}

func TestStoreBatch_FallbackStoredAsSnippet(t *testing.T) {
	store := &memStore{}
	ing, err := New(store, nil)
	require.NoError(t, err)

	res, err := ing.StoreBatch(context.Background(), "q", []extract.Article{
		{URL: "https://example.com/a", Content: "요약문", Fallback: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stored)

	md := store.docs[0].Metadata
	assert.Equal(t, KindSnippet, md["kind"])
	assert.Equal(t, "false", md["processed"])
}

func TestStoreBatch_SkipsInBatchDuplicates(t *testing.T) {
	store := &memStore{}
	ing, err := New(store, nil)
	require.NoError(t, err)

	article := extract.Article{URL: "https://example.com/a", Content: "같은 본문"}
	res, err := ing.StoreBatch(context.Background(), "q", []extract.Article{article, article})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stored)
	assert.Equal(t, 1, res.Skipped)
}

func TestStoreBatch_ReingestionAcrossBatchesStores(t *testing.T) {
	store := &memStore{}
	ing, err := New(store, nil)
	require.NoError(t, err)

	// Dedup is scoped to one batch: the same article seen again on a
	// later run is stored as a new document.
	article := extract.Article{URL: "https://example.com/a", Content: "본문"}

	res, err := ing.StoreBatch(context.Background(), "q", []extract.Article{article})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stored)

	res, err = ing.StoreBatch(context.Background(), "q", []extract.Article{article})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stored)
	assert.Equal(t, 0, res.Skipped)
	assert.Len(t, store.docs, 2)
}

func TestStoreBatch_RecordsSourceQuery(t *testing.T) {
	store := &memStore{}
	ing, err := New(store, nil)
	require.NoError(t, err)

	_, err = ing.StoreBatch(context.Background(), "보이스피싱", []extract.Article{
		{URL: "https://example.com/a", Content: "본문 하나", SourceQuery: "보이스피싱 최신 수법"},
		{URL: "https://example.com/b", Content: "본문 둘"},
	})
	require.NoError(t, err)
	require.Len(t, store.docs, 2)

	// The variant query that surfaced the URL wins; the batch topic is
	// the fallback.
	assert.Equal(t, "보이스피싱 최신 수법", store.docs[0].Metadata["query"])
	assert.Equal(t, "보이스피싱", store.docs[1].Metadata["query"])
}

func TestStoreBatch_ChangedContentSameURLIsNew(t *testing.T) {
	store := &memStore{}
	ing, err := New(store, nil)
	require.NoError(t, err)

	_, err = ing.StoreBatch(context.Background(), "q", []extract.Article{
		{URL: "https://example.com/a", Content: "원래 본문"},
	})
	require.NoError(t, err)

	res, err := ing.StoreBatch(context.Background(), "q", []extract.Article{
		{URL: "https://example.com/a", Content: "수정된 본문"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stored)
}

func TestStoreBatch_EmptyContentSkipped(t *testing.T) {
	store := &memStore{}
	ing, err := New(store, nil)
	require.NoError(t, err)

	res, err := ing.StoreBatch(context.Background(), "q", []extract.Article{
		{URL: "https://example.com/a", Content: ""},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stored)
	assert.Equal(t, 1, res.Skipped)
}
