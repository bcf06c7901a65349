package vectorstore_test

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/fraudintel/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEmbedder returns deterministic normalized vectors.
type testEmbedder struct {
	vectorSize int
}

func (e *testEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.makeEmbedding(text)
	}
	return embeddings, nil
}

func (e *testEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.makeEmbedding(text), nil
}

// makeEmbedding creates a normalized embedding from a text hash.
// chromem requires unit vectors.
func (e *testEmbedder) makeEmbedding(text string) []float32 {
	embedding := make([]float32, e.vectorSize)
	hash := 0
	for _, c := range text {
		hash = (hash*31 + int(c)) % 1000
	}
	var sumSq float32
	for i := range embedding {
		embedding[i] = float32((hash+i)%100) / 100.0
		sumSq += embedding[i] * embedding[i]
	}
	if sumSq > 0 {
		norm := float32(1.0) / sqrt32(sumSq)
		for i := range embedding {
			embedding[i] *= norm
		}
	}
	return embedding
}

func sqrt32(x float32) float32 {
	if x <= 0 {
		return 0
	}
	z := x / 2
	for i := 0; i < 10; i++ {
		z = (z + x/z) / 2
	}
	return z
}

func newTestStore(t *testing.T) *vectorstore.ChromemStore {
	t.Helper()

	config := vectorstore.ChromemConfig{
		Path:       t.TempDir(),
		Collection: "test_patterns",
	}
	store, err := vectorstore.NewChromemStore(config, &testEmbedder{vectorSize: 384}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewChromemStore_RequiresEmbedder(t *testing.T) {
	_, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, nil, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}

func TestAddDocuments_EmptyBatch(t *testing.T) {
	store := newTestStore(t)
	_, err := store.AddDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, vectorstore.ErrEmptyDocuments)
}

func TestAddDocuments_AssignsIDs(t *testing.T) {
	store := newTestStore(t)
	ids, err := store.AddDocuments(context.Background(), []vectorstore.Document{
		{Content: "impersonation call pattern", Metadata: map[string]string{"kind": "article"}},
		{ID: "doc-1", Content: "refund scam report"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.Equal(t, "doc-1", ids[1])

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSearchWithScores_EmptyStore(t *testing.T) {
	store := newTestStore(t)
	results, err := store.SearchWithScores(context.Background(), "anything", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchWithScores_ExactTextMatchesHighest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddDocuments(ctx, []vectorstore.Document{
		{ID: "a", Content: "delivery smishing with fake tracking links"},
		{ID: "b", Content: "romance scam escalation over social apps"},
	})
	require.NoError(t, err)

	results, err := store.SearchWithScores(ctx, "delivery smishing with fake tracking links", 2, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.001)
}

func TestSearchWithScores_CapsKAtCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddDocuments(ctx, []vectorstore.Document{{ID: "a", Content: "only document"}})
	require.NoError(t, err)

	results, err := store.SearchWithScores(ctx, "only document", 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchWithScores_FilterNarrowsResults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddDocuments(ctx, []vectorstore.Document{
		{ID: "a", Content: "loan fraud cold call", Metadata: map[string]string{"kind": "article"}},
		{ID: "b", Content: "loan fraud case study", Metadata: map[string]string{"kind": "snippet"}},
	})
	require.NoError(t, err)

	results, err := store.SearchWithScores(ctx, "loan fraud", 2, map[string]string{"kind": "snippet"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestGetByFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddDocuments(ctx, []vectorstore.Document{
		{ID: "a", Content: "alpha", Metadata: map[string]string{"kind": "snippet", "processed": "false"}},
		{ID: "b", Content: "beta", Metadata: map[string]string{"kind": "snippet", "processed": "true"}},
		{ID: "c", Content: "gamma", Metadata: map[string]string{"kind": "article"}},
	})
	require.NoError(t, err)

	docs, err := store.GetByFilter(ctx, map[string]string{"kind": "snippet"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = store.GetByFilter(ctx, map[string]string{"kind": "snippet", "processed": "false"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)
}

func TestGetByFilter_EmptyStore(t *testing.T) {
	store := newTestStore(t)
	docs, err := store.GetByFilter(context.Background(), map[string]string{"kind": "snippet"})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestUpdateMetadata_MergesFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddDocuments(ctx, []vectorstore.Document{
		{ID: "a", Content: "snippet text", Metadata: map[string]string{"kind": "snippet", "processed": "false"}},
	})
	require.NoError(t, err)

	err = store.UpdateMetadata(ctx, "a", map[string]string{"processed": "true", "used_in_report_id": "r-1"})
	require.NoError(t, err)

	docs, err := store.GetByFilter(ctx, map[string]string{"kind": "snippet"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "true", docs[0].Metadata["processed"])
	assert.Equal(t, "r-1", docs[0].Metadata["used_in_report_id"])
	assert.Equal(t, "snippet text", docs[0].Content)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpdateMetadata_MissingDocument(t *testing.T) {
	store := newTestStore(t)
	err := store.UpdateMetadata(context.Background(), "missing", map[string]string{"processed": "true"})
	assert.ErrorIs(t, err, vectorstore.ErrDocumentNotFound)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddDocuments(ctx, []vectorstore.Document{
		{ID: "a", Content: "alpha"},
		{ID: "b", Content: "beta"},
	})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, []string{"a"}))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPersistence_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	embedder := &testEmbedder{vectorSize: 384}
	config := vectorstore.ChromemConfig{Path: dir, Collection: "test_patterns"}

	store, err := vectorstore.NewChromemStore(config, embedder, nil)
	require.NoError(t, err)
	_, err = store.AddDocuments(context.Background(), []vectorstore.Document{{ID: "a", Content: "persisted"}})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := vectorstore.NewChromemStore(config, embedder, nil)
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
