package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for the chromem-go embedded store.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection name.
	Collection string
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "./data/fraudintel"
	}
	if c.Collection == "" {
		c.Collection = "fraud_patterns"
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if strings.ContainsAny(c.Collection, "/\\ ") {
		return fmt.Errorf("%w: collection name %q", ErrInvalidConfig, c.Collection)
	}
	return nil
}

// ChromemStore implements Store using chromem-go, an embeddable vector
// database with no external service dependency. Documents persist to
// gob files under the configured path.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	config     ChromemConfig
	logger     *zap.Logger
}

// NewChromemStore creates a ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(expandedPath, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	embedFn := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(config.Collection, nil, embedFn)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", config.Collection, err)
	}

	store := &ChromemStore{
		db:         db,
		collection: collection,
		embedder:   embedder,
		config:     config,
		logger:     logger,
	}

	logger.Info("chromem store initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.String("collection", config.Collection),
		zap.Int("documents", collection.Count()),
	)

	return store, nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// AddDocuments stores documents, embedding their content in batch.
func (s *ChromemStore) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	ids := make([]string, len(docs))
	texts := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		if ids[i] == "" {
			ids[i] = uuid.NewString()
		}
		texts[i] = doc.Content
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        ids[i],
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: embeddings[i],
		}
	}

	// Concurrency of 1 since embeddings are already computed.
	if err := s.collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return nil, fmt.Errorf("adding documents: %w", err)
	}

	s.logger.Debug("added documents",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(docs)),
	)

	return ids, nil
}

// SearchWithScores performs similarity search with an optional
// exact-match metadata filter.
func (s *ChromemStore) SearchWithScores(ctx context.Context, query string, k int, filter map[string]string) ([]SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	// chromem requires nResults <= document count.
	docCount := s.collection.Count()
	if docCount == 0 {
		return []SearchResult{}, nil
	}
	if k > docCount {
		k = docCount
	}

	results, err := s.collection.Query(ctx, query, k, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Metadata: r.Metadata,
		}
	}

	s.logger.Debug("searched collection",
		zap.Int("k", k),
		zap.Int("results", len(searchResults)),
	)

	return searchResults, nil
}

// GetByFilter returns every document whose metadata matches the filter.
// chromem has no metadata-only scan, so this runs a full-width query
// and relies on the filter to narrow results.
func (s *ChromemStore) GetByFilter(ctx context.Context, filter map[string]string) ([]Document, error) {
	docCount := s.collection.Count()
	if docCount == 0 {
		return []Document{}, nil
	}

	seed := "all documents"
	for _, v := range filter {
		seed = v
		break
	}

	results, err := s.collection.Query(ctx, seed, docCount, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("querying by filter: %w", err)
	}

	docs := make([]Document, len(results))
	for i, r := range results {
		docs[i] = Document{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: r.Metadata,
		}
	}
	return docs, nil
}

// UpdateMetadata merges fields into a document's metadata. The stored
// embedding is reused so content is not re-embedded.
func (s *ChromemStore) UpdateMetadata(ctx context.Context, id string, fields map[string]string) error {
	doc, err := s.collection.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}

	merged := make(map[string]string, len(doc.Metadata)+len(fields))
	for k, v := range doc.Metadata {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	updated := chromem.Document{
		ID:        doc.ID,
		Content:   doc.Content,
		Metadata:  merged,
		Embedding: doc.Embedding,
	}
	if err := s.collection.AddDocuments(ctx, []chromem.Document{updated}, 1); err != nil {
		return fmt.Errorf("rewriting document %s: %w", id, err)
	}
	return nil
}

// Delete removes documents by ID. Missing IDs are not an error.
func (s *ChromemStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if err := s.collection.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("deleting document %s: %w", id, err)
		}
	}
	return nil
}

// Count returns the number of stored documents.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Close releases store resources. chromem persists on write, so there
// is nothing to flush.
func (s *ChromemStore) Close() error {
	s.logger.Debug("chromem store closed")
	return nil
}
