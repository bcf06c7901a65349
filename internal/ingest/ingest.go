// Package ingest stores extracted articles into the pattern store
// with content-based deduplication.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/fraudintel/internal/extract"
	"github.com/fyrsmithlabs/fraudintel/internal/vectorstore"
	"go.uber.org/zap"
)

// hashWindowRunes bounds how much content feeds the dedup hash.
// Identical leading text implies an identical article for our
// purposes.
const hashWindowRunes = 20000

// Document kinds stored in metadata.
const (
	KindArticle = "article"
	KindSnippet = "snippet"
)

// Result summarizes a batch ingestion.
type Result struct {
	// Stored is the number of new documents written.
	Stored int
	// Skipped is the number of duplicates dropped.
	Skipped int
	// IDs are the stored document IDs, in input order.
	IDs []string
}

// ContentHash returns the hex SHA-256 of the first 20000 runes of
// content.
func ContentHash(content string) string {
	runes := []rune(content)
	if len(runes) > hashWindowRunes {
		runes = runes[:hashWindowRunes]
	}
	sum := sha256.Sum256([]byte(string(runes)))
	return hex.EncodeToString(sum[:])
}

// DedupKey identifies an article by URL and content hash. The same
// URL with changed content is a distinct document.
func DedupKey(url, content string) string {
	return url + "::" + ContentHash(content)
}

// Ingestor writes articles to the vector store.
type Ingestor struct {
	store  vectorstore.Store
	logger *zap.Logger
}

// New creates an Ingestor.
func New(store vectorstore.Store, logger *zap.Logger) (*Ingestor, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{store: store, logger: logger}, nil
}

// StoreBatch stores articles collected for query, skipping duplicates
// within the batch (by URL + content hash). Uniqueness is per batch
// only: re-ingesting the same article in a later run stores it again.
// Fallback snippets are stored as unprocessed snippet documents.
func (i *Ingestor) StoreBatch(ctx context.Context, query string, articles []extract.Article) (*Result, error) {
	result := &Result{}
	seen := make(map[string]struct{})
	var docs []vectorstore.Document

	for _, a := range articles {
		if a.Content == "" {
			result.Skipped++
			continue
		}

		hash := ContentHash(a.Content)
		key := a.URL + "::" + hash
		if _, dup := seen[key]; dup {
			result.Skipped++
			continue
		}
		seen[key] = struct{}{}

		fetchedAt := a.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = time.Now().UTC()
		}

		// Provenance: the variant query that surfaced this URL, not
		// just the batch topic.
		sourceQuery := a.SourceQuery
		if sourceQuery == "" {
			sourceQuery = query
		}

		metadata := map[string]string{
			"source":       a.URL,
			"title":        a.Title,
			"fetched_at":   fetchedAt.Format(time.RFC3339),
			"query":        sourceQuery,
			"kind":         KindArticle,
			"content_hash": hash,
		}
		if a.Fallback {
			metadata["kind"] = KindSnippet
			metadata["processed"] = "false"
		}

		docs = append(docs, vectorstore.Document{
			Content:  a.Content,
			Metadata: metadata,
		})
	}

	if len(docs) > 0 {
		ids, err := i.store.AddDocuments(ctx, docs)
		if err != nil {
			return nil, fmt.Errorf("storing articles: %w", err)
		}
		result.IDs = ids
		result.Stored = len(ids)
	}

	i.logger.Info("ingested article batch",
		zap.String("query", query),
		zap.Int("stored", result.Stored),
		zap.Int("skipped", result.Skipped),
	)

	return result, nil
}
