// Package vectorstore provides persistent embedding storage for fraud
// pattern documents.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid vectorstore config")

	// ErrEmptyDocuments indicates an empty document batch.
	ErrEmptyDocuments = errors.New("no documents provided")

	// ErrEmbeddingFailed indicates embedding generation failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrCollectionNotFound indicates the named collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrDocumentNotFound indicates no document with the given ID exists.
	ErrDocumentNotFound = errors.New("document not found")
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments embeds a batch of documents.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the persistence interface for pattern documents.
type Store interface {
	// AddDocuments stores documents, embedding their content.
	// Documents with an existing ID are overwritten.
	// Returns the stored document IDs.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// SearchWithScores returns up to k documents ranked by similarity
	// to the query, each with its similarity score.
	SearchWithScores(ctx context.Context, query string, k int, filter map[string]string) ([]SearchResult, error)

	// GetByFilter returns every document whose metadata matches the
	// filter exactly. Order is unspecified.
	GetByFilter(ctx context.Context, filter map[string]string) ([]Document, error)

	// UpdateMetadata merges the given fields into the document's
	// metadata without re-embedding its content.
	UpdateMetadata(ctx context.Context, id string, fields map[string]string) error

	// Delete removes documents by ID.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Close releases store resources.
	Close() error
}
