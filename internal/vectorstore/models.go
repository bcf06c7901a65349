package vectorstore

// Document is a stored pattern document.
type Document struct {
	// ID uniquely identifies the document. Empty IDs are assigned by
	// the store.
	ID string

	// Content is the document text that gets embedded.
	Content string

	// Metadata holds flat string attributes (source, title, kind,
	// fetched_at, content_hash, ...). Filters match these exactly.
	Metadata map[string]string
}

// SearchResult is a similarity search hit.
type SearchResult struct {
	ID      string
	Content string
	// Score is cosine similarity in [0, 1], higher is closer.
	Score    float32
	Metadata map[string]string
}
