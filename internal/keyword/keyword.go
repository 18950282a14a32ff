// Package keyword provides full-text (BM25) indexing and search over record text.
package keyword

import "context"

// Doc is the indexable projection of a record. Only the fields that should
// participate in keyword matching are included.
type Doc struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Result is a single keyword search hit.
type Result struct {
	ID    string
	Score float64
}

// Index defines keyword search operations. Scores are BM25-style and not
// comparable across queries; callers normalize before blending.
type Index interface {
	Index(ctx context.Context, id string, doc *Doc) error
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}
