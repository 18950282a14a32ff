package models

import "fmt"

// Retrieval limits. DefaultLimit matches the small top-k a RAG consumer
// actually feeds to a model; MaxLimit bounds a single request.
const (
	DefaultLimit = 5
	MaxLimit     = 100
)

// RetrieveQuery is a retrieval request with optional filters.
type RetrieveQuery struct {
	Query    string  `json:"query"`
	Limit    int     `json:"limit,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`
	// SourceTypes restricts results to the listed source types (any-of).
	SourceTypes []SourceType `json:"source_types,omitempty"`
	// Tags restricts results to records carrying at least one of the tags.
	Tags []string `json:"tags,omitempty"`
	// KeywordWeight blends keyword relevance into the ranking: 0 is pure
	// vector search, 1 is pure keyword. Values outside [0,1] are clamped.
	// Ignored when the keyword index is disabled.
	KeywordWeight float64 `json:"keyword_weight,omitempty"`
}

// Validate checks the query and normalizes limit and weight in place.
func (q *RetrieveQuery) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	for _, st := range q.SourceTypes {
		if !st.Valid() {
			return fmt.Errorf("%w: %q", ErrUnsupportedSource, st)
		}
	}
	if q.KeywordWeight < 0 {
		q.KeywordWeight = 0
	}
	if q.KeywordWeight > 1 {
		q.KeywordWeight = 1
	}
	return nil
}

// IngestRequest asks the pipeline to ingest one target.
type IngestRequest struct {
	Source SourceType `json:"source_type"`
	// Target is adapter-specific: a file or directory path, a URL, a local
	// repository clone, or a transcript path. Unused for notes.
	Target string `json:"target,omitempty"`
	// Content carries the text directly for note ingestion.
	Content string `json:"content,omitempty"`
	// Title overrides the adapter-derived title when set.
	Title string `json:"title,omitempty"`
	// Tags are attached to every record produced by this request.
	Tags []string `json:"tags,omitempty"`
}

// Validate checks that the request names a valid source and a usable target.
func (r *IngestRequest) Validate() error {
	if !r.Source.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedSource, r.Source)
	}
	if r.Source == SourceNote {
		if r.Content == "" {
			return fmt.Errorf("note ingestion requires content")
		}
		return nil
	}
	if r.Target == "" {
		return fmt.Errorf("ingestion of %s requires a target", r.Source)
	}
	return nil
}
