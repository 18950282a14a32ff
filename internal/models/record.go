// Package models defines the core data types shared across kioku components.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceType identifies the kind of source a record was ingested from.
// The set is closed; anything else fails validation.
type SourceType string

const (
	SourceDocument  SourceType = "document"
	SourceWeb       SourceType = "web"
	SourceRepoCode  SourceType = "repo-code"
	SourceRepoIssue SourceType = "repo-issue"
	SourceRepoPR    SourceType = "repo-pr"
	SourceRepoDiff  SourceType = "repo-diff"
	SourceNote      SourceType = "note"
	SourceVoice     SourceType = "voice"
	SourceImage     SourceType = "image"
)

// AllSourceTypes lists every valid source type, in a stable order.
var AllSourceTypes = []SourceType{
	SourceDocument,
	SourceWeb,
	SourceRepoCode,
	SourceRepoIssue,
	SourceRepoPR,
	SourceRepoDiff,
	SourceNote,
	SourceVoice,
	SourceImage,
}

// ErrUnsupportedSource is returned when a source type is outside the closed set
// or has no registered adapter.
var ErrUnsupportedSource = errors.New("unsupported source type")

// Valid reports whether s is a member of the closed source-type set.
func (s SourceType) Valid() bool {
	switch s {
	case SourceDocument, SourceWeb, SourceRepoCode, SourceRepoIssue,
		SourceRepoPR, SourceRepoDiff, SourceNote, SourceVoice, SourceImage:
		return true
	}
	return false
}

// Metadata carries the provenance of a record. Title and SourcePath are
// required on every record; the remaining typed fields are set by the adapter
// that produced the record. Extra holds source-specific keys that have no
// typed field.
type Metadata struct {
	Title       string            `json:"title"`
	SourcePath  string            `json:"source_path"`
	Tags        []string          `json:"tags,omitempty"`
	Language    string            `json:"language,omitempty"`
	RepoURL     string            `json:"repo_url,omitempty"`
	CommitHash  string            `json:"commit_hash,omitempty"`
	FilePath    string            `json:"file_path,omitempty"`
	ChunkIndex  int               `json:"chunk_index"`
	TotalChunks int               `json:"total_chunks"`
	MimeType    string            `json:"mime_type,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Validate checks the required metadata keys.
func (m *Metadata) Validate() error {
	if m.Title == "" {
		return fmt.Errorf("metadata: title is required")
	}
	if m.SourcePath == "" {
		return fmt.Errorf("metadata: source_path is required")
	}
	return nil
}

// HasTag reports whether tag is present in Tags.
func (m *Metadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the metadata.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Tags != nil {
		out.Tags = append([]string(nil), m.Tags...)
	}
	if m.Extra != nil {
		out.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Record is the unit of storage: one embedded text segment plus its
// provenance. Records are created by the ingestion pipeline and treated as
// immutable once inserted into the index; re-ingestion replaces them wholesale.
type Record struct {
	ID        string     `json:"id"`
	Source    SourceType `json:"source_type"`
	Content   string     `json:"content"`
	Embedding []float32  `json:"-"`
	Meta      Metadata   `json:"metadata"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewRecordID returns a fresh unique record ID.
func NewRecordID() string {
	return uuid.NewString()
}

// Validate checks the record invariants: non-empty id and content, a valid
// source type, a non-empty embedding, and required metadata.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record: id is required")
	}
	if !r.Source.Valid() {
		return fmt.Errorf("record %s: %w: %q", r.ID, ErrUnsupportedSource, r.Source)
	}
	if r.Content == "" {
		return fmt.Errorf("record %s: content is empty", r.ID)
	}
	if len(r.Embedding) == 0 {
		return fmt.Errorf("record %s: embedding is empty", r.ID)
	}
	return r.Meta.Validate()
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := *r
	if r.Embedding != nil {
		out.Embedding = append([]float32(nil), r.Embedding...)
	}
	out.Meta = r.Meta.Clone()
	return &out
}
