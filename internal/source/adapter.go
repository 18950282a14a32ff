// Package source turns ingestion targets (files, URLs, repositories, pasted
// notes) into plain-text extractions carrying provenance metadata. Adapters
// never chunk and never embed.
package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/models"
)

// Extraction is one unit of extracted text. A target may yield several
// (directory walk, issue export, commit log); each becomes its own record
// set after chunking.
type Extraction struct {
	Content string
	Meta    models.Metadata
}

// Adapter extracts text from a target it understands. Failure is
// all-or-nothing per target: an error means nothing was extracted.
type Adapter interface {
	Type() models.SourceType
	Extract(ctx context.Context, target string) ([]Extraction, error)
}

// ExtractionError reports which target of which source type failed.
type ExtractionError struct {
	Source models.SourceType
	Target string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s %q: %v", e.Source, e.Target, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Registry resolves source types to their adapters.
type Registry struct {
	adapters map[models.SourceType]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.SourceType]Adapter)}
}

// Register adds an adapter, replacing any previous one of the same type.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Type()] = a
}

// Get returns the adapter for t. Source types without an adapter (image, or
// an unknown string) report ErrUnsupportedSource.
func (r *Registry) Get(t models.SourceType) (Adapter, error) {
	a, ok := r.adapters[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedSource, t)
	}
	return a, nil
}

// Types returns the registered source types.
func (r *Registry) Types() []models.SourceType {
	types := make([]models.SourceType, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	return types
}

// DefaultRegistry builds the full adapter set. Image stays unregistered:
// caption and OCR belong to an external collaborator, so ingesting it
// reports an unsupported source.
func DefaultRegistry(git GitRunner, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if git == nil {
		git = NewExecGit()
	}

	r := NewRegistry()
	r.Register(NewDocumentAdapter(logger))
	r.Register(NewWebAdapter(logger))
	r.Register(NewRepoCodeAdapter(git, logger))
	r.Register(NewIssuesAdapter(models.SourceRepoIssue))
	r.Register(NewIssuesAdapter(models.SourceRepoPR))
	r.Register(NewDiffAdapter(git, logger))
	r.Register(NewVoiceAdapter())
	r.Register(NewNoteAdapter())
	return r
}
