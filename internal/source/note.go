package source

import (
	"context"
	"errors"
	"strings"

	"github.com/kiokusearch/kioku/internal/models"
	"github.com/kiokusearch/kioku/internal/sourceid"
	"github.com/kiokusearch/kioku/pkg/utils"
)

// noteTitleLimit caps titles derived from the note body.
const noteTitleLimit = 80

// NoteAdapter ingests content the caller passes directly: the target IS the
// note text. Identity comes from a content hash, so identical notes replace
// each other.
type NoteAdapter struct{}

// NewNoteAdapter returns a note adapter.
func NewNoteAdapter() *NoteAdapter { return &NoteAdapter{} }

// Type returns the source type handled by this adapter.
func (a *NoteAdapter) Type() models.SourceType { return models.SourceNote }

// Extract wraps the given content in a single extraction.
func (a *NoteAdapter) Extract(ctx context.Context, content string) ([]Extraction, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &ExtractionError{
			Source: a.Type(),
			Err:    errors.New("note content is empty"),
		}
	}

	title := utils.Truncate(utils.FirstNonEmptyLine(content), noteTitleLimit)
	return []Extraction{{
		Content: content,
		Meta: models.Metadata{
			Title:      title,
			SourcePath: sourceid.ForNote(content),
		},
	}}, nil
}
