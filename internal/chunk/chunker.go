// Package chunk splits raw content into bounded, overlapping text segments.
package chunk

import (
	"fmt"
	"strings"

	"github.com/kiokusearch/kioku/internal/models"
)

// Chunker splits content into segments of at most maxChunkSize characters,
// repeating the final overlapSize characters of each segment at the start of
// the next. Cut points prefer, in order: paragraph break, line break,
// sentence end, word boundary, hard cut. Output is deterministic for
// identical input and configuration.
type Chunker struct {
	maxChunkSize   int
	overlapSize    int
	codeLineWindow int
}

// NewChunker creates a chunker. Sizes are in characters (runes).
// overlapSize must be smaller than maxChunkSize; a violation is a
// configuration error, not a per-call error.
func NewChunker(maxChunkSize, overlapSize, codeLineWindow int) (*Chunker, error) {
	if maxChunkSize <= 0 {
		return nil, fmt.Errorf("chunk: max chunk size must be positive, got %d", maxChunkSize)
	}
	if overlapSize < 0 || overlapSize >= maxChunkSize {
		return nil, fmt.Errorf("chunk: overlap size %d must be in [0, %d)", overlapSize, maxChunkSize)
	}
	if codeLineWindow <= 0 {
		codeLineWindow = 60
	}
	return &Chunker{
		maxChunkSize:   maxChunkSize,
		overlapSize:    overlapSize,
		codeLineWindow: codeLineWindow,
	}, nil
}

// Chunk splits content into ordered segments. Empty or whitespace-only
// content yields zero segments. Content within the size limit is returned as
// a single segment with no overlap applied.
func (c *Chunker) Chunk(content string, contentType models.SourceType) []string {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	runes := []rune(content)
	if len(runes) <= c.maxChunkSize {
		return []string{content}
	}

	var cut cutFunc
	if contentType == models.SourceRepoCode {
		cut = c.codeCutter(runes)
	} else {
		cut = textCut
	}

	var segments []string
	start := 0
	for {
		end := start + c.maxChunkSize
		if end >= len(runes) {
			segments = append(segments, string(runes[start:]))
			break
		}
		at := cut(runes, start, end)
		segments = append(segments, string(runes[start:at]))
		next := at - c.overlapSize
		// The next segment must begin past the previous start or the walk
		// would stall.
		if next <= start {
			next = at
		}
		if next >= len(runes) {
			break
		}
		start = next
	}
	return segments
}

// cutFunc picks a cut position in (start, end] for the segment beginning at
// start, where end = start + maxChunkSize is in range.
type cutFunc func(runes []rune, start, end int) int

// textCut prefers the latest boundary in the second half of the window:
// paragraph break, then line break, then sentence end, then word boundary.
// Without any boundary it hard-cuts at end.
func textCut(runes []rune, start, end int) int {
	minCut := start + (end-start)/2

	// Paragraph: cut after "\n\n".
	for i := end - 2; i > minCut; i-- {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i + 2
		}
	}
	// Line: cut after "\n".
	for i := end - 1; i > minCut; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	// Sentence: cut after ". ", "! ", "? ".
	for i := end - 2; i > minCut; i-- {
		if (runes[i] == '.' || runes[i] == '!' || runes[i] == '?') && runes[i+1] == ' ' {
			return i + 2
		}
	}
	// Word boundary: cut after a space.
	for i := end - 1; i > minCut; i-- {
		if runes[i] == ' ' {
			return i + 1
		}
	}
	return end
}
