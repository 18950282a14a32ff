package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kiokusearch/kioku/internal/models"
	"github.com/kiokusearch/kioku/internal/sourceid"
	"github.com/kiokusearch/kioku/pkg/utils"
)

var (
	// cueNumberLine matches bare SRT cue indices.
	cueNumberLine = regexp.MustCompile(`^\d+$`)
	// inlineCueTag matches WebVTT voice and styling tags like <v Ann> or <i>.
	inlineCueTag = regexp.MustCompile(`<[^>]*>`)
)

// VoiceAdapter ingests speech transcripts (.txt, .srt, .vtt), stripping cue
// numbers, timestamps, and inline tags so only the spoken text remains.
type VoiceAdapter struct{}

// NewVoiceAdapter returns a transcript adapter.
func NewVoiceAdapter() *VoiceAdapter { return &VoiceAdapter{} }

// Type returns the source type handled by this adapter.
func (a *VoiceAdapter) Type() models.SourceType { return models.SourceVoice }

// Extract reads the transcript file at target.
func (a *VoiceAdapter) Extract(ctx context.Context, target string) ([]Extraction, error) {
	content, err := os.ReadFile(target)
	if err != nil {
		return nil, &ExtractionError{Source: a.Type(), Target: target, Err: err}
	}

	raw, _ := extractPlain(content)
	var text string
	switch strings.ToLower(filepath.Ext(target)) {
	case ".srt", ".vtt":
		text = stripCues(raw)
	case ".txt":
		text = raw
	default:
		return nil, &ExtractionError{
			Source: a.Type(), Target: target,
			Err: fmt.Errorf("unsupported transcript format %q", filepath.Ext(target)),
		}
	}

	sourcePath, err := sourceid.ForPath(target)
	if err != nil {
		return nil, &ExtractionError{Source: a.Type(), Target: target, Err: err}
	}

	title := utils.FirstNonEmptyLine(text)
	if title == "" || len(title) > 120 {
		title = filepath.Base(target)
	}
	return []Extraction{{
		Content: text,
		Meta: models.Metadata{
			Title:      title,
			SourcePath: sourcePath,
			MimeType:   "text/plain",
		},
	}}, nil
}

// stripCues removes everything that is not spoken text from SRT and WebVTT
// transcripts: the WEBVTT header, NOTE and STYLE blocks, cue numbers,
// timestamp lines, and inline tags.
func stripCues(raw string) string {
	var out []string
	skipBlock := false
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			skipBlock = false
			continue
		case skipBlock:
			continue
		case strings.HasPrefix(line, "WEBVTT"):
			continue
		case strings.HasPrefix(line, "NOTE") || strings.HasPrefix(line, "STYLE") || strings.HasPrefix(line, "REGION"):
			skipBlock = true
			continue
		case strings.Contains(line, "-->"):
			continue
		case cueNumberLine.MatchString(line):
			continue
		}
		line = inlineCueTag.ReplaceAllString(line, "")
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
