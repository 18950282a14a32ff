package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/models"
	"github.com/kiokusearch/kioku/internal/sourceid"
	"github.com/kiokusearch/kioku/pkg/utils"
)

// maxDocumentBytes caps the size of a single document file.
const maxDocumentBytes = 32 << 20

// documentExts maps supported file extensions to their MIME type.
var documentExts = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".rst":  "text/x-rst",
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".odt":  "application/vnd.oasis.opendocument.text",
	".rtf":  "application/rtf",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ods":  "application/vnd.oasis.opendocument.spreadsheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odp":  "application/vnd.oasis.opendocument.presentation",
}

// DocumentAdapter extracts text from document files. A directory target is
// walked recursively; every supported file inside yields one extraction.
type DocumentAdapter struct {
	logger *zap.Logger
}

// NewDocumentAdapter returns a document adapter.
func NewDocumentAdapter(logger *zap.Logger) *DocumentAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentAdapter{logger: logger}
}

// Type returns the source type handled by this adapter.
func (a *DocumentAdapter) Type() models.SourceType { return models.SourceDocument }

// Extract reads the file or directory at target.
func (a *DocumentAdapter) Extract(ctx context.Context, target string) ([]Extraction, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, &ExtractionError{Source: a.Type(), Target: target, Err: err}
	}
	if !info.IsDir() {
		ex, err := a.extractFile(target)
		if err != nil {
			return nil, &ExtractionError{Source: a.Type(), Target: target, Err: err}
		}
		return []Extraction{ex}, nil
	}

	paths, err := collectDocumentPaths(ctx, target)
	if err != nil {
		return nil, &ExtractionError{Source: a.Type(), Target: target, Err: err}
	}

	extractions := make([]Extraction, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, &ExtractionError{Source: a.Type(), Target: target, Err: err}
		}
		ex, err := a.extractFile(path)
		if err != nil {
			return nil, &ExtractionError{Source: a.Type(), Target: path, Err: err}
		}
		extractions = append(extractions, ex)
	}
	return extractions, nil
}

// collectDocumentPaths walks dir and returns supported files in a stable
// order. Hidden directories are skipped.
func collectDocumentPaths(ctx context.Context, dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := documentExts[strings.ToLower(filepath.Ext(name))]; ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func (a *DocumentAdapter) extractFile(path string) (Extraction, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Extraction{}, err
	}
	if info.Size() > maxDocumentBytes {
		return Extraction{}, fmt.Errorf("file exceeds %d bytes", maxDocumentBytes)
	}

	ext := strings.ToLower(filepath.Ext(path))
	text, err := extractDocument(path, ext)
	if err != nil {
		return Extraction{}, err
	}

	sourcePath, err := sourceid.ForPath(path)
	if err != nil {
		return Extraction{}, err
	}

	title := documentTitle(text, path)
	return Extraction{
		Content: text,
		Meta: models.Metadata{
			Title:      title,
			SourcePath: sourcePath,
			MimeType:   documentExts[ext],
			Extra:      FileStatExtra(info),
		},
	}, nil
}

// FileStatExtra records the size and mtime a file had when it was read.
// Sync passes compare these against a fresh stat to skip unchanged files.
func FileStatExtra(info fs.FileInfo) map[string]string {
	return map[string]string{
		"file_size":  strconv.FormatInt(info.Size(), 10),
		"file_mtime": strconv.FormatInt(info.ModTime().UnixNano(), 10),
	}
}

// extractDocument dispatches on extension. Unknown extensions are treated as
// plain text so stray formats at least index their readable bytes.
func extractDocument(path, ext string) (string, error) {
	switch ext {
	case ".odt", ".rtf":
		// cat detects these by extension and handles both container formats.
		return extractWithCat(path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractXLSX(content)
	case ".ods":
		return extractODS(content)
	case ".pptx":
		return extractPPTX(content)
	case ".odp":
		return extractODP(content)
	default:
		return extractPlain(content)
	}
}

// documentTitle prefers the first non-empty line of short prose, falling
// back to the file name.
func documentTitle(text, path string) string {
	if line := utils.FirstNonEmptyLine(text); line != "" && len(line) <= 120 {
		return line
	}
	return filepath.Base(path)
}
