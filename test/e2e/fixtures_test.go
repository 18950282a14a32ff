package e2e

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kiokusearch/kioku/internal/source"
)

func TestWriteMinimalFile_AllExtensionsExtractable(t *testing.T) {
	adapter := source.NewDocumentAdapter(nil)
	sample := "e2e searchable content"
	dir := t.TempDir()
	ctx := context.Background()

	for _, ext := range SupportedFileExtensions {
		ext := ext
		t.Run(ext, func(t *testing.T) {
			fileBytes, err := WriteMinimalFile(ext, sample)
			if err != nil {
				t.Fatalf("WriteMinimalFile: %v", err)
			}
			if len(fileBytes) == 0 {
				t.Fatal("empty file bytes")
			}
			path := filepath.Join(dir, "fixture"+ext)
			if err := os.WriteFile(path, fileBytes, 0644); err != nil {
				t.Fatal(err)
			}

			extractions, err := adapter.Extract(ctx, path)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if len(extractions) != 1 {
				t.Fatalf("expected 1 extraction, got %d", len(extractions))
			}
			if !strings.Contains(extractions[0].Content, sample) {
				t.Errorf("extracted text %q does not contain %q", extractions[0].Content, sample)
			}
		})
	}
}
