package commands

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kiokusearch/kioku/internal/models"
)

func TestBuildIngestRequest_documentResolvesRelativePath(t *testing.T) {
	req, err := buildIngestRequest("document", []string{"docs/readme.md"}, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(cwd, "docs", "readme.md")
	if req.Target != want {
		t.Errorf("target = %q, want %q", req.Target, want)
	}
	if req.Source != models.SourceDocument {
		t.Errorf("source = %q, want document", req.Source)
	}
}

func TestBuildIngestRequest_webKeepsURL(t *testing.T) {
	req, err := buildIngestRequest("web", []string{"https://example.com/post"}, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if req.Target != "https://example.com/post" {
		t.Errorf("target = %q, want the URL untouched", req.Target)
	}
}

func TestBuildIngestRequest_noteJoinsArgs(t *testing.T) {
	req, err := buildIngestRequest("note", []string{"the", "deploy", "key"}, "deploy", []string{"ops"})
	if err != nil {
		t.Fatal(err)
	}
	if req.Content != "the deploy key" {
		t.Errorf("content = %q, want %q", req.Content, "the deploy key")
	}
	if req.Target != "" {
		t.Errorf("note request should have no target, got %q", req.Target)
	}
	if req.Title != "deploy" || len(req.Tags) != 1 || req.Tags[0] != "ops" {
		t.Errorf("title/tags not carried: %+v", req)
	}
}

func TestBuildIngestRequest_invalidSource(t *testing.T) {
	_, err := buildIngestRequest("carrier-pigeon", []string{"x"}, "", nil)
	if !errors.Is(err, models.ErrUnsupportedSource) {
		t.Errorf("expected ErrUnsupportedSource, got %v", err)
	}
}

func TestBuildIngestRequest_multipleTargetsRejected(t *testing.T) {
	_, err := buildIngestRequest("document", []string{"a.md", "b.md"}, "", nil)
	if err == nil {
		t.Error("expected error for multiple targets")
	}
}
