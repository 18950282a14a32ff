package e2e

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kiokusearch/kioku/internal/config"
	"github.com/kiokusearch/kioku/internal/embedding"
	"github.com/kiokusearch/kioku/internal/index"
	"github.com/kiokusearch/kioku/internal/ingest"
	"github.com/kiokusearch/kioku/internal/keyword"
	"github.com/kiokusearch/kioku/internal/models"
	"github.com/kiokusearch/kioku/internal/retrieve"
	"github.com/kiokusearch/kioku/internal/source"
	"github.com/kiokusearch/kioku/internal/store"
	"github.com/kiokusearch/kioku/internal/syncer"
)

const (
	e2eLimit      = 30
	e2eDimensions = 32
)

// harness wires the engine the way cmd/kioku does, against real sqlite and
// bleve in dir. The mock embedder keeps everything offline and
// deterministic.
type harness struct {
	cfg      *config.Config
	index    *index.Index
	store    store.Store
	keyword  keyword.Index
	syncer   *syncer.Manager
	embedder embedding.Embedder
	pipeline *ingest.Pipeline
	engine   *retrieve.Engine
}

func e2eConfig(dir string) *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{
			Backend:          config.BackendSQLite,
			DatabasePath:     filepath.Join(dir, "records.db"),
			KeywordIndexPath: filepath.Join(dir, "bleve"),
		},
		Embedding: config.EmbeddingConfig{
			Provider:    config.ProviderMock,
			Dimensions:  e2eDimensions,
			BatchSize:   8,
			MaxRetries:  2,
			RetryBaseMS: 1,
		},
		Chunking: config.ChunkingConfig{
			MaxChunkSize:   400,
			OverlapSize:    50,
			CodeLineWindow: 40,
		},
		Retrieval: config.RetrievalConfig{
			DefaultLimit:  5,
			MaxLimit:      100,
			SnippetLength: 160,
		},
		Sync: config.SyncConfig{
			FlushThreshold:         1000,
			FlushIntervalSeconds:   60,
			ShutdownTimeoutSeconds: 5,
		},
	}
}

// newHarness opens (or reopens) the engine over dir. Close it explicitly
// when the test restarts the engine over the same dir; otherwise cleanup
// handles it.
func newHarness(t *testing.T, dir string) *harness {
	t.Helper()
	cfg := e2eConfig(dir)

	idx, err := index.New(cfg.Embedding.Dimensions)
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.New(cfg.Storage, nil)
	if err != nil {
		t.Fatal(err)
	}
	kw, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		_ = st.Close()
		t.Fatal(err)
	}

	mgr := syncer.New(idx, st, kw, syncer.OptionsFromConfig(cfg.Sync), nil)
	if err := mgr.Start(context.Background()); err != nil {
		_ = kw.Close()
		_ = st.Close()
		t.Fatal(err)
	}

	embedder, err := embedding.New(cfg.Embedding, nil)
	if err != nil {
		t.Fatal(err)
	}
	pipeline, err := ingest.New(source.DefaultRegistry(nil, nil), embedder, mgr, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		cfg:      cfg,
		index:    idx,
		store:    st,
		keyword:  kw,
		syncer:   mgr,
		embedder: embedder,
		pipeline: pipeline,
		engine:   retrieve.New(idx, embedder, kw, cfg.Retrieval, nil),
	}
	t.Cleanup(h.close)
	return h
}

// close shuts down in dependency order; safe to call twice.
func (h *harness) close() {
	if h.syncer != nil {
		_ = h.syncer.Close()
		h.syncer = nil
	}
	if h.embedder != nil {
		_ = h.embedder.Close()
		h.embedder = nil
	}
	if h.keyword != nil {
		_ = h.keyword.Close()
		h.keyword = nil
	}
	if h.store != nil {
		_ = h.store.Close()
		h.store = nil
	}
}

func (h *harness) ingestNotes(t *testing.T, entries []Entry) {
	t.Helper()
	ctx := context.Background()
	for _, e := range entries {
		report, err := h.pipeline.Ingest(ctx, models.IngestRequest{
			Source:  models.SourceNote,
			Content: e.Content,
			Title:   e.Name,
		})
		if err != nil {
			t.Fatalf("ingest note %s: %v", e.Name, err)
		}
		if report.State != models.JobDone {
			t.Fatalf("ingest note %s: state %s, errors %v", e.Name, report.State, report.Errors)
		}
	}
}

// TestNoteCorpusRetrieval ingests the whole corpus as notes and checks every
// query case surfaces its entry. Titles carry the entry name via the
// request-level override. Keyword weight 1 makes ranking depend on real text
// relevance rather than the mock embedder's hash geometry.
func TestNoteCorpusRetrieval(t *testing.T) {
	h := newHarness(t, t.TempDir())
	corpus := BuildCorpus()
	h.ingestNotes(t, corpus.Entries)

	ctx := context.Background()
	for _, tc := range corpus.Cases {
		t.Run(tc.Description, func(t *testing.T) {
			results, err := h.engine.Retrieve(ctx, &models.RetrieveQuery{
				Query:         tc.Query,
				Limit:         e2eLimit,
				KeywordWeight: 1,
			})
			if err != nil {
				t.Fatalf("retrieve: %v", err)
			}
			got := make([]string, len(results))
			for i, r := range results {
				got[i] = r.Meta.Title
			}
			if !containsAny(got, tc.ExpectedNames) {
				t.Errorf("query %q: expected one of %v in results, got %v",
					tc.Query, tc.ExpectedNames, got)
			}
		})
	}
}

// TestFileCorpusRetrieval writes corpus entries as files across every
// supported extension, ingests the directory in one job, and checks query
// cases resolve to the right files by source path.
func TestFileCorpusRetrieval(t *testing.T) {
	dir := t.TempDir()
	docDir := filepath.Join(dir, "docs")
	if err := os.MkdirAll(docDir, 0755); err != nil {
		t.Fatal(err)
	}

	corpus := BuildCorpus()
	exts := SupportedFileExtensions
	nameToPath := make(map[string]string, len(corpus.Entries))
	for i, e := range corpus.Entries {
		ext := exts[i%len(exts)]
		path := filepath.Join(docDir, e.Name+ext)
		fileBytes, err := WriteMinimalFile(ext, e.Title+"\n\n"+e.Content)
		if err != nil {
			t.Fatalf("build fixture %s: %v", path, err)
		}
		if err := os.WriteFile(path, fileBytes, 0644); err != nil {
			t.Fatal(err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			t.Fatal(err)
		}
		nameToPath[e.Name] = filepath.Clean(abs)
	}

	h := newHarness(t, filepath.Join(dir, "engine"))
	ctx := context.Background()
	report, err := h.pipeline.Ingest(ctx, models.IngestRequest{
		Source: models.SourceDocument,
		Target: docDir,
	})
	if err != nil {
		t.Fatalf("ingest directory: %v", err)
	}
	if report.State != models.JobDone {
		t.Fatalf("ingest directory: state %s, errors %v", report.State, report.Errors)
	}
	if len(report.SourcePaths) != len(corpus.Entries) {
		t.Fatalf("expected %d source paths, got %d", len(corpus.Entries), len(report.SourcePaths))
	}

	for _, tc := range corpus.Cases {
		expected := make([]string, 0, len(tc.ExpectedNames))
		for _, name := range tc.ExpectedNames {
			expected = append(expected, nameToPath[name])
		}
		t.Run(tc.Description, func(t *testing.T) {
			results, err := h.engine.Retrieve(ctx, &models.RetrieveQuery{
				Query:         tc.Query,
				Limit:         e2eLimit,
				KeywordWeight: 1,
			})
			if err != nil {
				t.Fatalf("retrieve: %v", err)
			}
			got := make([]string, len(results))
			for i, r := range results {
				got[i] = r.Meta.SourcePath
			}
			if !containsAny(got, expected) {
				t.Errorf("query %q: expected one of %v in results, got %v",
					tc.Query, expected, got)
			}
		})
	}
}

// TestRestartRoundTrip checks that a reopened engine answers queries
// identically: the store is the source of truth and the indexes rebuild from
// it on startup.
func TestRestartRoundTrip(t *testing.T) {
	dir := t.TempDir()
	corpus := BuildCorpus()
	entries := corpus.Entries[:10]
	// Querying with a note's exact text gives the mock embedder an identical
	// vector, so the ranking is meaningful even without a real model.
	newQuery := func() *models.RetrieveQuery {
		return &models.RetrieveQuery{Query: entries[3].Content, Limit: 10}
	}

	h := newHarness(t, dir)
	h.ingestNotes(t, entries)

	ctx := context.Background()
	before, err := h.engine.Retrieve(ctx, newQuery())
	if err != nil {
		t.Fatal(err)
	}
	if len(before) == 0 {
		t.Fatal("expected results before restart")
	}
	h.close()

	h2 := newHarness(t, dir)
	stored, err := h2.store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := h2.index.Count(); got != stored {
		t.Fatalf("index holds %d records, store holds %d", got, stored)
	}
	after, err := h2.engine.Retrieve(ctx, newQuery())
	if err != nil {
		t.Fatal(err)
	}

	if len(after) != len(before) {
		t.Fatalf("result count changed across restart: %d != %d", len(after), len(before))
	}
	for i := range before {
		if before[i].ID != after[i].ID {
			t.Errorf("result %d: id %s before restart, %s after", i, before[i].ID, after[i].ID)
		}
		if before[i].Score != after[i].Score {
			t.Errorf("result %d: score %v before restart, %v after", i, before[i].Score, after[i].Score)
		}
	}
}

// TestReingestChangedFileReplaces rewrites a file between ingestions and
// checks the old chunks are gone from both the index and the store.
func TestReingestChangedFileReplaces(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "note.txt")
	first := strings.Repeat("The first draft talks about glaciers at length. ", 30)
	if err := os.WriteFile(docPath, []byte(first), 0644); err != nil {
		t.Fatal(err)
	}

	h := newHarness(t, filepath.Join(dir, "engine"))
	ctx := context.Background()
	req := models.IngestRequest{Source: models.SourceDocument, Target: docPath}

	if _, err := h.pipeline.Ingest(ctx, req); err != nil {
		t.Fatal(err)
	}
	abs, _ := filepath.Abs(docPath)
	abs = filepath.Clean(abs)
	oldRecs := h.index.BySourcePath(abs)
	if len(oldRecs) < 2 {
		t.Fatalf("expected first version to span multiple chunks, got %d", len(oldRecs))
	}

	second := "The revision is about volcanoes instead."
	if err := os.WriteFile(docPath, []byte(second), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := h.pipeline.Ingest(ctx, req); err != nil {
		t.Fatal(err)
	}

	newRecs := h.index.BySourcePath(abs)
	if len(newRecs) != 1 {
		t.Fatalf("expected 1 chunk after re-ingestion, got %d", len(newRecs))
	}
	if !strings.Contains(newRecs[0].Content, "volcanoes") {
		t.Errorf("new record content %q is not from the revision", newRecs[0].Content)
	}
	for _, rec := range newRecs {
		if strings.Contains(rec.Content, "glaciers") {
			t.Errorf("stale chunk survived re-ingestion: %q", rec.Content)
		}
	}

	if err := h.syncer.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	stored, err := h.store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stored != h.index.Count() {
		t.Errorf("store holds %d records, index holds %d", stored, h.index.Count())
	}
}

// TestRetrieveEmptyStore checks the no-results contract on a fresh engine.
func TestRetrieveEmptyStore(t *testing.T) {
	h := newHarness(t, t.TempDir())
	results, err := h.engine.Retrieve(context.Background(), &models.RetrieveQuery{
		Query: "anything at all",
		Limit: 5,
	})
	if err != nil {
		t.Fatalf("retrieve on empty store: %v", err)
	}
	if results == nil {
		t.Fatal("expected non-nil empty slice")
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func containsAny(got, expected []string) bool {
	set := make(map[string]bool, len(got))
	for _, s := range got {
		set[s] = true
	}
	for _, s := range expected {
		if set[s] {
			return true
		}
	}
	return false
}
