package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/config"
	"github.com/kiokusearch/kioku/internal/embedding"
	"github.com/kiokusearch/kioku/internal/index"
	"github.com/kiokusearch/kioku/internal/ingest"
	"github.com/kiokusearch/kioku/internal/models"
	"github.com/kiokusearch/kioku/internal/source"
	"github.com/kiokusearch/kioku/internal/sourceid"
	"github.com/kiokusearch/kioku/internal/store"
	"github.com/kiokusearch/kioku/internal/syncer"
)

type serviceEnv struct {
	svc   *Service
	index *index.Index
	dir   string
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	cfg.Chunking.MaxChunkSize = 400
	cfg.Chunking.OverlapSize = 40
	cfg.Embedding.BatchSize = 4
	cfg.Watch.Directories = []string{dir}
	cfg.Watch.Extensions = []string{".md"}

	idx, err := index.New(8)
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.NewBadgerStore("", true, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	mgr := syncer.New(idx, st, nil, syncer.Options{FlushThreshold: 1000}, zap.NewNop())
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = mgr.Close() })

	p, err := ingest.New(source.DefaultRegistry(nil, zap.NewNop()), embedding.NewMockEmbedder(8), mgr, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	svc := NewService(cfg.Watch, p, mgr, idx, zap.NewNop(), WithDebounce(20*time.Millisecond))
	return &serviceEnv{svc: svc, index: idx, dir: dir}
}

func startService(t *testing.T, env *serviceEnv) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := env.svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(env.svc.Stop)
}

func sourcePathFor(t *testing.T, path string) string {
	t.Helper()
	sourcePath, err := sourceid.ForPath(path)
	if err != nil {
		t.Fatal(err)
	}
	return sourcePath
}

func recordIDs(recs []*models.Record) string {
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func TestService_IngestsCreatedFile(t *testing.T) {
	env := newServiceEnv(t)
	startService(t, env)

	path := filepath.Join(env.dir, "runbook.md")
	writeFile(t, path, "Restart the ingest workers when the queue stalls.")
	sourcePath := sourcePathFor(t, path)

	waitFor(t, "records for runbook.md", func() bool {
		return len(env.index.BySourcePath(sourcePath)) > 0
	})
	recs := env.index.BySourcePath(sourcePath)
	if recs[0].Source != models.SourceDocument {
		t.Errorf("source type = %s, want %s", recs[0].Source, models.SourceDocument)
	}
	if recs[0].Meta.Extra["file_size"] == "" || recs[0].Meta.Extra["file_mtime"] == "" {
		t.Errorf("file stat not recorded: %v", recs[0].Meta.Extra)
	}
}

func TestService_ReingestsChangedFile(t *testing.T) {
	env := newServiceEnv(t)
	startService(t, env)

	path := filepath.Join(env.dir, "notes.md")
	writeFile(t, path, "alpha version of the notes")
	sourcePath := sourcePathFor(t, path)

	waitFor(t, "initial records", func() bool {
		return len(env.index.BySourcePath(sourcePath)) > 0
	})
	before := recordIDs(env.index.BySourcePath(sourcePath))

	writeFile(t, path, "beta version of the notes, now with more words in it")
	waitFor(t, "re-ingested content", func() bool {
		recs := env.index.BySourcePath(sourcePath)
		return len(recs) > 0 && strings.Contains(recs[0].Content, "beta")
	})
	if after := recordIDs(env.index.BySourcePath(sourcePath)); after == before {
		t.Errorf("records were not replaced on change")
	}
}

func TestService_RemoveDeletesRecords(t *testing.T) {
	env := newServiceEnv(t)
	startService(t, env)

	path := filepath.Join(env.dir, "gone.md")
	writeFile(t, path, "this file will be deleted")
	sourcePath := sourcePathFor(t, path)

	waitFor(t, "records before delete", func() bool {
		return len(env.index.BySourcePath(sourcePath)) > 0
	})

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "records deleted", func() bool {
		return len(env.index.BySourcePath(sourcePath)) == 0
	})
}

func TestService_SyncExistingSkipsUnchangedFiles(t *testing.T) {
	env := newServiceEnv(t)

	path := filepath.Join(env.dir, "stable.md")
	writeFile(t, path, "content that does not change between syncs")
	sourcePath := sourcePathFor(t, path)

	startService(t, env)

	env.svc.SyncExisting()
	recs := env.index.BySourcePath(sourcePath)
	if len(recs) == 0 {
		t.Fatal("sync did not ingest the existing file")
	}
	before := recordIDs(recs)

	// Unchanged size and mtime mean the second pass must not re-embed;
	// replacement would mint new record IDs.
	env.svc.SyncExisting()
	if after := recordIDs(env.index.BySourcePath(sourcePath)); after != before {
		t.Errorf("unchanged file was re-ingested: %s != %s", after, before)
	}
}

func TestService_SyncExistingReingestsModifiedFiles(t *testing.T) {
	env := newServiceEnv(t)

	path := filepath.Join(env.dir, "drifting.md")
	writeFile(t, path, "original content")
	sourcePath := sourcePathFor(t, path)

	startService(t, env)
	env.svc.SyncExisting()
	before := recordIDs(env.index.BySourcePath(sourcePath))
	if before == "" {
		t.Fatal("sync did not ingest the existing file")
	}
	env.svc.Stop()

	writeFile(t, path, "content rewritten while the watcher was down")
	env.svc.SyncExisting()

	recs := env.index.BySourcePath(sourcePath)
	if len(recs) == 0 || !strings.Contains(recs[0].Content, "rewritten") {
		t.Fatalf("modified file was not re-ingested: %v", recs)
	}
	if after := recordIDs(recs); after == before {
		t.Errorf("records were not replaced after modification")
	}
}
