package watcher

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/config"
	"github.com/kiokusearch/kioku/internal/index"
	"github.com/kiokusearch/kioku/internal/ingest"
	"github.com/kiokusearch/kioku/internal/models"
	"github.com/kiokusearch/kioku/internal/source"
	"github.com/kiokusearch/kioku/internal/sourceid"
	"github.com/kiokusearch/kioku/internal/syncer"
)

// Service runs watch mode: changed files are re-ingested through the
// pipeline with the usual replace semantics, removed files have their
// records deleted, and SyncExisting reconciles files that changed while the
// process was down. Files whose size and mtime still match their stored
// records are skipped, so a clean restart costs no embedding calls.
type Service struct {
	cfg      config.WatchConfig
	pipeline *ingest.Pipeline
	syncer   *syncer.Manager
	index    *index.Index
	logger   *zap.Logger
	opts     []Option

	watcher *Watcher
}

// NewService builds a watch service over the configured directories.
func NewService(cfg config.WatchConfig, pipeline *ingest.Pipeline, mgr *syncer.Manager, idx *index.Index, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		pipeline: pipeline,
		syncer:   mgr,
		index:    idx,
		logger:   logger,
		opts:     opts,
	}
}

// Start begins watching the configured directories. Ingestion triggered by
// events uses ctx, so cancelling it stops in-flight work at the next batch
// boundary.
func (s *Service) Start(ctx context.Context) error {
	w := New(s.cfg.Directories, s.cfg.Extensions, s.cfg.RecursiveOrDefault(),
		func(path string) { s.ingestFile(ctx, path) },
		func(path string) { s.removeFile(ctx, path) },
		append([]Option{WithLogger(s.logger)}, s.opts...)...)
	if err := w.Start(ctx); err != nil {
		return err
	}
	s.watcher = w
	return nil
}

// SyncExisting walks the watched directories and re-ingests files whose
// size or mtime changed since their records were stored. Call it after
// Start; it returns when the walk completes.
func (s *Service) SyncExisting() {
	if s.watcher != nil {
		s.watcher.SyncExisting()
	}
}

// Stop stops watching. In-flight ingestion finishes on its own.
func (s *Service) Stop() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
}

func (s *Service) ingestFile(ctx context.Context, path string) {
	if s.unchanged(path) {
		s.logger.Debug("watch skipping unchanged file", zap.String("path", path))
		return
	}
	report, err := s.pipeline.Ingest(ctx, models.IngestRequest{
		Source: models.SourceDocument,
		Target: path,
	})
	if err != nil {
		s.logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
		return
	}
	s.logger.Info("watch ingested file",
		zap.String("path", path),
		zap.String("state", string(report.State)),
		zap.Int("chunks", report.ChunksCommitted),
		zap.Int("replaced", report.RecordsDeleted))
}

func (s *Service) removeFile(ctx context.Context, path string) {
	sourcePath, err := sourceid.ForPath(path)
	if err != nil {
		s.logger.Warn("watch resolve removed path", zap.String("path", path), zap.Error(err))
		return
	}
	deleted := s.syncer.DeleteBySourcePath(ctx, sourcePath)
	if deleted > 0 {
		s.logger.Info("watch removed file records", zap.String("path", path), zap.Int("deleted", deleted))
	}
}

// unchanged reports whether path's current size and mtime match the stat
// recorded when its records were ingested. Any doubt counts as changed.
func (s *Service) unchanged(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	sourcePath, err := sourceid.ForPath(path)
	if err != nil {
		return false
	}
	recs := s.index.BySourcePath(sourcePath)
	if len(recs) == 0 {
		return false
	}
	stored := recs[0].Meta.Extra
	for key, want := range source.FileStatExtra(info) {
		if stored[key] != want {
			return false
		}
	}
	return true
}
