// Package ingest runs the ingestion pipeline: extract a target through its
// source adapter, chunk the text, embed the chunks, and commit the records as
// one replace unit per source path.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kiokusearch/kioku/internal/chunk"
	"github.com/kiokusearch/kioku/internal/config"
	"github.com/kiokusearch/kioku/internal/embedding"
	"github.com/kiokusearch/kioku/internal/models"
	"github.com/kiokusearch/kioku/internal/source"
	"github.com/kiokusearch/kioku/internal/syncer"
)

const (
	// maxConcurrentTargets bounds the fan-out over extractions of one job
	// (files of a directory, issues of an export, commits of a log).
	maxConcurrentTargets = 4

	defaultBatchSize = 32
	maxRetryDelay    = 30 * time.Second
)

// Pipeline turns ingest requests into committed records.
type Pipeline struct {
	registry *source.Registry
	chunker  *chunk.Chunker
	embedder embedding.Embedder
	syncer   *syncer.Manager
	logger   *zap.Logger

	batchSize  int
	maxRetries int
	retryBase  time.Duration

	paths *pathLocks
}

// New creates a Pipeline. Chunker construction validates the chunking config,
// so bad settings fail here rather than per job.
func New(
	registry *source.Registry,
	embedder embedding.Embedder,
	sync *syncer.Manager,
	cfg *config.Config,
	logger *zap.Logger,
) (*Pipeline, error) {
	chunker, err := chunk.NewChunker(
		cfg.Chunking.MaxChunkSize,
		cfg.Chunking.OverlapSize,
		cfg.Chunking.CodeLineWindow,
	)
	if err != nil {
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	batchSize := cfg.Embedding.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Pipeline{
		registry:   registry,
		chunker:    chunker,
		embedder:   embedder,
		syncer:     sync,
		logger:     logger,
		batchSize:  batchSize,
		maxRetries: cfg.Embedding.MaxRetries,
		retryBase:  cfg.Embedding.RetryBase(),
		paths:      newPathLocks(),
	}, nil
}

// Ingest runs one job to completion and returns its report. The returned
// error is non-nil only when the job as a whole failed; partial embedding
// failures end in JobDoneWithErrors with a nil error.
func (p *Pipeline) Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	report := &models.IngestReport{
		JobID:     models.NewRecordID(),
		State:     models.JobQueued,
		Source:    req.Source,
		Target:    req.Target,
		StartedAt: time.Now().UTC(),
	}
	log := p.logger.With(
		zap.String("job_id", report.JobID),
		zap.String("source", string(req.Source)),
		zap.String("target", req.Target))
	log.Info("ingest job started")

	err := p.run(ctx, req, report, log)
	report.DurationMS = time.Since(report.StartedAt).Milliseconds()
	if err != nil {
		report.State = models.JobFailed
		report.Errors = append(report.Errors, err.Error())
		log.Warn("ingest job failed", zap.Error(err))
		return report, err
	}
	if report.ChunksFailed > 0 {
		report.State = models.JobDoneWithErrors
	} else {
		report.State = models.JobDone
	}
	log.Info("ingest job finished",
		zap.String("state", string(report.State)),
		zap.Int("chunks_committed", report.ChunksCommitted),
		zap.Int("chunks_failed", report.ChunksFailed),
		zap.Int("records_deleted", report.RecordsDeleted),
		zap.Int64("duration_ms", report.DurationMS))
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, req models.IngestRequest, report *models.IngestReport, log *zap.Logger) error {
	adapter, err := p.registry.Get(req.Source)
	if err != nil {
		return err
	}

	report.State = models.JobExtracting
	target := req.Target
	if req.Source == models.SourceNote {
		target = req.Content
	}
	extractions, err := adapter.Extract(ctx, target)
	if err != nil {
		return err
	}
	if len(extractions) == 0 {
		return fmt.Errorf("%s target %q produced no content", req.Source, req.Target)
	}
	overlayRequest(extractions, req)

	report.State = models.JobChunking
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTargets)
	for _, ext := range extractions {
		ext := ext
		g.Go(func() error {
			res, err := p.ingestExtraction(gctx, req.Source, ext, log)
			mu.Lock()
			defer mu.Unlock()
			report.SourcePaths = append(report.SourcePaths, ext.Meta.SourcePath)
			if res != nil {
				report.ChunksTotal += res.total
				report.ChunksCommitted += res.committed
				report.ChunksFailed += len(res.failed)
				report.FailedChunks = append(report.FailedChunks, res.failed...)
				report.RecordsDeleted += res.deleted
			}
			return err
		})
	}
	report.State = models.JobEmbedding
	if err := g.Wait(); err != nil {
		return err
	}

	report.State = models.JobCommitting // the last unit has committed by now
	return nil
}

// overlayRequest applies the request-level title override and tags to every
// extraction before chunking.
func overlayRequest(extractions []source.Extraction, req models.IngestRequest) {
	for i := range extractions {
		if req.Title != "" {
			extractions[i].Meta.Title = req.Title
		}
		extractions[i].Meta.Tags = mergeTags(extractions[i].Meta.Tags, req.Tags)
	}
}

func mergeTags(base, extra []string) []string {
	if len(extra) == 0 {
		return base
	}
	seen := make(map[string]bool, len(base)+len(extra))
	merged := make([]string, 0, len(base)+len(extra))
	for _, t := range append(append([]string{}, base...), extra...) {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		merged = append(merged, t)
	}
	return merged
}

type extractionResult struct {
	total     int
	committed int
	deleted   int
	failed    []models.FailedChunk
}

// ingestExtraction chunks, embeds, and commits one extraction under its
// source-path lock. Embedding failures degrade the result; commit failures
// are fatal for the job.
func (p *Pipeline) ingestExtraction(ctx context.Context, src models.SourceType, ext source.Extraction, log *zap.Logger) (*extractionResult, error) {
	path := ext.Meta.SourcePath
	l := p.paths.lock(path)
	defer l.Unlock()

	res := &extractionResult{}
	chunks := p.chunker.Chunk(ext.Content, src)
	res.total = len(chunks)

	if len(chunks) == 0 {
		// The target emptied out: replacing with nothing deletes what an
		// earlier ingestion stored for this path.
		deleted, err := p.commit(ctx, path, nil)
		if err != nil {
			return res, err
		}
		res.deleted = deleted
		log.Debug("empty extraction replaced prior records",
			zap.String("source_path", path), zap.Int("deleted", deleted))
		return res, nil
	}

	vectors, failures, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return res, err
	}
	for i := range chunks {
		if reason, bad := failures[i]; bad {
			res.failed = append(res.failed, models.FailedChunk{
				SourcePath: path,
				ChunkIndex: i,
				Reason:     reason,
			})
		}
	}

	if len(failures) == len(chunks) {
		// Nothing embedded. Keep whatever an earlier ingestion stored rather
		// than wiping the path because the provider was down.
		log.Warn("all chunks failed to embed; keeping existing records",
			zap.String("source_path", path))
		return res, nil
	}

	now := time.Now().UTC()
	records := make([]*models.Record, 0, len(chunks)-len(failures))
	for i, text := range chunks {
		if _, bad := failures[i]; bad {
			continue
		}
		meta := ext.Meta.Clone()
		meta.ChunkIndex = i
		meta.TotalChunks = len(chunks)
		records = append(records, &models.Record{
			ID:        models.NewRecordID(),
			Source:    src,
			Content:   text,
			Embedding: vectors[i],
			Meta:      meta,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	deleted, err := p.commit(ctx, path, records)
	if err != nil {
		return res, err
	}
	res.committed = len(records)
	res.deleted = deleted
	log.Debug("extraction committed",
		zap.String("source_path", path),
		zap.Int("chunks", len(records)),
		zap.Int("replaced", deleted))
	return res, nil
}

// commit replaces the records under path. Once started it ignores job
// cancellation so searches never observe a half-replaced path.
func (p *Pipeline) commit(ctx context.Context, path string, records []*models.Record) (int, error) {
	commitCtx := context.WithoutCancel(ctx)
	deleted, err := p.syncer.ReplaceSourcePath(commitCtx, path, records)
	if err != nil {
		return 0, fmt.Errorf("failed to commit %s: %w", path, err)
	}
	return deleted, nil
}

// embedChunks embeds chunks in batches, retrying retryable provider failures
// with exponential backoff. The returned slice is aligned with chunks;
// failures maps a chunk index to the terminal reason. Cancellation is honored
// between batches and aborts the job.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []string) ([][]float32, map[int]string, error) {
	vectors := make([][]float32, len(chunks))
	failures := make(map[int]string)

	for offset := 0; offset < len(chunks); offset += p.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		end := offset + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[offset:end]

		embedded, err := p.embedBatchWithRetry(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			for i := offset; i < end; i++ {
				failures[i] = err.Error()
			}
			continue
		}
		for i, vec := range embedded {
			vectors[offset+i] = vec
		}
	}
	return vectors, failures, nil
}

func (p *Pipeline) embedBatchWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		embedded, err := p.embedder.EmbedBatch(ctx, batch)
		if err == nil {
			return embedded, nil
		}
		lastErr = err
		if !embedding.IsRetryable(err) || attempt >= p.maxRetries {
			return nil, lastErr
		}
		delay := p.backoff(attempt)
		p.logger.Debug("retrying embedding batch",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, lastErr
		}
	}
}

func (p *Pipeline) backoff(attempt int) time.Duration {
	delay := p.retryBase
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	delay <<= attempt
	if delay > maxRetryDelay || delay <= 0 {
		delay = maxRetryDelay
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
