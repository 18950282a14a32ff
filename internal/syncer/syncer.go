// Package syncer keeps the in-memory indexes and the durable store aligned.
// Mutations land in the vector index (and the keyword index when enabled)
// synchronously; durable writes are batched and flushed in the background.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/config"
	"github.com/kiokusearch/kioku/internal/index"
	"github.com/kiokusearch/kioku/internal/keyword"
	"github.com/kiokusearch/kioku/internal/models"
	"github.com/kiokusearch/kioku/internal/store"
)

type op uint8

const (
	opUpsert op = iota
	opDelete
)

const (
	defaultFlushThreshold  = 256
	defaultFlushInterval   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Options configure flush behavior.
type Options struct {
	// FlushThreshold kicks an early flush once this many records are dirty.
	FlushThreshold int
	// FlushInterval is the periodic flush cadence.
	FlushInterval time.Duration
	// ShutdownTimeout bounds the final blocking flush in Close.
	ShutdownTimeout time.Duration
}

// OptionsFromConfig maps the sync config section onto Options.
func OptionsFromConfig(cfg config.SyncConfig) Options {
	return Options{
		FlushThreshold:  cfg.FlushThreshold,
		FlushInterval:   cfg.FlushInterval(),
		ShutdownTimeout: cfg.ShutdownTimeout(),
	}
}

// Manager owns the write path. Every mutation goes through it so the vector
// index, the keyword index, and the store never drift apart further than the
// unflushed dirty set.
type Manager struct {
	index   *index.Index
	store   store.Store
	keyword keyword.Index // nil when keyword search is disabled
	logger  *zap.Logger
	opts    Options

	mu    sync.Mutex
	dirty map[string]op

	// flushMu serializes flushes so delete/upsert ordering between batches
	// matches the order the mutations were applied in.
	flushMu sync.Mutex

	ready atomic.Bool

	kick      chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Manager. kw may be nil to disable keyword indexing.
func New(idx *index.Index, st store.Store, kw keyword.Index, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FlushThreshold <= 0 {
		opts.FlushThreshold = defaultFlushThreshold
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Manager{
		index:   idx,
		store:   st,
		keyword: kw,
		logger:  logger,
		opts:    opts,
		dirty:   make(map[string]op),
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start loads every stored record into the indexes and begins the background
// flush loop. Callers must not serve search or ingest until Start returns;
// Ready reports the same gate for handlers.
func (m *Manager) Start(ctx context.Context) error {
	recs, err := m.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load records from store: %w", err)
	}
	if err := m.index.InsertBatch(recs); err != nil {
		return fmt.Errorf("failed to rebuild vector index: %w", err)
	}
	if m.keyword != nil {
		if err := m.rebuildKeyword(ctx, recs); err != nil {
			return err
		}
	}
	m.ready.Store(true)
	m.logger.Info("indexes loaded", zap.Int("records", len(recs)))

	m.wg.Add(1)
	go m.flushLoop()
	return nil
}

// rebuildKeyword reindexes every record when the persisted keyword index has
// drifted from the store (counts differ). Orphaned keyword entries from a
// lost store write are tolerated: retrieval drops hits it cannot resolve.
func (m *Manager) rebuildKeyword(ctx context.Context, recs []*models.Record) error {
	count, err := m.keyword.DocCount()
	if err != nil {
		return fmt.Errorf("failed to read keyword doc count: %w", err)
	}
	if int(count) == len(recs) {
		return nil
	}
	m.logger.Info("rebuilding keyword index",
		zap.Uint64("indexed", count),
		zap.Int("records", len(recs)))
	for _, rec := range recs {
		if err := m.keyword.Index(ctx, rec.ID, keywordDoc(rec)); err != nil {
			return fmt.Errorf("failed to rebuild keyword entry %s: %w", rec.ID, err)
		}
	}
	return nil
}

// Ready reports whether the startup load has completed.
func (m *Manager) Ready() bool {
	return m.ready.Load()
}

// Pending returns the current dirty-set size.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dirty)
}

// Apply upserts records into the indexes and schedules their durable write.
func (m *Manager) Apply(ctx context.Context, recs []*models.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if err := m.index.InsertBatch(recs); err != nil {
		return err
	}
	m.keywordIndexAll(ctx, recs)
	m.mark(recordIDs(recs), opUpsert)
	return nil
}

// ApplyDelete removes ids from the indexes and schedules the store deletes.
// Returns how many records the index actually held.
func (m *Manager) ApplyDelete(ctx context.Context, ids []string) int {
	removed := 0
	for _, id := range ids {
		if m.index.Delete(id) {
			removed++
		}
	}
	m.keywordDeleteAll(ctx, ids)
	m.mark(ids, opDelete)
	return removed
}

// ReplaceSourcePath swaps every record under path for recs as one unit and
// schedules the corresponding store writes. Returns how many records the old
// set held.
func (m *Manager) ReplaceSourcePath(ctx context.Context, path string, recs []*models.Record) (int, error) {
	removed, err := m.index.ReplaceSourcePath(path, recs)
	if err != nil {
		return 0, err
	}
	m.keywordDeleteAll(ctx, removed)
	m.keywordIndexAll(ctx, recs)
	// Deletes first so a reused id ends up marked as an upsert.
	m.mark(removed, opDelete)
	m.mark(recordIDs(recs), opUpsert)
	return len(removed), nil
}

// DeleteBySourcePath removes every record under path from the indexes and
// schedules the store deletes. Returns how many were removed.
func (m *Manager) DeleteBySourcePath(ctx context.Context, path string) int {
	ids := m.index.DeleteBySourcePath(path)
	m.keywordDeleteAll(ctx, ids)
	m.mark(ids, opDelete)
	return len(ids)
}

// DeleteByRepoURL removes every record of a repository from the indexes and
// schedules the store deletes. Returns how many were removed.
func (m *Manager) DeleteByRepoURL(ctx context.Context, repoURL string) int {
	ids := m.index.DeleteByRepoURL(repoURL)
	m.keywordDeleteAll(ctx, ids)
	m.mark(ids, opDelete)
	return len(ids)
}

// Flush writes the dirty set to the store. On failure the batch is merged
// back into the dirty set and retried on the next trigger; the caller gets
// the error for logging.
func (m *Manager) Flush(ctx context.Context) error {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	m.mu.Lock()
	if len(m.dirty) == 0 {
		m.mu.Unlock()
		return nil
	}
	batch := m.dirty
	m.dirty = make(map[string]op)
	m.mu.Unlock()

	upserts := make([]*models.Record, 0, len(batch))
	deletes := make([]string, 0)
	for id, o := range batch {
		if o == opUpsert {
			if rec, ok := m.index.Get(id); ok {
				upserts = append(upserts, rec)
				continue
			}
			// Marked as an upsert but gone from the index: a later delete won
			// the race between index mutation and dirty marking. The index is
			// the truth, so delete durably too.
		}
		deletes = append(deletes, id)
	}

	// One store batch per flush: a replaced path never ends up durably
	// holding both its old and new records.
	if err := m.store.ApplyBatch(ctx, upserts, deletes); err != nil {
		m.requeue(batch)
		return fmt.Errorf("failed to persist %d upserts and %d deletes: %w", len(upserts), len(deletes), err)
	}
	m.logger.Debug("flushed dirty records",
		zap.Int("upserts", len(upserts)),
		zap.Int("deletes", len(deletes)))
	return nil
}

// Close stops the flush loop and runs a final blocking flush bounded by the
// shutdown timeout. The error is returned for the caller to log; unflushed
// mutations are the accepted crash window, never a panic.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.done)
		m.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), m.opts.ShutdownTimeout)
		defer cancel()
		err = m.Flush(ctx)
	})
	return err
}

func (m *Manager) flushLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-m.kick:
		case <-ticker.C:
		}
		if err := m.Flush(context.Background()); err != nil {
			m.logger.Error("background flush failed", zap.Error(err))
		}
	}
}

func (m *Manager) mark(ids []string, o op) {
	if len(ids) == 0 {
		return
	}
	m.mu.Lock()
	for _, id := range ids {
		m.dirty[id] = o
	}
	pending := len(m.dirty)
	m.mu.Unlock()

	if pending >= m.opts.FlushThreshold {
		select {
		case m.kick <- struct{}{}:
		default:
		}
	}
}

// requeue merges a failed batch back without clobbering entries that changed
// while the flush ran.
func (m *Manager) requeue(batch map[string]op) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, o := range batch {
		if _, exists := m.dirty[id]; !exists {
			m.dirty[id] = o
		}
	}
}

func (m *Manager) keywordIndexAll(ctx context.Context, recs []*models.Record) {
	if m.keyword == nil {
		return
	}
	for _, rec := range recs {
		if err := m.keyword.Index(ctx, rec.ID, keywordDoc(rec)); err != nil {
			m.logger.Warn("keyword indexing failed",
				zap.String("id", rec.ID), zap.Error(err))
		}
	}
}

func (m *Manager) keywordDeleteAll(ctx context.Context, ids []string) {
	if m.keyword == nil {
		return
	}
	for _, id := range ids {
		if err := m.keyword.Delete(ctx, id); err != nil {
			m.logger.Warn("keyword delete failed",
				zap.String("id", id), zap.Error(err))
		}
	}
}

func keywordDoc(rec *models.Record) *keyword.Doc {
	return &keyword.Doc{Title: rec.Meta.Title, Content: rec.Content}
}

func recordIDs(recs []*models.Record) []string {
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	return ids
}
