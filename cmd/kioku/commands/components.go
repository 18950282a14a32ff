package commands

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/config"
	"github.com/kiokusearch/kioku/internal/embedding"
	"github.com/kiokusearch/kioku/internal/index"
	"github.com/kiokusearch/kioku/internal/ingest"
	"github.com/kiokusearch/kioku/internal/keyword"
	"github.com/kiokusearch/kioku/internal/retrieve"
	"github.com/kiokusearch/kioku/internal/source"
	"github.com/kiokusearch/kioku/internal/store"
	"github.com/kiokusearch/kioku/internal/syncer"
)

// components holds the assembled engine, used by the server and by commands
// running in direct-storage mode.
type components struct {
	Index    *index.Index
	Store    store.Store
	Keyword  keyword.Index // nil when disabled
	Syncer   *syncer.Manager
	Embedder embedding.Embedder
	Pipeline *ingest.Pipeline
	Engine   *retrieve.Engine
}

// Close releases everything in dependency order. The syncer goes first so its
// final flush lands before the store closes.
func (c *components) Close() {
	if c.Syncer != nil {
		_ = c.Syncer.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

// initComponents opens storage, loads the indexes, and wires the pipeline and
// retrieval engine. On error anything already opened is closed.
func initComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	c := &components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	idx, err := index.New(cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	c.Index = idx

	st, err := store.New(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Store = st

	if cfg.Storage.KeywordEnabledOrDefault() {
		kw, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
		}
		c.Keyword = kw
	}

	mgr := syncer.New(idx, st, c.Keyword, syncer.OptionsFromConfig(cfg.Sync), logger)
	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	c.Syncer = mgr

	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}
	c.Embedder = embedder

	pipeline, err := ingest.New(source.DefaultRegistry(nil, logger), embedder, mgr, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Pipeline = pipeline
	c.Engine = retrieve.New(idx, embedder, c.Keyword, cfg.Retrieval, logger)

	ok = true
	return c, nil
}
