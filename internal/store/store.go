// Package store persists records durably behind the in-memory index. Writes
// arrive in batches from the sync manager; reads happen once at startup.
package store

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/config"
	"github.com/kiokusearch/kioku/internal/models"
)

// Store defines durable record persistence. Upserts are per-record atomic;
// batch operations commit as one unit on SQLite and as one write batch on
// badger.
type Store interface {
	Upsert(ctx context.Context, rec *models.Record) error
	UpsertBatch(ctx context.Context, recs []*models.Record) error
	Delete(ctx context.Context, id string) error
	DeleteBatch(ctx context.Context, ids []string) error
	// ApplyBatch persists deletes and upserts together, deletes first, so a
	// flush that replaces records never commits halfway.
	ApplyBatch(ctx context.Context, upserts []*models.Record, deletes []string) error
	// LoadAll returns every stored record ordered by id.
	LoadAll(ctx context.Context) ([]*models.Record, error)
	Count(ctx context.Context) (int, error)
	SchemaVersion(ctx context.Context) (int, error)
	Close() error
}

// New selects and opens the configured backend. Schema migrations run before
// the store is returned; a migration failure means the data directory needs
// operator attention, so it is surfaced rather than worked around.
func New(cfg config.StorageConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case config.BackendBadger:
		return NewBadgerStore(cfg.BadgerPath, false, logger)
	case config.BackendSQLite, "":
		return NewSQLiteStore(cfg.DatabasePath, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// DiskUsage returns the total on-disk size in bytes of the given paths. Each
// path may be a file or a directory (summed recursively). Missing paths
// contribute zero.
func DiskUsage(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
