package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/models"
)

// SQLiteStore implements Store on a single SQLite database in WAL mode.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens or creates the database at dbPath, enables WAL, and
// applies pending schema migrations. Parent directories are created as needed.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := applyMigrations(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

const upsertRecordSQL = `
	INSERT INTO records (id, source_type, content, embedding, metadata, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		source_type = excluded.source_type,
		content = excluded.content,
		embedding = excluded.embedding,
		metadata = excluded.metadata,
		updated_at = excluded.updated_at`

// Upsert inserts or replaces a record by id. created_at is preserved on
// replacement.
func (s *SQLiteStore) Upsert(ctx context.Context, rec *models.Record) error {
	metaJSON, err := json.Marshal(rec.Meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for %s: %w", rec.ID, err)
	}
	_, err = s.db.ExecContext(ctx, upsertRecordSQL,
		rec.ID, string(rec.Source), rec.Content, encodeEmbedding(rec.Embedding),
		string(metaJSON), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", rec.ID, err)
	}
	return nil
}

// UpsertBatch writes all records inside one transaction.
func (s *SQLiteStore) UpsertBatch(ctx context.Context, recs []*models.Record) error {
	return s.ApplyBatch(ctx, recs, nil)
}

// Delete removes a record by id. Deleting a missing id is a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	return err
}

// DeleteBatch removes all ids inside one transaction.
func (s *SQLiteStore) DeleteBatch(ctx context.Context, ids []string) error {
	return s.ApplyBatch(ctx, nil, ids)
}

// ApplyBatch commits deletes and upserts in a single transaction, deletes
// first. A crash never leaves a flush half-applied.
func (s *SQLiteStore) ApplyBatch(ctx context.Context, upserts []*models.Record, deletes []string) error {
	if len(upserts) == 0 && len(deletes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if len(deletes) > 0 {
		stmt, err := tx.PrepareContext(ctx, `DELETE FROM records WHERE id = ?`)
		if err != nil {
			return err
		}
		for _, id := range deletes {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to delete record %s: %w", id, err)
			}
		}
		stmt.Close()
	}

	if len(upserts) > 0 {
		stmt, err := tx.PrepareContext(ctx, upsertRecordSQL)
		if err != nil {
			return err
		}
		for _, rec := range upserts {
			metaJSON, err := json.Marshal(rec.Meta)
			if err != nil {
				stmt.Close()
				return fmt.Errorf("failed to marshal metadata for %s: %w", rec.ID, err)
			}
			if _, err := stmt.ExecContext(ctx,
				rec.ID, string(rec.Source), rec.Content, encodeEmbedding(rec.Embedding),
				string(metaJSON), rec.CreatedAt, rec.UpdatedAt,
			); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to upsert record %s: %w", rec.ID, err)
			}
		}
		stmt.Close()
	}
	return tx.Commit()
}

// LoadAll returns every stored record ordered by id.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_type, content, embedding, metadata, created_at, updated_at
		 FROM records ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	defer rows.Close()

	var recs []*models.Record
	for rows.Next() {
		var (
			rec      models.Record
			source   string
			blob     []byte
			metaJSON string
		)
		if err := rows.Scan(&rec.ID, &source, &rec.Content, &blob, &metaJSON,
			&rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Source = models.SourceType(source)
		if rec.Embedding, err = decodeEmbedding(blob); err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &rec.Meta); err != nil {
			return nil, fmt.Errorf("record %s: failed to unmarshal metadata: %w", rec.ID, err)
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count)
	return count, err
}

// SchemaVersion returns the highest applied migration version.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&version)
	return version, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
