package store

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// migration is one forward-only schema step. Versions are contiguous and
// applied in order inside a transaction; a failed step aborts startup so the
// operator can restore from backup instead of running on a half-migrated
// database.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "initial records schema",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS records (
				id TEXT PRIMARY KEY,
				source_type TEXT NOT NULL,
				content TEXT NOT NULL,
				embedding BLOB NOT NULL,
				metadata TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		version: 2,
		name:    "index records by source type",
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_records_source_type ON records(source_type)`,
		},
	},
}

func latestVersion() int {
	return migrations[len(migrations)-1].version
}

func applyMigrations(db *sql.DB, logger *zap.Logger) error {
	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)`,
	); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current > latestVersion() {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, latestVersion())
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyOne(db, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
		logger.Info("applied schema migration",
			zap.Int("version", m.version),
			zap.String("name", m.name))
	}
	return nil
}

func applyOne(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		m.version, time.Now().UTC(),
	); err != nil {
		return err
	}
	return tx.Commit()
}
