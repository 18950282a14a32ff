package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/models"
)

const (
	recordKeyPrefix  = "record:"
	schemaVersionKey = "meta:schema-version"

	// badgerSchemaVersion is the value-encoding version this build writes and
	// reads. Bump it when storedRecord changes incompatibly.
	badgerSchemaVersion = 1
)

// BadgerStore implements Store on BadgerDB. Records live under `record:<id>`
// as msgpack values; key order gives LoadAll its id ordering for free.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// storedRecord is the badger value layout. It is deliberately separate from
// models.Record so the domain type can evolve without silently changing what
// is on disk.
type storedRecord struct {
	ID        string          `msgpack:"id"`
	Source    string          `msgpack:"source_type"`
	Content   string          `msgpack:"content"`
	Embedding []byte          `msgpack:"embedding"`
	Meta      models.Metadata `msgpack:"metadata"`
	CreatedAt int64           `msgpack:"created_at"`
	UpdatedAt int64           `msgpack:"updated_at"`
}

// NewBadgerStore opens or creates a badger database in dir. inMemory runs
// badger without disk persistence, which tests use to exercise the real
// engine.
func NewBadgerStore(dir string, inMemory bool, logger *zap.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !inMemory && dir == "" {
		return nil, errors.New("badger store requires a data directory")
	}

	opts := badger.DefaultOptions(dir)
	if inMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	opts = opts.WithLogger(badgerZapLogger{sugar: logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	s := &BadgerStore{db: db, logger: logger}
	if err := s.checkSchemaVersion(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// checkSchemaVersion reads or initializes the stored encoding version. A
// version newer than this build aborts startup; the operator restores from a
// matching backup instead of letting mixed encodings corrupt the data.
func (s *BadgerStore) checkSchemaVersion() error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaVersionKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Set([]byte(schemaVersionKey), []byte(strconv.Itoa(badgerSchemaVersion)))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		stored, err := strconv.Atoi(string(val))
		if err != nil {
			return fmt.Errorf("corrupt schema version %q: %w", val, err)
		}
		if stored > badgerSchemaVersion {
			return fmt.Errorf("database schema version %d is newer than supported version %d", stored, badgerSchemaVersion)
		}
		return nil
	})
}

func recordKey(id string) []byte {
	return []byte(recordKeyPrefix + id)
}

func encodeRecord(rec *models.Record) ([]byte, error) {
	return msgpack.Marshal(&storedRecord{
		ID:        rec.ID,
		Source:    string(rec.Source),
		Content:   rec.Content,
		Embedding: encodeEmbedding(rec.Embedding),
		Meta:      rec.Meta,
		CreatedAt: rec.CreatedAt.UnixNano(),
		UpdatedAt: rec.UpdatedAt.UnixNano(),
	})
}

func decodeRecord(val []byte) (*models.Record, error) {
	var sr storedRecord
	if err := msgpack.Unmarshal(val, &sr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	embedding, err := decodeEmbedding(sr.Embedding)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", sr.ID, err)
	}
	return &models.Record{
		ID:        sr.ID,
		Source:    models.SourceType(sr.Source),
		Content:   sr.Content,
		Embedding: embedding,
		Meta:      sr.Meta,
		CreatedAt: time.Unix(0, sr.CreatedAt).UTC(),
		UpdatedAt: time.Unix(0, sr.UpdatedAt).UTC(),
	}, nil
}

// Upsert writes one record.
func (s *BadgerStore) Upsert(ctx context.Context, rec *models.Record) error {
	val, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.ID), val)
	})
}

// UpsertBatch writes records through a single WriteBatch.
func (s *BadgerStore) UpsertBatch(ctx context.Context, recs []*models.Record) error {
	return s.ApplyBatch(ctx, recs, nil)
}

// Delete removes a record by id. Deleting a missing id is a no-op.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// DeleteBatch removes all ids through a single WriteBatch.
func (s *BadgerStore) DeleteBatch(ctx context.Context, ids []string) error {
	return s.ApplyBatch(ctx, nil, ids)
}

// ApplyBatch sends deletes and upserts through one WriteBatch, deletes
// first. Badger commits the batch in key order within its transaction size
// limit, which the flush thresholds keep us well under.
func (s *BadgerStore) ApplyBatch(ctx context.Context, upserts []*models.Record, deletes []string) error {
	if len(upserts) == 0 && len(deletes) == 0 {
		return nil
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, id := range deletes {
		if err := wb.Delete(recordKey(id)); err != nil {
			return err
		}
	}
	for _, rec := range upserts {
		val, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		if err := wb.Set(recordKey(rec.ID), val); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// LoadAll returns every stored record. Badger iterates keys in order, so the
// result is ordered by id.
func (s *BadgerStore) LoadAll(ctx context.Context) ([]*models.Record, error) {
	var recs []*models.Record
	prefix := []byte(recordKeyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := decodeRecord(val)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	return recs, nil
}

// Count returns the number of stored records without loading values.
func (s *BadgerStore) Count(ctx context.Context) (int, error) {
	count := 0
	prefix := []byte(recordKeyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		iterOpts.PrefetchValues = false
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// SchemaVersion returns the stored value-encoding version.
func (s *BadgerStore) SchemaVersion(ctx context.Context) (int, error) {
	version := 0
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaVersionKey))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		version, err = strconv.Atoi(string(val))
		return err
	})
	return version, err
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerZapLogger adapts zap to badger's logger interface, dropping badger's
// chatty info/debug output unless the named logger is tuned up.
type badgerZapLogger struct {
	sugar *zap.SugaredLogger
}

func (l badgerZapLogger) Errorf(f string, v ...interface{})   { l.sugar.Errorf(f, v...) }
func (l badgerZapLogger) Warningf(f string, v ...interface{}) { l.sugar.Warnf(f, v...) }
func (l badgerZapLogger) Infof(f string, v ...interface{})    { l.sugar.Debugf(f, v...) }
func (l badgerZapLogger) Debugf(f string, v ...interface{})   { l.sugar.Debugf(f, v...) }
