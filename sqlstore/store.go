// Package sqlstore implements norm.Backend over database/sql using the
// pure-Go, cgo-free ncruces/go-sqlite3 driver.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/acksell/norm"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func init() {
	norm.RegisterBackend("sqlite", func(ctx context.Context, cfg any) (norm.Backend, error) {
		opts, ok := cfg.(Options)
		if !ok {
			return nil, fmt.Errorf("sqlstore: Open requires sqlstore.Options, got %T", cfg)
		}
		return New(ctx, opts)
	})
}

// Options configures the SQLite-backed store.
type Options struct {
	// Path to the database file. Empty means an in-memory, non-shared
	// database scoped to this one connection.
	Path string
}

// Store is the database/sql-backed implementation of norm.Backend.
type Store struct {
	db *sql.DB
}

// New opens (and if necessary creates) a SQLite-backed Store.
func New(ctx context.Context, opts Options) (*Store, error) {
	dsn := "file::memory:?_pragma=foreign_keys(ON)"
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlstore: creating database directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", opts.Path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: initializing schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *Store) PutRecord(ctx context.Context, collection string, id norm.ID, doc norm.Document, indexes []norm.ActiveIndex) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.writeRecord(ctx, tx, collection, id, doc, indexes)
	})
}

func (s *Store) ReplaceRecord(ctx context.Context, collection string, id norm.ID, doc norm.Document, indexes []norm.ActiveIndex) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var priorJSON string
		err := tx.QueryRowContext(ctx, getRecordQuery, collection, id.Bytes()).Scan(&priorJSON)
		if err == sql.ErrNoRows {
			return &norm.NotFoundError{Collection: collection, ID: id}
		}
		if err != nil {
			return err
		}
		prior, err := decodeDocument([]byte(priorJSON))
		if err != nil {
			return err
		}
		if err := dropIndexEntries(ctx, tx, collection, id, prior, indexes); err != nil {
			return err
		}
		return s.writeRecord(ctx, tx, collection, id, doc, indexes)
	})
}

func (s *Store) writeRecord(ctx context.Context, tx *sql.Tx, collection string, id norm.ID, doc norm.Document, indexes []norm.ActiveIndex) error {
	blob, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, insertRecordQuery, collection, id.Bytes(), string(blob)); err != nil {
		return err
	}
	for _, idx := range indexes {
		v, ok, err := idx.KeyFn.Apply(doc)
		if err != nil {
			return &norm.IndexApplyError{Collection: collection, Index: idx.Name, Err: err}
		}
		if !ok {
			return &norm.IndexApplyError{Collection: collection, Index: idx.Name, Err: fmt.Errorf("key function did not produce a value for this record")}
		}
		if idx.ValueType != "" && v.Kind != idx.ValueType {
			return &norm.IndexTypeMismatchError{Collection: collection, Index: idx.Name, Persisted: idx.ValueType, Computed: v.Kind}
		}
		enc, err := encodeOrderedValue(v)
		if err != nil {
			return &norm.IndexApplyError{Collection: collection, Index: idx.Name, Err: err}
		}
		if _, err := tx.ExecContext(ctx, insertIndexEntryQuery, collection, idx.Name, enc, id.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func dropIndexEntries(ctx context.Context, tx *sql.Tx, collection string, id norm.ID, priorDoc norm.Document, indexes []norm.ActiveIndex) error {
	for _, idx := range indexes {
		v, ok, err := idx.KeyFn.Apply(priorDoc)
		if err != nil || !ok {
			continue
		}
		enc, err := encodeOrderedValue(v)
		if err != nil {
			continue
		}
		if _, err := tx.ExecContext(ctx, deleteIndexEntryQuery, collection, idx.Name, enc, id.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, collection string, id norm.ID) (norm.Document, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, getRecordQuery, collection, id.Bytes()).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, &norm.NotFoundError{Collection: collection, ID: id}
	}
	if err != nil {
		return nil, err
	}
	return decodeDocument([]byte(blob))
}

func (s *Store) DeleteRecord(ctx context.Context, collection string, id norm.ID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, deleteRecordQuery, collection, id.Bytes())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return &norm.NotFoundError{Collection: collection, ID: id}
		}
		_, err = tx.ExecContext(ctx, deleteForRecordQuery, collection, id.Bytes())
		return err
	})
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
