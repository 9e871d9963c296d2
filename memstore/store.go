// Package memstore implements norm.Backend on top of BadgerDB, run in
// in-memory mode. It exists to give the core package a reference backend
// with genuine ordered-iteration semantics, rather than a hand-rolled
// in-process tree.
package memstore

import (
	"context"
	"encoding/gob"
	"fmt"

	"github.com/acksell/norm"
	"github.com/dgraph-io/badger/v4"
)

func init() {
	gob.Register(norm.Document{})
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(norm.ID{})
}

// StoreOptions configures the BadgerDB store.
type StoreOptions struct {
	// Path to the database directory. If empty, uses in-memory mode.
	Path string
	// InMemory forces in-memory mode even if Path is set.
	InMemory bool
	// Logger for BadgerDB. If nil, logging is disabled.
	Logger badger.Logger
}

// Store is the BadgerDB-backed implementation of norm.Backend.
type Store struct {
	db *badger.DB
}

// New opens a BadgerDB-backed Store.
func New(opts StoreOptions) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)

	if opts.Path == "" || opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}

	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger)
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("memstore: open badger db: %w", err)
	}
	return &Store{db: db}, nil
}

func init() {
	norm.RegisterBackend("memory", func(ctx context.Context, cfg any) (norm.Backend, error) {
		opts, _ := cfg.(StoreOptions)
		opts.InMemory = true
		return New(opts)
	})
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

// PutRecord writes a record's body and every active index entry in one
// badger transaction.
func (s *Store) PutRecord(ctx context.Context, collection string, id norm.ID, doc norm.Document, indexes []norm.ActiveIndex) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.writeRecord(txn, collection, id, doc, indexes)
	})
}

// ReplaceRecord atomically removes the previous index entries and writes
// the new body and index set.
func (s *Store) ReplaceRecord(ctx context.Context, collection string, id norm.ID, doc norm.Document, indexes []norm.ActiveIndex) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(collection, id))
		if err == badger.ErrKeyNotFound {
			return &norm.NotFoundError{Collection: collection, ID: id}
		}
		if err != nil {
			return err
		}
		var prior norm.Document
		if err := item.Value(func(v []byte) error { return decodeGob(v, &prior) }); err != nil {
			return err
		}
		if err := s.dropIndexEntries(txn, collection, id, prior, indexes); err != nil {
			return err
		}
		return s.writeRecord(txn, collection, id, doc, indexes)
	})
}

func (s *Store) writeRecord(txn *badger.Txn, collection string, id norm.ID, doc norm.Document, indexes []norm.ActiveIndex) error {
	blob, err := encodeGob(doc)
	if err != nil {
		return err
	}
	if err := txn.Set(recordKey(collection, id), blob); err != nil {
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
		if err := txn.Set(indexKey(collection, idx.Name, enc, id), nil); err != nil {
			return err
		}
	}
	return nil
}

// dropIndexEntries removes every index entry a prior document body produced
// for the given index set, ahead of a replace or delete.
func (s *Store) dropIndexEntries(txn *badger.Txn, collection string, id norm.ID, priorDoc norm.Document, indexes []norm.ActiveIndex) error {
	for _, idx := range indexes {
		v, ok, err := idx.KeyFn.Apply(priorDoc)
		if err != nil || !ok {
			continue
		}
		enc, err := encodeOrderedValue(v)
		if err != nil {
			continue
		}
		if err := txn.Delete(indexKey(collection, idx.Name, enc, id)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, collection string, id norm.ID) (norm.Document, error) {
	var doc norm.Document
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(collection, id))
		if err == badger.ErrKeyNotFound {
			return &norm.NotFoundError{Collection: collection, ID: id}
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return decodeGob(v, &doc) })
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// DeleteRecord needs the active index set to clean up entries; since
// Backend.DeleteRecord doesn't receive one, it scans and removes every
// idx/<collection>/* key referencing id via the record's own schema
// entries instead of recomputing KeyFn.Apply, avoiding the need for the
// caller to pass the index set through a delete path.
func (s *Store) DeleteRecord(ctx context.Context, collection string, id norm.ID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := recordKey(collection, id)
		if _, err := txn.Get(key); err == badger.ErrKeyNotFound {
			return &norm.NotFoundError{Collection: collection, ID: id}
		} else if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return s.deleteIndexEntriesForID(txn, collection, id)
	})
}

// deleteIndexEntriesForID scans every index's key range looking for an
// entry suffix matching id. This is a full per-index scan rather than an
// O(1) lookup, acceptable since deletes are rarer than reads in the
// workloads this backend targets and each index's schema entry bounds
// the scan to that index's own keyspace.
func (s *Store) deleteIndexEntriesForID(txn *badger.Txn, collection string, id norm.ID) error {
	schema, err := readSchemaTxn(txn, collection)
	if err != nil {
		return err
	}
	idBytes := id.Bytes()
	for name := range schema {
		prefix := indexPrefix(collection, name)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		var toDelete [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			if len(k) >= 16 && string(k[len(k)-16:]) == string(idBytes) {
				toDelete = append(toDelete, k)
			}
		}
		it.Close()
		for _, k := range toDelete {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
	}
	return nil
}
