package memstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/acksell/norm"
	"github.com/dgraph-io/badger/v4"
)

// schemaStateEntryWire is the gob-encodable mirror of norm.SchemaStateEntry;
// a distinct type keeps the wire format independent of norm's exported
// struct layout.
type schemaStateEntryWire struct {
	Name          string
	KeyFnBlob     []byte
	ValueType     norm.ValueKind
	State         norm.IndexLifecycleState
	CreatedAt     time.Time
	LastSeenAt    time.Time
	RetiringSince time.Time
}

func toWire(e norm.SchemaStateEntry) schemaStateEntryWire {
	return schemaStateEntryWire{
		Name:          e.Name,
		KeyFnBlob:     e.KeyFnBlob,
		ValueType:     e.ValueType,
		State:         e.State,
		CreatedAt:     e.CreatedAt,
		LastSeenAt:    e.LastSeenAt,
		RetiringSince: e.RetiringSince,
	}
}

func (w schemaStateEntryWire) toEntry() norm.SchemaStateEntry {
	return norm.SchemaStateEntry{
		Name:          w.Name,
		KeyFnBlob:     w.KeyFnBlob,
		ValueType:     w.ValueType,
		State:         w.State,
		CreatedAt:     w.CreatedAt,
		LastSeenAt:    w.LastSeenAt,
		RetiringSince: w.RetiringSince,
	}
}

func (s *Store) ReadSchema(ctx context.Context, collection string) (norm.SchemaState, error) {
	state := norm.SchemaState{}
	err := s.db.View(func(txn *badger.Txn) error {
		found, err := readSchemaTxn(txn, collection)
		state = found
		return err
	})
	return state, err
}

func readSchemaTxn(txn *badger.Txn, collection string) (norm.SchemaState, error) {
	state := norm.SchemaState{}
	prefix := schemaPrefix(collection)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var wire schemaStateEntryWire
		if err := it.Item().Value(func(v []byte) error { return decodeGob(v, &wire) }); err != nil {
			return nil, err
		}
		state[wire.Name] = wire.toEntry()
	}
	return state, nil
}

func (s *Store) UpsertIndex(ctx context.Context, collection string, entry norm.SchemaStateEntry) error {
	blob, err := encodeGob(toWire(entry))
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(schemaKey(collection, entry.Name), blob)
	})
}

func (s *Store) DropIndex(ctx context.Context, collection string, name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(schemaKey(collection, name)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		prefix := indexPrefix(collection, name)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// BackfillIndex computes index entries for every existing record in
// collection. It is naturally idempotent: re-running it simply overwrites
// the same index keys with the same values.
func (s *Store) BackfillIndex(ctx context.Context, collection string, spec norm.IndexSpec) error {
	prefix := recordPrefix(collection)
	// Collect ids+docs first: iterating and mutating the same badger
	// transaction's view at once is unsafe once the backfill set grows
	// past a single transaction, so backfill reads in one pass and writes
	// in batched follow-up transactions.
	type pending struct {
		id  norm.ID
		doc norm.Document
	}
	var batch []pending
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			var id norm.ID
			copy(id[:], key[len(key)-16:])
			var doc norm.Document
			if err := it.Item().Value(func(v []byte) error { return decodeGob(v, &doc) }); err != nil {
				return err
			}
			batch = append(batch, pending{id: id, doc: doc})
		}
		return nil
	})
	if err != nil {
		return &norm.BackendError{Op: "BackfillIndex", Err: err, Retriable: true}
	}

	idx := norm.ActiveIndex{Name: spec.Name, KeyFn: spec.KeyFn, ValueType: spec.ValueType}
	const chunkSize = 500
	for i := 0; i < len(batch); i += chunkSize {
		end := i + chunkSize
		if end > len(batch) {
			end = len(batch)
		}
		chunk := batch[i:end]
		err := s.db.Update(func(txn *badger.Txn) error {
			for _, p := range chunk {
				v, ok, aerr := idx.KeyFn.Apply(p.doc)
				if aerr != nil {
					return &norm.IndexApplyError{Collection: collection, Index: idx.Name, Err: aerr}
				}
				if !ok {
					return &norm.IndexApplyError{Collection: collection, Index: idx.Name, Err: fmt.Errorf("key function did not produce a value for record %s", p.id)}
				}
				enc, eerr := encodeOrderedValue(v)
				if eerr != nil {
					return &norm.IndexApplyError{Collection: collection, Index: idx.Name, Err: eerr}
				}
				if err := txn.Set(indexKey(collection, idx.Name, enc, p.id), nil); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			var ia *norm.IndexApplyError
			if errors.As(err, &ia) {
				return err
			}
			return &norm.BackendError{Op: "BackfillIndex", Err: err, Retriable: true}
		}
	}
	return nil
}
