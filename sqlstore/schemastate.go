package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/acksell/norm"
)

func (s *Store) ReadSchema(ctx context.Context, collection string) (norm.SchemaState, error) {
	rows, err := s.db.QueryContext(ctx, readSchemaQuery, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	state := norm.SchemaState{}
	for rows.Next() {
		entry, err := scanSchemaEntry(rows)
		if err != nil {
			return nil, err
		}
		state[entry.Name] = entry
	}
	return state, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSchemaEntry(row scannable) (norm.SchemaStateEntry, error) {
	var name, valueType, state string
	var blob []byte
	var createdAt, lastSeenAt, retiringSince int64
	if err := row.Scan(&name, &blob, &valueType, &state, &createdAt, &lastSeenAt, &retiringSince); err != nil {
		return norm.SchemaStateEntry{}, err
	}
	entry := norm.SchemaStateEntry{
		Name:       name,
		KeyFnBlob:  blob,
		ValueType:  norm.ValueKind(valueType),
		State:      norm.IndexLifecycleState(state),
		CreatedAt:  time.Unix(0, createdAt).UTC(),
		LastSeenAt: time.Unix(0, lastSeenAt).UTC(),
	}
	if retiringSince != 0 {
		entry.RetiringSince = time.Unix(0, retiringSince).UTC()
	}
	return entry, nil
}

func (s *Store) UpsertIndex(ctx context.Context, collection string, entry norm.SchemaStateEntry) error {
	var retiringSince int64
	if !entry.RetiringSince.IsZero() {
		retiringSince = entry.RetiringSince.UnixNano()
	}
	_, err := s.db.ExecContext(ctx, upsertSchemaQuery,
		collection, entry.Name, entry.KeyFnBlob, string(entry.ValueType), string(entry.State),
		entry.CreatedAt.UnixNano(), entry.LastSeenAt.UnixNano(), retiringSince)
	return err
}

func (s *Store) DropIndex(ctx context.Context, collection string, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, dropSchemaQuery, collection, name); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, deleteIndexAllQuery, collection, name)
		return err
	})
}

// BackfillIndex computes index entries for every existing record in
// collection. Re-running it is a no-op convergence: INSERT OR REPLACE
// against the same primary key simply rewrites the same row.
func (s *Store) BackfillIndex(ctx context.Context, collection string, spec norm.IndexSpec) error {
	rows, err := s.db.QueryContext(ctx, scanRecordsQuery, collection)
	if err != nil {
		return &norm.BackendError{Op: "BackfillIndex", Err: err, Retriable: true}
	}
	type pending struct {
		id  norm.ID
		doc norm.Document
	}
	var batch []pending
	for rows.Next() {
		var idBytes []byte
		var blob string
		if err := rows.Scan(&idBytes, &blob); err != nil {
			rows.Close()
			return &norm.BackendError{Op: "BackfillIndex", Err: err, Retriable: true}
		}
		doc, err := decodeDocument([]byte(blob))
		if err != nil {
			rows.Close()
			return &norm.BackendError{Op: "BackfillIndex", Err: err, Retriable: true}
		}
		var id norm.ID
		copy(id[:], idBytes)
		batch = append(batch, pending{id: id, doc: doc})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return &norm.BackendError{Op: "BackfillIndex", Err: err, Retriable: true}
	}
	rows.Close()

	idx := norm.ActiveIndex{Name: spec.Name, KeyFn: spec.KeyFn, ValueType: spec.ValueType}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range batch {
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
			if _, err := tx.ExecContext(ctx, insertIndexEntryQuery, collection, idx.Name, enc, p.id.Bytes()); err != nil {
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
	return nil
}
