package sqlstore

import (
	"context"
	"database/sql"

	"github.com/acksell/norm"
)

// ListRecords executes plan against the stored records. A SingleRangeIndex
// scans index_entries directly in SQL order, satisfying §4.3's
// ascending-by-range-index guarantee; any remaining conditions are
// evaluated by re-deriving each index's value from the candidate document
// via its stored KeyFunction.
//
// Both scanAll and scanByIndex fully drain and close their *sql.Rows
// before doing any further per-row lookups (schema_state reads via
// keyFnCache, record reads via GetRecord): with db.SetMaxOpenConns(1),
// issuing a nested query while an outer Rows is still open would hold
// the pool's only connection and deadlock against itself.
func (s *Store) ListRecords(ctx context.Context, plan norm.Plan) (norm.RecordIterator, error) {
	cache := &keyFnCache{db: s.db, collection: plan.Collection, fns: map[string]norm.KeyFunction{}}

	if plan.SingleRangeIndex != "" {
		return s.scanByIndex(ctx, plan, cache)
	}
	return s.scanAll(ctx, plan, cache)
}

type scannedRecord struct {
	id  norm.ID
	doc norm.Document
}

func (s *Store) scanAll(ctx context.Context, plan norm.Plan, cache *keyFnCache) (norm.RecordIterator, error) {
	rows, err := s.db.QueryContext(ctx, scanRecordsQuery, plan.Collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []scannedRecord
	for rows.Next() {
		var idBytes []byte
		var blob string
		if err := rows.Scan(&idBytes, &blob); err != nil {
			return nil, err
		}
		doc, err := decodeDocument([]byte(blob))
		if err != nil {
			return nil, err
		}
		var id norm.ID
		copy(id[:], idBytes)
		candidates = append(candidates, scannedRecord{id: id, doc: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &filterIterator{candidates: candidates, plan: plan, cache: cache, except: ""}, nil
}

func (s *Store) scanByIndex(ctx context.Context, plan norm.Plan, cache *keyFnCache) (norm.RecordIterator, error) {
	name := plan.SingleRangeIndex
	iv := plan.Intervals[name]

	query := "SELECT record_id FROM index_entries WHERE collection = ? AND index_name = ?"
	args := []any{plan.Collection, name}
	if iv.Lower != nil {
		enc, err := encodeOrderedValue(*iv.Lower)
		if err != nil {
			return nil, err
		}
		if iv.LowerInclusive {
			query += " AND encoded_value >= ?"
		} else {
			query += " AND encoded_value > ?"
		}
		args = append(args, enc)
	}
	if iv.Upper != nil {
		enc, err := encodeOrderedValue(*iv.Upper)
		if err != nil {
			return nil, err
		}
		if iv.UpperInclusive {
			query += " AND encoded_value <= ?"
		} else {
			query += " AND encoded_value < ?"
		}
		args = append(args, enc)
	}
	query += " ORDER BY encoded_value"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []norm.ID
	for rows.Next() {
		var idBytes []byte
		if err := rows.Scan(&idBytes); err != nil {
			return nil, err
		}
		var id norm.ID
		copy(id[:], idBytes)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &indexScanIterator{db: s.db, ids: ids, collection: plan.Collection, plan: plan, cache: cache, indexName: name}, nil
}

// keyFnCache deserializes each index's KeyFunction from schema_state at
// most once per ListRecords call.
type keyFnCache struct {
	db         *sql.DB
	collection string
	fns        map[string]norm.KeyFunction
}

func (c *keyFnCache) get(ctx context.Context, name string) (norm.KeyFunction, error) {
	if fn, ok := c.fns[name]; ok {
		return fn, nil
	}
	var blob []byte
	err := c.db.QueryRowContext(ctx, `SELECT key_fn_blob FROM schema_state WHERE collection = ? AND name = ?`, c.collection, name).Scan(&blob)
	if err != nil {
		return nil, err
	}
	fn, err := norm.DeserializeKeyFn(blob)
	if err != nil {
		return nil, err
	}
	c.fns[name] = fn
	return fn, nil
}

// filterIterator walks a pre-buffered set of candidate records, applying
// every condition in plan to each document body in Go. The candidates
// were read and the source Rows closed before iteration starts.
type filterIterator struct {
	candidates []scannedRecord
	pos        int
	plan       norm.Plan
	cache      *keyFnCache
	except     string
}

func (f *filterIterator) Next(ctx context.Context) (norm.ID, norm.Document, bool, error) {
	for f.pos < len(f.candidates) {
		c := f.candidates[f.pos]
		f.pos++
		ok, err := matchesPlan(ctx, c.doc, f.plan, f.cache, f.except)
		if err != nil {
			return norm.ID{}, nil, false, err
		}
		if ok {
			return c.id, c.doc, true, nil
		}
	}
	return norm.ID{}, nil, false, nil
}

func (f *filterIterator) Close() error { return nil }

// indexScanIterator walks a pre-buffered, already-ordered set of record
// ids from one index's key range, joining each back to its record and
// filtering on any other conditions in the plan that aren't the range
// index itself. The source Rows was closed before iteration starts, so
// looking up each record and deserializing its KeyFunction via cache can
// safely issue fresh queries against db.
type indexScanIterator struct {
	db         *sql.DB
	ids        []norm.ID
	pos        int
	collection string
	plan       norm.Plan
	cache      *keyFnCache
	indexName  string
}

func (x *indexScanIterator) Next(ctx context.Context) (norm.ID, norm.Document, bool, error) {
	for x.pos < len(x.ids) {
		id := x.ids[x.pos]
		x.pos++

		var blob string
		err := x.db.QueryRowContext(ctx, getRecordQuery, x.collection, id.Bytes()).Scan(&blob)
		if err == sql.ErrNoRows {
			// Record deleted between the index scan and this lookup.
			continue
		}
		if err != nil {
			return norm.ID{}, nil, false, err
		}
		doc, err := decodeDocument([]byte(blob))
		if err != nil {
			return norm.ID{}, nil, false, err
		}
		ok, err := matchesPlan(ctx, doc, x.plan, x.cache, x.indexName)
		if err != nil {
			return norm.ID{}, nil, false, err
		}
		if ok {
			return id, doc, true, nil
		}
	}
	return norm.ID{}, nil, false, nil
}

func (x *indexScanIterator) Close() error { return nil }

func matchesPlan(ctx context.Context, doc norm.Document, plan norm.Plan, cache *keyFnCache, except string) (bool, error) {
	for name, iv := range plan.Intervals {
		if name == except {
			continue
		}
		fn, err := cache.get(ctx, name)
		if err != nil {
			return false, err
		}
		v, ok, err := fn.Apply(doc)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		satisfied, err := intervalSatisfiedBy(v, iv)
		if err != nil {
			return false, err
		}
		if !satisfied {
			return false, nil
		}
	}
	return true, nil
}

func intervalSatisfiedBy(v norm.Value, iv norm.Interval) (bool, error) {
	if iv.Lower != nil {
		c, err := v.Compare(*iv.Lower)
		if err != nil {
			return false, err
		}
		if c < 0 || (c == 0 && !iv.LowerInclusive) {
			return false, nil
		}
	}
	if iv.Upper != nil {
		c, err := v.Compare(*iv.Upper)
		if err != nil {
			return false, err
		}
		if c > 0 || (c == 0 && !iv.UpperInclusive) {
			return false, nil
		}
	}
	return true, nil
}
