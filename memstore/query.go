package memstore

import (
	"bytes"
	"context"

	"github.com/acksell/norm"
	"github.com/dgraph-io/badger/v4"
)

// ListRecords executes plan against the stored records. With a
// SingleRangeIndex set, it scans that index's ordered key range directly,
// satisfying §4.3's ascending-by-range-index ordering guarantee; every
// other condition is evaluated by re-deriving that index's value from
// each candidate document via its stored KeyFunction and comparing
// against the condition's Interval.
func (s *Store) ListRecords(ctx context.Context, plan norm.Plan) (norm.RecordIterator, error) {
	txn := s.db.NewTransaction(false)
	cache := &keyFnCache{txn: txn, collection: plan.Collection, fns: map[string]norm.KeyFunction{}}

	if plan.SingleRangeIndex != "" {
		iv := plan.Intervals[plan.SingleRangeIndex]
		return s.scanByIndex(txn, plan, iv, cache)
	}
	return s.scanAll(txn, plan, cache)
}

func (s *Store) scanAll(txn *badger.Txn, plan norm.Plan, cache *keyFnCache) (norm.RecordIterator, error) {
	prefix := recordPrefix(plan.Collection)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	it.Seek(prefix)
	return &filterIterator{txn: txn, it: it, prefix: prefix, plan: plan, cache: cache}, nil
}

func (s *Store) scanByIndex(txn *badger.Txn, plan norm.Plan, iv norm.Interval, cache *keyFnCache) (norm.RecordIterator, error) {
	name := plan.SingleRangeIndex
	prefix := indexPrefix(plan.Collection, name)

	seekKey := prefix
	if iv.Lower != nil {
		enc, err := encodeOrderedValue(*iv.Lower)
		if err != nil {
			txn.Discard()
			return nil, err
		}
		seekKey = indexLowerBound(plan.Collection, name, enc, iv.LowerInclusive)
	}

	var upperKey []byte
	if iv.Upper != nil {
		enc, err := encodeOrderedValue(*iv.Upper)
		if err != nil {
			txn.Discard()
			return nil, err
		}
		upperKey = indexUpperBound(plan.Collection, name, enc, iv.UpperInclusive)
	}

	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	it.Seek(seekKey)
	return &indexScanIterator{
		txn: txn, it: it, prefix: prefix, upper: upperKey,
		collection: plan.Collection, plan: plan, indexName: name, cache: cache,
	}, nil
}

// keyFnCache deserializes each index's KeyFunction from SchemaState at
// most once per ListRecords call, rather than once per candidate record.
type keyFnCache struct {
	txn        *badger.Txn
	collection string
	fns        map[string]norm.KeyFunction
}

func (c *keyFnCache) get(name string) (norm.KeyFunction, error) {
	if fn, ok := c.fns[name]; ok {
		return fn, nil
	}
	item, err := c.txn.Get(schemaKey(c.collection, name))
	if err != nil {
		return nil, err
	}
	var wire schemaStateEntryWire
	if err := item.Value(func(v []byte) error { return decodeGob(v, &wire) }); err != nil {
		return nil, err
	}
	fn, err := norm.DeserializeKeyFn(wire.KeyFnBlob)
	if err != nil {
		return nil, err
	}
	c.fns[name] = fn
	return fn, nil
}

// filterIterator walks every record in a collection, applying every
// condition in plan to the document body in Go.
type filterIterator struct {
	txn    *badger.Txn
	it     *badger.Iterator
	prefix []byte
	plan   norm.Plan
	cache  *keyFnCache
}

func (f *filterIterator) Next(ctx context.Context) (norm.ID, norm.Document, bool, error) {
	for f.it.ValidForPrefix(f.prefix) {
		item := f.it.Item()
		key := item.KeyCopy(nil)
		var id norm.ID
		copy(id[:], key[len(key)-16:])

		var doc norm.Document
		if err := item.Value(func(v []byte) error { return decodeGob(v, &doc) }); err != nil {
			return norm.ID{}, nil, false, err
		}
		f.it.Next()

		ok, err := matchesPlan(doc, f.plan, f.cache, "")
		if err != nil {
			return norm.ID{}, nil, false, err
		}
		if ok {
			return id, doc, true, nil
		}
	}
	return norm.ID{}, nil, false, nil
}

func (f *filterIterator) Close() error {
	f.it.Close()
	f.txn.Discard()
	return nil
}

// indexScanIterator walks one index's ordered key range and joins each
// entry back to its record, additionally filtering on any other
// conditions in the plan that aren't the range index itself.
type indexScanIterator struct {
	txn        *badger.Txn
	it         *badger.Iterator
	prefix     []byte
	upper      []byte
	collection string
	plan       norm.Plan
	indexName  string
	cache      *keyFnCache
}

func (x *indexScanIterator) Next(ctx context.Context) (norm.ID, norm.Document, bool, error) {
	for x.it.ValidForPrefix(x.prefix) {
		item := x.it.Item()
		key := item.KeyCopy(nil)
		if x.upper != nil && bytes.Compare(key, x.upper) >= 0 {
			return norm.ID{}, nil, false, nil
		}

		var id norm.ID
		copy(id[:], key[len(key)-16:])
		x.it.Next()

		doc, err := getRecordTxn(x.txn, x.collection, id)
		if err != nil {
			// The record may have been deleted between the index scan and
			// this lookup; skip rather than fail the whole iteration.
			continue
		}
		ok, err := matchesPlan(doc, x.plan, x.cache, x.indexName)
		if err != nil {
			return norm.ID{}, nil, false, err
		}
		if ok {
			return id, doc, true, nil
		}
	}
	return norm.ID{}, nil, false, nil
}

func (x *indexScanIterator) Close() error {
	x.it.Close()
	x.txn.Discard()
	return nil
}

func getRecordTxn(txn *badger.Txn, collection string, id norm.ID) (norm.Document, error) {
	item, err := txn.Get(recordKey(collection, id))
	if err != nil {
		return nil, err
	}
	var doc norm.Document
	err = item.Value(func(v []byte) error { return decodeGob(v, &doc) })
	return doc, err
}

// matchesPlan evaluates every interval in plan against doc, skipping
// except (the index already satisfied by an ordered key-range scan, if
// any).
func matchesPlan(doc norm.Document, plan norm.Plan, cache *keyFnCache, except string) (bool, error) {
	for name, iv := range plan.Intervals {
		if name == except {
			continue
		}
		fn, err := cache.get(name)
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
