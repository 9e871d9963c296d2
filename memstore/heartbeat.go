package memstore

import (
	"context"
	"time"

	"github.com/acksell/norm"
	"github.com/dgraph-io/badger/v4"
)

type heartbeatWire struct {
	Process    norm.ProcessID
	Collection string
	Declared   []string
	At         time.Time
}

func (s *Store) Heartbeat(ctx context.Context, hb norm.Heartbeat) error {
	blob, err := encodeGob(heartbeatWire{
		Process:    hb.Process,
		Collection: hb.Collection,
		Declared:   hb.Declared,
		At:         hb.At,
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(heartbeatKey(hb.Collection, hb.Process), blob)
	})
}

// PruneStaleHeartbeats removes every heartbeat older than ttl, across all
// collections, per §4.6's reclaim tick.
func (s *Store) PruneStaleHeartbeats(ctx context.Context, ttl time.Duration) error {
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		prefix := heartbeatTablePrefix()
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		var stale [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var wire heartbeatWire
			if err := it.Item().Value(func(v []byte) error { return decodeGob(v, &wire) }); err != nil {
				it.Close()
				return err
			}
			if now.Sub(wire.At) > ttl {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		it.Close()
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// LiveDeclarations returns the union of index names declared by any
// heartbeat for collection not older than ttl.
func (s *Store) LiveDeclarations(ctx context.Context, collection string, ttl time.Duration) (map[string]bool, error) {
	now, err := s.Now(ctx)
	if err != nil {
		return nil, err
	}
	live := map[string]bool{}
	err = s.db.View(func(txn *badger.Txn) error {
		prefix := heartbeatPrefix(collection)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var wire heartbeatWire
			if err := it.Item().Value(func(v []byte) error { return decodeGob(v, &wire) }); err != nil {
				return err
			}
			if now.Sub(wire.At) > ttl {
				continue
			}
			for _, name := range wire.Declared {
				live[name] = true
			}
		}
		return nil
	})
	return live, err
}

// Now returns the host clock. BadgerDB has no server-side clock of its
// own to defer to, so this is the closest available approximation of
// §9's "backend's authoritative clock" design note.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	return time.Now(), nil
}
