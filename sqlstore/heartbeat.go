package sqlstore

import (
	"context"
	"strings"
	"time"

	"github.com/acksell/norm"
)

func (s *Store) Heartbeat(ctx context.Context, hb norm.Heartbeat) error {
	_, err := s.db.ExecContext(ctx, upsertHeartbeatQuery,
		hb.Collection, string(hb.Process), strings.Join(hb.Declared, ","), hb.At.UnixNano())
	return err
}

func (s *Store) PruneStaleHeartbeats(ctx context.Context, ttl time.Duration) error {
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}
	cutoff := now.Add(-ttl).UnixNano()
	_, err = s.db.ExecContext(ctx, pruneHeartbeatsQuery, cutoff)
	return err
}

func (s *Store) LiveDeclarations(ctx context.Context, collection string, ttl time.Duration) (map[string]bool, error) {
	now, err := s.Now(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := now.Add(-ttl).UnixNano()
	rows, err := s.db.QueryContext(ctx, liveDeclaredQuery, collection, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	live := map[string]bool{}
	for rows.Next() {
		var declared string
		if err := rows.Scan(&declared); err != nil {
			return nil, err
		}
		for _, name := range strings.Split(declared, ",") {
			if name != "" {
				live[name] = true
			}
		}
	}
	return live, rows.Err()
}

// Now returns the host clock. SQLite has no server process of its own to
// defer to here, so this is the closest available approximation of §9's
// "backend's authoritative clock" design note.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	return time.Now(), nil
}
