package lifecycle

import (
	"context"
	"time"

	"github.com/acksell/norm"
)

// reclaim runs one pass of §4.6's reclaim tick for a single collection:
// prune stale heartbeats, then move indexes between active and retiring
// based on whether any live process still declares them, then drop
// indexes that have sat retiring past TTL2.
func (e *Engine) reclaim(ctx context.Context, collection string, now time.Time) {
	if err := e.backend.PruneStaleHeartbeats(ctx, e.opts.TTL1); err != nil {
		return
	}

	schema, err := e.backend.ReadSchema(ctx, collection)
	if err != nil {
		return
	}
	live, err := e.backend.LiveDeclarations(ctx, collection, e.opts.TTL1)
	if err != nil {
		return
	}

	for name, entry := range schema {
		switch entry.State {
		case norm.StateActive:
			if live[name] {
				continue
			}
			entry.State = norm.StateRetiring
			entry.RetiringSince = now
			_ = e.backend.UpsertIndex(ctx, collection, entry)

		case norm.StateRetiring:
			if live[name] {
				entry.State = norm.StateActive
				entry.RetiringSince = time.Time{}
				_ = e.backend.UpsertIndex(ctx, collection, entry)
				continue
			}
			if now.Sub(entry.RetiringSince) > e.opts.TTL2 {
				_ = e.backend.DropIndex(ctx, collection, name)
			}
		}
	}
}
