package norm

import (
	"context"
	"time"
)

// ProcessID identifies one running process for heartbeat bookkeeping.
// Typically a random token generated once per process lifetime.
type ProcessID string

// Heartbeat is one row of the backend's heartbeats table, keyed by
// (ProcessID, Collection), per §6.
type Heartbeat struct {
	Process   ProcessID
	Collection string
	Declared  []string // logical index names this process currently relies on
	At        time.Time
}

// Backend is the abstract contract every concrete store (in-memory,
// relational, ...) must satisfy identically, per §4.5. Every method is
// atomic per call; PutRecord/ReplaceRecord update the record body and all
// active index entries as a single atomic step.
type Backend interface {
	// PutRecord inserts a new record. The backend is responsible for
	// computing and writing every active index entry for it.
	PutRecord(ctx context.Context, collection string, id ID, doc Document, indexes []ActiveIndex) error

	// ReplaceRecord atomically replaces an existing record's document body
	// and all active index entries. Returns NotFoundError if id is absent.
	ReplaceRecord(ctx context.Context, collection string, id ID, doc Document, indexes []ActiveIndex) error

	GetRecord(ctx context.Context, collection string, id ID) (Document, error)

	// DeleteRecord removes a record and every index entry referencing it.
	DeleteRecord(ctx context.Context, collection string, id ID) error

	// ListRecords returns the records in collection whose active index
	// entries satisfy every interval in plan. An empty plan (no
	// intervals) returns every record, per §8's "empty query" boundary
	// behavior.
	ListRecords(ctx context.Context, plan Plan) (RecordIterator, error)

	ReadSchema(ctx context.Context, collection string) (SchemaState, error)
	UpsertIndex(ctx context.Context, collection string, entry SchemaStateEntry) error
	DropIndex(ctx context.Context, collection string, name string) error

	// BackfillIndex computes index entries for every existing record in
	// collection. It must be idempotent and resumable: an interrupted
	// backfill can be called again and will converge rather than
	// duplicate work or corrupt state.
	BackfillIndex(ctx context.Context, collection string, spec IndexSpec) error

	Heartbeat(ctx context.Context, hb Heartbeat) error
	PruneStaleHeartbeats(ctx context.Context, ttl time.Duration) error

	// LiveDeclarations returns, for a collection, the union of index names
	// declared by any heartbeat not older than ttl -- the reclaim tick's
	// view of "declared by a live process" (§4.6).
	LiveDeclarations(ctx context.Context, collection string, ttl time.Duration) (map[string]bool, error)

	// Now returns the backend's authoritative clock, used by the reclaim
	// tick instead of each process's local clock to avoid skew-induced
	// drops (Design Notes, §9).
	Now(ctx context.Context) (time.Time, error)

	Close(ctx context.Context) error
}

// ActiveIndex is what Backend.PutRecord/ReplaceRecord need to compute an
// index entry: the logical name plus the function to derive its value.
// It deliberately carries only what a write needs, not the full
// SchemaStateEntry bookkeeping.
type ActiveIndex struct {
	Name      string
	KeyFn     KeyFunction
	ValueType ValueKind
}

// RecordIterator lazily yields (id, document) pairs, per §4.7's "list
// returns a lazily iterable sequence" requirement. Iteration order is
// unspecified unless the originating Plan had a SingleRangeIndex, in
// which case results are ascending by that index's values.
type RecordIterator interface {
	Next(ctx context.Context) (id ID, doc Document, ok bool, err error)
	Close() error
}
