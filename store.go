package norm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Store is the public facade composing the value model, KeyFunction,
// Condition DSL, SchemaState, and Backend contract into the operations
// of §4.7 / §6. It validates queries against the declared-and-active
// index set and holds no mutable record state of its own -- records and
// index entries are exclusively owned by the Backend (§5).
type Store struct {
	backend   Backend
	processID ProcessID

	mu          sync.RWMutex
	collections map[string]*collectionState
}

type collectionState struct {
	// indexes holds every index this process currently relies on that has
	// reached StateActive, keyed by logical name.
	indexes map[string]KeyFunction
	types   map[string]ValueKind
	// declared is the full set of names this process last passed to Init,
	// used for heartbeating -- distinct from indexes, since a just-declared
	// index is heartbeated even while still StateBuilding.
	declared []string
}

func newCollectionState() *collectionState {
	return &collectionState{indexes: map[string]KeyFunction{}, types: map[string]ValueKind{}}
}

// Init declares the index set this process relies on for collection, and
// blocks until every declared index is active, per §4.4: "idempotent and
// blocking ... callers may immediately issue queries on them."
func (s *Store) Init(ctx context.Context, collection string, specs ...IndexSpec) error {
	persisted, err := s.backend.ReadSchema(ctx, collection)
	if err != nil {
		return &BackendError{Op: "ReadSchema", Err: err, Retriable: true}
	}

	plan, err := diff(specs, persisted)
	if err != nil {
		return err
	}

	for _, spec := range plan.ToBuild {
		if err := s.buildIndex(ctx, collection, spec); err != nil {
			return err
		}
	}

	now, err := s.backend.Now(ctx)
	if err != nil {
		now = time.Now()
	}
	for _, name := range plan.ToRefresh {
		entry := persisted[name]
		entry.LastSeenAt = now
		if err := s.backend.UpsertIndex(ctx, collection, entry); err != nil {
			return &BackendError{Op: "UpsertIndex", Err: err, Retriable: true}
		}
	}

	s.mu.Lock()
	cs := s.collections[collection]
	if cs == nil {
		cs = newCollectionState()
		s.collections[collection] = cs
	}
	declaredNames := make([]string, 0, len(specs))
	for _, spec := range specs {
		cs.indexes[spec.Name] = spec.KeyFn
		// buildIndex already populated cs.types for ToBuild specs; a
		// ToRefresh spec's type comes straight from the SchemaState we
		// already read at the top of Init.
		if _, alreadySet := cs.types[spec.Name]; !alreadySet {
			if entry, ok := persisted[spec.Name]; ok {
				cs.types[spec.Name] = entry.ValueType
			}
		}
		declaredNames = append(declaredNames, spec.Name)
	}
	cs.declared = declaredNames
	s.mu.Unlock()

	return s.backend.Heartbeat(ctx, Heartbeat{
		Process:    s.processID,
		Collection: collection,
		Declared:   declaredNames,
		At:         now,
	})
}

func (s *Store) buildIndex(ctx context.Context, collection string, spec IndexSpec) error {
	vt := spec.ValueType
	if vt == "" {
		sample, ok, err := s.peekOne(ctx, collection)
		if err != nil {
			return err
		}
		if ok {
			v, applied, aerr := spec.KeyFn.Apply(sample)
			if aerr != nil || !applied {
				return &IndexApplyError{Collection: collection, Index: spec.Name, Err: aerr}
			}
			vt = v.Kind
		}
	}

	blob, err := spec.KeyFn.Serialize()
	if err != nil {
		return &InvalidKeyFnError{Reason: err.Error()}
	}

	now, err := s.backend.Now(ctx)
	if err != nil {
		now = time.Now()
	}
	entry := SchemaStateEntry{
		Name:       spec.Name,
		KeyFnBlob:  blob,
		ValueType:  vt,
		State:      StateBuilding,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.backend.UpsertIndex(ctx, collection, entry); err != nil {
		return &BackendError{Op: "UpsertIndex", Err: err, Retriable: true}
	}

	if err := s.backfillWithRetry(ctx, collection, IndexSpec{Name: spec.Name, KeyFn: spec.KeyFn, ValueType: vt}); err != nil {
		return err
	}

	entry.State = StateActive
	if err := s.backend.UpsertIndex(ctx, collection, entry); err != nil {
		return &BackendError{Op: "UpsertIndex", Err: err, Retriable: true}
	}

	s.mu.Lock()
	cs := s.collections[collection]
	if cs == nil {
		cs = newCollectionState()
		s.collections[collection] = cs
	}
	cs.types[spec.Name] = vt
	s.mu.Unlock()
	return nil
}

// backfillWithRetry retries BackfillIndex on BackendError.Retriable with
// exponential backoff, per §7's "init retries backfill on
// BackendError.retriable=true with exponential backoff; everything else
// propagates."
func (s *Store) backfillWithRetry(ctx context.Context, collection string, spec IndexSpec) error {
	op := func() error {
		err := s.backend.BackfillIndex(ctx, collection, spec)
		if err == nil {
			return nil
		}
		var be *BackendError
		if errors.As(err, &be) && be.Retriable {
			return err
		}
		return backoff.Permanent(err)
	}
	b := backoff.NewExponentialBackOff()
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

func (s *Store) peekOne(ctx context.Context, collection string) (Document, bool, error) {
	it, err := s.backend.ListRecords(ctx, Plan{Collection: collection, Intervals: map[string]Interval{}})
	if err != nil {
		return nil, false, &BackendError{Op: "ListRecords", Err: err, Retriable: true}
	}
	defer it.Close()
	_, doc, ok, err := it.Next(ctx)
	if err != nil {
		return nil, false, &BackendError{Op: "ListRecords", Err: err, Retriable: true}
	}
	return doc, ok, nil
}

// Create stores a new document and returns its freshly generated
// identifier.
func (s *Store) Create(ctx context.Context, collection string, doc Document) (ID, error) {
	if err := validateDocument(doc); err != nil {
		return ID{}, err
	}
	s.resolveUnresolvedTypes(ctx, collection, doc)
	id := NewID()
	if err := s.backend.PutRecord(ctx, collection, id, doc, s.activeIndexes(collection)); err != nil {
		return ID{}, wrapWriteErr(err)
	}
	return id, nil
}

// resolveUnresolvedTypes finishes §4.2's deferred type inference: an
// index built against an empty collection has no ValueType until some
// write actually produces a value for it. Every Create/Update checks its
// collection's still-unresolved indexes against the incoming document and
// persists the first value_type it can derive.
func (s *Store) resolveUnresolvedTypes(ctx context.Context, collection string, doc Document) {
	s.mu.RLock()
	cs := s.collections[collection]
	if cs == nil {
		s.mu.RUnlock()
		return
	}
	pending := map[string]KeyFunction{}
	for name, vt := range cs.types {
		if vt == "" {
			pending[name] = cs.indexes[name]
		}
	}
	s.mu.RUnlock()
	if len(pending) == 0 {
		return
	}

	for name, fn := range pending {
		v, ok, err := fn.Apply(doc)
		if err != nil || !ok {
			continue
		}
		persisted, err := s.backend.ReadSchema(ctx, collection)
		if err != nil {
			continue
		}
		entry, exists := persisted[name]
		if !exists {
			continue
		}
		entry.ValueType = v.Kind
		if err := s.backend.UpsertIndex(ctx, collection, entry); err != nil {
			continue
		}
		s.mu.Lock()
		cs.types[name] = v.Kind
		s.mu.Unlock()
	}
}

// Get returns the document stored under id.
func (s *Store) Get(ctx context.Context, collection string, id ID) (Document, error) {
	doc, err := s.backend.GetRecord(ctx, collection, id)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return nil, err
		}
		return nil, &BackendError{Op: "GetRecord", Err: err}
	}
	return doc, nil
}

// Update replaces the document stored under id wholesale.
func (s *Store) Update(ctx context.Context, collection string, id ID, doc Document) error {
	if err := validateDocument(doc); err != nil {
		return err
	}
	s.resolveUnresolvedTypes(ctx, collection, doc)
	if err := s.backend.ReplaceRecord(ctx, collection, id, doc, s.activeIndexes(collection)); err != nil {
		return wrapWriteErr(err)
	}
	return nil
}

// Delete removes the record and every index entry referencing it.
func (s *Store) Delete(ctx context.Context, collection string, id ID) error {
	if err := s.backend.DeleteRecord(ctx, collection, id); err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return err
		}
		return &BackendError{Op: "DeleteRecord", Err: err}
	}
	return nil
}

// List validates every referenced index is active, normalizes the
// conditions into a Plan, and executes it against the backend. An empty
// interval short-circuits before touching the backend, per §8.
func (s *Store) List(ctx context.Context, collection string, conditions ...Condition) (RecordIterator, error) {
	for _, c := range conditions {
		if err := s.checkActive(collection, c.handle.index); err != nil {
			return nil, err
		}
	}
	q := NewQuery(conditions...)
	plan, err := q.normalize(collection)
	if err != nil {
		return nil, err
	}
	for _, iv := range plan.Intervals {
		if iv.Empty() {
			return &emptyIterator{}, nil
		}
	}
	it, err := s.backend.ListRecords(ctx, plan)
	if err != nil {
		return nil, &BackendError{Op: "ListRecords", Err: err}
	}
	return it, nil
}

// IndexHandle returns a Handle for an active index on collection, for use
// with the Condition DSL.
func (s *Store) IndexHandle(collection, name string) (Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs := s.collections[collection]
	if cs == nil {
		return Handle{}, &UnknownIndexError{Collection: collection, Index: name}
	}
	vt, ok := cs.types[name]
	if !ok {
		return Handle{}, &UnknownIndexError{Collection: collection, Index: name}
	}
	return Handle{collection: collection, index: name, valueType: vt}, nil
}

// SupportedIndexTypes returns the scalar type tags norm can index.
func (s *Store) SupportedIndexTypes() []ValueKind {
	return AllValueKinds()
}

// TestKeyFn round-trips a KeyFunction through serialization, per §6.
func (s *Store) TestKeyFn(fn KeyFunction, sample Document) (KeyFunction, error) {
	return TestKeyFn(fn, sample)
}

// Declarations returns a snapshot of every collection's currently
// declared index-name set, for the lifecycle engine's heartbeat loop.
func (s *Store) Declarations() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string, len(s.collections))
	for name, cs := range s.collections {
		cp := make([]string, len(cs.declared))
		copy(cp, cs.declared)
		out[name] = cp
	}
	return out
}

// ProcessID returns the random identifier this Store heartbeats under.
func (s *Store) ProcessID() ProcessID { return s.processID }

// Backend exposes the underlying Backend, for callers (notably the
// lifecycle engine) that need to drive heartbeats/reclaim directly.
func (s *Store) Backend() Backend { return s.backend }

// Close releases the underlying backend's resources.
func (s *Store) Close(ctx context.Context) error {
	return s.backend.Close(ctx)
}

func (s *Store) checkActive(collection, index string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs := s.collections[collection]
	if cs == nil {
		return &UnknownIndexError{Collection: collection, Index: index}
	}
	if _, ok := cs.types[index]; !ok {
		return &UnknownIndexError{Collection: collection, Index: index}
	}
	return nil
}

func (s *Store) activeIndexes(collection string) []ActiveIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs := s.collections[collection]
	if cs == nil {
		return nil
	}
	out := make([]ActiveIndex, 0, len(cs.indexes))
	for name, fn := range cs.indexes {
		out = append(out, ActiveIndex{Name: name, KeyFn: fn, ValueType: cs.types[name]})
	}
	return out
}

func wrapWriteErr(err error) error {
	var ia *IndexApplyError
	var tm *IndexTypeMismatchError
	var nf *NotFoundError
	if errors.As(err, &ia) || errors.As(err, &tm) || errors.As(err, &nf) {
		return err
	}
	return &BackendError{Op: "write", Err: err}
}

func validateDocument(doc Document) error {
	for k, v := range doc {
		if k == "" {
			return &InvalidDocumentError{Reason: "empty field name"}
		}
		if err := validateLeaf(v); err != nil {
			return err
		}
	}
	return nil
}

func validateLeaf(v any) error {
	switch x := v.(type) {
	case nil, bool, int, int32, int64, float32, float64, string, ID, time.Time:
		return nil
	case Document:
		return validateDocument(x)
	case map[string]any:
		return validateDocument(Document(x))
	case []any:
		for _, item := range x {
			if err := validateLeaf(item); err != nil {
				return err
			}
		}
		return nil
	default:
		return &InvalidDocumentError{Reason: fmt.Sprintf("unsupported value type %T", v)}
	}
}

// emptyIterator is returned by List when normalization proves the query
// can match nothing, without ever touching the backend.
type emptyIterator struct{}

func (emptyIterator) Next(ctx context.Context) (ID, Document, bool, error) { return ID{}, nil, false, nil }
func (emptyIterator) Close() error                                        { return nil }
