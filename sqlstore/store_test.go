package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/acksell/norm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func ageIndexSpec() norm.IndexSpec {
	return norm.FieldIndex("age")
}

func mustSerialize(t *testing.T, fn norm.KeyFunction) []byte {
	t.Helper()
	blob, err := fn.Serialize()
	require.NoError(t, err)
	return blob
}

func ptrValue(v norm.Value) *norm.Value { return &v }

func TestPutGetDeleteRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestBackend(t)
	id := norm.NewID()
	doc := norm.Document{"name": "Alice", "age": int64(30)}

	require.NoError(t, s.PutRecord(ctx, "users", id, doc, nil))

	got, err := s.GetRecord(ctx, "users", id)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	require.NoError(t, s.DeleteRecord(ctx, "users", id))
	_, err = s.GetRecord(ctx, "users", id)
	var nf *norm.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestReplaceRecordDropsStaleIndexEntries(t *testing.T) {
	ctx := context.Background()
	s := newTestBackend(t)
	spec := ageIndexSpec()
	idx := []norm.ActiveIndex{{Name: spec.Name, KeyFn: spec.KeyFn, ValueType: norm.KindInt}}

	id := norm.NewID()
	require.NoError(t, s.PutRecord(ctx, "users", id, norm.Document{"age": int64(10)}, idx))
	require.NoError(t, s.ReplaceRecord(ctx, "users", id, norm.Document{"age": int64(99)}, idx))

	entry := norm.SchemaStateEntry{Name: spec.Name, KeyFnBlob: mustSerialize(t, spec.KeyFn), ValueType: norm.KindInt, State: norm.StateActive}
	require.NoError(t, s.UpsertIndex(ctx, "users", entry))

	plan := norm.Plan{Collection: "users", Intervals: map[string]norm.Interval{
		spec.Name: {Lower: ptrValue(norm.IntValue(10)), LowerInclusive: true, Upper: ptrValue(norm.IntValue(10)), UpperInclusive: true},
	}, SingleRangeIndex: spec.Name}
	it, err := s.ListRecords(ctx, plan)
	require.NoError(t, err)
	defer it.Close()
	_, _, ok, err := it.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "stale index entry for age=10 should have been dropped on replace")
}

func TestReplaceRecordMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestBackend(t)
	err := s.ReplaceRecord(ctx, "users", norm.NewID(), norm.Document{}, nil)
	var nf *norm.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestSchemaUpsertReadDrop(t *testing.T) {
	ctx := context.Background()
	s := newTestBackend(t)
	spec := ageIndexSpec()
	blob := mustSerialize(t, spec.KeyFn)

	entry := norm.SchemaStateEntry{Name: "age", KeyFnBlob: blob, ValueType: norm.KindInt, State: norm.StateBuilding, CreatedAt: time.Now(), LastSeenAt: time.Now()}
	require.NoError(t, s.UpsertIndex(ctx, "users", entry))

	state, err := s.ReadSchema(ctx, "users")
	require.NoError(t, err)
	require.Contains(t, state, "age")
	assert.Equal(t, norm.StateBuilding, state["age"].State)

	require.NoError(t, s.DropIndex(ctx, "users", "age"))
	state, err = s.ReadSchema(ctx, "users")
	require.NoError(t, err)
	assert.NotContains(t, state, "age")
}

func TestBackfillIndexIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestBackend(t)
	spec := ageIndexSpec()

	for _, age := range []int64{5, 15, 25} {
		id := norm.NewID()
		require.NoError(t, s.PutRecord(ctx, "users", id, norm.Document{"age": age}, nil))
	}

	require.NoError(t, s.BackfillIndex(ctx, "users", spec))
	require.NoError(t, s.BackfillIndex(ctx, "users", spec)) // idempotent re-run

	entry := norm.SchemaStateEntry{Name: spec.Name, KeyFnBlob: mustSerialize(t, spec.KeyFn), ValueType: norm.KindInt, State: norm.StateActive, CreatedAt: time.Now(), LastSeenAt: time.Now()}
	require.NoError(t, s.UpsertIndex(ctx, "users", entry))

	plan := norm.Plan{Collection: "users", Intervals: map[string]norm.Interval{
		spec.Name: {Lower: ptrValue(norm.IntValue(10)), LowerInclusive: true},
	}, SingleRangeIndex: spec.Name}
	it, err := s.ListRecords(ctx, plan)
	require.NoError(t, err)
	defer it.Close()

	var count int
	for {
		_, _, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}
	assert.Equal(t, 2, count)
}

func TestHeartbeatPruneAndLiveDeclarations(t *testing.T) {
	ctx := context.Background()
	s := newTestBackend(t)

	require.NoError(t, s.Heartbeat(ctx, norm.Heartbeat{
		Process: "p1", Collection: "users", Declared: []string{"age"}, At: time.Now(),
	}))
	require.NoError(t, s.Heartbeat(ctx, norm.Heartbeat{
		Process: "p2", Collection: "users", Declared: []string{"name"}, At: time.Now().Add(-time.Hour),
	}))

	live, err := s.LiveDeclarations(ctx, "users", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, live["age"])
	assert.False(t, live["name"])

	require.NoError(t, s.PruneStaleHeartbeats(ctx, 5*time.Minute))
	live, err = s.LiveDeclarations(ctx, "users", 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, live["age"])
	assert.False(t, live["name"], "stale heartbeat should have been pruned")
}
