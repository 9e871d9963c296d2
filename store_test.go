package norm_test

import (
	"context"
	"testing"

	"github.com/acksell/norm"
	"github.com/acksell/norm/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *norm.Store {
	t.Helper()
	backend, err := memstore.New(memstore.StoreOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close(context.Background()) })
	return norm.NewStore(backend)
}

func TestCreateGetUpdateDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Init(ctx, "users"))

	id, err := s.Create(ctx, "users", norm.Document{"name": "Alice", "age": 30})
	require.NoError(t, err)

	doc, err := s.Get(ctx, "users", id)
	require.NoError(t, err)
	assert.Equal(t, "Alice", doc["name"])

	require.NoError(t, s.Update(ctx, "users", id, norm.Document{"name": "Alicia", "age": 31}))
	doc, err = s.Get(ctx, "users", id)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", doc["name"])

	require.NoError(t, s.Delete(ctx, "users", id))
	_, err = s.Get(ctx, "users", id)
	require.Error(t, err)
	var nf *norm.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestListRangeQueryOrdersByIndex(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Init(ctx, "users", norm.FieldIndex("age")))

	ages := []int64{40, 10, 25, 33}
	for _, age := range ages {
		_, err := s.Create(ctx, "users", norm.Document{"age": age})
		require.NoError(t, err)
	}

	h, err := s.IndexHandle("users", "age")
	require.NoError(t, err)

	it, err := s.List(ctx, "users", h.Ge(norm.IntValue(20)))
	require.NoError(t, err)
	defer it.Close()

	var seen []int64
	for {
		_, doc, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		seen = append(seen, doc["age"].(int64))
	}
	assert.Equal(t, []int64{25, 33, 40}, seen)
}

func TestIndexHandleRejectsUnknownIndex(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Init(ctx, "users"))

	_, err := s.IndexHandle("users", "age")
	require.Error(t, err)
	var uie *norm.UnknownIndexError
	require.ErrorAs(t, err, &uie)
}

func TestIndexLifecycleOverlap(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Init(ctx, "users", norm.FieldIndex("age")))

	_, err := s.Create(ctx, "users", norm.Document{"age": 1})
	require.NoError(t, err)

	// Re-declaring the same collection/index set should be idempotent and
	// leave the index queryable immediately.
	require.NoError(t, s.Init(ctx, "users", norm.FieldIndex("age")))
	h, err := s.IndexHandle("users", "age")
	require.NoError(t, err)
	it, err := s.List(ctx, "users", h.Ge(norm.IntValue(0)))
	require.NoError(t, err)
	defer it.Close()
	_, _, ok, err := it.Next(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDerivedIndex(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Init(ctx, "users", norm.Index("name_lower", norm.Lower(norm.FieldPick("name")))))

	_, err := s.Create(ctx, "users", norm.Document{"name": "Bob"})
	require.NoError(t, err)

	h, err := s.IndexHandle("users", "name_lower")
	require.NoError(t, err)
	it, err := s.List(ctx, "users", h.Eq(norm.StringValue("bob")))
	require.NoError(t, err)
	defer it.Close()
	_, doc, ok, err := it.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Bob", doc["name"])
}

func TestCreateRejectsUnsupportedLeaf(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Init(ctx, "users"))

	_, err := s.Create(ctx, "users", norm.Document{"bad": struct{ X int }{1}})
	require.Error(t, err)
	var ide *norm.InvalidDocumentError
	assert.ErrorAs(t, err, &ide)
}

func TestDeferredTypeInferenceOnEmptyCollection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Init(ctx, "users", norm.FieldIndex("age")))

	_, err := s.Create(ctx, "users", norm.Document{"age": 22})
	require.NoError(t, err)

	persisted, err := s.Backend().ReadSchema(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, norm.KindInt, persisted["age"].ValueType)
}
