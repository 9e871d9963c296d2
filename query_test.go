package norm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ageHandle() Handle {
	return Handle{collection: "users", index: "age", valueType: KindInt}
}

func TestNormalizeEquality(t *testing.T) {
	h := ageHandle()
	q := NewQuery(h.Eq(IntValue(30)))
	plan, err := q.normalize("users")
	require.NoError(t, err)

	iv := plan.Intervals["age"]
	require.NotNil(t, iv.Lower)
	require.NotNil(t, iv.Upper)
	assert.Equal(t, int64(30), iv.Lower.Int())
	assert.True(t, iv.LowerInclusive)
	assert.True(t, iv.UpperInclusive)
	assert.Empty(t, plan.SingleRangeIndex)
}

func TestNormalizeRangeFoldsToSingleInterval(t *testing.T) {
	h := ageHandle()
	q := NewQuery(h.Ge(IntValue(18)), h.Lt(IntValue(65)))
	plan, err := q.normalize("users")
	require.NoError(t, err)

	iv := plan.Intervals["age"]
	assert.Equal(t, int64(18), iv.Lower.Int())
	assert.True(t, iv.LowerInclusive)
	assert.Equal(t, int64(65), iv.Upper.Int())
	assert.False(t, iv.UpperInclusive)
	assert.Equal(t, "age", plan.SingleRangeIndex)
}

func TestNormalizeContradictionIsEmpty(t *testing.T) {
	h := ageHandle()
	q := NewQuery(h.Ge(IntValue(50)), h.Lt(IntValue(10)))
	plan, err := q.normalize("users")
	require.NoError(t, err)
	assert.True(t, plan.Intervals["age"].Empty())
}

func TestNormalizeWrongCollectionErrors(t *testing.T) {
	h := ageHandle()
	q := NewQuery(h.Eq(IntValue(1)))
	_, err := q.normalize("other")
	require.Error(t, err)
}

func TestNormalizeMultipleIndexesNoSingleRange(t *testing.T) {
	age := ageHandle()
	name := Handle{collection: "users", index: "name", valueType: KindString}
	q := NewQuery(age.Ge(IntValue(18)), name.Ge(StringValue("a")))
	plan, err := q.normalize("users")
	require.NoError(t, err)
	assert.Empty(t, plan.SingleRangeIndex)
	assert.Len(t, plan.Intervals, 2)
}

func TestEmptyQueryMatchesEverything(t *testing.T) {
	q := NewQuery()
	plan, err := q.normalize("users")
	require.NoError(t, err)
	assert.Empty(t, plan.Intervals)
}
