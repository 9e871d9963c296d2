package norm

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueCompare(t *testing.T) {
	t.Run("orders within a kind", func(t *testing.T) {
		c, err := IntValue(1).Compare(IntValue(2))
		require.NoError(t, err)
		assert.Equal(t, -1, c)

		c, err = IntValue(5).Compare(IntValue(5))
		require.NoError(t, err)
		assert.Equal(t, 0, c)
	})

	t.Run("rejects cross-kind comparison", func(t *testing.T) {
		_, err := IntValue(1).Compare(StringValue("1"))
		require.Error(t, err)
		var ice *InvalidConditionError
		assert.ErrorAs(t, err, &ice)
	})

	t.Run("string ordering is byte-wise", func(t *testing.T) {
		c, err := StringValue("apple").Compare(StringValue("banana"))
		require.NoError(t, err)
		assert.Equal(t, -1, c)
	})

	t.Run("id ordering is byte-wise", func(t *testing.T) {
		a := ID{0x01}
		b := ID{0x02}
		c, err := IDValue(a).Compare(IDValue(b))
		require.NoError(t, err)
		assert.Equal(t, -1, c)
	})

	t.Run("time ordering", func(t *testing.T) {
		now := time.Now()
		c, err := TimeValue(now).Compare(TimeValue(now.Add(time.Second)))
		require.NoError(t, err)
		assert.Equal(t, -1, c)
	})

	t.Run("bool ordering: false before true", func(t *testing.T) {
		c, err := BoolValue(false).Compare(BoolValue(true))
		require.NoError(t, err)
		assert.Equal(t, -1, c)
	})
}

func TestFloatValueRejectsNaN(t *testing.T) {
	_, err := FloatValue(math.NaN())
	require.Error(t, err)
}

func TestValueEqual(t *testing.T) {
	assert.True(t, IntValue(3).Equal(IntValue(3)))
	assert.False(t, IntValue(3).Equal(IntValue(4)))
	assert.False(t, IntValue(3).Equal(StringValue("3")))
}

func TestIDRoundTrip(t *testing.T) {
	id := NewID()
	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}
