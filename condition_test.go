package norm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionValidate(t *testing.T) {
	h := Handle{collection: "users", index: "age", valueType: KindInt}

	c := h.Ge(IntValue(18))
	require.NoError(t, c.validate())

	bad := h.Ge(StringValue("18"))
	err := bad.validate()
	require.Error(t, err)
	var ice *InvalidConditionError
	assert.ErrorAs(t, err, &ice)
}

func TestHandleAccessors(t *testing.T) {
	h := Handle{collection: "users", index: "age", valueType: KindInt}
	assert.Equal(t, "users", h.Collection())
	assert.Equal(t, "age", h.Index())
	assert.Equal(t, KindInt, h.ValueType())
}
