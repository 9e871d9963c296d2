package norm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffNewIndexGoesToBuild(t *testing.T) {
	spec := FieldIndex("age")
	plan, err := diff([]IndexSpec{spec}, SchemaState{})
	require.NoError(t, err)
	assert.Len(t, plan.ToBuild, 1)
	assert.Empty(t, plan.ToRefresh)
}

func TestDiffActiveMatchingGoesToRefresh(t *testing.T) {
	spec := FieldIndex("age")
	blob, err := spec.KeyFn.Serialize()
	require.NoError(t, err)

	persisted := SchemaState{
		"age": SchemaStateEntry{Name: "age", KeyFnBlob: blob, ValueType: KindInt, State: StateActive},
	}
	plan, err := diff([]IndexSpec{spec}, persisted)
	require.NoError(t, err)
	assert.Empty(t, plan.ToBuild)
	assert.Equal(t, []string{"age"}, plan.ToRefresh)
}

func TestDiffActiveDifferentKeyFnIsNewGeneration(t *testing.T) {
	oldSpec := Index("age_bucket", FieldPick("age"))
	newSpec := Index("age_bucket", Add(FieldPick("age"), 1))

	blob, err := oldSpec.KeyFn.Serialize()
	require.NoError(t, err)
	persisted := SchemaState{
		"age_bucket": SchemaStateEntry{Name: "age_bucket", KeyFnBlob: blob, ValueType: KindInt, State: StateActive},
	}

	plan, err := diff([]IndexSpec{newSpec}, persisted)
	require.NoError(t, err)
	assert.Len(t, plan.ToBuild, 1)
	assert.Empty(t, plan.ToRefresh)
}

func TestDiffBuildingIsResumed(t *testing.T) {
	spec := FieldIndex("age")
	blob, err := spec.KeyFn.Serialize()
	require.NoError(t, err)
	persisted := SchemaState{
		"age": SchemaStateEntry{Name: "age", KeyFnBlob: blob, State: StateBuilding},
	}
	plan, err := diff([]IndexSpec{spec}, persisted)
	require.NoError(t, err)
	assert.Len(t, plan.ToBuild, 1)
}

func TestSchemaStateActive(t *testing.T) {
	state := SchemaState{
		"a": SchemaStateEntry{State: StateActive},
		"b": SchemaStateEntry{State: StateBuilding},
		"c": SchemaStateEntry{State: StateRetiring},
	}
	assert.Equal(t, []string{"a"}, state.Active())
}

func TestIndexSpecEquivalent(t *testing.T) {
	a := FieldIndex("age")
	b := FieldIndex("age")
	c := FieldIndex("name")
	assert.True(t, a.Equivalent(b))
	assert.False(t, a.Equivalent(c))
}
