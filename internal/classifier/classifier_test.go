package classifier

import (
	"testing"

	"pytrace/internal/lang/object"
	"pytrace/internal/result"

	"github.com/stretchr/testify/assert"
)

func TestKindMapsEveryConcreteType(t *testing.T) {
	assert.Equal(t, result.KindInt, Kind(object.Int(1)))
	assert.Equal(t, result.KindFloat, Kind(object.Float(1.5)))
	assert.Equal(t, result.KindBool, Kind(object.Bool(true)))
	assert.Equal(t, result.KindStr, Kind(object.Str("hi")))
	assert.Equal(t, result.KindNone, Kind(object.NoneValue))
	assert.Equal(t, result.KindList, Kind(&object.List{}))
	assert.Equal(t, result.KindTuple, Kind(&object.Tuple{}))
	assert.Equal(t, result.KindDict, Kind(&object.Dict{}))
	assert.Equal(t, result.KindSet, Kind(&object.GuestSet{}))
	assert.Equal(t, result.KindInstance, Kind(&object.Instance{}))
}

func TestHeapKindsMatchSpecClosedSet(t *testing.T) {
	heapKinds := []result.VariableKind{result.KindList, result.KindTuple, result.KindDict, result.KindSet, result.KindInstance}
	for _, k := range heapKinds {
		assert.True(t, k.IsHeapKind(), "%s should be a heap kind", k)
	}
	nonHeapKinds := []result.VariableKind{result.KindInt, result.KindFloat, result.KindBool, result.KindStr, result.KindNone, result.KindFunction}
	for _, k := range nonHeapKinds {
		assert.False(t, k.IsHeapKind(), "%s should not be a heap kind", k)
	}
}

func TestChildrenFlattensDictToKeyValuePairs(t *testing.T) {
	d := &object.Dict{}
	d.Set(object.Str("a"), object.Int(1))

	children := Children(d)
	assert.Len(t, children, 2)
}

func TestIsMutableDistinguishesListFromTuple(t *testing.T) {
	assert.True(t, IsMutable(&object.List{}))
	assert.False(t, IsMutable(&object.Tuple{}))
}
