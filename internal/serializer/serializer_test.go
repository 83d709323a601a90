package serializer

import (
	"strings"
	"testing"

	"pytrace/internal/heap"
	"pytrace/internal/lang/object"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToVariableAssignsHeapIDOnlyForHeapKinds(t *testing.T) {
	s := New()
	r := heap.New(s)

	scalar := s.ToVariable("x", object.Int(1), r)
	assert.Nil(t, scalar.HeapID)

	list := s.ToVariable("a", &object.List{}, r)
	require.NotNil(t, list.HeapID)
	assert.Equal(t, int64(0), *list.HeapID)
}

func TestAliasedListsShareHeapID(t *testing.T) {
	s := New()
	r := heap.New(s)

	shared := &object.List{Elements: []object.Value{object.Int(1)}}

	a := s.ToVariable("a", shared, r)
	b := s.ToVariable("b", shared, r)

	require.NotNil(t, a.HeapID)
	require.NotNil(t, b.HeapID)
	assert.Equal(t, *a.HeapID, *b.HeapID)
}

func TestLongStringIsTruncatedWithMarker(t *testing.T) {
	long := object.Str(strings.Repeat("a", 150))

	variable := New().ToVariable("s", long, heap.New(New()))
	assert.Contains(t, variable.Display, "truncated")
}

func TestContainerOver50ElementsTruncatesWithEllipsis(t *testing.T) {
	elems := make([]object.Value, 60)
	for i := range elems {
		elems[i] = object.Int(i)
	}
	list := &object.List{Elements: elems}

	s := New()
	r := heap.New(s)
	id := r.EnsureID(list)
	obj, ok := r.Lookup(id)
	require.True(t, ok)

	assert.True(t, obj.Truncated)
	assert.Len(t, obj.Structure, 51) // 50 elements + ellipsis marker
}

func TestDictKeyLongerThan50CharsIsTruncated(t *testing.T) {
	d := &object.Dict{}
	d.Set(object.Str(strings.Repeat("k", 80)), object.Int(1))

	s := New()
	r := heap.New(s)
	id := r.EnsureID(d)
	obj, _ := r.Lookup(id)

	require.Len(t, obj.Keys, 1)
	assert.LessOrEqual(t, len(obj.Keys[0]), 70) // capped at 50 chars, no marker
}
