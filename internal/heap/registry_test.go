package heap

import (
	"testing"

	"pytrace/internal/lang/object"
	"pytrace/internal/serializer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureIDIsInjectiveOverIdentity(t *testing.T) {
	r := New(serializer.New())

	a := &object.List{Elements: []object.Value{object.Int(1)}}
	b := &object.List{Elements: []object.Value{object.Int(1)}}

	idA1 := r.EnsureID(a)
	idA2 := r.EnsureID(a)
	idB := r.EnsureID(b)

	assert.Equal(t, idA1, idA2, "same identity must map to the same id")
	assert.NotEqual(t, idA1, idB, "distinct identities must map to distinct ids")
}

func TestEnsureIDHandlesSelfReferentialCycle(t *testing.T) {
	r := New(serializer.New())

	a := &object.List{}
	a.Elements = []object.Value{a}

	id := r.EnsureID(a)
	obj, ok := r.Lookup(id)
	require.True(t, ok)
	assert.Contains(t, obj.References, id)
}

func TestSnapshotOrdersByFirstObservation(t *testing.T) {
	r := New(serializer.New())

	a := &object.List{}
	b := &object.List{}
	r.EnsureID(a)
	r.EnsureID(b)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, int64(0), snap[0].ID)
	assert.Equal(t, int64(1), snap[1].ID)
}

func TestEveryReferenceResolvesWithinSnapshot(t *testing.T) {
	r := New(serializer.New())

	inner := &object.List{Elements: []object.Value{object.Int(1)}}
	outer := &object.List{Elements: []object.Value{inner}}

	r.EnsureID(outer)

	snap := r.Snapshot()
	ids := make(map[int64]bool)
	for _, o := range snap {
		ids[o.ID] = true
	}
	for _, o := range snap {
		for _, ref := range o.References {
			assert.True(t, ids[ref], "ref %d must exist in snapshot", ref)
		}
	}
}
