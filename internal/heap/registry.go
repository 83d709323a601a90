// Package heap implements the per-trace identity map (component C2):
// guest-object identity → stable small integer, and the parallel table of
// serialized HeapObject snapshots that backs every ExecutionStep's heap
// field. A Registry is created at trace start and discarded when the
// trace is returned — ids have no meaning across traces (spec §3
// Lifecycles).
package heap

import (
	"pytrace/internal/classifier"
	"pytrace/internal/lang/object"
	"pytrace/internal/result"
)

// Serializer produces the display/structural form for a value. Defined
// here (rather than imported from internal/serializer) to avoid an import
// cycle: the serializer needs the registry to resolve nested heap-kind
// children, and the registry needs the serializer to materialize new
// entries. internal/serializer implements this interface.
type Serializer interface {
	Serialize(v object.Value, r *Registry) result.HeapObject
}

// Registry is the identity map and heap-object table for one trace.
type Registry struct {
	ids        map[object.Value]int64
	objects    map[int64]result.HeapObject
	order      []int64
	nextID     int64
	serializer Serializer
}

// New creates an empty Registry that uses s to materialize new entries.
func New(s Serializer) *Registry {
	return &Registry{
		ids:        make(map[object.Value]int64),
		objects:    make(map[int64]result.HeapObject),
		serializer: s,
	}
}

// EnsureID returns v's heap id, allocating one and serializing v on first
// observation (spec §4.3). Only heap-kind values should be passed in;
// callers check classifier.Kind(v).IsHeapKind() first.
func (r *Registry) EnsureID(v object.Value) int64 {
	if id, ok := r.ids[v]; ok {
		return id
	}

	id := r.nextID
	r.nextID++
	r.ids[v] = id
	// Reserve the slot before recursing so a value reachable from its own
	// children (a cycle) resolves to this id instead of recursing forever.
	r.objects[id] = result.HeapObject{ID: id, Kind: classifier.Kind(v)}
	r.order = append(r.order, id)

	obj := r.serializer.Serialize(v, r)
	obj.ID = id
	r.objects[id] = obj
	return id
}

// Lookup returns the current serialized form for id.
func (r *Registry) Lookup(id int64) (result.HeapObject, bool) {
	obj, ok := r.objects[id]
	return obj, ok
}

// Refresh re-serializes v's existing entry in place, for mutations
// observed after the value was first registered (e.g. list.append).
func (r *Registry) Refresh(v object.Value) {
	id, ok := r.ids[v]
	if !ok {
		return
	}
	obj := r.serializer.Serialize(v, r)
	obj.ID = id
	r.objects[id] = obj
}

// Snapshot returns every heap object currently registered, in order of
// first observation (spec §3 invariant (c)).
func (r *Registry) Snapshot() []result.HeapObject {
	out := make([]result.HeapObject, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.objects[id])
	}
	return out
}

// Len returns the number of distinct heap objects registered so far.
func (r *Registry) Len() int {
	return len(r.order)
}
