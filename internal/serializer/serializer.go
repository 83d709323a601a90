// Package serializer produces the display and structural forms of any
// guest value (component C3), with the size caps spec §4.3/§8 name:
// strings over 100 chars truncate, containers cap at 50 elements plus an
// ellipsis marker, dict keys cap at 50 chars.
package serializer

import (
	"fmt"
	"strconv"

	"pytrace/internal/classifier"
	"pytrace/internal/heap"
	"pytrace/internal/lang/object"
	"pytrace/internal/result"
)

const (
	maxStringLen  = 100
	maxDisplayLen = 200
	maxElements   = 50
	maxKeyLen     = 50
)

// Serializer implements heap.Serializer and the frame-local Variable form.
type Serializer struct{}

// New returns a Serializer. Stateless; safe to share across traces.
func New() *Serializer { return &Serializer{} }

// Serialize builds the HeapObject form of a heap-kind value v, registering
// any heap-kind children it directly contains into r.
func (s *Serializer) Serialize(v object.Value, r *heap.Registry) result.HeapObject {
	obj := result.HeapObject{
		Kind:     classifier.Kind(v),
		TypeName: classifier.TypeName(v),
		Display:  truncate(v.String(), maxDisplayLen),
	}

	if length, ok := classifier.Length(v); ok {
		obj.Length = length
	}

	switch x := v.(type) {
	case *object.List:
		obj.Structure, obj.References, obj.Truncated = s.elements(x.Elements, r)
	case *object.Tuple:
		obj.Structure, obj.References, obj.Truncated = s.elements(x.Elements, r)
	case *object.GuestSet:
		obj.Structure, obj.References, obj.Truncated = s.elements(x.Elements, r)
	case *object.Dict:
		obj.Structure, obj.Keys, obj.References, obj.Truncated = s.dictElements(x, r)
	case *object.Instance:
		// Per spec §4.3: report the class name only; do not walk instance
		// state beyond the one-hop references field.
		obj.References = s.instanceReferences(x, r)
	}

	return obj
}

func (s *Serializer) elements(values []object.Value, r *heap.Registry) ([]result.StructureElement, []int64, bool) {
	n := len(values)
	truncated := n > maxElements
	if truncated {
		n = maxElements
	}

	out := make([]result.StructureElement, 0, n)
	refs := make([]int64, 0)
	seen := make(map[int64]bool)

	for _, v := range values[:n] {
		el, ref := s.elementOf(v, r)
		out = append(out, el)
		if ref >= 0 && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	if truncated {
		out = append(out, result.StructureElement{Scalar: "... (truncated)"})
	}
	return out, refs, truncated
}

func (s *Serializer) dictElements(d *object.Dict, r *heap.Registry) ([]result.StructureElement, []string, []int64, bool) {
	n := len(d.Entries)
	truncated := n > maxElements
	if truncated {
		n = maxElements
	}

	out := make([]result.StructureElement, 0, n)
	keys := make([]string, 0, n)
	refs := make([]int64, 0)
	seen := make(map[int64]bool)

	for _, entry := range d.Entries[:n] {
		key := []rune(entry.Key.String())
		if len(key) > maxKeyLen {
			key = key[:maxKeyLen]
		}
		keys = append(keys, string(key))
		el, ref := s.elementOf(entry.Value, r)
		out = append(out, el)
		if ref >= 0 && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	if truncated {
		out = append(out, result.StructureElement{Scalar: "... (truncated)"})
		keys = append(keys, "...")
	}
	return out, keys, refs, truncated
}

func (s *Serializer) instanceReferences(inst *object.Instance, r *heap.Registry) []int64 {
	refs := make([]int64, 0, len(inst.Attrs))
	seen := make(map[int64]bool)
	for _, v := range inst.Attrs {
		if classifier.Kind(v).IsHeapKind() {
			id := r.EnsureID(v)
			if !seen[id] {
				seen[id] = true
				refs = append(refs, id)
			}
		}
	}
	return refs
}

// elementOf returns the structure element for v, plus its heap id (or -1
// if v is a scalar).
func (s *Serializer) elementOf(v object.Value, r *heap.Registry) (result.StructureElement, int64) {
	if classifier.Kind(v).IsHeapKind() {
		id := r.EnsureID(v)
		kind := classifier.Kind(v)
		return result.StructureElement{Ref: &result.HeapRef{Ref: id, Kind: kind}}, id
	}
	return result.StructureElement{Scalar: s.scalar(v)}, -1
}

// scalar converts a non-heap value to an inline JSON-safe scalar.
func (s *Serializer) scalar(v object.Value) interface{} {
	switch x := v.(type) {
	case object.Int:
		return int64(x)
	case object.Float:
		return float64(x)
	case object.Bool:
		return bool(x)
	case object.Str:
		return truncate(string(x), maxStringLen)
	case object.None:
		return nil
	default:
		return truncate(v.String(), maxDisplayLen)
	}
}

// ToVariable builds the Frame-local Variable form for a name binding,
// resolving its heap id through r if it is a heap kind (spec §3).
func (s *Serializer) ToVariable(name string, v object.Value, r *heap.Registry) result.Variable {
	kind := classifier.Kind(v)
	variable := result.Variable{
		Name:       name,
		Kind:       kind,
		TypeName:   classifier.TypeName(v),
		Display:    truncate(v.String(), maxDisplayLen),
		IsMutable:  classifier.IsMutable(v),
		IsSequence: classifier.IsSequence(v),
		Repr:       repr(v),
	}
	if str, ok := v.(object.Str); ok {
		variable.Display = truncate(string(str), maxStringLen)
	}
	if length, ok := classifier.Length(v); ok {
		variable.Length = length
	}
	if kind.IsHeapKind() {
		id := r.EnsureID(v)
		variable.HeapID = &id
	}
	return variable
}

// ToReturnValue builds the structural-form payload for a Return event.
func (s *Serializer) ToReturnValue(v object.Value, r *heap.Registry) result.StructureElement {
	el, _ := s.elementOf(v, r)
	return el
}

func repr(v object.Value) string {
	switch x := v.(type) {
	case object.Str:
		return strconv.Quote(string(x))
	default:
		return truncate(x.String(), maxDisplayLen)
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return fmt.Sprintf("%s... (truncated, %d chars)", string(runes[:max]), len(runes))
}
