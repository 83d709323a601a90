// Package classifier maps a guest runtime value to a result.VariableKind
// tag and extracts its shape (length, element references) — component C1
// of the trace pipeline. It never allocates heap ids itself; callers that
// need identity use internal/heap alongside it.
package classifier

import (
	"pytrace/internal/lang/object"
	"pytrace/internal/result"
)

// Kind maps a guest value to its closed VariableKind tag.
func Kind(v object.Value) result.VariableKind {
	switch v.(type) {
	case object.Int:
		return result.KindInt
	case object.Float:
		return result.KindFloat
	case object.Bool:
		return result.KindBool
	case object.Str:
		return result.KindStr
	case object.None:
		return result.KindNone
	case *object.List:
		return result.KindList
	case *object.Tuple:
		return result.KindTuple
	case *object.Dict:
		return result.KindDict
	case *object.GuestSet:
		return result.KindSet
	case *object.Function:
		return result.KindFunction
	case *object.Class:
		return result.KindClass
	case *object.Instance:
		return result.KindInstance
	default:
		return result.KindOther
	}
}

// TypeName returns the guest type's display name, as spec §3 requires for
// both Variable and HeapObject.
func TypeName(v object.Value) string {
	return string(v.Type())
}

// Length returns the element count for strings and containers, and false
// otherwise (instances included).
func Length(v object.Value) (int, bool) {
	switch x := v.(type) {
	case object.Str:
		return len(x), true
	case *object.List:
		return len(x.Elements), true
	case *object.Tuple:
		return len(x.Elements), true
	case *object.Dict:
		return len(x.Entries), true
	case *object.GuestSet:
		return len(x.Elements), true
	default:
		return 0, false
	}
}

// IsSequence reports whether v supports ordered indexed iteration.
func IsSequence(v object.Value) bool {
	switch v.(type) {
	case object.Str, *object.List, *object.Tuple:
		return true
	default:
		return false
	}
}

// IsMutable reports whether v's contents can change in place. Scalars,
// tuples, and frozen values are immutable; lists, dicts, sets, and
// instances are not.
func IsMutable(v object.Value) bool {
	switch v.(type) {
	case *object.List, *object.Dict, *object.GuestSet, *object.Instance:
		return true
	default:
		return false
	}
}

// Children returns every direct child of a container value (scalars
// included; a dict yields key, value pairs), in iteration order, for the
// serializer and heap registry to recurse into.
func Children(v object.Value) []object.Value {
	switch x := v.(type) {
	case *object.List:
		return x.Elements
	case *object.Tuple:
		return x.Elements
	case *object.GuestSet:
		return x.Elements
	case *object.Dict:
		children := make([]object.Value, 0, len(x.Entries)*2)
		for _, e := range x.Entries {
			children = append(children, e.Key, e.Value)
		}
		return children
	default:
		return nil
	}
}
