package interp

import (
	"sort"
	"strings"

	"pytrace/internal/lang/object"
)

// callBuiltinMethod dispatches `receiver.name(args...)` for the built-in
// container and string types. Guest code like `b.append(3)` or
// `d.get("a")` never resolves through object.Instance/object.Class, so
// evalCall routes every non-instance receiver here before falling back
// to its AttributeError path. ok is false when receiver has no built-in
// method by that name.
func callBuiltinMethod(it *Interpreter, receiver object.Value, name string, args []object.Value) (object.Value, bool, error) {
	switch v := receiver.(type) {
	case *object.List:
		return listMethod(it, v, name, args)
	case *object.Dict:
		return dictMethod(it, v, name, args)
	case *object.GuestSet:
		return setMethod(it, v, name, args)
	case *object.Tuple:
		return tupleMethod(v, name, args)
	case object.Str:
		return strMethod(v, name, args)
	default:
		return nil, false, nil
	}
}

func listMethod(it *Interpreter, l *object.List, name string, args []object.Value) (object.Value, bool, error) {
	switch name {
	case "append":
		if len(args) != 1 {
			return nil, true, newGuestError("TypeError", "append() takes exactly one argument")
		}
		l.Elements = append(l.Elements, args[0])
		it.notifyMutation(l)
		return object.NoneValue, true, nil
	case "extend":
		if len(args) != 1 {
			return nil, true, newGuestError("TypeError", "extend() takes exactly one argument")
		}
		elems, err := iterate(args[0])
		if err != nil {
			return nil, true, err
		}
		l.Elements = append(l.Elements, elems...)
		it.notifyMutation(l)
		return object.NoneValue, true, nil
	case "insert":
		if len(args) != 2 {
			return nil, true, newGuestError("TypeError", "insert() takes exactly two arguments")
		}
		idx, err := clampedIndex(args[0], len(l.Elements))
		if err != nil {
			return nil, true, err
		}
		l.Elements = append(l.Elements[:idx], append([]object.Value{args[1]}, l.Elements[idx:]...)...)
		it.notifyMutation(l)
		return object.NoneValue, true, nil
	case "pop":
		idx := len(l.Elements) - 1
		if len(args) == 1 {
			i, err := intIndex(args[0], len(l.Elements))
			if err != nil {
				return nil, true, err
			}
			idx = i
		}
		if idx < 0 || idx >= len(l.Elements) {
			return nil, true, newGuestError("IndexError", "pop from empty list")
		}
		val := l.Elements[idx]
		l.Elements = append(l.Elements[:idx], l.Elements[idx+1:]...)
		it.notifyMutation(l)
		return val, true, nil
	case "remove":
		if len(args) != 1 {
			return nil, true, newGuestError("TypeError", "remove() takes exactly one argument")
		}
		for i, e := range l.Elements {
			if sameValue(e, args[0]) {
				l.Elements = append(l.Elements[:i], l.Elements[i+1:]...)
				it.notifyMutation(l)
				return object.NoneValue, true, nil
			}
		}
		return nil, true, newGuestError("ValueError", "list.remove(x): x not in list")
	case "index":
		if len(args) != 1 {
			return nil, true, newGuestError("TypeError", "index() takes exactly one argument")
		}
		for i, e := range l.Elements {
			if sameValue(e, args[0]) {
				return object.Int(i), true, nil
			}
		}
		return nil, true, newGuestError("ValueError", "%s is not in list", args[0].String())
	case "count":
		if len(args) != 1 {
			return nil, true, newGuestError("TypeError", "count() takes exactly one argument")
		}
		n := 0
		for _, e := range l.Elements {
			if sameValue(e, args[0]) {
				n++
			}
		}
		return object.Int(n), true, nil
	case "sort":
		sort.SliceStable(l.Elements, func(i, j int) bool {
			fi, iok := asFloat(l.Elements[i])
			fj, jok := asFloat(l.Elements[j])
			if iok && jok {
				return fi < fj
			}
			return l.Elements[i].String() < l.Elements[j].String()
		})
		it.notifyMutation(l)
		return object.NoneValue, true, nil
	case "reverse":
		for i, j := 0, len(l.Elements)-1; i < j; i, j = i+1, j-1 {
			l.Elements[i], l.Elements[j] = l.Elements[j], l.Elements[i]
		}
		it.notifyMutation(l)
		return object.NoneValue, true, nil
	case "copy":
		return &object.List{Elements: append([]object.Value{}, l.Elements...)}, true, nil
	case "clear":
		l.Elements = nil
		it.notifyMutation(l)
		return object.NoneValue, true, nil
	default:
		return nil, false, nil
	}
}

func dictMethod(it *Interpreter, d *object.Dict, name string, args []object.Value) (object.Value, bool, error) {
	switch name {
	case "get":
		if len(args) < 1 || len(args) > 2 {
			return nil, true, newGuestError("TypeError", "get() takes one or two arguments")
		}
		if v, ok := d.Get(args[0]); ok {
			return v, true, nil
		}
		if len(args) == 2 {
			return args[1], true, nil
		}
		return object.NoneValue, true, nil
	case "keys":
		out := make([]object.Value, len(d.Entries))
		for i, e := range d.Entries {
			out[i] = e.Key
		}
		return &object.List{Elements: out}, true, nil
	case "values":
		out := make([]object.Value, len(d.Entries))
		for i, e := range d.Entries {
			out[i] = e.Value
		}
		return &object.List{Elements: out}, true, nil
	case "items":
		out := make([]object.Value, len(d.Entries))
		for i, e := range d.Entries {
			out[i] = &object.Tuple{Elements: []object.Value{e.Key, e.Value}}
		}
		return &object.List{Elements: out}, true, nil
	case "pop":
		if len(args) < 1 || len(args) > 2 {
			return nil, true, newGuestError("TypeError", "pop() takes one or two arguments")
		}
		for i, e := range d.Entries {
			if sameValue(e.Key, args[0]) {
				d.Entries = append(d.Entries[:i], d.Entries[i+1:]...)
				it.notifyMutation(d)
				return e.Value, true, nil
			}
		}
		if len(args) == 2 {
			return args[1], true, nil
		}
		return nil, true, newGuestError("KeyError", "%s", args[0].String())
	case "update":
		if len(args) != 1 {
			return nil, true, newGuestError("TypeError", "update() takes exactly one argument")
		}
		other, ok := args[0].(*object.Dict)
		if !ok {
			return nil, true, newGuestError("TypeError", "update() argument must be a dict")
		}
		for _, e := range other.Entries {
			d.Set(e.Key, e.Value)
		}
		it.notifyMutation(d)
		return object.NoneValue, true, nil
	case "copy":
		return &object.Dict{Entries: append([]object.DictEntry{}, d.Entries...)}, true, nil
	case "clear":
		d.Entries = nil
		it.notifyMutation(d)
		return object.NoneValue, true, nil
	default:
		return nil, false, nil
	}
}

func setMethod(it *Interpreter, s *object.GuestSet, name string, args []object.Value) (object.Value, bool, error) {
	switch name {
	case "add":
		if len(args) != 1 {
			return nil, true, newGuestError("TypeError", "add() takes exactly one argument")
		}
		s.Add(args[0])
		it.notifyMutation(s)
		return object.NoneValue, true, nil
	case "remove":
		if len(args) != 1 {
			return nil, true, newGuestError("TypeError", "remove() takes exactly one argument")
		}
		for i, e := range s.Elements {
			if sameValue(e, args[0]) {
				s.Elements = append(s.Elements[:i], s.Elements[i+1:]...)
				it.notifyMutation(s)
				return object.NoneValue, true, nil
			}
		}
		return nil, true, newGuestError("KeyError", "%s", args[0].String())
	case "discard":
		if len(args) != 1 {
			return nil, true, newGuestError("TypeError", "discard() takes exactly one argument")
		}
		for i, e := range s.Elements {
			if sameValue(e, args[0]) {
				s.Elements = append(s.Elements[:i], s.Elements[i+1:]...)
				it.notifyMutation(s)
				break
			}
		}
		return object.NoneValue, true, nil
	case "pop":
		if len(s.Elements) == 0 {
			return nil, true, newGuestError("KeyError", "pop from an empty set")
		}
		val := s.Elements[0]
		s.Elements = s.Elements[1:]
		it.notifyMutation(s)
		return val, true, nil
	case "union":
		ns := &object.GuestSet{Elements: append([]object.Value{}, s.Elements...)}
		for _, a := range args {
			elems, err := iterate(a)
			if err != nil {
				return nil, true, err
			}
			for _, e := range elems {
				ns.Add(e)
			}
		}
		return ns, true, nil
	case "copy":
		return &object.GuestSet{Elements: append([]object.Value{}, s.Elements...)}, true, nil
	default:
		return nil, false, nil
	}
}

func tupleMethod(t *object.Tuple, name string, args []object.Value) (object.Value, bool, error) {
	switch name {
	case "count":
		if len(args) != 1 {
			return nil, true, newGuestError("TypeError", "count() takes exactly one argument")
		}
		n := 0
		for _, e := range t.Elements {
			if sameValue(e, args[0]) {
				n++
			}
		}
		return object.Int(n), true, nil
	case "index":
		if len(args) != 1 {
			return nil, true, newGuestError("TypeError", "index() takes exactly one argument")
		}
		for i, e := range t.Elements {
			if sameValue(e, args[0]) {
				return object.Int(i), true, nil
			}
		}
		return nil, true, newGuestError("ValueError", "%s is not in tuple", args[0].String())
	default:
		return nil, false, nil
	}
}

func strMethod(s object.Str, name string, args []object.Value) (object.Value, bool, error) {
	switch name {
	case "upper":
		return object.Str(strings.ToUpper(string(s))), true, nil
	case "lower":
		return object.Str(strings.ToLower(string(s))), true, nil
	case "strip":
		return object.Str(strings.TrimSpace(string(s))), true, nil
	case "split":
		var parts []string
		if len(args) == 0 {
			parts = strings.Fields(string(s))
		} else {
			parts = strings.Split(string(s), displayString(args[0]))
		}
		out := make([]object.Value, len(parts))
		for i, p := range parts {
			out[i] = object.Str(p)
		}
		return &object.List{Elements: out}, true, nil
	case "replace":
		if len(args) != 2 {
			return nil, true, newGuestError("TypeError", "replace() takes exactly two arguments")
		}
		return object.Str(strings.ReplaceAll(string(s), displayString(args[0]), displayString(args[1]))), true, nil
	case "join":
		if len(args) != 1 {
			return nil, true, newGuestError("TypeError", "join() takes exactly one argument")
		}
		elems, err := iterate(args[0])
		if err != nil {
			return nil, true, err
		}
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = displayString(e)
		}
		return object.Str(strings.Join(parts, string(s))), true, nil
	case "startswith":
		if len(args) != 1 {
			return nil, true, newGuestError("TypeError", "startswith() takes exactly one argument")
		}
		return object.Bool(strings.HasPrefix(string(s), displayString(args[0]))), true, nil
	case "endswith":
		if len(args) != 1 {
			return nil, true, newGuestError("TypeError", "endswith() takes exactly one argument")
		}
		return object.Bool(strings.HasSuffix(string(s), displayString(args[0]))), true, nil
	default:
		return nil, false, nil
	}
}

// sameValue is the equality rule list/dict/set/tuple methods use to
// locate an element: same runtime type and the same display form.
func sameValue(a, b object.Value) bool {
	return a.Type() == b.Type() && a.String() == b.String()
}

// clampedIndex implements Python's list.insert index clamping: out-of-range
// indices saturate to the nearest valid position instead of erroring.
func clampedIndex(v object.Value, length int) (int, error) {
	iv, ok := v.(object.Int)
	if !ok {
		return 0, newGuestError("TypeError", "insert() index must be an integer")
	}
	i := int(iv)
	if i < 0 {
		i += length
		if i < 0 {
			i = 0
		}
	}
	if i > length {
		i = length
	}
	return i, nil
}
