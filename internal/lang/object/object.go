// Package object defines the runtime value representation for the guest
// language interpreter (internal/lang/interp). Heap-kind values (List,
// Tuple, Dict, Set, Instance) are represented as pointers so their Go
// pointer identity doubles as the guest object identity the heap registry
// (internal/heap) keys on.
package object

import "fmt"

// Type names the concrete kind of a Value, independent of the classifier's
// VariableKind tag (internal/classifier maps Type to VariableKind).
type Type string

const (
	IntType      Type = "int"
	FloatType    Type = "float"
	BoolType     Type = "bool"
	StrType      Type = "str"
	NoneType     Type = "NoneType"
	ListType     Type = "list"
	TupleType    Type = "tuple"
	DictType     Type = "dict"
	SetType      Type = "set"
	FunctionType Type = "function"
	ClassType    Type = "type"
	InstanceType Type = "instance"
)

// Value is any guest-language runtime value.
type Value interface {
	Type() Type
	String() string
}

// Int is a guest integer.
type Int int64

func (Int) Type() Type          { return IntType }
func (i Int) String() string    { return fmt.Sprintf("%d", int64(i)) }

// Float is a guest float.
type Float float64

func (Float) Type() Type       { return FloatType }
func (f Float) String() string { return fmt.Sprintf("%g", float64(f)) }

// Bool is a guest boolean.
type Bool bool

func (Bool) Type() Type { return BoolType }
func (b Bool) String() string {
	if b {
		return "True"
	}
	return "False"
}

// Str is a guest string.
type Str string

func (Str) Type() Type       { return StrType }
func (s Str) String() string { return string(s) }

// None is the guest null value; a single shared instance, no identity.
type None struct{}

func (None) Type() Type     { return NoneType }
func (None) String() string { return "None" }

// NoneValue is the canonical None instance.
var NoneValue = None{}

// List is a mutable, ordered, heap-kind container.
type List struct {
	Elements []Value
}

func (*List) Type() Type { return ListType }
func (l *List) String() string {
	return fmt.Sprintf("list[%d]", len(l.Elements))
}

// Tuple is an immutable, ordered, heap-kind container. Spec §4.3: tuples
// participate in the heap despite immutability because they form part of
// the visible object graph.
type Tuple struct {
	Elements []Value
}

func (*Tuple) Type() Type { return TupleType }
func (t *Tuple) String() string {
	return fmt.Sprintf("tuple[%d]", len(t.Elements))
}

// DictEntry is one key/value pair, in insertion order.
type DictEntry struct {
	Key   Value
	Value Value
}

// Dict is a mutable, insertion-ordered, heap-kind mapping.
type Dict struct {
	Entries []DictEntry
}

func (*Dict) Type() Type { return DictType }
func (d *Dict) String() string {
	return fmt.Sprintf("dict[%d]", len(d.Entries))
}

// Get returns the value for key and whether it was present.
func (d *Dict) Get(key Value) (Value, bool) {
	k := key.String()
	for _, e := range d.Entries {
		if e.Key.String() == k {
			return e.Value, true
		}
	}
	return nil, false
}

// Set assigns key to value, preserving first-insertion order.
func (d *Dict) Set(key, value Value) {
	k := key.String()
	for i, e := range d.Entries {
		if e.Key.String() == k {
			d.Entries[i].Value = value
			return
		}
	}
	d.Entries = append(d.Entries, DictEntry{Key: key, Value: value})
}

// GuestSet is a mutable, unordered (insertion-ordered for display), heap-kind
// collection of unique elements.
type GuestSet struct {
	Elements []Value
}

func (*GuestSet) Type() Type { return SetType }
func (s *GuestSet) String() string {
	return fmt.Sprintf("set[%d]", len(s.Elements))
}

// Add inserts value if not already present, by string equality.
func (s *GuestSet) Add(value Value) {
	for _, e := range s.Elements {
		if e.String() == value.String() {
			return
		}
	}
	s.Elements = append(s.Elements, value)
}

// Function is a guest-defined callable, carrying identity only insofar
// as closures over the same def share it; tagged Function
// (not a heap kind per spec §3's closed heap-kind set).
type Function struct {
	Name   string
	Params []string
	Body   interface{} // *ast.Block, typed as interface{} to avoid an import cycle
	Env    interface{} // *interp.Environment, same reason
}

func (*Function) Type() Type { return FunctionType }
func (f *Function) String() string {
	return fmt.Sprintf("<function %s>", f.Name)
}

// Class is a guest class object.
type Class struct {
	Name    string
	Methods map[string]*Function
}

func (*Class) Type() Type     { return ClassType }
func (c *Class) String() string { return fmt.Sprintf("<class %s>", c.Name) }

// Instance is a guest object instance, the canonical heap kind with
// identity and mutable attribute state.
type Instance struct {
	Class *Class
	Attrs map[string]Value
}

func (*Instance) Type() Type { return InstanceType }
func (i *Instance) String() string {
	name := "object"
	if i.Class != nil {
		name = i.Class.Name
	}
	return fmt.Sprintf("<%s instance>", name)
}

// Truthy implements the guest language's truthiness rules for
// if/while conditions.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case Bool:
		return bool(x)
	case None:
		return false
	case Int:
		return x != 0
	case Float:
		return x != 0
	case Str:
		return len(x) > 0
	case *List:
		return len(x.Elements) > 0
	case *Tuple:
		return len(x.Elements) > 0
	case *Dict:
		return len(x.Entries) > 0
	case *GuestSet:
		return len(x.Elements) > 0
	default:
		return true
	}
}
