package interp

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"pytrace/internal/lang/object"
)

// DefaultBuiltins returns the full catalog of builtins this interpreter
// can expose; the restricted environment (internal/sandbox) installs the
// subset named in its whitelist, so this catalog is a superset, not a
// promise that every name is reachable from guest code.
func DefaultBuiltins() map[string]BuiltinFunc {
	return map[string]BuiltinFunc{
		"print": builtinPrint,
		"input": builtinInput,
		"open":  builtinOpen,
		"len":   builtinLen,
		"range": builtinRange,
		"str":   builtinStr,
		"int":   builtinInt,
		"float": builtinFloat,
		"bool":  builtinBool,
		"abs":   builtinAbs,
		"min":   builtinMin,
		"max":   builtinMax,
		"sum":   builtinSum,
		"list":  builtinList,
		"tuple": builtinTuple,
		"set":   builtinSet,
		"dict":  builtinDict,
		"type":  builtinType,
		"sorted": builtinSorted,
	}
}

func builtinPrint(it *Interpreter, args []object.Value) (object.Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = displayString(a)
	}
	it.Stdout.WriteString(strings.Join(parts, " "))
	it.Stdout.WriteString("\n")
	return object.NoneValue, nil
}

func displayString(v object.Value) string {
	if s, ok := v.(object.Str); ok {
		return string(s)
	}
	return v.String()
}

// builtinInput reads the next scripted input line. With no lines left,
// per the restricted environment's contract it never blocks: it writes
// the prompt to the stdout buffer and returns an empty string.
func builtinInput(it *Interpreter, args []object.Value) (object.Value, error) {
	prompt := ""
	if len(args) > 0 {
		prompt = displayString(args[0])
	}
	if it.inputIdx >= len(it.inputLines) {
		it.Stdout.WriteString(prompt)
		return object.Str(""), nil
	}
	line := it.inputLines[it.inputIdx]
	it.inputIdx++
	it.Stdout.WriteString(prompt)
	return object.Str(line), nil
}

func builtinOpen(it *Interpreter, args []object.Value) (object.Value, error) {
	return nil, newGuestError("PermissionError", "file access is not permitted in this environment")
}

func builtinLen(it *Interpreter, args []object.Value) (object.Value, error) {
	if len(args) != 1 {
		return nil, newGuestError("TypeError", "len() takes exactly one argument (%d given)", len(args))
	}
	switch v := args[0].(type) {
	case object.Str:
		return object.Int(len(v)), nil
	case *object.List:
		return object.Int(len(v.Elements)), nil
	case *object.Tuple:
		return object.Int(len(v.Elements)), nil
	case *object.Dict:
		return object.Int(len(v.Entries)), nil
	case *object.GuestSet:
		return object.Int(len(v.Elements)), nil
	default:
		return nil, newGuestError("TypeError", "object of type '%s' has no len()", v.Type())
	}
}

func builtinRange(it *Interpreter, args []object.Value) (object.Value, error) {
	var start, stop, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		stop = int64(mustInt(args[0]))
	case 2:
		start = int64(mustInt(args[0]))
		stop = int64(mustInt(args[1]))
	case 3:
		start = int64(mustInt(args[0]))
		stop = int64(mustInt(args[1]))
		step = int64(mustInt(args[2]))
	default:
		return nil, newGuestError("TypeError", "range expected 1 to 3 arguments, got %d", len(args))
	}
	if step == 0 {
		return nil, newGuestError("ValueError", "range() arg 3 must not be zero")
	}
	var elems []object.Value
	if step > 0 {
		for i := start; i < stop; i += step {
			elems = append(elems, object.Int(i))
		}
	} else {
		for i := start; i > stop; i += step {
			elems = append(elems, object.Int(i))
		}
	}
	return &object.List{Elements: elems}, nil
}

func mustInt(v object.Value) int64 {
	if i, ok := v.(object.Int); ok {
		return int64(i)
	}
	if f, ok := v.(object.Float); ok {
		return int64(f)
	}
	return 0
}

func builtinStr(it *Interpreter, args []object.Value) (object.Value, error) {
	if len(args) == 0 {
		return object.Str(""), nil
	}
	return object.Str(displayString(args[0])), nil
}

func builtinInt(it *Interpreter, args []object.Value) (object.Value, error) {
	if len(args) == 0 {
		return object.Int(0), nil
	}
	switch v := args[0].(type) {
	case object.Int:
		return v, nil
	case object.Float:
		return object.Int(int64(v)), nil
	case object.Bool:
		if v {
			return object.Int(1), nil
		}
		return object.Int(0), nil
	case object.Str:
		n, err := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		if err != nil {
			return nil, newGuestError("ValueError", "invalid literal for int() with base 10: '%s'", v)
		}
		return object.Int(n), nil
	default:
		return nil, newGuestError("TypeError", "int() argument must be a string or a number")
	}
}

func builtinFloat(it *Interpreter, args []object.Value) (object.Value, error) {
	if len(args) == 0 {
		return object.Float(0), nil
	}
	switch v := args[0].(type) {
	case object.Float:
		return v, nil
	case object.Int:
		return object.Float(v), nil
	case object.Str:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		if err != nil {
			return nil, newGuestError("ValueError", "could not convert string to float: '%s'", v)
		}
		return object.Float(f), nil
	default:
		return nil, newGuestError("TypeError", "float() argument must be a string or a number")
	}
}

func builtinBool(it *Interpreter, args []object.Value) (object.Value, error) {
	if len(args) == 0 {
		return object.Bool(false), nil
	}
	return object.Bool(object.Truthy(args[0])), nil
}

func builtinAbs(it *Interpreter, args []object.Value) (object.Value, error) {
	if len(args) != 1 {
		return nil, newGuestError("TypeError", "abs() takes exactly one argument")
	}
	switch v := args[0].(type) {
	case object.Int:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case object.Float:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	default:
		return nil, newGuestError("TypeError", "bad operand type for abs(): '%s'", v.Type())
	}
}

func builtinMin(it *Interpreter, args []object.Value) (object.Value, error) {
	return extremum(args, false)
}

func builtinMax(it *Interpreter, args []object.Value) (object.Value, error) {
	return extremum(args, true)
}

func extremum(args []object.Value, wantMax bool) (object.Value, error) {
	elems := args
	if len(args) == 1 {
		if l, ok := args[0].(*object.List); ok {
			elems = l.Elements
		}
	}
	if len(elems) == 0 {
		return nil, newGuestError("ValueError", "arg is an empty sequence")
	}
	best := elems[0]
	bestF, _ := asFloat(best)
	for _, e := range elems[1:] {
		f, _ := asFloat(e)
		if (wantMax && f > bestF) || (!wantMax && f < bestF) {
			best, bestF = e, f
		}
	}
	return best, nil
}

func builtinSum(it *Interpreter, args []object.Value) (object.Value, error) {
	if len(args) == 0 {
		return nil, newGuestError("TypeError", "sum() takes at least one argument")
	}
	l, ok := args[0].(*object.List)
	if !ok {
		return nil, newGuestError("TypeError", "sum() argument must be a list")
	}
	var total float64
	allInt := true
	for _, e := range l.Elements {
		f, ok := asFloat(e)
		if !ok {
			return nil, newGuestError("TypeError", "unsupported operand type for sum()")
		}
		if _, isInt := e.(object.Int); !isInt {
			allInt = false
		}
		total += f
	}
	if allInt {
		return object.Int(int64(total)), nil
	}
	return object.Float(total), nil
}

func builtinList(it *Interpreter, args []object.Value) (object.Value, error) {
	if len(args) == 0 {
		return &object.List{}, nil
	}
	elems, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	return &object.List{Elements: append([]object.Value{}, elems...)}, nil
}

func builtinTuple(it *Interpreter, args []object.Value) (object.Value, error) {
	if len(args) == 0 {
		return &object.Tuple{}, nil
	}
	elems, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	return &object.Tuple{Elements: append([]object.Value{}, elems...)}, nil
}

func builtinSet(it *Interpreter, args []object.Value) (object.Value, error) {
	s := &object.GuestSet{}
	if len(args) == 0 {
		return s, nil
	}
	elems, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	for _, e := range elems {
		s.Add(e)
	}
	return s, nil
}

func builtinDict(it *Interpreter, args []object.Value) (object.Value, error) {
	return &object.Dict{}, nil
}

func builtinType(it *Interpreter, args []object.Value) (object.Value, error) {
	if len(args) != 1 {
		return nil, newGuestError("TypeError", "type() takes exactly one argument")
	}
	return object.Str(fmt.Sprintf("<class '%s'>", args[0].Type())), nil
}

func builtinSorted(it *Interpreter, args []object.Value) (object.Value, error) {
	if len(args) != 1 {
		return nil, newGuestError("TypeError", "sorted() takes exactly one argument")
	}
	elems, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	out := append([]object.Value{}, elems...)
	sort.SliceStable(out, func(i, j int) bool {
		fi, iok := asFloat(out[i])
		fj, jok := asFloat(out[j])
		if iok && jok {
			return fi < fj
		}
		return out[i].String() < out[j].String()
	})
	return &object.List{Elements: out}, nil
}
