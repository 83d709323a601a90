// Package interp is a tree-walking evaluator for the guest language's
// ast.Module. It exposes a per-line/per-call/per-return/per-exception
// event hook — the same shape CPython's sys.settrace gives a profiler —
// so a trace collector can observe execution without touching the
// evaluator's internals.
package interp

import (
	"pytrace/internal/lang/ast"
	"pytrace/internal/lang/object"
)

// EventKind is the kind of a hook Event.
type EventKind string

const (
	EventStart     EventKind = "start"
	EventLine      EventKind = "line"
	EventCall      EventKind = "call"
	EventReturn    EventKind = "return"
	EventException EventKind = "exception"
	EventEnd       EventKind = "end"
)

// StackFrame is one level of the interpreter's call stack at the moment
// a hook fires.
type StackFrame struct {
	FunctionName   string
	Line           int
	SourceFilename string
	Env            *Environment
	IsModuleLevel  bool
}

// Event is delivered to the installed HookFunc on every traced occurrence.
type Event struct {
	Kind             EventKind
	Line             int
	Frames           []StackFrame // outermost to innermost, at time of event
	CallFunction     string
	ReturnValue      object.Value
	ExceptionType    string
	ExceptionMessage string
}

// HookFunc observes interpreter events. Returning false tells the
// interpreter tracing has been disabled (e.g. a step budget was
// exhausted); the interpreter keeps running but stops delivering events.
type HookFunc func(Event) bool

// BuiltinFunc is a callable implemented in Go and exposed to guest code.
type BuiltinFunc func(it *Interpreter, args []object.Value) (object.Value, error)

const defaultMaxCallDepth = 500

// Interpreter evaluates one parsed module against a global environment.
type Interpreter struct {
	Globals        *Environment
	SourceFilename string
	Builtins       map[string]BuiltinFunc
	MaxCallDepth   int

	Stdout strBuffer

	inputLines []string
	inputIdx   int

	hook    HookFunc
	stack   []StackFrame
	tracing bool

	mutated MutationHook
}

// MutationHook is notified whenever guest code mutates a heap-kind value
// already in existence — index/attribute assignment, or a built-in
// container method such as append/pop/update (internal/lang/interp's
// methods.go). A trace collector installs this alongside its event hook
// so the heap registry can re-serialize its stored snapshot in place,
// rather than only ever serializing a container on first observation.
type MutationHook func(object.Value)

// InstallMutationHook installs hook as the active mutation callback,
// returning the previously-installed one, mirroring InstallHook.
func (it *Interpreter) InstallMutationHook(hook MutationHook) MutationHook {
	prev := it.mutated
	it.mutated = hook
	return prev
}

func (it *Interpreter) notifyMutation(v object.Value) {
	if it.mutated != nil {
		it.mutated(v)
	}
}

// strBuffer is the minimal string accumulator print/input write to; kept
// as its own type so tests can reset and inspect it without importing
// strings.Builder semantics directly.
type strBuffer struct{ data string }

func (b *strBuffer) WriteString(s string) { b.data += s }
func (b *strBuffer) String() string       { return b.data }
func (b *strBuffer) Drain() string {
	s := b.data
	b.data = ""
	return s
}

// New creates an interpreter over globals, with sourceFilename attributed
// to every frame (the collector uses it to recognize internal frames).
func New(globals *Environment, sourceFilename string, scriptedInput []string) *Interpreter {
	return &Interpreter{
		Globals:        globals,
		SourceFilename: sourceFilename,
		Builtins:       map[string]BuiltinFunc{},
		MaxCallDepth:   defaultMaxCallDepth,
		inputLines:     scriptedInput,
	}
}

// InstallHook installs hook as the active event callback, returning the
// previously-installed one so callers can restore it on exit — the
// interpreter itself does not auto-restore, mirroring sys.settrace.
func (it *Interpreter) InstallHook(hook HookFunc) HookFunc {
	prev := it.hook
	it.hook = hook
	it.tracing = hook != nil
	return prev
}

func (it *Interpreter) fire(ev Event) {
	if !it.tracing || it.hook == nil {
		return
	}
	ev.Frames = it.snapshotFrames()
	if !it.hook(ev) {
		it.tracing = false
	}
}

func (it *Interpreter) snapshotFrames() []StackFrame {
	out := make([]StackFrame, len(it.stack))
	copy(out, it.stack)
	return out
}

// Run executes module's top level under the current hook, firing
// Start/End/Exception bootstrap and teardown events as required.
func (it *Interpreter) Run(module *ast.Module) error {
	it.stack = []StackFrame{{
		FunctionName:   "<module>",
		Line:           1,
		SourceFilename: it.SourceFilename,
		Env:            it.Globals,
		IsModuleLevel:  true,
	}}
	it.tracing = it.hook != nil
	it.fire(Event{Kind: EventStart, Line: 1})

	sig, _, err := it.execBlock(module.Body, it.Globals, "<module>", true)
	_ = sig

	if err != nil {
		errType, msg := AsGuestError(err)
		it.fire(Event{Kind: EventException, Line: it.currentLine(), ExceptionType: errType, ExceptionMessage: msg})
		return err
	}
	it.fire(Event{Kind: EventEnd, Line: it.currentLine()})
	return nil
}

func (it *Interpreter) currentLine() int {
	if len(it.stack) == 0 {
		return 0
	}
	return it.stack[len(it.stack)-1].Line
}

func (it *Interpreter) setLine(line int) {
	if len(it.stack) == 0 {
		return
	}
	it.stack[len(it.stack)-1].Line = line
}

// control-flow signal returned internally by statement execution.
type signal int

const (
	sigNone signal = iota
	sigBreak
	sigContinue
	sigReturn
)

func (it *Interpreter) execBlock(b *ast.Block, env *Environment, fn string, emitLine bool) (signal, object.Value, error) {
	for _, stmt := range b.Statements {
		if emitLine {
			it.setLine(stmt.Line())
			it.fire(Event{Kind: EventLine, Line: stmt.Line()})
		}
		sig, val, err := it.execStmt(stmt, env, fn)
		if err != nil || sig != sigNone {
			return sig, val, err
		}
	}
	return sigNone, nil, nil
}

func (it *Interpreter) execStmt(n ast.Node, env *Environment, fn string) (signal, object.Value, error) {
	switch s := n.(type) {
	case *ast.Assign:
		v, err := it.Eval(s.Value, env)
		if err != nil {
			return sigNone, nil, err
		}
		if err := it.assign(s.Target, v, env); err != nil {
			return sigNone, nil, err
		}
		return sigNone, nil, nil

	case *ast.ExprStmt:
		_, err := it.Eval(s.X, env)
		return sigNone, nil, err

	case *ast.If:
		cond, err := it.Eval(s.Cond, env)
		if err != nil {
			return sigNone, nil, err
		}
		if object.Truthy(cond) {
			return it.execBlock(s.Then, env, fn, true)
		} else if s.Else != nil {
			return it.execBlock(s.Else, env, fn, true)
		}
		return sigNone, nil, nil

	case *ast.While:
		for {
			cond, err := it.Eval(s.Cond, env)
			if err != nil {
				return sigNone, nil, err
			}
			if !object.Truthy(cond) {
				break
			}
			sig, val, err := it.execBlock(s.Body, env, fn, true)
			if err != nil {
				return sigNone, nil, err
			}
			if sig == sigBreak {
				break
			}
			if sig == sigReturn {
				return sig, val, nil
			}
		}
		return sigNone, nil, nil

	case *ast.For:
		iterable, err := it.Eval(s.Iterable, env)
		if err != nil {
			return sigNone, nil, err
		}
		elems, err := iterate(iterable)
		if err != nil {
			return sigNone, nil, err
		}
		for _, el := range elems {
			env.Set(s.Target, el)
			sig, val, err := it.execBlock(s.Body, env, fn, true)
			if err != nil {
				return sigNone, nil, err
			}
			if sig == sigBreak {
				break
			}
			if sig == sigReturn {
				return sig, val, nil
			}
		}
		return sigNone, nil, nil

	case *ast.FuncDef:
		f := &object.Function{Name: s.Name, Params: s.Params, Body: s.Body, Env: env}
		env.Define(s.Name, f)
		return sigNone, nil, nil

	case *ast.ClassDef:
		methods := map[string]*object.Function{}
		for _, m := range s.Methods {
			methods[m.Name] = &object.Function{Name: m.Name, Params: m.Params, Body: m.Body, Env: env}
		}
		env.Define(s.Name, &object.Class{Name: s.Name, Methods: methods})
		return sigNone, nil, nil

	case *ast.Return:
		if s.Value == nil {
			return sigReturn, object.NoneValue, nil
		}
		v, err := it.Eval(s.Value, env)
		if err != nil {
			return sigNone, nil, err
		}
		return sigReturn, v, nil

	case *ast.Pass:
		return sigNone, nil, nil

	case *ast.Break:
		return sigBreak, nil, nil

	case *ast.Continue:
		return sigContinue, nil, nil

	default:
		return sigNone, nil, newGuestError("RuntimeError", "unsupported statement %T", n)
	}
}

func (it *Interpreter) assign(target ast.Node, v object.Value, env *Environment) error {
	switch t := target.(type) {
	case *ast.Ident:
		env.Set(t.Name, v)
		return nil
	case *ast.Index:
		x, err := it.Eval(t.X, env)
		if err != nil {
			return err
		}
		key, err := it.Eval(t.Key, env)
		if err != nil {
			return err
		}
		switch container := x.(type) {
		case *object.List:
			idx, err := intIndex(key, len(container.Elements))
			if err != nil {
				return err
			}
			container.Elements[idx] = v
			it.notifyMutation(container)
			return nil
		case *object.Dict:
			container.Set(key, v)
			it.notifyMutation(container)
			return nil
		default:
			return newGuestError("TypeError", "%s does not support item assignment", x.Type())
		}
	case *ast.Attribute:
		x, err := it.Eval(t.X, env)
		if err != nil {
			return err
		}
		inst, ok := x.(*object.Instance)
		if !ok {
			return newGuestError("AttributeError", "cannot set attribute on %s", x.Type())
		}
		inst.Attrs[t.Name] = v
		it.notifyMutation(inst)
		return nil
	default:
		return newGuestError("SyntaxError", "invalid assignment target")
	}
}

func iterate(v object.Value) ([]object.Value, error) {
	switch x := v.(type) {
	case *object.List:
		return x.Elements, nil
	case *object.Tuple:
		return x.Elements, nil
	case *object.GuestSet:
		return x.Elements, nil
	case object.Str:
		out := make([]object.Value, 0, len(x))
		for _, r := range string(x) {
			out = append(out, object.Str(string(r)))
		}
		return out, nil
	case *object.Dict:
		out := make([]object.Value, 0, len(x.Entries))
		for _, e := range x.Entries {
			out = append(out, e.Key)
		}
		return out, nil
	default:
		return nil, newGuestError("TypeError", "%s is not iterable", v.Type())
	}
}

func intIndex(v object.Value, length int) (int, error) {
	iv, ok := v.(object.Int)
	if !ok {
		return 0, newGuestError("TypeError", "indices must be integers")
	}
	i := int(iv)
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, newGuestError("IndexError", "index out of range")
	}
	return i, nil
}
