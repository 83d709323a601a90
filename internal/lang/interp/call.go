package interp

import (
	"pytrace/internal/lang/ast"
	"pytrace/internal/lang/object"
)

func (it *Interpreter) evalCall(e *ast.Call, env *Environment) (object.Value, error) {
	args, err := it.evalList(e.Args, env)
	if err != nil {
		return nil, err
	}

	if attr, ok := e.Fn.(*ast.Attribute); ok {
		receiver, err := it.Eval(attr.X, env)
		if err != nil {
			return nil, err
		}
		if inst, ok := receiver.(*object.Instance); ok {
			if inst.Class != nil {
				if m, ok := inst.Class.Methods[attr.Name]; ok {
					callArgs := append([]object.Value{inst}, args...)
					return it.callFunction(m, callArgs)
				}
			}
			return nil, newGuestError("AttributeError", "'%s' object has no attribute '%s'", inst.Type(), attr.Name)
		}
		if v, handled, err := callBuiltinMethod(it, receiver, attr.Name, args); handled {
			return v, err
		}
		fnVal, err := it.evalAttribute(attr, env)
		if err != nil {
			return nil, err
		}
		return it.invoke(fnVal, args)
	}

	if ident, ok := e.Fn.(*ast.Ident); ok {
		if v, ok := env.Get(ident.Name); ok {
			return it.invoke(v, args)
		}
		if builtin, ok := it.Builtins[ident.Name]; ok {
			return builtin(it, args)
		}
		return nil, newGuestError("NameError", "name '%s' is not defined", ident.Name)
	}

	fnVal, err := it.Eval(e.Fn, env)
	if err != nil {
		return nil, err
	}
	return it.invoke(fnVal, args)
}

func (it *Interpreter) invoke(fnVal object.Value, args []object.Value) (object.Value, error) {
	switch f := fnVal.(type) {
	case *object.Function:
		return it.callFunction(f, args)
	case *object.Class:
		return it.instantiate(f, args)
	default:
		return nil, newGuestError("TypeError", "'%s' object is not callable", fnVal.Type())
	}
}

func (it *Interpreter) instantiate(cls *object.Class, args []object.Value) (object.Value, error) {
	inst := &object.Instance{Class: cls, Attrs: map[string]object.Value{}}
	if init, ok := cls.Methods["__init__"]; ok {
		callArgs := append([]object.Value{inst}, args...)
		if _, err := it.callFunction(init, callArgs); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// callFunction pushes a call frame, drives the function body, and fires
// the Call/Return hook events around it. The Return event fires while
// the frame is still the top of stack, matching the point at which
// CPython's own trace function observes a 'return' event.
func (it *Interpreter) callFunction(fn *object.Function, args []object.Value) (object.Value, error) {
	if len(it.stack) >= it.MaxCallDepth {
		return nil, newGuestError("RecursionError", "maximum recursion depth exceeded")
	}
	body, ok := fn.Body.(*ast.Block)
	if !ok {
		return nil, newGuestError("RuntimeError", "function %s has no body", fn.Name)
	}
	parentEnv, _ := fn.Env.(*Environment)
	callEnv := NewEnvironment(parentEnv)
	for i, p := range fn.Params {
		if i < len(args) {
			callEnv.Define(p, args[i])
		} else {
			callEnv.Define(p, object.NoneValue)
		}
	}

	line := body.Line()
	if line == 0 {
		line = it.currentLine()
	}
	it.stack = append(it.stack, StackFrame{
		FunctionName:   fn.Name,
		Line:           line,
		SourceFilename: it.SourceFilename,
		Env:            callEnv,
	})
	it.fire(Event{Kind: EventCall, Line: line, CallFunction: fn.Name})

	sig, val, err := it.execBlock(body, callEnv, fn.Name, true)
	if err != nil {
		it.stack = it.stack[:len(it.stack)-1]
		return nil, err
	}

	ret := object.Value(object.NoneValue)
	if sig == sigReturn && val != nil {
		ret = val
	}
	it.fire(Event{Kind: EventReturn, Line: it.currentLine(), ReturnValue: ret})
	it.stack = it.stack[:len(it.stack)-1]
	return ret, nil
}
