package interp

import (
	"pytrace/internal/lang/ast"
	"pytrace/internal/lang/object"
)

// Eval evaluates an expression node in env.
func (it *Interpreter) Eval(n ast.Node, env *Environment) (object.Value, error) {
	switch e := n.(type) {
	case *ast.IntLit:
		return object.Int(e.Value), nil
	case *ast.FloatLit:
		return object.Float(e.Value), nil
	case *ast.StringLit:
		return object.Str(e.Value), nil
	case *ast.BoolLit:
		return object.Bool(e.Value), nil
	case *ast.NoneLit:
		return object.NoneValue, nil

	case *ast.IfExp:
		cond, err := it.Eval(e.Cond, env)
		if err != nil {
			return nil, err
		}
		if object.Truthy(cond) {
			return it.Eval(e.Then, env)
		}
		return it.Eval(e.Else, env)

	case *ast.Ident:
		if v, ok := env.Get(e.Name); ok {
			return v, nil
		}
		if _, ok := it.Builtins[e.Name]; ok {
			return object.Str("<builtin " + e.Name + ">"), nil // resolved properly at call site
		}
		return nil, newGuestError("NameError", "name '%s' is not defined", e.Name)

	case *ast.ListLit:
		elems, err := it.evalList(e.Elements, env)
		if err != nil {
			return nil, err
		}
		return &object.List{Elements: elems}, nil

	case *ast.TupleLit:
		elems, err := it.evalList(e.Elements, env)
		if err != nil {
			return nil, err
		}
		return &object.Tuple{Elements: elems}, nil

	case *ast.SetLit:
		elems, err := it.evalList(e.Elements, env)
		if err != nil {
			return nil, err
		}
		s := &object.GuestSet{}
		for _, el := range elems {
			s.Add(el)
		}
		return s, nil

	case *ast.DictLit:
		d := &object.Dict{}
		for _, entry := range e.Entries {
			k, err := it.Eval(entry.Key, env)
			if err != nil {
				return nil, err
			}
			v, err := it.Eval(entry.Value, env)
			if err != nil {
				return nil, err
			}
			d.Set(k, v)
		}
		return d, nil

	case *ast.UnaryOp:
		return it.evalUnary(e, env)
	case *ast.BinOp:
		return it.evalBinOp(e, env)
	case *ast.Compare:
		return it.evalCompare(e, env)
	case *ast.BoolOp:
		return it.evalBoolOp(e, env)
	case *ast.Index:
		return it.evalIndex(e, env)
	case *ast.Attribute:
		return it.evalAttribute(e, env)
	case *ast.Call:
		return it.evalCall(e, env)

	default:
		return nil, newGuestError("RuntimeError", "unsupported expression %T", n)
	}
}

func (it *Interpreter) evalList(nodes []ast.Node, env *Environment) ([]object.Value, error) {
	out := make([]object.Value, 0, len(nodes))
	for _, n := range nodes {
		v, err := it.Eval(n, env)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (it *Interpreter) evalUnary(e *ast.UnaryOp, env *Environment) (object.Value, error) {
	x, err := it.Eval(e.X, env)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case "not":
		return object.Bool(!object.Truthy(x)), nil
	case "-":
		switch v := x.(type) {
		case object.Int:
			return -v, nil
		case object.Float:
			return -v, nil
		}
		return nil, newGuestError("TypeError", "bad operand type for unary -: '%s'", x.Type())
	case "+":
		return x, nil
	}
	return nil, newGuestError("RuntimeError", "unknown unary operator %s", e.Op)
}

func (it *Interpreter) evalBoolOp(e *ast.BoolOp, env *Environment) (object.Value, error) {
	left, err := it.Eval(e.Left, env)
	if err != nil {
		return nil, err
	}
	if e.Op == "and" {
		if !object.Truthy(left) {
			return left, nil
		}
		return it.Eval(e.Right, env)
	}
	// or
	if object.Truthy(left) {
		return left, nil
	}
	return it.Eval(e.Right, env)
}

func (it *Interpreter) evalCompare(e *ast.Compare, env *Environment) (object.Value, error) {
	left, err := it.Eval(e.Left, env)
	if err != nil {
		return nil, err
	}
	right, err := it.Eval(e.Right, env)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case "==":
		return object.Bool(valuesEqual(left, right)), nil
	case "!=":
		return object.Bool(!valuesEqual(left, right)), nil
	}

	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if lok && rok {
		switch e.Op {
		case "<":
			return object.Bool(lf < rf), nil
		case "<=":
			return object.Bool(lf <= rf), nil
		case ">":
			return object.Bool(lf > rf), nil
		case ">=":
			return object.Bool(lf >= rf), nil
		}
	}
	if ls, ok := left.(object.Str); ok {
		if rs, ok := right.(object.Str); ok {
			switch e.Op {
			case "<":
				return object.Bool(ls < rs), nil
			case "<=":
				return object.Bool(ls <= rs), nil
			case ">":
				return object.Bool(ls > rs), nil
			case ">=":
				return object.Bool(ls >= rs), nil
			}
		}
	}
	return nil, newGuestError("TypeError", "'%s' not supported between instances of '%s' and '%s'", e.Op, left.Type(), right.Type())
}

func valuesEqual(a, b object.Value) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	if a.Type() != b.Type() {
		return false
	}
	return a.String() == b.String()
}

func asFloat(v object.Value) (float64, bool) {
	switch x := v.(type) {
	case object.Int:
		return float64(x), true
	case object.Float:
		return float64(x), true
	case object.Bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func (it *Interpreter) evalBinOp(e *ast.BinOp, env *Environment) (object.Value, error) {
	left, err := it.Eval(e.Left, env)
	if err != nil {
		return nil, err
	}
	right, err := it.Eval(e.Right, env)
	if err != nil {
		return nil, err
	}

	if e.Op == "+" {
		if ls, ok := left.(object.Str); ok {
			if rs, ok := right.(object.Str); ok {
				return ls + rs, nil
			}
		}
		if ll, ok := left.(*object.List); ok {
			if rl, ok := right.(*object.List); ok {
				combined := append(append([]object.Value{}, ll.Elements...), rl.Elements...)
				return &object.List{Elements: combined}, nil
			}
		}
	}
	if e.Op == "*" {
		if ls, ok := left.(object.Str); ok {
			if ri, ok := right.(object.Int); ok {
				return repeatStr(ls, int(ri)), nil
			}
		}
	}

	li, liok := left.(object.Int)
	ri, riok := right.(object.Int)
	if liok && riok {
		switch e.Op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "/":
			if ri == 0 {
				return nil, newGuestError("ZeroDivisionError", "division by zero")
			}
			return object.Float(float64(li) / float64(ri)), nil
		case "%":
			if ri == 0 {
				return nil, newGuestError("ZeroDivisionError", "modulo by zero")
			}
			return li % ri, nil
		}
	}

	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if lok && rok {
		switch e.Op {
		case "+":
			return object.Float(lf + rf), nil
		case "-":
			return object.Float(lf - rf), nil
		case "*":
			return object.Float(lf * rf), nil
		case "/":
			if rf == 0 {
				return nil, newGuestError("ZeroDivisionError", "division by zero")
			}
			return object.Float(lf / rf), nil
		case "%":
			if rf == 0 {
				return nil, newGuestError("ZeroDivisionError", "modulo by zero")
			}
			return object.Float(float64(int64(lf) % int64(rf))), nil
		}
	}

	return nil, newGuestError("TypeError", "unsupported operand type(s) for %s: '%s' and '%s'", e.Op, left.Type(), right.Type())
}

func repeatStr(s object.Str, n int) object.Str {
	if n <= 0 {
		return ""
	}
	out := ""
	for i := 0; i < n; i++ {
		out += string(s)
	}
	return object.Str(out)
}

func (it *Interpreter) evalIndex(e *ast.Index, env *Environment) (object.Value, error) {
	x, err := it.Eval(e.X, env)
	if err != nil {
		return nil, err
	}
	key, err := it.Eval(e.Key, env)
	if err != nil {
		return nil, err
	}
	switch c := x.(type) {
	case *object.List:
		idx, err := intIndex(key, len(c.Elements))
		if err != nil {
			return nil, err
		}
		return c.Elements[idx], nil
	case *object.Tuple:
		idx, err := intIndex(key, len(c.Elements))
		if err != nil {
			return nil, err
		}
		return c.Elements[idx], nil
	case object.Str:
		idx, err := intIndex(key, len(c))
		if err != nil {
			return nil, err
		}
		return object.Str(string(c)[idx]), nil
	case *object.Dict:
		v, ok := c.Get(key)
		if !ok {
			return nil, newGuestError("KeyError", "%s", key.String())
		}
		return v, nil
	default:
		return nil, newGuestError("TypeError", "'%s' object is not subscriptable", x.Type())
	}
}

func (it *Interpreter) evalAttribute(e *ast.Attribute, env *Environment) (object.Value, error) {
	x, err := it.Eval(e.X, env)
	if err != nil {
		return nil, err
	}
	switch v := x.(type) {
	case *object.Instance:
		if attr, ok := v.Attrs[e.Name]; ok {
			return attr, nil
		}
		if v.Class != nil {
			if m, ok := v.Class.Methods[e.Name]; ok {
				// Receiver binding happens at the call site (evalCall),
				// which special-cases `instance.method(...)` syntax so the
				// receiver becomes the method's first bound parameter.
				return m, nil
			}
		}
		return nil, newGuestError("AttributeError", "'%s' object has no attribute '%s'", v.Type(), e.Name)
	case *object.Class:
		if m, ok := v.Methods[e.Name]; ok {
			return m, nil
		}
		return nil, newGuestError("AttributeError", "type object '%s' has no attribute '%s'", v.Name, e.Name)
	default:
		return nil, newGuestError("AttributeError", "'%s' object has no attribute '%s'", x.Type(), e.Name)
	}
}
