package interp

import (
	"testing"

	"pytrace/internal/lang/object"
	"pytrace/internal/lang/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, source string) *Interpreter {
	t.Helper()
	module, err := parser.Parse(source)
	require.NoError(t, err)

	globals := NewEnvironment(nil)
	it := New(globals, "<test>", nil)
	for name, fn := range DefaultBuiltins() {
		it.Builtins[name] = fn
	}
	require.NoError(t, it.Run(module))
	return it
}

func TestArithmeticAndAssignment(t *testing.T) {
	it := run(t, "x = 1 + 2 * 3\n")
	v, ok := it.Globals.Get("x")
	require.True(t, ok)
	assert.Equal(t, object.Int(7), v)
}

func TestWhileLoopAccumulates(t *testing.T) {
	it := run(t, "i = 0\ntotal = 0\nwhile i < 5:\n    total = total + i\n    i = i + 1\n")
	v, _ := it.Globals.Get("total")
	assert.Equal(t, object.Int(10), v)
}

func TestFunctionCallReturnsValue(t *testing.T) {
	it := run(t, "def square(n):\n    return n * n\nresult = square(4)\n")
	v, _ := it.Globals.Get("result")
	assert.Equal(t, object.Int(16), v)
}

func TestPrintWritesStdoutBuffer(t *testing.T) {
	it := run(t, "print(\"hello\")\n")
	assert.Equal(t, "hello\n", it.Stdout.String())
}

func TestHookObservesLineAndCallEvents(t *testing.T) {
	module, err := parser.Parse("def f():\n    return 1\nx = f()\n")
	require.NoError(t, err)

	globals := NewEnvironment(nil)
	it := New(globals, "<test>", nil)
	var kinds []EventKind
	it.InstallHook(func(ev Event) bool {
		kinds = append(kinds, ev.Kind)
		return true
	})
	require.NoError(t, it.Run(module))

	assert.Equal(t, EventKind("start"), kinds[0])
	assert.Contains(t, kinds, EventCall)
	assert.Contains(t, kinds, EventReturn)
	assert.Equal(t, EventKind("end"), kinds[len(kinds)-1])
}

func TestListAliasingSharesIdentity(t *testing.T) {
	it := run(t, "a = [1, 2]\nb = a\n")
	av, _ := it.Globals.Get("a")
	bv, _ := it.Globals.Get("b")
	assert.Same(t, av.(*object.List), bv.(*object.List))
}

func TestListAppendMutatesSharedIdentity(t *testing.T) {
	it := run(t, "a = [1, 2]\nb = a\nb.append(3)\n")
	av, _ := it.Globals.Get("a")
	assert.Equal(t, []object.Value{object.Int(1), object.Int(2), object.Int(3)}, av.(*object.List).Elements)
}

func TestListAppendSelfBuildsCycle(t *testing.T) {
	it := run(t, "a = []\na.append(a)\n")
	av, _ := it.Globals.Get("a")
	l := av.(*object.List)
	require.Len(t, l.Elements, 1)
	assert.Same(t, l, l.Elements[0].(*object.List))
}

func TestDictMethodsGetAndUpdate(t *testing.T) {
	it := run(t, "d = {}\nd.update({\"a\": 1})\nv = d.get(\"a\")\nmissing = d.get(\"z\", -1)\n")
	v, _ := it.Globals.Get("v")
	assert.Equal(t, object.Int(1), v)
	missing, _ := it.Globals.Get("missing")
	assert.Equal(t, object.Int(-1), missing)
}

func TestTernaryExpressionEvaluatesBothBranches(t *testing.T) {
	it := run(t, "def f(n):\n    return f(n-1) if n else 0\nresult = f(5)\n")
	v, _ := it.Globals.Get("result")
	assert.Equal(t, object.Int(0), v)
}

func TestMutationHookFiresOnAppendAndIndexAssign(t *testing.T) {
	module, err := parser.Parse("a = [1]\na.append(2)\na[0] = 9\n")
	require.NoError(t, err)
	globals := NewEnvironment(nil)
	it := New(globals, "<test>", nil)
	for name, fn := range DefaultBuiltins() {
		it.Builtins[name] = fn
	}
	count := 0
	it.InstallMutationHook(func(object.Value) { count++ })
	require.NoError(t, it.Run(module))
	assert.Equal(t, 2, count)
}

func TestDivisionByZeroRaisesGuestError(t *testing.T) {
	module, err := parser.Parse("x = 1 / 0\n")
	require.NoError(t, err)
	globals := NewEnvironment(nil)
	it := New(globals, "<test>", nil)
	err = it.Run(module)
	require.Error(t, err)
	errType, _ := AsGuestError(err)
	assert.Equal(t, "ZeroDivisionError", errType)
}
