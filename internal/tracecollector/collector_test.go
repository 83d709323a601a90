package tracecollector

import (
	"testing"

	"pytrace/internal/lang/interp"
	"pytrace/internal/lang/parser"
	"pytrace/internal/result"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInterp(t *testing.T) *interp.Interpreter {
	t.Helper()
	globals := interp.NewEnvironment(nil)
	it := interp.New(globals, "snippet.gs", nil)
	for name, fn := range interp.DefaultBuiltins() {
		it.Builtins[name] = fn
	}
	return it
}

func TestCollectProducesStartAndEndSteps(t *testing.T) {
	module, err := parser.Parse("x = 1\ny = 2\n")
	require.NoError(t, err)

	c := New(0)
	trace, err := c.Collect("x = 1\ny = 2\n", newInterp(t), module)
	require.NoError(t, err)

	require.NotEmpty(t, trace.Steps)
	assert.Equal(t, result.EventStart, trace.Steps[0].Event)
	assert.Equal(t, result.EventEnd, trace.Steps[len(trace.Steps)-1].Event)
	assert.Equal(t, len(trace.Steps), trace.TotalSteps)
}

func TestCollectCapturesLocalsInFrame(t *testing.T) {
	module, err := parser.Parse("x = 42\n")
	require.NoError(t, err)

	c := New(0)
	trace, err := c.Collect("x = 42\n", newInterp(t), module)
	require.NoError(t, err)

	found := false
	for _, step := range trace.Steps {
		for _, f := range step.Frames {
			if v, ok := f.Locals["x"]; ok {
				found = true
				assert.Equal(t, "42", v.Repr)
			}
		}
	}
	assert.True(t, found)
}

func TestCollectTruncatesAtMaxSteps(t *testing.T) {
	module, err := parser.Parse("i = 0\nwhile i < 100:\n    i = i + 1\n")
	require.NoError(t, err)

	c := New(3)
	trace, _ := c.Collect("i = 0\nwhile i < 100:\n    i = i + 1\n", newInterp(t), module)

	assert.True(t, trace.MaxStepsReached)
	assert.Len(t, trace.Steps, 3)
}

func TestCollectHeapSnapshotReflectsMutation(t *testing.T) {
	source := "a = [1, 2]\nb = a\nb.append(3)\nprint(a)\n"
	module, err := parser.Parse(source)
	require.NoError(t, err)

	c := New(0)
	trace, err := c.Collect(source, newInterp(t), module)
	require.NoError(t, err)

	var last *result.HeapObject
	for i := range trace.Steps {
		for j := range trace.Steps[i].Heap {
			h := &trace.Steps[i].Heap[j]
			if h.Kind == result.KindList {
				last = h
			}
		}
	}
	require.NotNil(t, last)
	assert.Equal(t, 3, last.Length)
}

func TestCollectRecordsUncaughtExceptionStep(t *testing.T) {
	module, err := parser.Parse("x = 1 / 0\n")
	require.NoError(t, err)

	c := New(0)
	trace, err := c.Collect("x = 1 / 0\n", newInterp(t), module)
	require.Error(t, err)

	last := trace.Steps[len(trace.Steps)-1]
	require.Equal(t, result.EventException, last.Event)
	assert.Equal(t, "ZeroDivisionError", last.Exception.Type)
}
