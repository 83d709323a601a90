// Package tracecollector drives the guest interpreter's event hook and
// turns each event into a typed ExecutionStep, delegating value
// shaping to internal/classifier, internal/heap, and internal/serializer.
package tracecollector

import (
	"strings"

	"pytrace/internal/heap"
	"pytrace/internal/lang/ast"
	"pytrace/internal/lang/interp"
	"pytrace/internal/lang/object"
	"pytrace/internal/result"
	"pytrace/internal/serializer"
)

// internalFrameNames mirrors the interpreter-internal names a CPython-
// targeted collector would filter; kept for forward compatibility even
// though this interpreter never produces frames under these names today.
var internalFrameNames = map[string]bool{
	"spawn_main": true, "_main": true, "freeze_support": true,
	"set_start_method": true, "Process": true, "Queue": true,
	"pool": true, "_fork": true, "_forkserver": true,
}

// Collector accumulates one finished trace from a single Run.
type Collector struct {
	registry *heap.Registry
	ser      *serializer.Serializer

	steps    []result.ExecutionStep
	stepNum  int64
	maxSteps int
	truncated bool

	sourceLines []string
	it          *interp.Interpreter
}

// New creates a Collector. maxSteps <= 0 means unbounded.
func New(maxSteps int) *Collector {
	s := serializer.New()
	return &Collector{
		registry: heap.New(s),
		ser:      s,
		maxSteps: maxSteps,
	}
}

// Collect installs itself as it's event hook, runs module, and returns
// the finished trace. The returned error is the guest's uncaught
// exception (if any); the trace itself is always populated up to the
// point execution stopped.
func (c *Collector) Collect(source string, it *interp.Interpreter, module *ast.Module) (result.TraceData, error) {
	c.sourceLines = strings.Split(source, "\n")
	c.it = it

	prev := it.InstallHook(c.onEvent)
	defer it.InstallHook(prev)
	prevM := it.InstallMutationHook(c.onMutation)
	defer it.InstallMutationHook(prevM)

	err := it.Run(module)

	return result.TraceData{
		Code:            source,
		Steps:           c.steps,
		TotalSteps:      len(c.steps),
		MaxStepsReached: c.truncated,
	}, err
}

// onMutation re-serializes an already-registered heap value in place so
// a later step's snapshot reflects an in-place mutation (spec §8
// scenario 2) rather than only ever capturing the value's first
// observed shape.
func (c *Collector) onMutation(v object.Value) {
	c.registry.Refresh(v)
}

func (c *Collector) onEvent(ev interp.Event) bool {
	if c.truncated {
		return false
	}
	if c.maxSteps > 0 && int(c.stepNum) >= c.maxSteps {
		c.truncated = true
		return false
	}

	step := result.ExecutionStep{
		Step:           c.stepNum,
		Line:           ev.Line,
		SourceLineText: c.sourceLineText(ev),
		Event:          result.ExecutionEvent(ev.Kind),
		Frames:         c.buildFrames(ev.Frames),
		Heap:           c.registry.Snapshot(),
		StdoutDelta:    c.it.Stdout.Drain(),
	}

	switch ev.Kind {
	case interp.EventCall:
		step.CallFunction = ev.CallFunction
	case interp.EventReturn:
		el := c.ser.ToReturnValue(ev.ReturnValue, c.registry)
		step.ReturnValue = &el
	case interp.EventException:
		step.Exception = &result.ExceptionInfo{Type: ev.ExceptionType, Message: ev.ExceptionMessage}
	case interp.EventEnd:
		// The End step keeps the frames built above from the
		// interpreter's final stack: a fresh Frame slice, shared with no
		// earlier step, that shows the effect of the last statement.
	}

	c.steps = append(c.steps, step)
	c.stepNum++
	return true
}

func cloneFrames(frames []result.Frame) []result.Frame {
	out := make([]result.Frame, len(frames))
	for i, f := range frames {
		out[i] = f.Clone()
	}
	return out
}

func (c *Collector) sourceLineText(ev interp.Event) string {
	switch ev.Kind {
	case interp.EventStart, interp.EventEnd:
		return ""
	}
	idx := ev.Line - 1
	if idx < 0 || idx >= len(c.sourceLines) {
		return ""
	}
	return strings.TrimRight(c.sourceLines[idx], " \t")
}

func (c *Collector) buildFrames(frames []interp.StackFrame) []result.Frame {
	out := make([]result.Frame, 0, len(frames))
	for _, f := range frames {
		if isInternalFrame(f) {
			continue
		}
		locals := map[string]result.Variable{}
		for _, name := range f.Env.Names() {
			if skipBindingName(name) {
				continue
			}
			v, ok := f.Env.GetLocal(name)
			if !ok {
				continue
			}
			locals[name] = c.ser.ToVariable(name, v, c.registry)
		}

		var globalNames []string
		if c.it != nil {
			for _, name := range c.it.Globals.Names() {
				if skipBindingName(name) {
					continue
				}
				globalNames = append(globalNames, name)
			}
		}

		out = append(out, result.Frame{
			FunctionName:   f.FunctionName,
			Line:           f.Line,
			SourceFilename: f.SourceFilename,
			Locals:         locals,
			GlobalNames:    globalNames,
			IsModuleLevel:  f.IsModuleLevel,
		})
	}
	return out
}

func isInternalFrame(f interp.StackFrame) bool {
	if internalFrameNames[f.FunctionName] {
		return true
	}
	return strings.Contains(f.SourceFilename, "multiprocessing")
}

func skipBindingName(name string) bool {
	if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") {
		return true
	}
	return internalFrameNames[name]
}
