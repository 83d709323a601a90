// Package result defines the supervisor's typed output values: the trace
// step/frame/heap-object/variable shapes and the terminal ExecutionResult
// (spec §3, §6). Purely descriptive — no behavior.
package result

// VariableKind is the closed tag set spec §3 assigns to every guest value.
type VariableKind string

const (
	KindInt      VariableKind = "int"
	KindFloat    VariableKind = "float"
	KindBool     VariableKind = "bool"
	KindStr      VariableKind = "str"
	KindNone     VariableKind = "none"
	KindList     VariableKind = "list"
	KindTuple    VariableKind = "tuple"
	KindDict     VariableKind = "dict"
	KindSet      VariableKind = "set"
	KindFunction VariableKind = "function"
	KindClass    VariableKind = "class"
	KindInstance VariableKind = "instance"
	KindModule   VariableKind = "module"
	KindOther    VariableKind = "other"
)

// IsHeapKind reports whether kind carries identity and may be aliased.
// The heap kinds are {List, Tuple, Dict, Set, Instance} per spec §3.
func (k VariableKind) IsHeapKind() bool {
	switch k {
	case KindList, KindTuple, KindDict, KindSet, KindInstance:
		return true
	default:
		return false
	}
}

// HeapRef is a one-hop link to another HeapObject within the same trace.
type HeapRef struct {
	Ref  int64        `json:"ref"`
	Kind VariableKind `json:"kind"`
}

// StructureElement is either an inline scalar or a HeapRef.
type StructureElement struct {
	Scalar interface{} `json:"scalar,omitempty"`
	Ref    *HeapRef    `json:"ref,omitempty"`
}

// HeapObject is one entry in a trace's heap registry (spec §3).
type HeapObject struct {
	ID         int64              `json:"id"`
	Kind       VariableKind       `json:"kind"`
	TypeName   string             `json:"type_name"`
	Display    string             `json:"display"`
	Structure  []StructureElement `json:"structure,omitempty"`
	Keys       []string           `json:"keys,omitempty"` // dict key display strings, parallel to Structure
	Length     int                `json:"length"`
	SizeBytes  int64              `json:"size_bytes,omitempty"`
	References []int64            `json:"references"`
	Truncated  bool               `json:"truncated"`
}

// Variable is a name binding inside a Frame (spec §3).
type Variable struct {
	Name       string       `json:"name"`
	Kind       VariableKind `json:"kind"`
	TypeName   string       `json:"type_name"`
	Display    string       `json:"display"`
	HeapID     *int64       `json:"heap_id,omitempty"`
	Length     int          `json:"length,omitempty"`
	IsMutable  bool         `json:"is_mutable"`
	IsSequence bool         `json:"is_sequence"`
	Repr       string       `json:"repr"`
}

// Frame is one level of the visible call stack at a given step.
type Frame struct {
	FunctionName   string              `json:"function_name"`
	Line           int                 `json:"line"`
	SourceFilename string              `json:"source_filename"`
	Locals         map[string]Variable `json:"locals"`
	GlobalNames    []string            `json:"global_names"`
	IsModuleLevel  bool                `json:"is_module_level"`
}

// Clone deep-copies a Frame: the copy shares no Locals map or GlobalNames
// slice with f.
func (f Frame) Clone() Frame {
	locals := make(map[string]Variable, len(f.Locals))
	for k, v := range f.Locals {
		locals[k] = v
	}
	globals := make([]string, len(f.GlobalNames))
	copy(globals, f.GlobalNames)

	clone := f
	clone.Locals = locals
	clone.GlobalNames = globals
	return clone
}

// ExecutionEvent is the kind of step emitted by the trace collector.
type ExecutionEvent string

const (
	EventStart     ExecutionEvent = "start"
	EventLine      ExecutionEvent = "line"
	EventCall      ExecutionEvent = "call"
	EventReturn    ExecutionEvent = "return"
	EventException ExecutionEvent = "exception"
	EventEnd       ExecutionEvent = "end"
)

// ExceptionInfo is the {type, message} payload of an Exception step.
type ExceptionInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ExecutionStep is one entry in a finished trace (spec §3).
type ExecutionStep struct {
	Step           int64          `json:"step"`
	Line           int            `json:"line"`
	SourceLineText string         `json:"source_line_text"`
	Event          ExecutionEvent `json:"event"`
	CallFunction   string         `json:"call_function,omitempty"`
	ReturnValue    *StructureElement `json:"return_value,omitempty"`
	Exception      *ExceptionInfo `json:"exception,omitempty"`
	Frames         []Frame        `json:"frames"`
	Heap           []HeapObject   `json:"heap"`
	StdoutDelta    string         `json:"stdout_delta"`
	TimestampSecs  float64        `json:"timestamp_seconds,omitempty"`
}

// TraceData is the complete record of one execution (spec §3).
type TraceData struct {
	Code            string          `json:"code"`
	Steps           []ExecutionStep `json:"steps"`
	TotalSteps      int             `json:"total_steps"`
	MaxStepsReached bool            `json:"max_steps_reached"`
}

// Status is the supervisor's terminal outcome tag (spec §3, §6).
type Status string

const (
	StatusCompleted         Status = "completed"
	StatusError              Status = "error"
	StatusTimeout            Status = "timeout"
	StatusSecurityViolation Status = "security_violation"
	StatusCancelled          Status = "cancelled"
)

// ExecutionResult is the supervisor's single typed return value (spec §3, §6).
type ExecutionResult struct {
	Status                Status     `json:"status"`
	Trace                 *TraceData `json:"trace,omitempty"`
	Stdout                string     `json:"stdout"`
	Stderr                string     `json:"stderr,omitempty"`
	ErrorMessage           string     `json:"error_message,omitempty"`
	ExecutionTimeSeconds float64    `json:"execution_time_seconds"`
}
