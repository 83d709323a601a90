package supervisor

import "pytrace/internal/result"

// WorkerRequest is the JSON payload the supervisor writes to a worker
// subprocess's stdin.
type WorkerRequest struct {
	Source           string   `json:"source"`
	Input            []string `json:"input"`
	MaxSteps         int      `json:"max_steps"`
	MaxMemoryMB      int      `json:"max_memory_mb"`
	MaxExecutionTime float64  `json:"max_execution_time_seconds"`
	MaxCodeLength    int      `json:"max_code_length"`
	MaxLineCount     int      `json:"max_line_count"`
	MaxIndentColumns int      `json:"max_indent_columns"`
	AllowedBuiltins  []string `json:"allowed_builtins"`
	BlockedModules   []string `json:"blocked_modules"`
	AllowedModules   []string `json:"allowed_modules"`
}

// WorkerResponse is the JSON payload a worker subprocess writes to its
// stdout: either a completed trace or a rejection reason.
type WorkerResponse struct {
	Status    result.Status     `json:"status"`
	Trace     *result.TraceData `json:"trace,omitempty"`
	Stdout    string            `json:"stdout"`
	Stderr    string            `json:"stderr,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}
