package supervisor

import (
	"pytrace/internal/lang/interp"
	"pytrace/internal/lang/parser"
	"pytrace/internal/result"
	"pytrace/internal/sandbox"
	"pytrace/internal/tracecollector"
)

// RunInWorker is the worker-subprocess body (C4 validate, C6 collect) —
// exactly the step-3 "in the worker" half of the supervisor's pipeline.
// It is a free function rather than a Supervisor method so cmd/pytrace-worker
// can call it directly without linking any of the supervisor's pooling,
// circuit-breaking, or process-management machinery.
func RunInWorker(req WorkerRequest) WorkerResponse {
	source := sandbox.SanitizeCode(req.Source)

	verdict := sandbox.Validate(source, sandbox.Config{
		MaxCodeLength:    req.MaxCodeLength,
		MaxLineCount:     req.MaxLineCount,
		MaxIndentColumns: req.MaxIndentColumns,
		BlockedModules:   req.BlockedModules,
		AllowedModules:   req.AllowedModules,
	})
	if !verdict.Allowed {
		return WorkerResponse{
			Status:       result.StatusSecurityViolation,
			ErrorMessage: verdict.Reason,
			Trace:        &result.TraceData{Code: source},
		}
	}

	module, err := parser.Parse(source)
	if err != nil {
		return WorkerResponse{
			Status:       result.StatusError,
			ErrorMessage: err.Error(),
			Trace:        &result.TraceData{Code: source},
		}
	}

	it := sandbox.BuildGlobals("snippet.gs", req.Input, req.AllowedBuiltins)
	collector := tracecollector.New(req.MaxSteps)

	trace, runErr := collector.Collect(source, it, module)
	stdout := traceStdout(trace)

	if runErr != nil {
		errType, msg := interp.AsGuestError(runErr)
		if isResourceTermination(errType) {
			// Spec §7(d): recursion/memory/CPU exhaustion is a resource
			// termination, not a describable guest exception — the trace
			// is partial and the supervisor reports Error, not Completed.
			return WorkerResponse{
				Status:       result.StatusError,
				Trace:        &trace,
				Stdout:       stdout,
				ErrorMessage: "execution terminated: " + errType + ": " + msg,
			}
		}
		// Spec §7(c): an uncaught guest exception is already recorded as
		// the trace's final Exception step (interp.Run fires it before
		// returning runErr), so the trace fully describes the failure —
		// the run itself is Completed.
		return WorkerResponse{
			Status: result.StatusCompleted,
			Trace:  &trace,
			Stdout: stdout,
		}
	}

	return WorkerResponse{
		Status: result.StatusCompleted,
		Trace:  &trace,
		Stdout: stdout,
	}
}

// isResourceTermination reports whether errType names a resource-ceiling
// failure (spec §7(d)) rather than an ordinary guest-visible exception
// (spec §7(c)).
func isResourceTermination(errType string) bool {
	switch errType {
	case "RecursionError", "MemoryError":
		return true
	default:
		return false
	}
}

// traceStdout sums every step's stdout delta — the contract the trace
// collector's Frame snapshots rely on (spec §4.4).
func traceStdout(trace result.TraceData) string {
	var out string
	for _, step := range trace.Steps {
		out += step.StdoutDelta
	}
	return out
}
