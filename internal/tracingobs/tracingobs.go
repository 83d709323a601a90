// Package tracingobs wires pkg/tracing's OpenTelemetry wrapper around one
// Supervisor.Execute call: a parent span named "execute" for the whole
// request plus one child span named "validate" that wraps the call into
// the supervisor; no separate span is opened for trace collection.
package tracingobs

import (
	"context"

	oteltrace "go.opentelemetry.io/otel/trace"

	"pytrace/internal/result"
	"pytrace/pkg/tracing"
)

// Observer instruments guest executions with spans when tracing is
// enabled, and is a harmless no-op wrapper when it is not.
type Observer struct {
	tracer oteltrace.Tracer
}

// New builds an Observer from a started tracing.Manager. Passing a nil
// manager yields an Observer whose Execute just calls through.
func New(manager *tracing.Manager) *Observer {
	if manager == nil {
		return &Observer{}
	}
	return &Observer{tracer: manager.Tracer()}
}

// Execute runs fn — a call into Supervisor.Execute — under a span named
// "execute", recording the session id, the resulting status, step count,
// and (on failure) the error message as span attributes.
func (o *Observer) Execute(ctx context.Context, sessionID string, fn func(context.Context) result.ExecutionResult) result.ExecutionResult {
	if o.tracer == nil {
		return fn(ctx)
	}

	span := tracing.StartSpan(ctx, o.tracer, "execute")
	defer span.End()
	span.SetAttribute("session_id", sessionID)

	validate := span.Child("validate")
	res := fn(validate.Context())
	validate.End()

	span.SetAttribute("status", string(res.Status))
	if res.Trace != nil {
		span.SetAttribute("steps", len(res.Trace.Steps))
	}
	if res.ErrorMessage != "" {
		span.AddEvent("execution_failed")
		span.SetAttribute("error_message", res.ErrorMessage)
	}
	return res
}
