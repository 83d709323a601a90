// Package app: HTTP handlers and route registration. Handler shape and
// the middleware-composition pattern follow the teacher's own
// registerHandlers/healthHandler (see internal/app package doc).
package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"pytrace/internal/httputil"
	"pytrace/internal/result"
	"pytrace/internal/seed"
	"pytrace/pkg/ratelimit"
)

// metricsMiddleware is the innermost layer of every handler's middleware
// chain, always applied regardless of which ambient features are
// enabled — mirroring the teacher's own "metrics first" composition.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware rejects requests once the adaptive limiter is
// exhausted, recording the outcome's latency back into the limiter so it
// keeps adapting.
func rateLimitMiddleware(limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		start := time.Now()
		next.ServeHTTP(w, r)
		limiter.RecordLatency(time.Since(start))
	})
}

// registerHandlers mounts every route behind the ordered middleware chain
// routerMiddleware builds for that route's (resource, action) pair.
//
// Endpoints:
//
//	POST /api/v1/execute              run a guest snippet and return its trace
//	GET  /api/v1/sessions/{id}         fetch the last result for a session
//	POST /api/v1/sessions/{id}/cancel  cancel an in-flight execution
//	GET  /api/v1/samples               list canned sample programs
//	GET  /healthz                      liveness + worker pool occupancy
//	GET  /api/v1/status                 detailed operational statistics
func (app *App) registerHandlers(router *mux.Router) {
	execute := app.routerMiddleware("execute", "write")
	sessionRead := app.routerMiddleware("session", "read")
	health := app.routerMiddleware("health", "read")
	status := app.routerMiddleware("status", "read")

	router.Handle("/api/v1/execute", execute(httputil.CompressionMiddleware(http.HandlerFunc(app.executeHandler)))).Methods("POST")
	router.Handle("/api/v1/sessions/{id}", sessionRead(httputil.CompressionMiddleware(http.HandlerFunc(app.sessionGetHandler)))).Methods("GET")
	router.Handle("/api/v1/sessions/{id}/cancel", sessionRead(http.HandlerFunc(app.sessionCancelHandler))).Methods("POST")
	router.Handle("/api/v1/samples", health(http.HandlerFunc(app.samplesHandler))).Methods("GET")
	router.Handle("/healthz", health(http.HandlerFunc(app.healthHandler))).Methods("GET")
	router.Handle("/api/v1/status", status(http.HandlerFunc(app.statusHandler))).Methods("GET")
}

// executeRequest is the wire shape of spec §6's ExecuteRequest.
type executeRequest struct {
	Code      string   `json:"code"`
	Input     string   `json:"input"`
	SessionID string   `json:"session_id,omitempty"`
	Options   *options `json:"options,omitempty"`
}

type options struct {
	Trace    bool `json:"trace"`
	MaxSteps int  `json:"max_steps"`
}

// executeHandler runs POST /api/v1/execute: decode, bound-check against
// MAX_CODE_LENGTH/MAX_OUTPUT_LENGTH (spec §6's transport-layer
// responsibility, see spec §9's open question on stdout capping), hand
// off to the supervisor under the session's cancellation context, and
// write back the ExecutionResult as JSON. Every status in spec §6's
// table maps to HTTP 200 — the status field itself carries the outcome.
func (app *App) executeHandler(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Code) == 0 || len(req.Code) > app.config.Sandbox.MaxCodeLength {
		writeJSON(w, http.StatusOK, result.ExecutionResult{
			Status:       result.StatusError,
			ErrorMessage: "code length out of bounds",
		})
		return
	}
	if len(req.Input) > app.config.Sandbox.MaxOutputLength {
		req.Input = req.Input[:app.config.Sandbox.MaxOutputLength]
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = mux.Vars(r)["id"]
	}
	ctx := app.sessions.Begin(r.Context(), sessionID)

	res := app.observer.Execute(ctx, sessionID, func(ctx context.Context) result.ExecutionResult {
		return app.supervisor.Execute(ctx, req.Code, splitLines(req.Input), sessionID)
	})

	if sessionID != "" {
		app.sessions.Complete(sessionID, res)
	}
	writeJSON(w, http.StatusOK, res)
}

// splitLines turns the scripted-input blob into the line list
// internal/sandbox's input() replacement consumes, one line per call.
func splitLines(input string) []string {
	if input == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(input); i++ {
		if input[i] == '\n' {
			lines = append(lines, input[start:i])
			start = i + 1
		}
	}
	if start < len(input) {
		lines = append(lines, input[start:])
	}
	return lines
}

// sessionGetHandler serves GET /api/v1/sessions/{id}: the most recent
// ExecutionResult recorded for that session, per internal/session.
func (app *App) sessionGetHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	res, ok := app.sessions.Get(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// sessionCancelHandler serves POST /api/v1/sessions/{id}/cancel: invokes
// the session's cancellation handle (spec §5, "Cancellation"). A
// wall-clock timeout still takes precedence if both fire.
func (app *App) sessionCancelHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !app.sessions.Cancel(id) {
		writeJSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// samplesHandler serves GET /api/v1/samples: the canned catalog a
// frontend's "load a sample" affordance pulls from.
func (app *App) samplesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, seed.Programs)
}

// healthHandler serves GET /healthz: liveness plus worker pool
// occupancy and circuit breaker state, the information an orchestrator's
// readiness probe needs.
func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	poolStats := app.supervisor.PoolStats()
	circuitOpen := app.supervisor.CircuitState().String() == "open"

	status := "healthy"
	code := http.StatusOK
	if circuitOpen {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":         status,
		"active_workers": poolStats.ActiveWorkers,
		"max_workers":    poolStats.MaxWorkers,
		"queue_depth":    poolStats.QueuedTasks,
		"circuit_open":   circuitOpen,
	})
}

// statusHandler serves GET /api/v1/status: a superset of healthHandler
// with session-store occupancy and, when rate limiting is enabled, its
// current adapted RPS/burst.
func (app *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	poolStats := app.supervisor.PoolStats()
	body := map[string]interface{}{
		"pool":             poolStats,
		"circuit_state":    app.supervisor.CircuitState().String(),
		"active_sessions":  app.sessions.Len(),
		"app_name":         app.config.App.Name,
		"app_version":      app.config.App.Version,
	}
	if app.limiter != nil {
		body["rate_limit"] = app.limiter.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
