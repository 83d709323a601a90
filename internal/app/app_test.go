package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pytrace/internal/result"
)

const testConfig = `
app:
  name: "pytrace-test"
  log_level: "error"
  log_format: "text"
server:
  host: "127.0.0.1"
  port: 0
metrics:
  port: 0
supervisor:
  max_execution_time: 2s
  max_memory_mb: 64
  max_steps: 1000
  workers: 2
sandbox:
  max_code_length: 4096
  max_output_length: 4096
`

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(testConfig), 0o644))

	application, err := New(configFile)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Stop() })
	return application
}

func TestNewWiresEveryCoreComponent(t *testing.T) {
	application := newTestApp(t)

	assert.NotNil(t, application.supervisor)
	assert.NotNil(t, application.sessions)
	assert.NotNil(t, application.auth)
	assert.NotNil(t, application.observer)
	assert.NotNil(t, application.httpServer)
	assert.NotNil(t, application.metricsServer)
	assert.Nil(t, application.limiter, "rate limiting defaults to disabled")
	assert.Nil(t, application.reloader, "hot reload defaults to disabled")
}

func TestHealthHandlerReportsPoolOccupancy(t *testing.T) {
	application := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	application.healthHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 2, body["max_workers"])
}

func TestSamplesHandlerReturnsCatalog(t *testing.T) {
	application := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/samples", nil)
	rec := httptest.NewRecorder()
	application.samplesHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var programs []map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &programs))
	assert.NotEmpty(t, programs)
}

func TestSessionGetHandlerUnknownSession(t *testing.T) {
	application := newTestApp(t)
	application.sessions.Complete("known", result.ExecutionResult{Status: result.StatusCompleted})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/missing", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "missing"})
	rec := httptest.NewRecorder()
	application.sessionGetHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteHandlerRejectsOversizeCode(t *testing.T) {
	application := newTestApp(t)

	oversized := make([]byte, application.config.Sandbox.MaxCodeLength+1)
	for i := range oversized {
		oversized[i] = 'x'
	}
	body, err := json.Marshal(map[string]string{"code": string(oversized)})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	application.executeHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var res result.ExecutionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, result.StatusError, res.Status)
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, splitLines(""))
	assert.Equal(t, []string{"a", "b"}, splitLines("a\nb"))
	assert.Equal(t, []string{"a", "b", "c"}, splitLines("a\nb\nc\n"))
}
