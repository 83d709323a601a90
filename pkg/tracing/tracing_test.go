package tracing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewManagerDisabledReturnsNoopTracer(t *testing.T) {
	m, err := NewManager(Config{Enabled: false}, newTestLogger())

	require.NoError(t, err)
	require.NotNil(t, m.Tracer())
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestSpanRecordsAttributesAndErrors(t *testing.T) {
	m, err := NewManager(Config{Enabled: false}, newTestLogger())
	require.NoError(t, err)

	span := StartSpan(context.Background(), m.Tracer(), "op")
	span.SetAttribute("steps", 3)
	span.SetError(errors.New("boom"))
	span.End()

	assert.Equal(t, "unknown", span.TraceID())
}

func TestInstrumentedExecuteRunsAndPropagatesError(t *testing.T) {
	m, err := NewManager(Config{Enabled: false}, newTestLogger())
	require.NoError(t, err)

	inst := NewInstrumented(m.Tracer(), "validate")

	ranWith := false
	runErr := inst.Execute(context.Background(), func(s *Span) error {
		ranWith = true
		s.SetAttribute("ok", true)
		return nil
	})
	require.NoError(t, runErr)
	assert.True(t, ranWith)

	wantErr := errors.New("validation failed")
	gotErr := inst.Execute(context.Background(), func(s *Span) error { return wantErr })
	assert.ErrorIs(t, gotErr, wantErr)
}

func TestHTTPMiddlewareCallsNext(t *testing.T) {
	m, err := NewManager(Config{Enabled: false}, newTestLogger())
	require.NoError(t, err)

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	handler := HTTPMiddleware(m.Tracer(), "test.request")(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/execute", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExtractIDsWithoutSpanReturnsEmpty(t *testing.T) {
	traceID, spanID := ExtractIDs(context.Background())
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)
}
