package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordExecutionIncrementsCounterAndHistogram(t *testing.T) {
	registerAll()

	before := testutil.ToFloat64(ExecutionsTotal.WithLabelValues("completed"))
	RecordExecution("completed", 0.25)
	after := testutil.ToFloat64(ExecutionsTotal.WithLabelValues("completed"))

	assert.Equal(t, before+1, after)
}

func TestRecordSecurityViolationIncrementsByReason(t *testing.T) {
	registerAll()

	RecordSecurityViolation("blocked_module_import")
	assert.Equal(t, float64(1), testutil.ToFloat64(SecurityViolationsTotal.WithLabelValues("blocked_module_import")))
}

func TestSetActiveWorkersUpdatesGauge(t *testing.T) {
	registerAll()

	SetActiveWorkers(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(ActiveWorkers))
}

func TestNewServerExposesHealthEndpoint(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s := NewServer("127.0.0.1:0", logger)
	require.NotNil(t, s)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
}
