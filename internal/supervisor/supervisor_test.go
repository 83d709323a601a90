package supervisor

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pytrace/internal/result"
)

// inProcessSpawner runs the worker body directly, standing in for the
// real OS-process spawner so these tests never exec a binary.
type inProcessSpawner struct {
	delay time.Duration
}

func (s *inProcessSpawner) Run(ctx context.Context, req WorkerRequest) (WorkerResponse, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return WorkerResponse{}, ctx.Err()
		}
	}
	return RunInWorker(req), nil
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestSupervisor(t *testing.T, sp spawner) *Supervisor {
	t.Helper()
	cfg := Config{
		MaxExecutionTime: time.Second,
		MaxMemoryMB:      64,
		MaxSteps:         1000,
		Workers:          2,
		MaxCodeLength:    10000,
		AllowedBuiltins:  []string{"len", "range"},
	}
	s := newWithSpawner(cfg, testLogger(), sp)
	t.Cleanup(s.Shutdown)
	return s
}

func TestExecuteReturnsCompletedTrace(t *testing.T) {
	s := newTestSupervisor(t, &inProcessSpawner{})
	res := s.Execute(context.Background(), "x = 1\ny = 2\n", nil, "sess-1")
	require.Equal(t, result.StatusCompleted, res.Status)
	assert.NotNil(t, res.Trace)
}

func TestExecuteReturnsErrorOnSyntaxError(t *testing.T) {
	s := newTestSupervisor(t, &inProcessSpawner{})
	res := s.Execute(context.Background(), "x = (\n", nil, "sess-2")
	assert.Equal(t, result.StatusError, res.Status)
}

func TestExecuteReturnsSecurityViolationForBlockedImport(t *testing.T) {
	s := newTestSupervisor(t, &inProcessSpawner{})
	res := s.Execute(context.Background(), "import os\n", nil, "sess-3")
	assert.Equal(t, result.StatusSecurityViolation, res.Status)
}

func TestExecuteTimesOutSlowWorker(t *testing.T) {
	s := newTestSupervisor(t, &inProcessSpawner{delay: 5 * time.Second})
	s.cfg.MaxExecutionTime = 50 * time.Millisecond
	res := s.Execute(context.Background(), "x = 1\n", nil, "sess-4")
	assert.Equal(t, result.StatusTimeout, res.Status)
}

// Spec §8 scenario 6: an uncaught guest exception is a Completed run —
// the trace itself describes the failure via its final Exception step.
func TestExecuteCompletesWithExceptionStepOnGuestError(t *testing.T) {
	s := newTestSupervisor(t, &inProcessSpawner{})
	res := s.Execute(context.Background(), "1/0\n", nil, "sess-5")
	require.Equal(t, result.StatusCompleted, res.Status)
	require.NotNil(t, res.Trace)
	require.NotEmpty(t, res.Trace.Steps)
	last := res.Trace.Steps[len(res.Trace.Steps)-1]
	require.Equal(t, result.EventException, last.Event)
	require.NotNil(t, last.Exception)
	assert.Equal(t, "ZeroDivisionError", last.Exception.Type)
}

// Spec §7(d): recursion-depth exhaustion is a resource termination, not
// a describable guest exception, so it surfaces as Error.
func TestExecuteReturnsErrorOnRecursionLimit(t *testing.T) {
	s := newTestSupervisor(t, &inProcessSpawner{})
	res := s.Execute(context.Background(), "def f(n):\n    return f(n+1)\nf(0)\n", nil, "sess-6")
	assert.Equal(t, result.StatusError, res.Status)
}
