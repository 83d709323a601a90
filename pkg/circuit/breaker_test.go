package circuit

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(cfg Config) *Breaker {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(cfg, logger)
}

func TestBreakerStartsClosedAndAllowsCalls(t *testing.T) {
	b := newTestBreaker(Config{Name: "t", FailureThreshold: 3, SuccessThreshold: 2, Timeout: 100 * time.Millisecond})

	err := b.Execute(func() error { return nil })

	require.NoError(t, err)
	assert.Equal(t, Closed, b.State())
	assert.True(t, b.CanExecute())
}

func TestBreakerOpensAfterThresholdFailures(t *testing.T) {
	b := newTestBreaker(Config{Name: "t", FailureThreshold: 3, SuccessThreshold: 2, Timeout: 100 * time.Millisecond})

	testErr := errors.New("boom")
	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return testErr })
	}

	require.Equal(t, Open, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })

	require.Error(t, err)
	assert.False(t, called, "function must not run while circuit is open")
}

func TestBreakerHalfOpenClosesAfterSuccesses(t *testing.T) {
	b := newTestBreaker(Config{Name: "t", FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond, HalfOpenMaxCalls: 5})

	_ = b.Execute(func() error { return errors.New("boom") })
	require.Equal(t, Open, b.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, HalfOpen, b.State())

	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, Closed, b.State())
}

func TestBreakerHalfOpenReopensOnFailure(t *testing.T) {
	b := newTestBreaker(Config{Name: "t", FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond, HalfOpenMaxCalls: 5})

	_ = b.Execute(func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	err := b.Execute(func() error { return errors.New("still broken") })

	require.Error(t, err)
	assert.Equal(t, Open, b.State())
}

func TestBreakerStateChangeCallback(t *testing.T) {
	b := newTestBreaker(Config{Name: "t", FailureThreshold: 1, SuccessThreshold: 1, Timeout: 10 * time.Millisecond})

	var mu sync.Mutex
	var transitions []string
	b.OnStateChange(func(from, to State) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	_ = b.Execute(func() error { return errors.New("boom") })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestBreakerResetForcesClosed(t *testing.T) {
	b := newTestBreaker(Config{Name: "t", FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute})

	_ = b.Execute(func() error { return errors.New("boom") })
	require.Equal(t, Open, b.State())

	b.Reset()

	assert.Equal(t, Closed, b.State())
	assert.Equal(t, int64(0), b.Stats().Failures)
}

func TestBreakerForceOpen(t *testing.T) {
	b := newTestBreaker(Config{Name: "t"})

	b.ForceOpen()

	assert.Equal(t, Open, b.State())
	assert.False(t, b.CanExecute())
}
