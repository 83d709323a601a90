package taskmanager

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := New(Config{HeartbeatInterval: time.Millisecond, TaskTimeout: 50 * time.Millisecond, CleanupInterval: 10 * time.Millisecond}, logger)
	t.Cleanup(m.Close)
	return m
}

func TestManagerRunsTaskToCompletion(t *testing.T) {
	m := newTestManager(t)

	done := make(chan struct{})
	require.NoError(t, m.Start(context.Background(), "a", func(ctx context.Context) error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}

	require.Eventually(t, func() bool {
		return m.Status("a").State == StateCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestManagerRecordsFailure(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Start(context.Background(), "b", func(ctx context.Context) error {
		return errors.New("boom")
	}))

	require.Eventually(t, func() bool {
		return m.Status("b").State == StateFailed
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "boom", m.Status("b").LastError)
}

func TestManagerCancelStopsRunningTask(t *testing.T) {
	m := newTestManager(t)

	started := make(chan struct{})
	require.NoError(t, m.Start(context.Background(), "c", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))

	<-started
	require.NoError(t, m.Cancel("c"))

	assert.Equal(t, StateStopped, m.Status("c").State)
}

func TestManagerUnknownTaskStatus(t *testing.T) {
	m := newTestManager(t)

	assert.Equal(t, StateNotFound, m.Status("missing").State)
	assert.Error(t, m.Heartbeat("missing"))
	assert.Error(t, m.Cancel("missing"))
}

func TestManagerHeartbeatPreventsReap(t *testing.T) {
	m := newTestManager(t)

	stop := make(chan struct{})
	require.NoError(t, m.Start(context.Background(), "d", func(ctx context.Context) error {
		<-stop
		return nil
	}))

	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, m.Heartbeat("d"))
	}

	assert.Equal(t, StateRunning, m.Status("d").State)
	close(stop)
}
