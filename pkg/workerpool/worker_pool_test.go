package workerpool

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestPool(t *testing.T, maxWorkers int) *WorkerPool {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	pool := New(Config{MaxWorkers: maxWorkers, QueueSize: 8, WorkerTimeout: time.Second, ShutdownTimeout: time.Second}, logger)
	require.NoError(t, pool.Start())
	t.Cleanup(func() { _ = pool.Stop() })
	return pool
}

func TestWorkerPoolRunsSubmittedTasks(t *testing.T) {
	pool := newTestPool(t, 2)

	var ran int64
	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		err := pool.Submit(Task{
			ID: "task",
			Execute: func(ctx context.Context) error {
				atomic.AddInt64(&ran, 1)
				done <- struct{}{}
				return nil
			},
		})
		require.NoError(t, err)
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for task")
		}
	}

	require.Equal(t, int64(3), atomic.LoadInt64(&ran))
}

func TestWorkerPoolQueueFull(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	pool := New(Config{MaxWorkers: 1, QueueSize: 1, WorkerTimeout: time.Second, ShutdownTimeout: time.Second}, logger)
	require.NoError(t, pool.Start())
	t.Cleanup(func() { _ = pool.Stop() })

	block := make(chan struct{})
	require.NoError(t, pool.Submit(Task{ID: "blocker", Execute: func(ctx context.Context) error {
		<-block
		return nil
	}}))

	// Give the worker time to pick up the blocking task.
	time.Sleep(50 * time.Millisecond)

	// Three fillers take, in turn, the busy worker's one-slot hand-off
	// channel, the dispatcher (blocked handing off to that worker), and the
	// queue's single slot.
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Submit(Task{ID: "filler", Execute: func(ctx context.Context) error { return nil }}))
		time.Sleep(20 * time.Millisecond)
	}

	err := pool.Submit(Task{ID: "overflow", Execute: func(ctx context.Context) error { return nil }})
	require.ErrorIs(t, err, ErrQueueFull)

	close(block)
}

func TestWorkerPoolNoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	pool := New(Config{MaxWorkers: 2, QueueSize: 2, WorkerTimeout: time.Second, ShutdownTimeout: time.Second}, logger)
	require.NoError(t, pool.Start())
	require.NoError(t, pool.Submit(Task{ID: "quick", Execute: func(ctx context.Context) error { return nil }}))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, pool.Stop())
}
