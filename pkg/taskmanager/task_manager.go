// Package taskmanager tracks long-running, cancellable units of work by an
// opaque ID and gives callers heartbeat, cancellation, and status lookup.
// The execution supervisor creates one Manager and closes it on Shutdown;
// Execute does not register its runs with it.
package taskmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config configures a Manager.
type Config struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	TaskTimeout       time.Duration `yaml:"task_timeout"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
}

// State is the lifecycle state of a tracked task.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateStopped   State = "stopped"
	StateNotFound  State = "not_found"
)

// Status is a point-in-time snapshot of a task.
type Status struct {
	ID            string    `json:"id"`
	State         State     `json:"state"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	ErrorCount    int64     `json:"error_count"`
	LastError     string    `json:"last_error,omitempty"`
}

// Manager tracks running tasks keyed by ID.
type Manager struct {
	config Config
	tasks  map[string]*task
	mutex  sync.RWMutex
	logger *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	ID            string
	State         State
	StartedAt     time.Time
	LastHeartbeat time.Time
	ErrorCount    int64
	LastError     string
	Cancel        context.CancelFunc
	Done          chan struct{}
}

// New creates a Manager and starts its background cleanup loop.
func New(config Config, logger *logrus.Logger) *Manager {
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = 30 * time.Second
	}
	if config.TaskTimeout == 0 {
		config.TaskTimeout = 5 * time.Minute
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		config: config,
		tasks:  make(map[string]*task),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.cleanupLoop()
	}()

	return m
}

// Start registers and runs fn as task id. If a task with the same id is
// already running, it is cancelled and awaited first.
func (m *Manager) Start(ctx context.Context, id string, fn func(context.Context) error) error {
	m.mutex.Lock()

	if existing, ok := m.tasks[id]; ok && existing.State == StateRunning {
		existing.Cancel()
		m.mutex.Unlock()
		<-existing.Done
		m.mutex.Lock()
	}

	taskCtx, taskCancel := context.WithCancel(ctx)
	t := &task{
		ID:            id,
		State:         StateRunning,
		StartedAt:     time.Now(),
		LastHeartbeat: time.Now(),
		Cancel:        taskCancel,
		Done:          make(chan struct{}),
	}
	m.tasks[id] = t
	m.mutex.Unlock()

	go m.run(t, taskCtx, fn)

	m.logger.WithField("task_id", id).Info("task started")
	return nil
}

func (m *Manager) run(t *task, ctx context.Context, fn func(context.Context) error) {
	defer close(t.Done)

	defer func() {
		if r := recover(); r != nil {
			m.mutex.Lock()
			t.State = StateFailed
			t.ErrorCount++
			t.LastError = fmt.Sprintf("panic: %v", r)
			m.mutex.Unlock()

			m.logger.WithFields(logrus.Fields{"task_id": t.ID, "error": r}).Error("task panicked")
		}
	}()

	err := fn(ctx)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err != nil {
		t.State = StateFailed
		t.ErrorCount++
		t.LastError = err.Error()
		m.logger.WithFields(logrus.Fields{"task_id": t.ID, "error": err}).Error("task failed")
		return
	}

	t.State = StateCompleted
	t.LastError = ""
	m.logger.WithField("task_id", t.ID).Info("task completed")
}

// Cancel stops a running task and waits for it to exit, bounded by a
// fixed grace period.
func (m *Manager) Cancel(id string) error {
	m.mutex.Lock()
	t, exists := m.tasks[id]
	if !exists {
		m.mutex.Unlock()
		return fmt.Errorf("task %s not found", id)
	}
	if t.State != StateRunning {
		m.mutex.Unlock()
		return fmt.Errorf("task %s is not running", id)
	}
	t.Cancel()
	m.mutex.Unlock()

	select {
	case <-t.Done:
		m.mutex.Lock()
		t.State = StateStopped
		m.mutex.Unlock()
		m.logger.WithField("task_id", id).Info("task stopped")
	case <-time.After(10 * time.Second):
		m.mutex.Lock()
		t.State = StateFailed
		t.LastError = "stop timeout"
		m.mutex.Unlock()
		m.logger.WithField("task_id", id).Warn("task stop timeout")
	}

	return nil
}

// Heartbeat refreshes the liveness timestamp for a task. Callers running a
// long guest program should call this periodically so cleanupLoop doesn't
// mistake a slow-but-alive execution for an orphan.
func (m *Manager) Heartbeat(id string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	t, exists := m.tasks[id]
	if !exists {
		return fmt.Errorf("task %s not found", id)
	}
	t.LastHeartbeat = time.Now()
	return nil
}

// Status returns the current status of a task.
func (m *Manager) Status(id string) Status {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	t, exists := m.tasks[id]
	if !exists {
		return Status{ID: id, State: StateNotFound}
	}
	return statusOf(t)
}

// All returns the status of every tracked task.
func (m *Manager) All() map[string]Status {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make(map[string]Status, len(m.tasks))
	for id, t := range m.tasks {
		result[id] = statusOf(t)
	}
	return result
}

func statusOf(t *task) Status {
	return Status{
		ID:            t.ID,
		State:         t.State,
		StartedAt:     t.StartedAt,
		LastHeartbeat: t.LastHeartbeat,
		ErrorCount:    t.ErrorCount,
		LastError:     t.LastError,
	}
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.cleanupTasks()
		}
	}
}

func (m *Manager) cleanupTasks() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()
	var toDelete []string

	for id, t := range m.tasks {
		if t.State == StateRunning && now.Sub(t.LastHeartbeat) > m.config.TaskTimeout {
			m.logger.WithField("task_id", id).Warn("task heartbeat timeout, cancelling")
			t.Cancel()
			t.State = StateFailed
			t.LastError = "heartbeat timeout"
		}

		if t.State != StateRunning && now.Sub(t.StartedAt) > time.Hour {
			toDelete = append(toDelete, id)
		}
	}

	for _, id := range toDelete {
		delete(m.tasks, id)
		m.logger.WithField("task_id", id).Debug("task record reaped")
	}
}

// Close stops the cleanup loop and cancels every still-running task.
func (m *Manager) Close() {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("task manager stopped cleanly")
	case <-time.After(10 * time.Second):
		m.logger.Warn("timeout waiting for task manager to stop")
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	for id, t := range m.tasks {
		if t.State == StateRunning {
			t.Cancel()
			select {
			case <-t.Done:
			case <-time.After(5 * time.Second):
				m.logger.WithField("task_id", id).Warn("task shutdown timeout")
			}
		}
	}

	m.logger.Info("task manager cleanup completed")
}
