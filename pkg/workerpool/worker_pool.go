// Package workerpool implements a small fixed-size pool of reusable
// goroutine workers, each pulling tasks off a shared queue. It underlies
// the execution supervisor's bounded concurrency: one task submission per
// trace request, one worker slot held for its duration.
package workerpool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Task is a unit of work submitted to the pool.
type Task struct {
	ID      string
	Execute func(ctx context.Context) error
	Created time.Time
}

// worker pulls tasks off its own channel and runs them.
type worker struct {
	id       int
	pool     *WorkerPool
	taskChan chan Task
	quit     chan struct{}
	active   int64
}

// WorkerPool manages a fixed-size pool of reusable workers.
type WorkerPool struct {
	workers   []*worker
	taskQueue chan Task
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *logrus.Logger
	config    Config

	totalTasks     int64
	activeTasks    int64
	completedTasks int64
	failedTasks    int64

	isRunning bool
	mutex     sync.RWMutex
}

// Config configures the worker pool.
type Config struct {
	MaxWorkers      int           `yaml:"max_workers"`
	QueueSize       int           `yaml:"queue_size"`
	WorkerTimeout   time.Duration `yaml:"worker_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// New creates a new WorkerPool. Unset fields in config are defaulted.
func New(config Config, logger *logrus.Logger) *WorkerPool {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.MaxWorkers * 4
	}
	if config.WorkerTimeout == 0 {
		config.WorkerTimeout = 30 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &WorkerPool{
		taskQueue: make(chan Task, config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		config:    config,
		workers:   make([]*worker, 0, config.MaxWorkers),
	}

	for i := 0; i < config.MaxWorkers; i++ {
		pool.workers = append(pool.workers, &worker{
			id:       i,
			pool:     pool,
			taskChan: make(chan Task, 1),
			quit:     make(chan struct{}),
		})
	}

	return pool
}

// Start launches the pool's worker goroutines and its dispatcher.
func (wp *WorkerPool) Start() error {
	wp.mutex.Lock()
	defer wp.mutex.Unlock()

	if wp.isRunning {
		return nil
	}

	wp.logger.WithFields(logrus.Fields{
		"max_workers": wp.config.MaxWorkers,
		"queue_size":  wp.config.QueueSize,
	}).Info("starting worker pool")

	for _, w := range wp.workers {
		wp.wg.Add(1)
		go w.run()
	}

	wp.wg.Add(1)
	go wp.dispatch()

	wp.isRunning = true
	return nil
}

// Stop cancels outstanding work and waits for workers to exit, bounded by
// ShutdownTimeout.
func (wp *WorkerPool) Stop() error {
	wp.mutex.Lock()
	defer wp.mutex.Unlock()

	if !wp.isRunning {
		return nil
	}

	wp.logger.Info("stopping worker pool")
	wp.cancel()

	for _, w := range wp.workers {
		close(w.quit)
	}

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Info("worker pool stopped")
	case <-time.After(wp.config.ShutdownTimeout):
		wp.logger.Warn("worker pool shutdown timed out")
	}

	wp.isRunning = false
	return nil
}

// Submit enqueues a task. It returns ErrQueueFull immediately rather than
// blocking if the queue has no room.
func (wp *WorkerPool) Submit(task Task) error {
	wp.mutex.RLock()
	running := wp.isRunning
	wp.mutex.RUnlock()
	if !running {
		return ErrPoolNotRunning
	}

	task.Created = time.Now()
	atomic.AddInt64(&wp.totalTasks, 1)

	select {
	case wp.taskQueue <- task:
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	default:
		atomic.AddInt64(&wp.failedTasks, 1)
		return ErrQueueFull
	}
}

// Stats reports current pool occupancy.
type Stats struct {
	MaxWorkers     int   `json:"max_workers"`
	ActiveWorkers  int   `json:"active_workers"`
	QueuedTasks    int   `json:"queued_tasks"`
	QueueSize      int   `json:"queue_size"`
	TotalTasks     int64 `json:"total_tasks"`
	ActiveTasks    int64 `json:"active_tasks"`
	CompletedTasks int64 `json:"completed_tasks"`
	FailedTasks    int64 `json:"failed_tasks"`
	IsRunning      bool  `json:"is_running"`
}

// Stats returns a snapshot of pool occupancy and counters.
func (wp *WorkerPool) Stats() Stats {
	wp.mutex.RLock()
	running := wp.isRunning
	wp.mutex.RUnlock()

	return Stats{
		MaxWorkers:     wp.config.MaxWorkers,
		ActiveWorkers:  wp.activeWorkerCount(),
		QueuedTasks:    len(wp.taskQueue),
		QueueSize:      wp.config.QueueSize,
		TotalTasks:     atomic.LoadInt64(&wp.totalTasks),
		ActiveTasks:    atomic.LoadInt64(&wp.activeTasks),
		CompletedTasks: atomic.LoadInt64(&wp.completedTasks),
		FailedTasks:    atomic.LoadInt64(&wp.failedTasks),
		IsRunning:      running,
	}
}

func (wp *WorkerPool) activeWorkerCount() int {
	active := 0
	for _, w := range wp.workers {
		if atomic.LoadInt64(&w.active) > 0 {
			active++
		}
	}
	return active
}

// dispatch hands queued tasks to the first idle worker.
func (wp *WorkerPool) dispatch() {
	defer wp.wg.Done()

	for {
		select {
		case task := <-wp.taskQueue:
			wp.assign(task)
		case <-wp.ctx.Done():
			return
		}
	}
}

func (wp *WorkerPool) assign(task Task) {
	for _, w := range wp.workers {
		select {
		case w.taskChan <- task:
			return
		default:
		}
	}
	// All workers busy: block on the first one until it frees up or the
	// pool is shutting down.
	select {
	case wp.workers[0].taskChan <- task:
	case <-wp.ctx.Done():
		atomic.AddInt64(&wp.failedTasks, 1)
	}
}

func (w *worker) run() {
	defer w.pool.wg.Done()

	for {
		select {
		case task := <-w.taskChan:
			w.execute(task)
		case <-w.quit:
			return
		case <-w.pool.ctx.Done():
			return
		}
	}
}

func (w *worker) execute(task Task) {
	atomic.StoreInt64(&w.active, 1)
	atomic.AddInt64(&w.pool.activeTasks, 1)
	defer func() {
		atomic.StoreInt64(&w.active, 0)
		atomic.AddInt64(&w.pool.activeTasks, -1)
	}()

	start := time.Now()
	taskCtx, cancel := context.WithTimeout(w.pool.ctx, w.pool.config.WorkerTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	duration := time.Since(start)

	fields := logrus.Fields{"worker_id": w.id, "task_id": task.ID, "duration": duration}
	if err != nil {
		atomic.AddInt64(&w.pool.failedTasks, 1)
		w.pool.logger.WithFields(fields).WithError(err).Error("task execution failed")
	} else {
		atomic.AddInt64(&w.pool.completedTasks, 1)
		w.pool.logger.WithFields(fields).Debug("task completed")
	}
}

// Errors returned by Submit.
var (
	ErrPoolNotRunning = fmt.Errorf("worker pool is not running")
	ErrQueueFull      = fmt.Errorf("task queue is full")
)
