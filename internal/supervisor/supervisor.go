// Package supervisor is the execution supervisor (C7): the single entry
// point that sanitizes and syntax-checks a guest program, dispatches it
// to an isolated worker subprocess under a bounded pool, enforces a
// wall-clock timeout independent of the worker's own resource caps, and
// marshals whatever the worker returns into one ExecutionResult.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"pytrace/internal/lang/parser"
	"pytrace/internal/metrics"
	"pytrace/internal/result"
	"pytrace/internal/sandbox"
	"pytrace/pkg/circuit"
	"pytrace/pkg/taskmanager"
	"pytrace/pkg/workerpool"
)

// Config configures the supervisor's limits; it is the runtime-facing
// mirror of internal/config's SupervisorConfig + SandboxConfig.
type Config struct {
	MaxExecutionTime time.Duration
	MaxMemoryMB      int
	MaxSteps         int
	Workers          int

	MaxCodeLength    int
	MaxLineCount     int
	MaxIndentColumns int
	AllowedBuiltins  []string
	BlockedModules   []string
	AllowedModules   []string

	WorkerBinaryPath string
}

// Supervisor is the single entry point: Execute(source, input, sessionID).
type Supervisor struct {
	cfg     Config
	pool    *workerpool.WorkerPool
	breaker *circuit.Breaker
	tasks   *taskmanager.Manager
	logger  *logrus.Logger
	spawn   spawner

	// sandboxMu guards the three module lists below, which internal/app's
	// pkg/hotreload callback may update at runtime without a restart
	// (spec §4.1's ALLOWED_BUILTINS/BLOCKED_MODULES/ALLOWED_MODULES).
	sandboxMu       sync.RWMutex
	allowedBuiltins []string
	blockedModules  []string
	allowedModules  []string
}

// UpdateSandboxLists replaces the live allowed-builtins/blocked-modules/
// allowed-modules lists, taking effect on the next Execute call. Used by
// the hot-reload watcher; never called from the core's own code path.
func (s *Supervisor) UpdateSandboxLists(allowedBuiltins, blockedModules, allowedModules []string) {
	s.sandboxMu.Lock()
	defer s.sandboxMu.Unlock()
	s.allowedBuiltins = allowedBuiltins
	s.blockedModules = blockedModules
	s.allowedModules = allowedModules
}

func (s *Supervisor) sandboxLists() (allowedBuiltins, blockedModules, allowedModules []string) {
	s.sandboxMu.RLock()
	defer s.sandboxMu.RUnlock()
	return s.allowedBuiltins, s.blockedModules, s.allowedModules
}

// spawner runs a guest program to completion; production code uses
// processSpawner (a real subprocess), tests substitute an in-process fake.
type spawner interface {
	Run(ctx context.Context, req WorkerRequest) (WorkerResponse, error)
}

// New builds a Supervisor backed by real worker subprocesses.
func New(cfg Config, logger *logrus.Logger) *Supervisor {
	return newWithSpawner(cfg, logger, &processSpawner{binaryPath: cfg.WorkerBinaryPath, maxMemoryMB: cfg.MaxMemoryMB, logger: logger})
}

func newWithSpawner(cfg Config, logger *logrus.Logger, sp spawner) *Supervisor {
	pool := workerpool.New(workerpool.Config{MaxWorkers: cfg.Workers}, logger)
	_ = pool.Start()

	breaker := circuit.New(circuit.Config{}, logger)
	breaker.OnStateChange(func(_, to circuit.State) {
		metrics.SetCircuitBreakerState("supervisor", int(to))
	})

	tasks := taskmanager.New(taskmanager.Config{}, logger)

	return &Supervisor{
		cfg: cfg, pool: pool, breaker: breaker, tasks: tasks, logger: logger, spawn: sp,
		allowedBuiltins: cfg.AllowedBuiltins,
		blockedModules:  cfg.BlockedModules,
		allowedModules:  cfg.AllowedModules,
	}
}

// Shutdown stops the worker pool and task manager cleanly.
func (s *Supervisor) Shutdown() {
	_ = s.pool.Stop()
	s.tasks.Close()
}

// PoolStats reports current worker pool occupancy, for the health and
// status endpoints.
func (s *Supervisor) PoolStats() workerpool.Stats {
	stats := s.pool.Stats()
	metrics.SetActiveWorkers(stats.ActiveWorkers)
	metrics.SetQueueDepth(stats.QueuedTasks)
	return stats
}

// CircuitState reports the dispatch circuit breaker's current state.
func (s *Supervisor) CircuitState() circuit.State {
	return s.breaker.State()
}

// Execute runs one guest program end to end and returns exactly one
// terminal ExecutionResult (spec §4.5).
func (s *Supervisor) Execute(ctx context.Context, source string, input []string, sessionID string) result.ExecutionResult {
	start := time.Now()
	finish := func(res result.ExecutionResult) result.ExecutionResult {
		res.ExecutionTimeSeconds = time.Since(start).Seconds()
		metrics.RecordExecution(string(res.Status), res.ExecutionTimeSeconds)
		if res.Trace != nil {
			metrics.RecordTrace(len(res.Trace.Steps), countHeapObjects(res.Trace))
		}
		return res
	}

	sanitized := sandbox.SanitizeCode(source)
	if _, err := parser.Parse(sanitized); err != nil {
		return finish(result.ExecutionResult{Status: result.StatusError, ErrorMessage: err.Error()})
	}

	fingerprint := xxhash.Sum64String(sanitized)
	s.logger.WithFields(logrus.Fields{
		"session_id":  sessionID,
		"fingerprint": fmt.Sprintf("%x", fingerprint),
		"length":      len(sanitized),
	}).Info("dispatching execution")

	allowedBuiltins, blockedModules, allowedModules := s.sandboxLists()
	req := WorkerRequest{
		Source:           sanitized,
		Input:            input,
		MaxSteps:         s.cfg.MaxSteps,
		MaxMemoryMB:      s.cfg.MaxMemoryMB,
		MaxExecutionTime: s.cfg.MaxExecutionTime.Seconds(),
		MaxCodeLength:    s.cfg.MaxCodeLength,
		MaxLineCount:     s.cfg.MaxLineCount,
		MaxIndentColumns: s.cfg.MaxIndentColumns,
		AllowedBuiltins:  allowedBuiltins,
		BlockedModules:   blockedModules,
		AllowedModules:   allowedModules,
	}

	timeout := s.cfg.MaxExecutionTime
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	workerCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan WorkerResponse, 1)
	taskID := sessionID
	if taskID == "" {
		taskID = fmt.Sprintf("exec-%d", start.UnixNano())
	}

	submitErr := s.breaker.Execute(func() error {
		return s.pool.Submit(workerpool.Task{
			ID: taskID,
			Execute: func(taskCtx context.Context) error {
				resp, err := s.spawn.Run(workerCtx, req)
				if err != nil {
					resultCh <- WorkerResponse{Status: result.StatusError, ErrorMessage: err.Error()}
					return err
				}
				resultCh <- resp
				return nil
			},
		})
	})
	if submitErr != nil {
		return finish(result.ExecutionResult{Status: result.StatusError, ErrorMessage: "execution pool unavailable: " + submitErr.Error()})
	}

	select {
	case resp := <-resultCh:
		return finish(result.ExecutionResult{
			Status:       resp.Status,
			Trace:        resp.Trace,
			Stdout:       resp.Stdout,
			Stderr:       resp.Stderr,
			ErrorMessage: resp.ErrorMessage,
		})
	case <-workerCtx.Done():
		// workerCtx derives from ctx, so it is also done on cancellation;
		// its error records which came first, and a deadline that has
		// already passed wins over a later cancellation.
		if workerCtx.Err() == context.DeadlineExceeded {
			return finish(result.ExecutionResult{Status: result.StatusTimeout, ErrorMessage: "execution exceeded the configured time limit"})
		}
		return finish(result.ExecutionResult{Status: result.StatusCancelled, ErrorMessage: "execution was cancelled"})
	}
}

func countHeapObjects(trace *result.TraceData) int {
	if len(trace.Steps) == 0 {
		return 0
	}
	return len(trace.Steps[len(trace.Steps)-1].Heap)
}
