// Package leakdetection watches a process's own file descriptors,
// goroutines, and heap for runaway growth, and samples its RSS/CPU via
// gopsutil. internal/app runs one instance to flag leaks in the service's
// own long-lived process between executions; worker processes are not
// watched by this package.
package leakdetection

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
)

// Config configures a Monitor.
type Config struct {
	MonitoringInterval     time.Duration `yaml:"monitoring_interval"`
	FDLeakThreshold        int64         `yaml:"fd_leak_threshold"`
	GoroutineLeakThreshold int64         `yaml:"goroutine_leak_threshold"`
	MemoryLeakThreshold    int64         `yaml:"memory_leak_threshold"` // heap bytes
	RSSThreshold           int64         `yaml:"rss_threshold"`         // process RSS bytes, mirrors MAX_MEMORY_MB
	AlertCooldown          time.Duration `yaml:"alert_cooldown"`
	EnableGCOptimization   bool          `yaml:"enable_gc_optimization"`
}

// Stats is a point-in-time snapshot of monitored resource usage.
type Stats struct {
	FileDescriptors   int64 `json:"file_descriptors"`
	Goroutines        int64 `json:"goroutines"`
	HeapInUse         int64 `json:"heap_in_use_bytes"`
	RSS               int64 `json:"rss_bytes"`
	InitialFDs        int64 `json:"initial_fds"`
	InitialGoroutines int64 `json:"initial_goroutines"`
	FDLeaks           int64 `json:"fd_leaks_detected"`
	GoroutineLeaks    int64 `json:"goroutine_leaks_detected"`
	MemoryLeaks       int64 `json:"memory_leaks_detected"`
	LastCheck         int64 `json:"last_check_timestamp"`
}

// OnLeak is invoked whenever a resource crosses its configured threshold.
// resourceType is one of "fd", "goroutine", "heap", "rss".
type OnLeak func(resourceType string, current, threshold int64)

// Monitor samples a process's own resource usage on a timer.
type Monitor struct {
	config Config
	logger *logrus.Logger
	pid    int32

	initialFDs        int64
	initialGoroutines int64

	currentFDs        int64
	currentGoroutines int64
	currentHeap       int64
	currentRSS        int64

	onLeak OnLeak

	leakAlertsMu sync.Mutex
	leakAlerts   map[string]time.Time

	statsMu sync.RWMutex
	stats   Stats

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mutex     sync.Mutex
	isRunning bool
}

// New creates a Monitor for the current process, defaulting any unset
// config fields.
func New(config Config, logger *logrus.Logger) *Monitor {
	if config.MonitoringInterval == 0 {
		config.MonitoringInterval = 30 * time.Second
	}
	if config.FDLeakThreshold <= 0 {
		config.FDLeakThreshold = 100
	}
	if config.GoroutineLeakThreshold <= 0 {
		config.GoroutineLeakThreshold = 50
	}
	if config.MemoryLeakThreshold <= 0 {
		config.MemoryLeakThreshold = 100 * 1024 * 1024
	}
	if config.AlertCooldown == 0 {
		config.AlertCooldown = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		config:     config,
		logger:     logger,
		pid:        int32(os.Getpid()),
		leakAlerts: make(map[string]time.Time),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// OnLeakDetected registers a callback invoked whenever a threshold is
// crossed, for wiring into a metrics gauge without this package importing
// one directly.
func (m *Monitor) OnLeakDetected(fn OnLeak) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.onLeak = fn
}

// Start records baseline FD/goroutine counts and begins periodic checks.
func (m *Monitor) Start() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.isRunning {
		return fmt.Errorf("resource monitor already running")
	}

	m.initialFDs = fileDescriptorCount()
	m.initialGoroutines = int64(runtime.NumGoroutine())
	atomic.StoreInt64(&m.currentFDs, m.initialFDs)
	atomic.StoreInt64(&m.currentGoroutines, m.initialGoroutines)

	m.statsMu.Lock()
	m.stats.InitialFDs = m.initialFDs
	m.stats.InitialGoroutines = m.initialGoroutines
	m.statsMu.Unlock()

	m.isRunning = true

	m.wg.Add(1)
	go m.monitorLoop()
	if m.config.EnableGCOptimization {
		m.wg.Add(1)
		go m.gcOptimizationLoop()
	}

	m.logger.WithFields(logrus.Fields{
		"initial_fds": m.initialFDs, "initial_goroutines": m.initialGoroutines,
	}).Info("resource monitor started")
	return nil
}

// Stop halts monitoring and waits for its goroutines to exit.
func (m *Monitor) Stop() error {
	m.mutex.Lock()
	if !m.isRunning {
		m.mutex.Unlock()
		return nil
	}
	m.cancel()
	m.isRunning = false
	m.mutex.Unlock()

	m.wg.Wait()
	m.logger.Info("resource monitor stopped")
	return nil
}

func (m *Monitor) monitorLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.MonitoringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Monitor) check() {
	fds := fileDescriptorCount()
	goroutines := int64(runtime.NumGoroutine())

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	heap := int64(memStats.HeapInuse)

	rss, err := m.rssBytes()
	if err != nil {
		m.logger.WithError(err).Debug("failed to sample process RSS")
	}

	atomic.StoreInt64(&m.currentFDs, fds)
	atomic.StoreInt64(&m.currentGoroutines, goroutines)
	atomic.StoreInt64(&m.currentHeap, heap)
	atomic.StoreInt64(&m.currentRSS, rss)

	m.statsMu.Lock()
	m.stats.FileDescriptors = fds
	m.stats.Goroutines = goroutines
	m.stats.HeapInUse = heap
	m.stats.RSS = rss
	m.stats.LastCheck = time.Now().Unix()
	m.statsMu.Unlock()

	m.checkThreshold("fd", fds-m.initialFDs, m.config.FDLeakThreshold, func() { m.bumpLeak(&m.stats.FDLeaks) })
	m.checkThreshold("goroutine", goroutines-m.initialGoroutines, m.config.GoroutineLeakThreshold, func() { m.bumpLeak(&m.stats.GoroutineLeaks) })
	m.checkThreshold("heap", heap, m.config.MemoryLeakThreshold, func() { m.bumpLeak(&m.stats.MemoryLeaks) })
	if m.config.RSSThreshold > 0 {
		m.checkThreshold("rss", rss, m.config.RSSThreshold, func() {})
	}
}

func (m *Monitor) bumpLeak(counter *int64) {
	m.statsMu.Lock()
	*counter++
	m.statsMu.Unlock()
}

func (m *Monitor) checkThreshold(resourceType string, current, threshold int64, onExceed func()) {
	if current <= threshold {
		return
	}

	m.leakAlertsMu.Lock()
	if last, ok := m.leakAlerts[resourceType]; ok && time.Since(last) < m.config.AlertCooldown {
		m.leakAlertsMu.Unlock()
		return
	}
	m.leakAlerts[resourceType] = time.Now()
	m.leakAlertsMu.Unlock()

	onExceed()

	m.logger.WithFields(logrus.Fields{
		"resource": resourceType, "current": current, "threshold": threshold,
	}).Warn("resource usage exceeded threshold")

	if m.onLeak != nil {
		m.onLeak(resourceType, current, threshold)
	}
}

func (m *Monitor) rssBytes() (int64, error) {
	proc, err := process.NewProcess(m.pid)
	if err != nil {
		return 0, err
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return int64(memInfo.RSS), nil
}

func fileDescriptorCount() int64 {
	files, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return 0
	}
	return int64(len(files))
}

func (m *Monitor) gcOptimizationLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.optimizeGC()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Monitor) optimizeGC() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	if int64(memStats.HeapInuse) > m.config.MemoryLeakThreshold {
		runtime.GC()
		debug.FreeOSMemory()
		m.logger.Debug("triggered manual GC due to heap pressure")
	}
}

// Stats returns a snapshot of current resource usage and leak counters.
func (m *Monitor) Stats() Stats {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()
	return m.stats
}

// IsHealthy reports whether resource usage stays well clear of configured
// thresholds.
func (m *Monitor) IsHealthy() bool {
	stats := m.Stats()

	if stats.FileDescriptors-stats.InitialFDs > m.config.FDLeakThreshold*3 {
		return false
	}
	if stats.Goroutines-stats.InitialGoroutines > m.config.GoroutineLeakThreshold*3 {
		return false
	}
	if stats.HeapInUse > m.config.MemoryLeakThreshold*2 {
		return false
	}
	return true
}

// ForceGC runs a blocking garbage collection and reports the heap size
// before and after.
func (m *Monitor) ForceGC() (before, after runtime.MemStats) {
	runtime.ReadMemStats(&before)
	runtime.GC()
	debug.FreeOSMemory()
	runtime.ReadMemStats(&after)

	m.logger.WithFields(logrus.Fields{
		"heap_before_mb": before.HeapInuse / (1024 * 1024),
		"heap_after_mb":  after.HeapInuse / (1024 * 1024),
	}).Info("manual GC completed")
	return before, after
}
