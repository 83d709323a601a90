// Package metrics exposes the service's Prometheus metrics and the HTTP
// server that serves them, following the teacher's safeRegister/
// MetricsServer shape (one sync.Once registration pass, a small mux with
// /metrics and /health).
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// ExecutionsTotal counts Supervisor.Execute calls by terminal status
	// (completed|error|timeout|security_violation|cancelled).
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pytrace_executions_total",
			Help: "Total number of guest code executions by terminal status",
		},
		[]string{"status"},
	)

	// ExecutionDuration is the wall-clock duration of Execute calls.
	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pytrace_execution_duration_seconds",
			Help:    "Wall-clock duration of guest code executions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// SecurityViolationsTotal counts validator rejections by reason.
	SecurityViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pytrace_security_violations_total",
			Help: "Total number of static validator rejections by reason",
		},
		[]string{"reason"},
	)

	// ActiveWorkers is the current worker pool occupancy.
	ActiveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pytrace_active_workers",
			Help: "Number of worker slots currently executing guest code",
		},
	)

	// QueueDepth is the number of Execute calls waiting on pool admission.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pytrace_queue_depth",
			Help: "Number of execute requests queued waiting for a worker slot",
		},
	)

	// StepsPerExecution records the step count of completed traces.
	StepsPerExecution = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pytrace_steps_per_execution",
			Help:    "Number of trace steps produced per execution",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		},
	)

	// HeapObjectsPerTrace records the final heap registry size per trace.
	HeapObjectsPerTrace = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pytrace_heap_objects_per_trace",
			Help:    "Number of distinct heap objects observed per trace",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// ResourceLeakDetectionsTotal mirrors pkg/leakdetection's OnLeak
	// callback, counting resource-threshold crossings by resource type.
	ResourceLeakDetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pytrace_resource_leak_detections_total",
			Help: "Total number of resource leak threshold crossings by resource type",
		},
		[]string{"resource"},
	)

	// CircuitBreakerState mirrors pkg/circuit's State as a gauge (0=closed, 1=open, 2=half-open).
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pytrace_circuit_breaker_state",
			Help: "Current circuit breaker state: 0=closed, 1=open, 2=half-open",
		},
		[]string{"name"},
	)

	registerOnce sync.Once
)

// safeRegister registers collector, ignoring the "already registered"
// panic a repeated call in tests would otherwise trigger.
func safeRegister(collector prometheus.Collector) {
	defer func() {
		_ = recover()
	}()
	prometheus.MustRegister(collector)
}

// registerAll registers every metric above exactly once per process.
func registerAll() {
	registerOnce.Do(func() {
		safeRegister(ExecutionsTotal)
		safeRegister(ExecutionDuration)
		safeRegister(SecurityViolationsTotal)
		safeRegister(ActiveWorkers)
		safeRegister(QueueDepth)
		safeRegister(StepsPerExecution)
		safeRegister(HeapObjectsPerTrace)
		safeRegister(ResourceLeakDetectionsTotal)
		safeRegister(CircuitBreakerState)
	})
}

// Server serves /metrics (Prometheus exposition) and /health.
type Server struct {
	server *http.Server
	logger *logrus.Logger
}

// NewServer builds a metrics Server bound to addr.
func NewServer(addr string, logger *logrus.Logger) *Server {
	registerAll()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{Addr: addr, Handler: mux},
		logger: logger,
	}
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("starting metrics server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("metrics server error")
		}
	}()
	return nil
}

// Stop closes the metrics server.
func (s *Server) Stop() error {
	s.logger.Info("stopping metrics server")
	return s.server.Close()
}

// RecordExecution records the outcome of one Supervisor.Execute call.
func RecordExecution(status string, durationSeconds float64) {
	ExecutionsTotal.WithLabelValues(status).Inc()
	ExecutionDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordSecurityViolation records one validator rejection.
func RecordSecurityViolation(reason string) {
	SecurityViolationsTotal.WithLabelValues(reason).Inc()
}

// RecordTrace records the shape of a finished trace.
func RecordTrace(steps, heapObjects int) {
	StepsPerExecution.Observe(float64(steps))
	HeapObjectsPerTrace.Observe(float64(heapObjects))
}

// SetActiveWorkers updates the worker pool occupancy gauge.
func SetActiveWorkers(n int) {
	ActiveWorkers.Set(float64(n))
}

// SetQueueDepth updates the pool admission queue gauge.
func SetQueueDepth(n int) {
	QueueDepth.Set(float64(n))
}

// RecordResourceLeak mirrors pkg/leakdetection.OnLeak as a metrics callback.
func RecordResourceLeak(resourceType string, current, threshold int64) {
	ResourceLeakDetectionsTotal.WithLabelValues(resourceType).Inc()
}

// SetCircuitBreakerState mirrors pkg/circuit.OnStateChange as a metrics callback.
func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
