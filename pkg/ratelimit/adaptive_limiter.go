// Package ratelimit implements a token-bucket limiter whose rate adapts to
// observed latency. internal/app uses one shared instance (not keyed per
// API key) to throttle its routes: if traced runs are taking longer (the
// worker pool is saturated), the limiter backs off the accepted rate; if
// latency is comfortably under target, it eases back up.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Limiter is an adaptive token-bucket rate limiter.
type Limiter struct {
	config Config
	logger *logrus.Logger

	currentRPS     float64
	currentBurst   int
	tokens         float64
	lastRefill     time.Time
	latencyHistory *latencyWindow

	stats Stats
	mutex sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// Config configures a Limiter.
type Config struct {
	Enabled            bool          `yaml:"enabled"`
	InitialRPS         float64       `yaml:"initial_rps"`
	MinRPS             float64       `yaml:"min_rps"`
	MaxRPS             float64       `yaml:"max_rps"`
	InitialBurst       int           `yaml:"initial_burst"`
	MinBurst           int           `yaml:"min_burst"`
	MaxBurst           int           `yaml:"max_burst"`
	LatencyTargetMS    int           `yaml:"latency_target_ms"`
	LatencyTolerance   float64       `yaml:"latency_tolerance"` // fraction above target still considered fine
	AdaptationInterval time.Duration `yaml:"adaptation_interval"`
	LatencyWindowSize  int           `yaml:"latency_window_size"`
	AdaptationFactor   float64       `yaml:"adaptation_factor"` // fraction the RPS moves per adaptation
	SmoothingFactor    float64       `yaml:"smoothing_factor"`  // exponential smoothing weight on the old RPS
}

// Stats is a point-in-time snapshot of limiter activity.
type Stats struct {
	TotalRequests    int64     `json:"total_requests"`
	AllowedRequests  int64     `json:"allowed_requests"`
	BlockedRequests  int64     `json:"blocked_requests"`
	CurrentRPS       float64   `json:"current_rps"`
	CurrentBurst     int       `json:"current_burst"`
	AverageLatencyMS float64   `json:"average_latency_ms"`
	AdaptationCount  int64     `json:"adaptation_count"`
	LastAdaptation   time.Time `json:"last_adaptation"`
}

// latencyWindow is a fixed-size ring buffer of recent latency samples.
type latencyWindow struct {
	samples []time.Duration
	index   int
	mutex   sync.Mutex
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{samples: make([]time.Duration, size)}
}

func (lw *latencyWindow) add(latency time.Duration) {
	lw.mutex.Lock()
	defer lw.mutex.Unlock()
	lw.samples[lw.index] = latency
	lw.index = (lw.index + 1) % len(lw.samples)
}

func (lw *latencyWindow) average() time.Duration {
	lw.mutex.Lock()
	defer lw.mutex.Unlock()

	var total time.Duration
	count := 0
	for _, s := range lw.samples {
		if s > 0 {
			total += s
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / time.Duration(count)
}

// New creates a Limiter, defaulting any unset config fields, and starts its
// background adaptation loop.
func New(config Config, logger *logrus.Logger) *Limiter {
	if config.InitialRPS == 0 {
		config.InitialRPS = 10
	}
	if config.MinRPS == 0 {
		config.MinRPS = 1
	}
	if config.MaxRPS == 0 {
		config.MaxRPS = 1000
	}
	if config.InitialBurst == 0 {
		config.InitialBurst = int(config.InitialRPS * 2)
	}
	if config.MinBurst == 0 {
		config.MinBurst = 1
	}
	if config.MaxBurst == 0 {
		config.MaxBurst = int(config.MaxRPS * 2)
	}
	if config.LatencyTargetMS == 0 {
		config.LatencyTargetMS = 500
	}
	if config.LatencyTolerance == 0 {
		config.LatencyTolerance = 0.2
	}
	if config.AdaptationInterval == 0 {
		config.AdaptationInterval = 30 * time.Second
	}
	if config.LatencyWindowSize == 0 {
		config.LatencyWindowSize = 100
	}
	if config.AdaptationFactor == 0 {
		config.AdaptationFactor = 0.1
	}
	if config.SmoothingFactor == 0 {
		config.SmoothingFactor = 0.8
	}

	ctx, cancel := context.WithCancel(context.Background())

	rl := &Limiter{
		config:         config,
		logger:         logger,
		currentRPS:     config.InitialRPS,
		currentBurst:   config.InitialBurst,
		tokens:         float64(config.InitialBurst),
		lastRefill:     time.Now(),
		latencyHistory: newLatencyWindow(config.LatencyWindowSize),
		ctx:            ctx,
		cancel:         cancel,
	}

	go rl.adaptationLoop()
	return rl
}

// Allow reports whether a single request may proceed, refilling the token
// bucket first based on elapsed time.
func (rl *Limiter) Allow() bool {
	return rl.AllowN(1)
}

// AllowN reports whether n requests may proceed.
func (rl *Limiter) AllowN(n int) bool {
	if !rl.config.Enabled {
		return true
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.stats.TotalRequests += int64(n)

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.lastRefill = now

	rl.tokens = math.Min(rl.tokens+elapsed*rl.currentRPS, float64(rl.currentBurst))

	if rl.tokens >= float64(n) {
		rl.tokens -= float64(n)
		rl.stats.AllowedRequests += int64(n)
		return true
	}

	rl.stats.BlockedRequests += int64(n)
	return false
}

// RecordLatency feeds an observed request latency into the adaptation
// window.
func (rl *Limiter) RecordLatency(latency time.Duration) {
	if !rl.config.Enabled {
		return
	}
	rl.latencyHistory.add(latency)
}

func (rl *Limiter) adaptationLoop() {
	ticker := time.NewTicker(rl.config.AdaptationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.ctx.Done():
			return
		case <-ticker.C:
			rl.adapt()
		}
	}
}

func (rl *Limiter) adapt() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	avgLatency := rl.latencyHistory.average()
	if avgLatency == 0 {
		return
	}

	targetLatency := time.Duration(rl.config.LatencyTargetMS) * time.Millisecond
	toleranceThreshold := float64(targetLatency) * (1 + rl.config.LatencyTolerance)

	var adapted bool
	newRPS := rl.currentRPS

	switch {
	case float64(avgLatency) > toleranceThreshold:
		newRPS = rl.currentRPS * (1 - rl.config.AdaptationFactor)
		adapted = true
		rl.logger.WithFields(logrus.Fields{
			"reason": "high_latency", "avg_latency_ms": avgLatency.Milliseconds(),
			"old_rps": rl.currentRPS, "new_rps": newRPS,
		}).Info("reducing rate limit due to high latency")
	case float64(avgLatency) < float64(targetLatency)*0.8:
		newRPS = rl.currentRPS * (1 + rl.config.AdaptationFactor)
		adapted = true
		rl.logger.WithFields(logrus.Fields{
			"reason": "low_latency", "avg_latency_ms": avgLatency.Milliseconds(),
			"old_rps": rl.currentRPS, "new_rps": newRPS,
		}).Info("raising rate limit due to low latency")
	}

	if adapted {
		newRPS = math.Max(newRPS, rl.config.MinRPS)
		newRPS = math.Min(newRPS, rl.config.MaxRPS)

		burstRatio := float64(rl.currentBurst) / rl.currentRPS
		newBurst := int(math.Max(math.Min(newRPS*burstRatio, float64(rl.config.MaxBurst)), float64(rl.config.MinBurst)))

		if rl.stats.AdaptationCount > 0 {
			newRPS = rl.currentRPS*rl.config.SmoothingFactor + newRPS*(1-rl.config.SmoothingFactor)
		}

		rl.currentRPS = newRPS
		rl.currentBurst = newBurst
		rl.stats.AdaptationCount++
		rl.stats.LastAdaptation = time.Now()
	}

	rl.stats.CurrentRPS = rl.currentRPS
	rl.stats.CurrentBurst = rl.currentBurst
	rl.stats.AverageLatencyMS = float64(avgLatency.Milliseconds())
}

// Wait blocks until a request is admitted or ctx is done.
func (rl *Limiter) Wait(ctx context.Context) error {
	if !rl.config.Enabled {
		return nil
	}

	for {
		if rl.Allow() {
			return nil
		}

		rl.mutex.RLock()
		waitTime := time.Duration(1000/rl.currentRPS) * time.Millisecond
		rl.mutex.RUnlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// CurrentLimits returns the limiter's current rate and burst size.
func (rl *Limiter) CurrentLimits() (rps float64, burst int) {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()
	return rl.currentRPS, rl.currentBurst
}

// Stats returns a snapshot of limiter counters.
func (rl *Limiter) Stats() Stats {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	stats := rl.stats
	stats.CurrentRPS = rl.currentRPS
	stats.CurrentBurst = rl.currentBurst
	stats.AverageLatencyMS = float64(rl.latencyHistory.average().Milliseconds())
	return stats
}

// Reset restores the limiter to its initial configuration.
func (rl *Limiter) Reset() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.currentRPS = rl.config.InitialRPS
	rl.currentBurst = rl.config.InitialBurst
	rl.tokens = float64(rl.config.InitialBurst)
	rl.lastRefill = time.Now()
	rl.stats = Stats{}
	rl.latencyHistory = newLatencyWindow(rl.config.LatencyWindowSize)

	rl.logger.Info("rate limiter reset to initial configuration")
}

// Stop halts the adaptation loop.
func (rl *Limiter) Stop() {
	rl.cancel()
}
