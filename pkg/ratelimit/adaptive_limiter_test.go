package ratelimit

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg Config) *Limiter {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	rl := New(cfg, logger)
	t.Cleanup(rl.Stop)
	return rl
}

func TestLimiterDisabledAlwaysAllows(t *testing.T) {
	rl := newTestLimiter(t, Config{Enabled: false})

	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow())
	}
}

func TestLimiterBlocksWhenTokensExhausted(t *testing.T) {
	rl := newTestLimiter(t, Config{Enabled: true, InitialRPS: 1, InitialBurst: 2, AdaptationInterval: time.Hour})

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	stats := rl.Stats()
	assert.Equal(t, int64(2), stats.AllowedRequests)
	assert.Equal(t, int64(1), stats.BlockedRequests)
}

func TestLimiterRefillsOverTime(t *testing.T) {
	rl := newTestLimiter(t, Config{Enabled: true, InitialRPS: 100, InitialBurst: 1, AdaptationInterval: time.Hour})

	require.True(t, rl.Allow())
	require.False(t, rl.Allow())

	time.Sleep(20 * time.Millisecond)

	assert.True(t, rl.Allow())
}

func TestLimiterResetRestoresInitialRate(t *testing.T) {
	rl := newTestLimiter(t, Config{Enabled: true, InitialRPS: 5, InitialBurst: 5, AdaptationInterval: time.Hour})

	rl.Allow()
	rl.Reset()

	rps, burst := rl.CurrentLimits()
	assert.Equal(t, 5.0, rps)
	assert.Equal(t, 5, burst)
	assert.Equal(t, int64(0), rl.Stats().TotalRequests)
}

func TestLimiterAdaptsDownOnHighLatency(t *testing.T) {
	rl := newTestLimiter(t, Config{
		Enabled: true, InitialRPS: 100, InitialBurst: 100,
		LatencyTargetMS: 10, LatencyTolerance: 0.1, AdaptationFactor: 0.5,
		LatencyWindowSize: 4, AdaptationInterval: time.Hour,
	})

	for i := 0; i < 4; i++ {
		rl.RecordLatency(200 * time.Millisecond)
	}
	rl.adapt()

	rps, _ := rl.CurrentLimits()
	assert.Less(t, rps, 100.0)
}
