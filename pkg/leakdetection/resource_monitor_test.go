package leakdetection

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T, cfg Config) *Monitor {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := New(cfg, logger)
	t.Cleanup(func() { _ = m.Stop() })
	return m
}

func TestMonitorStartRecordsBaseline(t *testing.T) {
	m := newTestMonitor(t, Config{MonitoringInterval: time.Hour})

	require.NoError(t, m.Start())

	stats := m.Stats()
	assert.GreaterOrEqual(t, stats.InitialGoroutines, int64(1))
}

func TestMonitorDoubleStartFails(t *testing.T) {
	m := newTestMonitor(t, Config{MonitoringInterval: time.Hour})

	require.NoError(t, m.Start())
	assert.Error(t, m.Start())
}

func TestMonitorDetectsGoroutineGrowth(t *testing.T) {
	m := newTestMonitor(t, Config{MonitoringInterval: 10 * time.Millisecond, GoroutineLeakThreshold: 2, AlertCooldown: time.Hour})

	var detected []string
	var mu sync.Mutex
	m.OnLeakDetected(func(resourceType string, current, threshold int64) {
		mu.Lock()
		defer mu.Unlock()
		detected = append(detected, resourceType)
	})

	require.NoError(t, m.Start())

	stop := make(chan struct{})
	defer close(stop)
	for i := 0; i < 5; i++ {
		go func() { <-stop }()
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, r := range detected {
			if r == "goroutine" {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMonitorIsHealthyByDefault(t *testing.T) {
	m := newTestMonitor(t, Config{MonitoringInterval: time.Hour})
	require.NoError(t, m.Start())

	assert.True(t, m.IsHealthy())
}
