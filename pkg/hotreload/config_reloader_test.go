package hotreload

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type policy struct {
	AllowedBuiltins []string
}

func writePolicyFile(t *testing.T, dir string, builtins ...string) string {
	t.Helper()
	path := filepath.Join(dir, "policy.yaml")
	content := "allowed_builtins:\n"
	for _, b := range builtins {
		content += "  - " + b + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func loadPolicy(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &policy{AllowedBuiltins: []string{string(data)}}, nil
}

func TestReloaderDisabledSkipsWatching(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	r, err := New(Config{Enabled: false}, "unused.yaml", loadPolicy, logger)
	require.NoError(t, err)
	require.NoError(t, r.Start())
	assert.True(t, r.IsHealthy())
	require.NoError(t, r.Stop())
}

func TestReloaderAppliesFileChanges(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dir := t.TempDir()
	path := writePolicyFile(t, dir, "print", "len")

	r, err := New(Config{Enabled: true, WatchInterval: 30 * time.Millisecond, DebounceInterval: 5 * time.Millisecond}, path, loadPolicy, logger)
	require.NoError(t, err)

	applied := make(chan any, 4)
	r.SetCallbacks(nil, func(n any) { applied <- n }, nil)

	require.NoError(t, r.Start())
	t.Cleanup(func() { _ = r.Stop() })

	writePolicyFile(t, dir, "print", "len", "range")

	select {
	case <-applied:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload to apply")
	}

	assert.Equal(t, int64(1), r.Stats().SuccessfulReloads)
}

func TestReloaderTriggerReloadRequiresRunning(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dir := t.TempDir()
	path := writePolicyFile(t, dir, "print")

	r, err := New(Config{Enabled: true}, path, loadPolicy, logger)
	require.NoError(t, err)

	assert.Error(t, r.TriggerReload())
}
