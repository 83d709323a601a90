package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaultsFillsUnsetFields(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	assert.Equal(t, "pytrace", cfg.App.Name)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*1e9, float64(cfg.Supervisor.MaxExecutionTime))
	assert.Equal(t, 128, cfg.Supervisor.MaxMemoryMB)
	assert.Equal(t, 10000, cfg.Supervisor.MaxSteps)
	assert.Equal(t, 4, cfg.Supervisor.Workers)
	assert.NotEmpty(t, cfg.Sandbox.AllowedBuiltins)
	assert.Contains(t, cfg.Sandbox.BlockedModules, "os")
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9999
	cfg.Supervisor.Workers = 16

	applyDefaults(cfg)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 16, cfg.Supervisor.Workers)
}

func TestApplyEnvironmentOverridesReadsNamedVars(t *testing.T) {
	t.Setenv("MAX_EXECUTION_TIME", "7")
	t.Setenv("MAX_MEMORY_MB", "256")
	t.Setenv("WORKERS", "8")
	t.Setenv("ALLOWED_BUILTINS", "print,len")

	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	assert.Equal(t, 7*1e9, float64(cfg.Supervisor.MaxExecutionTime))
	assert.Equal(t, 256, cfg.Supervisor.MaxMemoryMB)
	assert.Equal(t, 8, cfg.Supervisor.Workers)
	assert.Equal(t, []string{"print", "len"}, cfg.Sandbox.AllowedBuiltins)
}
