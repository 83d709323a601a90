package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidateRejectsBadServerPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 70000

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateRejectsNonPositiveSupervisorLimits(t *testing.T) {
	cfg := validConfig()
	cfg.Supervisor.MaxExecutionTime = 0
	cfg.Supervisor.MaxMemoryMB = -1
	cfg.Supervisor.Workers = 0

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_execution_time")
	assert.Contains(t, err.Error(), "max_memory_mb")
	assert.Contains(t, err.Error(), "workers")
}

func TestValidateRejectsEmptyAllowedBuiltins(t *testing.T) {
	cfg := validConfig()
	cfg.Sandbox.AllowedBuiltins = nil

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allowed_builtins")
}

func TestValidateRejectsModuleInBothAllowAndBlockLists(t *testing.T) {
	cfg := validConfig()
	cfg.Sandbox.BlockedModules = []string{"os"}
	cfg.Sandbox.AllowedModules = []string{"os"}

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both allowed and blocked")
}
