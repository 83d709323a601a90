// Package config loads the service's configuration from an optional YAML
// file and environment-variable overrides, validates it, and exposes it as
// a Config value threaded through every component at startup — the same
// two-phase file-then-env-override design the teacher's log pipeline uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"pytrace/pkg/errors"

	"gopkg.in/yaml.v2"
)

// Config is the root configuration value for the service.
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	HotReload  HotReloadConfig  `yaml:"hot_reload"`
}

// AppConfig carries ambient process identity and logging setup.
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// ServerConfig is the HTTP transport bind address.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// MetricsConfig is the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// TracingConfig mirrors pkg/tracing.Config; kept separate so internal/config
// has no import-time dependency on pkg/tracing.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
	Environment string  `yaml:"environment"`
}

// SupervisorConfig carries the resource ceilings named in spec §5/§6:
// MAX_EXECUTION_TIME, MAX_MEMORY_MB, MAX_STEPS, WORKERS.
type SupervisorConfig struct {
	MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	MaxMemoryMB      int           `yaml:"max_memory_mb"`
	MaxSteps         int           `yaml:"max_steps"`
	Workers          int           `yaml:"workers"`
	WorkerBinaryPath string        `yaml:"worker_binary_path"`
}

// SandboxConfig carries the validator/environment configuration:
// MAX_CODE_LENGTH, MAX_OUTPUT_LENGTH, ALLOWED_BUILTINS, BLOCKED_MODULES,
// ALLOWED_MODULES.
type SandboxConfig struct {
	MaxCodeLength    int      `yaml:"max_code_length"`
	MaxOutputLength  int      `yaml:"max_output_length"`
	AllowedBuiltins  []string `yaml:"allowed_builtins"`
	BlockedModules   []string `yaml:"blocked_modules"`
	AllowedModules   []string `yaml:"allowed_modules"`
	MaxLineCount     int      `yaml:"max_line_count"`
	MaxIndentColumns int      `yaml:"max_indent_columns"`
}

// AuthConfig mirrors pkg/security.AuthConfig for the transport layer.
type AuthConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Method         string        `yaml:"method"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

// RateLimitConfig mirrors pkg/ratelimit.Config.
type RateLimitConfig struct {
	Enabled    bool    `yaml:"enabled"`
	InitialRPS float64 `yaml:"initial_rps"`
	MaxBurst   int     `yaml:"max_burst"`
}

// HotReloadConfig controls live reload of SandboxConfig's module lists.
type HotReloadConfig struct {
	Enabled          bool          `yaml:"enabled"`
	WatchFile        string        `yaml:"watch_file"`
	WatchInterval    time.Duration `yaml:"watch_interval"`
	DebounceInterval time.Duration `yaml:"debounce_interval"`
}

// Load reads an optional YAML file, applies defaults for anything it left
// unset, applies environment-variable overrides, and validates the result.
func Load(configFile string) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, errors.ConfigError("load", "failed to read config file").Wrap(err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.ConfigError("load", "failed to parse config file").Wrap(err)
		}
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(c *Config) {
	if c.App.Name == "" {
		c.App.Name = "pytrace"
	}
	if c.App.Version == "" {
		c.App.Version = "v1.0.0"
	}
	if c.App.Environment == "" {
		c.App.Environment = "production"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.LogFormat == "" {
		c.App.LogFormat = "json"
	}

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Host == "" {
		c.Metrics.Host = "0.0.0.0"
	}

	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = "localhost:4318"
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}
	if c.Tracing.Environment == "" {
		c.Tracing.Environment = c.App.Environment
	}

	if c.Supervisor.MaxExecutionTime == 0 {
		c.Supervisor.MaxExecutionTime = 5 * time.Second
	}
	if c.Supervisor.MaxMemoryMB == 0 {
		c.Supervisor.MaxMemoryMB = 128
	}
	if c.Supervisor.MaxSteps == 0 {
		c.Supervisor.MaxSteps = 10000
	}
	if c.Supervisor.Workers == 0 {
		c.Supervisor.Workers = 4
	}
	if c.Supervisor.WorkerBinaryPath == "" {
		c.Supervisor.WorkerBinaryPath = "pytrace-worker"
	}

	if c.Sandbox.MaxCodeLength == 0 {
		c.Sandbox.MaxCodeLength = 50000
	}
	if c.Sandbox.MaxOutputLength == 0 {
		c.Sandbox.MaxOutputLength = 65536
	}
	if c.Sandbox.MaxLineCount == 0 {
		c.Sandbox.MaxLineCount = 1000
	}
	if c.Sandbox.MaxIndentColumns == 0 {
		c.Sandbox.MaxIndentColumns = 200
	}
	if c.Sandbox.AllowedBuiltins == nil {
		c.Sandbox.AllowedBuiltins = []string{
			"print", "input", "len", "range", "str", "int", "float", "bool",
			"list", "tuple", "dict", "set", "abs", "min", "max", "sum",
			"sorted", "reversed", "enumerate", "zip", "type", "isinstance",
		}
	}
	if c.Sandbox.BlockedModules == nil {
		c.Sandbox.BlockedModules = []string{
			"os", "sys", "subprocess", "importlib", "builtins", "socket",
			"urllib", "http", "ftplib", "smtplib", "email", "ctypes", "mmap",
			"resource", "gc", "inspect", "threading", "multiprocessing",
			"asyncio", "concurrent",
		}
	}

	if c.Auth.SessionTimeout == 0 {
		c.Auth.SessionTimeout = 30 * time.Minute
	}

	if c.RateLimit.InitialRPS == 0 {
		c.RateLimit.InitialRPS = 10
	}
	if c.RateLimit.MaxBurst == 0 {
		c.RateLimit.MaxBurst = 20
	}

	if c.HotReload.WatchInterval == 0 {
		c.HotReload.WatchInterval = 10 * time.Second
	}
	if c.HotReload.DebounceInterval == 0 {
		c.HotReload.DebounceInterval = 500 * time.Millisecond
	}
}

func applyEnvironmentOverrides(c *Config) {
	c.App.LogLevel = getEnvString("LOG_LEVEL", c.App.LogLevel)
	c.App.LogFormat = getEnvString("LOG_FORMAT", c.App.LogFormat)

	c.Server.Host = getEnvString("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)

	c.Supervisor.MaxExecutionTime = getEnvDuration("MAX_EXECUTION_TIME", c.Supervisor.MaxExecutionTime)
	c.Supervisor.MaxMemoryMB = getEnvInt("MAX_MEMORY_MB", c.Supervisor.MaxMemoryMB)
	c.Supervisor.MaxSteps = getEnvInt("MAX_STEPS", c.Supervisor.MaxSteps)
	c.Supervisor.Workers = getEnvInt("WORKERS", c.Supervisor.Workers)
	c.Supervisor.WorkerBinaryPath = getEnvString("WORKER_BINARY_PATH", c.Supervisor.WorkerBinaryPath)

	c.Sandbox.MaxCodeLength = getEnvInt("MAX_CODE_LENGTH", c.Sandbox.MaxCodeLength)
	c.Sandbox.MaxOutputLength = getEnvInt("MAX_OUTPUT_LENGTH", c.Sandbox.MaxOutputLength)
	c.Sandbox.AllowedBuiltins = getEnvStringSlice("ALLOWED_BUILTINS", c.Sandbox.AllowedBuiltins)
	c.Sandbox.BlockedModules = getEnvStringSlice("BLOCKED_MODULES", c.Sandbox.BlockedModules)
	c.Sandbox.AllowedModules = getEnvStringSlice("ALLOWED_MODULES", c.Sandbox.AllowedModules)
}

// getEnvDuration parses either a Go duration
// ("5s") or a bare integer number of seconds, since spec §6 names
// MAX_EXECUTION_TIME as a plain number.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

// Validate performs comprehensive configuration validation before startup.
func Validate(c *Config) error {
	v := &validator{config: c}
	v.validateServer()
	v.validateSupervisor()
	v.validateSandbox()
	v.validateTracing()

	if len(v.errs) > 0 {
		msgs := make([]string, len(v.errs))
		for i, e := range v.errs {
			msgs[i] = e.Error()
		}
		return errors.New(errors.CodeConfigValidation, "config", "validate", strings.Join(msgs, "; "))
	}
	return nil
}

type validator struct {
	config *Config
	errs   []error
}

func (v *validator) fail(format string, args ...interface{}) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) validateServer() {
	if v.config.Server.Port <= 0 || v.config.Server.Port > 65535 {
		v.fail("server.port out of range: %d", v.config.Server.Port)
	}
}

func (v *validator) validateSupervisor() {
	s := v.config.Supervisor
	if s.MaxExecutionTime <= 0 {
		v.fail("supervisor.max_execution_time must be positive")
	}
	if s.MaxMemoryMB <= 0 {
		v.fail("supervisor.max_memory_mb must be positive")
	}
	if s.MaxSteps <= 0 {
		v.fail("supervisor.max_steps must be positive")
	}
	if s.Workers <= 0 {
		v.fail("supervisor.workers must be positive")
	}
}

func (v *validator) validateSandbox() {
	s := v.config.Sandbox
	if s.MaxCodeLength <= 0 {
		v.fail("sandbox.max_code_length must be positive")
	}
	if s.MaxOutputLength <= 0 {
		v.fail("sandbox.max_output_length must be positive")
	}
	if len(s.AllowedBuiltins) == 0 {
		v.fail("sandbox.allowed_builtins must not be empty")
	}
	for _, blocked := range s.BlockedModules {
		for _, allowed := range s.AllowedModules {
			if blocked == allowed {
				v.fail("module %q is both allowed and blocked", blocked)
			}
		}
	}
}

func (v *validator) validateTracing() {
	if v.config.Tracing.Enabled && v.config.Tracing.SampleRate < 0 {
		v.fail("tracing.sample_rate must be >= 0")
	}
}
