// Package app: component setup. Each initXxx method builds one manager
// and wires it into the App struct, in the dependency order
// initializeComponents calls them.
package app

import (
	"fmt"
	"time"

	"pytrace/internal/config"
	"pytrace/internal/session"
	"pytrace/internal/supervisor"
	"pytrace/internal/tracingobs"
	"pytrace/pkg/hotreload"
	"pytrace/pkg/leakdetection"
	"pytrace/pkg/ratelimit"
	"pytrace/pkg/security"
	"pytrace/pkg/tracing"
)

// initCoreServices builds the execution supervisor (C7) and the
// transport-facing session store. Nothing else in the service can serve
// a request without these two.
func (app *App) initCoreServices() {
	app.supervisor = supervisor.New(supervisor.Config{
		MaxExecutionTime: app.config.Supervisor.MaxExecutionTime,
		MaxMemoryMB:      app.config.Supervisor.MaxMemoryMB,
		MaxSteps:         app.config.Supervisor.MaxSteps,
		Workers:          app.config.Supervisor.Workers,
		MaxCodeLength:    app.config.Sandbox.MaxCodeLength,
		MaxLineCount:     app.config.Sandbox.MaxLineCount,
		MaxIndentColumns: app.config.Sandbox.MaxIndentColumns,
		AllowedBuiltins:  app.config.Sandbox.AllowedBuiltins,
		BlockedModules:   app.config.Sandbox.BlockedModules,
		AllowedModules:   app.config.Sandbox.AllowedModules,
		WorkerBinaryPath: app.config.Supervisor.WorkerBinaryPath,
	}, app.logger)

	ttl := app.config.Auth.SessionTimeout
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	app.sessions = session.New(ttl)
}

// initSecurity builds the bearer/basic auth manager and its audit logger.
// Disabled by default (config.Auth.Enabled == false); the middleware
// chain skips it entirely when off.
func (app *App) initSecurity() {
	app.auth = security.NewAuthManager(security.AuthConfig{
		Enabled:        app.config.Auth.Enabled,
		Method:         app.config.Auth.Method,
		SessionTimeout: app.config.Auth.SessionTimeout,
		MaxAttempts:    5,
		LockoutTime:    5 * time.Minute,
	}, app.logger)
	app.audit = security.NewAuditLogger(app.logger)
}

// initObservability builds the OpenTelemetry tracing manager (if
// enabled) and the per-execution span observer built on top of it.
func (app *App) initObservability() {
	if !app.config.Tracing.Enabled {
		app.observer = tracingobs.New(nil)
		return
	}

	manager, err := tracing.NewManager(tracing.Config{
		Enabled:     app.config.Tracing.Enabled,
		Endpoint:    app.config.Tracing.Endpoint,
		Insecure:    app.config.Tracing.Insecure,
		SampleRate:  app.config.Tracing.SampleRate,
		Environment: app.config.Tracing.Environment,
		ServiceName: app.config.App.Name,
	}, app.logger)
	if err != nil {
		app.logger.WithError(err).Warn("tracing manager initialization failed, continuing without tracing")
		app.observer = tracingobs.New(nil)
		return
	}
	app.tracingMgr = manager
	app.observer = tracingobs.New(manager)
}

// initResourceGuards builds the adaptive rate limiter guarding
// POST /api/v1/execute and the leak-detection watchdog guarding this
// process's own resource usage between executions.
func (app *App) initResourceGuards() {
	if app.config.RateLimit.Enabled {
		app.limiter = ratelimit.New(ratelimit.Config{
			Enabled:    app.config.RateLimit.Enabled,
			InitialRPS: app.config.RateLimit.InitialRPS,
			MaxBurst:   app.config.RateLimit.MaxBurst,
		}, app.logger)
	}

	app.leak = leakdetection.New(leakdetection.Config{
		MonitoringInterval:   30 * time.Second,
		RSSThreshold:         int64(app.config.Supervisor.MaxMemoryMB) * 1024 * 1024,
		EnableGCOptimization: true,
	}, app.logger)
	app.leak.OnLeakDetected(func(resourceType string, current, threshold int64) {
		app.logger.WithFields(map[string]interface{}{
			"resource":  resourceType,
			"current":   current,
			"threshold": threshold,
		}).Warn("resource usage approaching configured ceiling")
	})
}

// initHotReload wires a hotreload.Reloader that watches the config file
// for changes and, on a successful reload, pushes the refreshed
// ALLOWED_BUILTINS/BLOCKED_MODULES/ALLOWED_MODULES lists into the
// running supervisor without a restart (spec §6's hot-reloadable
// environment names).
func (app *App) initHotReload() error {
	if !app.config.HotReload.Enabled {
		return nil
	}

	loader := func(path string) (any, error) {
		return config.Load(path)
	}

	reloader, err := hotreload.New(hotreload.Config{
		Enabled:          true,
		WatchInterval:    app.config.HotReload.WatchInterval,
		DebounceInterval: app.config.HotReload.DebounceInterval,
		ValidateOnReload: true,
	}, app.configFile, loader, app.logger)
	if err != nil {
		return fmt.Errorf("failed to build config reloader: %w", err)
	}

	reloader.SetValidator(func(v any) error {
		cfg, ok := v.(*config.Config)
		if !ok {
			return fmt.Errorf("unexpected config type")
		}
		return config.Validate(cfg)
	})
	reloader.SetCallbacks(nil, func(newCfg any) {
		cfg := newCfg.(*config.Config)
		app.supervisor.UpdateSandboxLists(cfg.Sandbox.AllowedBuiltins, cfg.Sandbox.BlockedModules, cfg.Sandbox.AllowedModules)
		app.logger.Info("sandbox module lists reloaded")
	}, func(err error) {
		app.logger.WithError(err).Warn("config reload failed")
	})

	app.reloader = reloader
	return nil
}
