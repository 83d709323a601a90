// Package app wires the visual-debugger backend's core (the static
// validator, trace collector, and execution supervisor) to the HTTP
// transport and the ambient infrastructure around it: configuration,
// logging, authentication, rate limiting, distributed tracing, metrics,
// hot reload, and leak detection. The App struct and its New/Start/Stop
// lifecycle follow the teacher's own internal/app orchestration shape —
// one struct holding every manager, initialized in dependency order,
// started in that order and stopped in reverse.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"pytrace/internal/config"
	"pytrace/internal/metrics"
	"pytrace/internal/session"
	"pytrace/internal/supervisor"
	"pytrace/internal/tracingobs"
	"pytrace/pkg/hotreload"
	"pytrace/pkg/leakdetection"
	"pytrace/pkg/ratelimit"
	"pytrace/pkg/security"
	"pytrace/pkg/tracing"
)

// App is the fully wired service: core execution plus every ambient
// concern around it.
type App struct {
	config *config.Config
	logger *logrus.Logger

	supervisor *supervisor.Supervisor
	sessions   *session.Store

	auth     *security.AuthManager
	audit    *security.AuditLogger
	limiter  *ratelimit.Limiter
	leak     *leakdetection.Monitor
	reloader *hotreload.Reloader

	tracingMgr *tracing.Manager
	observer   *tracingobs.Observer

	metricsServer *metrics.Server
	httpServer    *http.Server

	ctx        context.Context
	cancel     context.CancelFunc
	configFile string
	wg         sync.WaitGroup
}

// New loads configuration from configFile, validates it, and initializes
// every component in dependency order: logging, the core execution
// supervisor and session store, then the ambient security/rate-limit/
// tracing/leak-detection/hot-reload layers, and finally the HTTP and
// metrics servers.
func New(configFile string) (*App, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.App.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	ctx, cancel := context.WithCancel(context.Background())

	application := &App{
		config:     cfg,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		configFile: configFile,
	}

	logger.WithFields(logrus.Fields{
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"workers":     cfg.Supervisor.Workers,
	}).Info("configuration loaded")

	if err := application.initializeComponents(); err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return application, nil
}

// initializeComponents performs sequential initialization: the core
// supervisor and session store first (nothing else can serve a request
// without them), then the ambient layers, then the servers.
func (app *App) initializeComponents() error {
	app.initCoreServices()
	app.initSecurity()
	app.initObservability()
	app.initResourceGuards()
	if err := app.initHotReload(); err != nil {
		return err
	}
	app.initHTTPServer()
	app.initMetricsServer()
	return nil
}

// Start begins serving: the metrics server, the leak-detection watchdog,
// the hot-reload watcher, and finally the main HTTP server, each started
// in the order a dependent component needs it ready.
func (app *App) Start() error {
	if err := app.metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	if app.leak != nil {
		if err := app.leak.Start(); err != nil {
			return fmt.Errorf("failed to start leak detector: %w", err)
		}
	}
	if app.reloader != nil {
		if err := app.reloader.Start(); err != nil {
			return fmt.Errorf("failed to start config reloader: %w", err)
		}
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.logger.WithField("addr", app.httpServer.Addr).Info("starting HTTP server")
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Run starts the application and blocks until SIGINT/SIGTERM, then
// performs a graceful shutdown.
func (app *App) Run() error {
	if err := app.Start(); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	app.logger.Info("shutdown signal received")
	return app.Stop()
}

// Stop shuts every component down in reverse-start order, bounding the
// whole sequence to a fixed grace period.
func (app *App) Stop() error {
	app.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		app.logger.WithError(err).Warn("HTTP server shutdown error")
	}
	if app.reloader != nil {
		_ = app.reloader.Stop()
	}
	if app.leak != nil {
		_ = app.leak.Stop()
	}
	if app.limiter != nil {
		app.limiter.Stop()
	}
	if app.tracingMgr != nil {
		_ = app.tracingMgr.Shutdown(shutdownCtx)
	}
	app.sessions.Close()
	app.supervisor.Shutdown()
	_ = app.metricsServer.Stop()

	app.wg.Wait()
	return nil
}

// routerMiddleware builds the ordered handler-wrapping chain: metrics
// (innermost, always on), then rate limiting, then auth, then tracing
// (outermost), matching the teacher's "apply innermost first, outermost
// last" composition in its own registerHandlers.
func (app *App) routerMiddleware(resource, action string) func(http.Handler) http.Handler {
	chain := metricsMiddleware

	if app.limiter != nil && app.config.RateLimit.Enabled {
		prev := chain
		chain = func(h http.Handler) http.Handler {
			return rateLimitMiddleware(app.limiter, prev(h))
		}
	}

	if app.auth != nil && app.config.Auth.Enabled {
		authMW := app.auth.AuthMiddleware(resource, action)
		prev := chain
		chain = func(h http.Handler) http.Handler {
			return authMW(prev(h))
		}
	}

	if app.tracingMgr != nil {
		traceMW := tracing.HTTPMiddleware(app.tracingMgr.Tracer(), "http_request")
		prev := chain
		chain = func(h http.Handler) http.Handler {
			return traceMW(prev(h))
		}
	}

	return chain
}

func (app *App) initHTTPServer() {
	router := mux.NewRouter()
	app.registerHandlers(router)

	app.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
	}
}

func (app *App) initMetricsServer() {
	addr := fmt.Sprintf("%s:%d", app.config.Metrics.Host, app.config.Metrics.Port)
	app.metricsServer = metrics.NewServer(addr, app.logger)
}
