// Package hotreload watches a configuration file on disk and reloads it
// without a process restart. The execution supervisor uses it to pick up
// changes to the sandbox policy — ALLOWED_BUILTINS, BLOCKED_MODULES,
// ALLOWED_MODULES — the moment an operator edits the config file.
package hotreload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Loader parses the config file at path into a value.
type Loader func(path string) (any, error)

// Validator checks a loaded config before it is applied. Return an error
// to reject the reload.
type Validator func(any) error

// Config configures the reloader's behavior.
type Config struct {
	Enabled          bool          `yaml:"enabled"`
	WatchInterval    time.Duration `yaml:"watch_interval"`
	DebounceInterval time.Duration `yaml:"debounce_interval"`
	WatchFiles       []string      `yaml:"watch_files"`
	ValidateOnReload bool          `yaml:"validate_on_reload"`
	FailsafeMode     bool          `yaml:"failsafe_mode"`
}

// Stats is a point-in-time snapshot of reloader activity.
type Stats struct {
	TotalReloads      int64     `json:"total_reloads"`
	SuccessfulReloads int64     `json:"successful_reloads"`
	FailedReloads     int64     `json:"failed_reloads"`
	LastReloadTime    time.Time `json:"last_reload_time"`
	LastSuccessTime   time.Time `json:"last_success_time"`
	LastError         string    `json:"last_error,omitempty"`
	ConfigVersion     string    `json:"config_version"`
	FilesWatched      int       `json:"files_watched"`
	IsWatching        bool      `json:"is_watching"`
}

// Reloader watches configFile and reapplies it on change.
type Reloader struct {
	config     Config
	logger     *logrus.Logger
	configFile string
	load       Loader
	validate   Validator

	currentHash string

	watcher      *fsnotify.Watcher
	watchedFiles map[string]bool

	onConfigChanged func(old, new any) error
	onReloadSuccess func(new any)
	onReloadError   func(error)

	currentConfig atomic.Value // any

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	statsMu sync.RWMutex
	stats   Stats
}

// New creates a Reloader for configFile using load to parse it.
func New(config Config, configFile string, load Loader, logger *logrus.Logger) (*Reloader, error) {
	if !config.Enabled {
		return &Reloader{config: config, logger: logger, configFile: configFile, load: load}, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if config.WatchInterval == 0 {
		config.WatchInterval = 5 * time.Second
	}
	if config.DebounceInterval == 0 {
		config.DebounceInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &Reloader{
		config:       config,
		logger:       logger,
		configFile:   configFile,
		load:         load,
		watcher:      watcher,
		watchedFiles: make(map[string]bool),
		ctx:          ctx,
		cancel:       cancel,
	}

	if err := r.updateConfigHash(); err != nil {
		logger.WithError(err).Warn("failed to calculate initial config hash")
	}

	return r, nil
}

// SetValidator installs a validation hook run before every reload is applied.
func (r *Reloader) SetValidator(v Validator) { r.validate = v }

// SetCallbacks registers reload lifecycle hooks.
func (r *Reloader) SetCallbacks(onChanged func(old, new any) error, onSuccess func(new any), onError func(error)) {
	r.onConfigChanged = onChanged
	r.onReloadSuccess = onSuccess
	r.onReloadError = onError
}

// Start loads the initial config, begins file watching, and spawns the
// watch and periodic-check goroutines.
func (r *Reloader) Start() error {
	if !r.config.Enabled {
		r.logger.Info("config reloader disabled")
		return nil
	}
	if r.running.Load() {
		return fmt.Errorf("config reloader already running")
	}

	cfg, err := r.load(r.configFile)
	if err != nil {
		return fmt.Errorf("failed to load initial config: %w", err)
	}
	r.currentConfig.Store(cfg)

	if err := r.setupFileWatching(); err != nil {
		return fmt.Errorf("failed to setup file watching: %w", err)
	}

	r.wg.Add(2)
	go r.watchFileChanges()
	go r.periodicCheck()

	r.running.Store(true)
	r.setStat(func(s *Stats) { s.IsWatching = true })

	r.logger.WithFields(logrus.Fields{
		"config_file":    r.configFile,
		"watch_interval": r.config.WatchInterval,
		"files_watched":  len(r.watchedFiles),
	}).Info("config reloader started")
	return nil
}

// Stop halts watching and waits for its goroutines to exit.
func (r *Reloader) Stop() error {
	if !r.running.Load() {
		return nil
	}
	r.logger.Info("stopping config reloader")
	r.running.Store(false)
	r.cancel()
	if r.watcher != nil {
		r.watcher.Close()
	}
	r.wg.Wait()
	r.logger.Info("config reloader stopped")
	return nil
}

func (r *Reloader) setupFileWatching() error {
	if err := r.addFileToWatch(r.configFile); err != nil {
		return fmt.Errorf("failed to watch main config file: %w", err)
	}
	for _, file := range r.config.WatchFiles {
		if err := r.addFileToWatch(file); err != nil {
			r.logger.WithError(err).WithField("file", file).Warn("failed to watch additional file")
		}
	}
	configDir := filepath.Dir(r.configFile)
	if err := r.watcher.Add(configDir); err != nil {
		r.logger.WithError(err).WithField("directory", configDir).Warn("failed to watch config directory")
	}
	return nil
}

func (r *Reloader) addFileToWatch(filePath string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	if r.watchedFiles[absPath] {
		return nil
	}
	if err := r.watcher.Add(absPath); err != nil {
		return fmt.Errorf("failed to add file to watcher: %w", err)
	}
	r.watchedFiles[absPath] = true
	r.setStat(func(s *Stats) { s.FilesWatched = len(r.watchedFiles) })
	return nil
}

func (r *Reloader) watchFileChanges() {
	defer r.wg.Done()

	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	pendingReload := false

	for {
		select {
		case <-r.ctx.Done():
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if r.shouldProcessEvent(event) {
				r.logger.WithFields(logrus.Fields{"file": event.Name, "operation": event.Op.String()}).Debug("config file change detected")
				if !debounceTimer.Stop() {
					select {
					case <-debounceTimer.C:
					default:
					}
				}
				debounceTimer.Reset(r.config.DebounceInterval)
				pendingReload = true
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.WithError(err).Error("file watcher error")
		case <-debounceTimer.C:
			if pendingReload {
				pendingReload = false
				if err := r.performReload(); err != nil {
					r.logger.WithError(err).Error("config reload failed")
				}
			}
		}
	}
}

func (r *Reloader) periodicCheck() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.WatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if err := r.checkForChanges(); err != nil {
				r.logger.WithError(err).Error("periodic config check failed")
			}
		}
	}
}

func (r *Reloader) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	absPath, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	if absPath == r.configFile || r.watchedFiles[absPath] {
		return true
	}
	if filepath.Dir(absPath) == filepath.Dir(r.configFile) {
		ext := filepath.Ext(absPath)
		return ext == ".yaml" || ext == ".yml" || ext == ".json"
	}
	return false
}

func (r *Reloader) checkForChanges() error {
	newHash, err := r.calculateConfigHash()
	if err != nil {
		return fmt.Errorf("failed to calculate config hash: %w", err)
	}
	if newHash != r.currentHash {
		r.logger.WithFields(logrus.Fields{"old_hash": shortHash(r.currentHash), "new_hash": shortHash(newHash)}).Info("config change detected via hash comparison")
		return r.performReload()
	}
	return nil
}

func (r *Reloader) performReload() error {
	startTime := time.Now()
	r.setStat(func(s *Stats) {
		s.TotalReloads++
		s.LastReloadTime = startTime
	})

	newConfig, err := r.load(r.configFile)
	if err != nil {
		r.failReload(err)
		return fmt.Errorf("failed to load new config: %w", err)
	}

	if r.config.ValidateOnReload && r.validate != nil {
		if err := r.validate(newConfig); err != nil {
			r.failReload(fmt.Errorf("config validation failed: %w", err))
			return fmt.Errorf("new config validation failed: %w", err)
		}
	}

	oldConfig := r.currentConfig.Load()

	if r.onConfigChanged != nil {
		if err := r.onConfigChanged(oldConfig, newConfig); err != nil {
			r.failReload(fmt.Errorf("failed to apply config changes: %w", err))
			if r.config.FailsafeMode {
				r.logger.WithError(err).Warn("config apply failed, continuing in failsafe mode")
			} else {
				return fmt.Errorf("failed to apply config changes: %w", err)
			}
		}
	}

	r.currentConfig.Store(newConfig)
	if err := r.updateConfigHash(); err != nil {
		r.logger.WithError(err).Warn("failed to update config hash")
	}

	r.setStat(func(s *Stats) {
		s.SuccessfulReloads++
		s.LastSuccessTime = time.Now()
		s.ConfigVersion = r.currentHash
		s.LastError = ""
	})

	if r.onReloadSuccess != nil {
		r.onReloadSuccess(newConfig)
	}

	r.logger.WithField("config_version", shortHash(r.currentHash)).Info("config reload completed successfully")
	return nil
}

func (r *Reloader) failReload(err error) {
	r.setStat(func(s *Stats) {
		s.FailedReloads++
		s.LastError = err.Error()
	})
	if r.onReloadError != nil {
		r.onReloadError(err)
	}
}

func (r *Reloader) calculateConfigHash() (string, error) {
	file, err := os.Open(r.configFile)
	if err != nil {
		return "", fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to calculate hash: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func (r *Reloader) updateConfigHash() error {
	hash, err := r.calculateConfigHash()
	if err != nil {
		return err
	}
	r.currentHash = hash
	return nil
}

func (r *Reloader) setStat(fn func(*Stats)) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	fn(&r.stats)
}

// Current returns the most recently applied config, or nil if none has
// loaded yet.
func (r *Reloader) Current() any {
	return r.currentConfig.Load()
}

// Stats returns a snapshot of reloader activity.
func (r *Reloader) Stats() Stats {
	r.statsMu.RLock()
	defer r.statsMu.RUnlock()
	return r.stats
}

// IsHealthy reports whether the reloader is functioning: either disabled
// (nothing to watch) or actively watching a config file that still exists.
func (r *Reloader) IsHealthy() bool {
	if !r.config.Enabled {
		return true
	}
	if !r.running.Load() {
		return false
	}
	if time.Since(r.Stats().LastReloadTime) > r.config.WatchInterval*5 {
		if _, err := os.Stat(r.configFile); err != nil {
			return false
		}
	}
	return true
}

// TriggerReload forces an immediate reload outside the normal watch cycle.
func (r *Reloader) TriggerReload() error {
	if !r.config.Enabled {
		return fmt.Errorf("config reloader is disabled")
	}
	if !r.running.Load() {
		return fmt.Errorf("config reloader is not running")
	}
	r.logger.Info("manual config reload triggered")
	return r.performReload()
}

func shortHash(h string) string {
	if len(h) < 8 {
		return h
	}
	return h[:8]
}
