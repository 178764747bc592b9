// Package config provides configuration loading and hot reload.
package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadRecorder receives the outcome of each reload attempt.
type ReloadRecorder interface {
	ConfigReloaded(ok bool)
}

// Holder provides thread-safe access to configuration with hot reload support.
// Besides the config file it can watch extra files (the services document)
// and run a callback when they change.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	logger   zerolog.Logger
	recorder ReloadRecorder
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	tracked  map[string][]func()
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHolder creates a new config holder and loads the initial configuration.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	return newHolder(cfg, absPath, logger), nil
}

// NewStaticHolder wraps an already loaded configuration. Reload re-reads the
// environment only.
func NewStaticHolder(cfg *Config, logger zerolog.Logger) *Holder {
	return newHolder(cfg, "", logger)
}

func newHolder(cfg *Config, path string, logger zerolog.Logger) *Holder {
	return &Holder{
		config:  cfg,
		path:    path,
		logger:  logger,
		tracked: make(map[string][]func()),
		stopCh:  make(chan struct{}),
	}
}

// SetRecorder sets where reload outcomes are reported.
func (h *Holder) SetRecorder(r ReloadRecorder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recorder = r
}

// SetLogger replaces the logger. Call it before WatchFile or WatchSignals.
func (h *Holder) SetLogger(logger zerolog.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger = logger
}

// Get returns the current configuration (thread-safe).
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Path returns the absolute config file path, empty for a static holder.
func (h *Holder) Path() string {
	return h.path
}

// Reload reloads the configuration from disk.
// Returns error if loading fails (keeps old config).
func (h *Holder) Reload() error {
	h.logger.Info().Str("path", h.path).Msg("reloading configuration")

	var newCfg *Config
	var err error
	if h.path == "" {
		newCfg, err = LoadFromEnv()
	} else {
		newCfg, err = Load(h.path)
	}
	if err != nil {
		h.record(false)
		h.logger.Error().Err(err).Msg("config reload failed, keeping old config")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.config
	h.config = newCfg
	callbacks := append([]func(*Config){}, h.onChange...)
	h.mu.Unlock()

	h.logChanges(oldCfg, newCfg)

	for _, fn := range callbacks {
		fn(newCfg)
	}

	h.record(true)
	h.logger.Info().Msg("configuration reloaded successfully")
	return nil
}

func (h *Holder) record(ok bool) {
	h.mu.RLock()
	r := h.recorder
	h.mu.RUnlock()
	if r != nil {
		r.ConfigReloaded(ok)
	}
}

// OnChange registers a callback to be called when config changes.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// Track runs fn whenever the file at path is written or recreated.
// Takes effect for watchers started before or after the call.
func (h *Holder) Track(path string, fn func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}

	h.mu.Lock()
	h.tracked[abs] = append(h.tracked[abs], fn)
	watcher := h.watcher
	h.mu.Unlock()

	if watcher != nil {
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("watch directory: %w", err)
		}
	}
	return nil
}

// WatchFile starts watching the config file and tracked files for changes.
// Changes trigger automatic reload.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch directories (more reliable for editors that do atomic saves)
	dirs := map[string]bool{}
	h.mu.Lock()
	if h.path != "" {
		dirs[filepath.Dir(h.path)] = true
	}
	for p := range h.tracked {
		dirs[filepath.Dir(p)] = true
	}
	h.watcher = watcher
	h.mu.Unlock()

	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch directory: %w", err)
		}
	}

	go h.watchLoop(watcher)

	h.logger.Info().Str("path", h.path).Int("tracked", len(dirs)).Msg("watching config files for changes")
	return nil
}

// WatchSignals starts listening for SIGHUP to trigger reload.
// SIGHUP also re-runs every tracked file callback.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP, reloading config")
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("SIGHUP reload failed")
				}
				for _, fn := range h.allTracked() {
					fn()
				}
			case <-h.stopCh:
				signal.Stop(sigCh)
				return
			}
		}
	}()

	h.logger.Info().Msg("listening for SIGHUP to reload config")
}

// Stop stops watching for file changes and signals.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		h.mu.Lock()
		if h.watcher != nil {
			h.watcher.Close()
		}
		h.mu.Unlock()
	})
}

func (h *Holder) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			// React to write or create (atomic save = create)
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name := filepath.Clean(event.Name)

			if name == h.path {
				h.logger.Debug().
					Str("event", event.Op.String()).
					Str("file", event.Name).
					Msg("config file changed")

				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("file watch reload failed")
				}
				continue
			}

			h.mu.RLock()
			fns := append([]func(){}, h.tracked[name]...)
			h.mu.RUnlock()
			if len(fns) > 0 {
				h.logger.Debug().Str("file", event.Name).Msg("tracked file changed")
			}
			for _, fn := range fns {
				fn()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("file watcher error")

		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) allTracked() []func() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var fns []func()
	for _, list := range h.tracked {
		fns = append(fns, list...)
	}
	return fns
}

func (h *Holder) logChanges(old, new *Config) {
	if old.Logging.Level != new.Logging.Level {
		h.logger.Info().
			Str("old", old.Logging.Level).
			Str("new", new.Logging.Level).
			Msg("log level changed")
	}

	if old.Notifications.Disabled != new.Notifications.Disabled {
		h.logger.Info().
			Bool("disabled", new.Notifications.Disabled).
			Msg("notifications toggled")
	}

	if old.Portal.RefreshInterval != new.Portal.RefreshInterval {
		h.logger.Info().
			Dur("old", old.Portal.RefreshInterval).
			Dur("new", new.Portal.RefreshInterval).
			Msg("refresh interval changed")
	}

	for _, f := range changedNonReloadable(old, new) {
		h.logger.Warn().Str("field", f).Msg("field changed but requires a restart")
	}
}

func changedNonReloadable(old, new *Config) []string {
	var changed []string
	if old.Server.Host != new.Server.Host {
		changed = append(changed, "server.host")
	}
	if old.Server.Port != new.Server.Port {
		changed = append(changed, "server.port")
	}
	if old.Server.APITokenHash != new.Server.APITokenHash {
		changed = append(changed, "server.api_token_hash")
	}
	if old.Database.DSN != new.Database.DSN {
		changed = append(changed, "database.dsn")
	}
	if old.Portal.Mode != new.Portal.Mode {
		changed = append(changed, "portal.mode")
	}
	if old.Portal.Remote.URL != new.Portal.Remote.URL {
		changed = append(changed, "portal.remote.url")
	}
	if old.Services.Path != new.Services.Path {
		changed = append(changed, "services.path")
	}
	return changed
}

// ReloadableFields returns which fields can be changed without restart.
func ReloadableFields() []string {
	return []string{
		"logging.level",
		"notifications.disabled",
		"portal.refresh_interval",
	}
}

// NonReloadableFields returns which fields require a restart.
func NonReloadableFields() []string {
	return []string{
		"server.host",
		"server.port",
		"server.api_token_hash",
		"database.dsn",
		"portal.mode",
		"portal.remote.url",
		"services.path",
	}
}
