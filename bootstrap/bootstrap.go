// Package bootstrap wires all dependencies and starts the application.
// Configuration comes from a YAML file when one exists, otherwise from
// MESGATE_* environment variables.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artpar/mesgate/adapters/clock"
	"github.com/artpar/mesgate/adapters/hasher"
	apihttp "github.com/artpar/mesgate/adapters/http"
	"github.com/artpar/mesgate/adapters/idgen"
	"github.com/artpar/mesgate/adapters/memory"
	"github.com/artpar/mesgate/adapters/metrics"
	"github.com/artpar/mesgate/adapters/remote"
	"github.com/artpar/mesgate/adapters/sqlite"
	"github.com/artpar/mesgate/app"
	"github.com/artpar/mesgate/config"
	"github.com/artpar/mesgate/core/events"
	"github.com/artpar/mesgate/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder
	DB         *sqlite.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector
	Schema     *app.SchemaService
	Dispatcher *app.Dispatcher
	Bus        *events.Bus

	clock           ports.Clock
	intervalChanged chan struct{}
	cancelSync      context.CancelFunc
	syncDone        chan struct{}
}

// Options provides optional configuration for application initialization.
type Options struct {
	// ConfigPath is the YAML config file. Missing files fall back to the
	// environment.
	ConfigPath string

	// Version is reported by /version.
	Version string

	// LogOutput defaults to stdout.
	LogOutput io.Writer

	// Clock defaults to the wall clock.
	Clock ports.Clock
}

// New creates and initializes the application.
func New(opts Options) (*App, error) {
	holder, err := newHolder(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := holder.Get()

	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}
	logger := SetupLogger(cfg.Logging, out)
	holder.SetLogger(logger)

	logger.Info().
		Str("config", holder.Path()).
		Str("portal", cfg.Portal.Mode).
		Msg("initializing mesgate")

	a := &App{
		Logger:          logger,
		Config:          holder,
		clock:           opts.Clock,
		intervalChanged: make(chan struct{}, 1),
	}
	if a.clock == nil {
		a.clock = clock.Real{}
	}

	if err := a.initDatabase(cfg.Database); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	var metricsHandler http.Handler
	var recorder app.Recorder
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		recorder = a.Metrics
		holder.SetRecorder(a.Metrics)
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	a.Schema, err = app.NewSchemaService(cfg.Services.Path, logger, recorder)
	if err != nil {
		a.DB.Close()
		return nil, fmt.Errorf("load services: %w", err)
	}

	portal, err := NewPortal(cfg.Portal, a.clock)
	if err != nil {
		a.DB.Close()
		return nil, fmt.Errorf("init portal: %w", err)
	}

	a.Bus = events.NewBus(logger)
	a.Bus.Subscribe("mosenergosbyt_*", a.logEvent)

	entities := sqlite.NewEntityStore(a.DB)
	notifications := sqlite.NewNotificationStore(a.DB)
	calls := sqlite.NewCallStore(a.DB)

	a.Dispatcher = app.NewDispatcher(app.DispatcherDeps{
		Schema:   a.Schema,
		Entities: entities,
		Portal:   portal,
		Notifier: notifications,
		Calls:    calls,
		Bus:      a.Bus,
		Metrics:  recorder,
		Clock:    a.clock,
		IDGen:    idgen.UUID{},
		Logger:   logger,
	}, app.DispatcherConfig{
		DisableNotifications: cfg.Notifications.Disabled,
	})

	router := apihttp.NewRouter(apihttp.Deps{
		Dispatcher:    a.Dispatcher,
		Schema:        a.Schema,
		Entities:      entities,
		Calls:         calls,
		Notifications: notifications,
		Hasher:        hasher.NewBcrypt(0),
		Metrics:       a.Metrics,
		Logger:        logger,
	}, apihttp.RouterConfig{
		TokenHash:      cfg.Server.APITokenHash,
		MetricsPath:    cfg.Metrics.Path,
		MetricsHandler: metricsHandler,
		Version:        opts.Version,
		RequestTimeout: cfg.Server.WriteTimeout,
	})

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	holder.OnChange(a.applyConfig)

	if cfg.Services.Watch && cfg.Services.Path != "" {
		if err := holder.Track(cfg.Services.Path, a.reloadServices); err != nil {
			logger.Warn().Err(err).Str("path", cfg.Services.Path).Msg("cannot track services document")
		}
	}

	return a, nil
}

func newHolder(path string) (*config.Holder, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return config.NewHolder(path, zerolog.Nop())
		}
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	return config.NewStaticHolder(cfg, zerolog.Nop()), nil
}

func (a *App) initDatabase(cfg config.DatabaseConfig) error {
	db, err := sqlite.Open(cfg.DSN)
	if err != nil {
		return err
	}

	applied, err := db.Migrate(context.Background())
	if err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		a.Logger.Info().Int("migrations", applied).Str("dsn", cfg.DSN).Msg("database migrated")
	}

	a.DB = db
	return nil
}

// NewPortal builds the portal backend selected by cfg.
func NewPortal(cfg config.PortalConfig, c ports.Clock) (ports.Portal, error) {
	switch cfg.Mode {
	case config.PortalRemote:
		client := remote.NewClient(remote.ClientConfig{
			BaseURL: cfg.Remote.URL,
			APIKey:  cfg.Remote.APIKey,
			Timeout: cfg.Remote.Timeout,
			Headers: cfg.Remote.Headers,
		})
		return remote.NewPortal(client), nil
	case config.PortalMemory, "":
		fixtures := memory.DemoEntities(c.Now())
		if cfg.Fixtures != "" {
			loaded, err := memory.LoadEntities(cfg.Fixtures)
			if err != nil {
				return nil, fmt.Errorf("load fixtures: %w", err)
			}
			fixtures = loaded
		}
		return memory.NewPortal(c, cfg.TariffRate(memory.DefaultRate), fixtures...), nil
	default:
		return nil, fmt.Errorf("unknown portal mode %q", cfg.Mode)
	}
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	if err := a.Start(context.Background()); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Start performs the initial entity sync and starts the background
// refresh loop and config watchers. Run calls it.
func (a *App) Start(ctx context.Context) error {
	if n, err := a.Dispatcher.Sync(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("initial entity sync failed")
	} else {
		a.Logger.Info().Int("entities", n).Msg("entities synced")
	}

	cfg := a.Config.Get()
	if a.Config.Path() != "" || (cfg.Services.Watch && cfg.Services.Path != "") {
		if err := a.Config.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watching disabled")
		}
	}
	a.Config.WatchSignals()

	syncCtx, cancel := context.WithCancel(context.Background())
	a.cancelSync = cancel
	a.syncDone = make(chan struct{})
	go a.syncLoop(syncCtx)

	return nil
}

// syncLoop refreshes every entity on portal.refresh_interval. A zero
// interval disables the loop until the config changes.
func (a *App) syncLoop(ctx context.Context) {
	defer close(a.syncDone)

	for {
		interval := a.Config.Get().Portal.RefreshInterval

		var tick <-chan time.Time
		var timer *time.Timer
		if interval > 0 {
			timer = time.NewTimer(interval)
			tick = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-a.intervalChanged:
			if timer != nil {
				timer.Stop()
			}
		case <-tick:
			if n, err := a.Dispatcher.Sync(ctx); err != nil {
				a.Logger.Warn().Err(err).Msg("scheduled entity sync failed")
			} else {
				a.Logger.Debug().Int("entities", n).Msg("scheduled entity sync")
			}
		}
	}
}

// applyConfig pushes reloadable settings into running components.
func (a *App) applyConfig(cfg *config.Config) {
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	a.Dispatcher.UpdateConfig(app.DispatcherConfig{
		DisableNotifications: cfg.Notifications.Disabled,
	})

	select {
	case a.intervalChanged <- struct{}{}:
	default:
	}
}

// reloadServices re-reads the services document. Rejections are logged and
// counted by the schema service.
func (a *App) reloadServices() {
	_ = a.Schema.Reload()
}

func (a *App) logEvent(ctx context.Context, e events.Event) error {
	a.Logger.Info().
		Str("event", e.Name).
		Str("service", e.Service).
		Str("call_id", e.CallID).
		Interface("data", e.Data).
		Msg("event fired")
	return nil
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop background refresh
	if a.cancelSync != nil {
		a.cancelSync()
		<-a.syncDone
		a.cancelSync = nil
	}

	if a.Config != nil {
		a.Config.Stop()
	}

	// Shutdown HTTP server
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	// Close database
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
		a.DB = nil
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// SetupLogger builds the process logger and sets the global level.
func SetupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}
