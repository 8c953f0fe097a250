// Package bootstrap wires configuration, storage, detection and the
// rollback engine into a running application.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"vigil/config"
	"vigil/core"
	"vigil/detect"
	"vigil/notify"
	"vigil/rollback"
	"vigil/storage"

	"go.uber.org/zap"
)

// App represents the vigil application with all its components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	SQLite *storage.SQLite

	Alerts      core.AlertStore
	Snapshots   core.SnapshotStore
	Deployments core.DeploymentStore
	Requests    core.RollbackStore
	Audit       core.AuditLog

	Counters detect.CounterState
	Detector *detect.Detector
	Engine   *rollback.Engine

	shutdownCh chan struct{}
}

// NewApp creates a new application instance and initializes all components.
func NewApp(ctx context.Context) (*App, error) {
	app := &App{
		shutdownCh: make(chan struct{}),
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load config: %v\n", err)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	logger, sugar, err := InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("Vigil starting...")
	logConfig(cfg, sugar)

	if err := EnsureDataDirectories(cfg, sugar); err != nil {
		return nil, fmt.Errorf("pre-flight check failed: %w", err)
	}

	sqlite, err := InitSQLite(cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.SQLite = sqlite

	if err := app.initStores(sqlite, sugar); err != nil {
		return nil, err
	}

	app.Counters = InitCounterState(cfg, sugar)
	for _, source := range cfg.Detector.KnownSources {
		if err := app.Counters.AddKnownSource(ctx, source); err != nil {
			return nil, fmt.Errorf("failed to seed known source %q: %w", source, err)
		}
	}

	notifier := notify.NewLogNotifier(sugar)

	detector, err := detect.NewDetector(
		app.Alerts,
		app.Audit,
		app.Counters,
		notifier,
		PolicyFromConfig(cfg),
		cfg.Rollback.StoreTimeout,
		cfg.Detector.ConfigHashCacheSize,
		sugar,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize detector: %w", err)
	}
	app.Detector = detector

	fileStore := rollback.NewFileStore(cfg.DataPaths.SnapshotsDir, cfg.DataPaths.EnvironmentsDir)
	app.Engine = rollback.NewEngine(
		app.Snapshots,
		app.Deployments,
		app.Requests,
		app.Audit,
		fileStore,
		fileStore,
		notifier,
		cfg.Rollback.Approvers,
		cfg.Rollback.OptionScanLimit,
		cfg.Rollback.StoreTimeout,
		sugar,
	)

	sugar.Info("Vigil initialized")
	return app, nil
}

func (a *App) initStores(sqlite *storage.SQLite, sugar *zap.SugaredLogger) error {
	alerts, err := storage.NewSQLiteAlertStorage(sqlite, sugar)
	if err != nil {
		return fmt.Errorf("failed to initialize alert storage: %w", err)
	}
	a.Alerts = alerts

	snapshots, err := storage.NewSQLiteSnapshotStorage(sqlite, sugar)
	if err != nil {
		return fmt.Errorf("failed to initialize snapshot storage: %w", err)
	}
	a.Snapshots = snapshots

	deployments, err := storage.NewSQLiteDeploymentStorage(sqlite, sugar)
	if err != nil {
		return fmt.Errorf("failed to initialize deployment storage: %w", err)
	}
	a.Deployments = deployments

	requests, err := storage.NewSQLiteRollbackStorage(sqlite, sugar)
	if err != nil {
		return fmt.Errorf("failed to initialize rollback storage: %w", err)
	}
	a.Requests = requests

	audit, err := storage.NewSQLiteAuditStorage(sqlite, sugar)
	if err != nil {
		return fmt.Errorf("failed to initialize audit storage: %w", err)
	}
	a.Audit = audit

	return nil
}

// WaitForShutdown blocks until an interrupt or termination signal arrives.
func (a *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		a.Sugar.Infow("Shutdown signal received", "signal", sig.String())
	case <-a.shutdownCh:
	}
}

// Shutdown releases all resources in reverse initialization order.
func (a *App) Shutdown() {
	a.Sugar.Info("Vigil shutting down...")
	close(a.shutdownCh)

	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil {
			a.Sugar.Errorf("Failed to close SQLite: %v", err)
		}
	}

	_ = a.Logger.Sync()
}
