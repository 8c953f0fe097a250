package bootstrap

import (
	"fmt"

	"vigil/config"
	"vigil/core"
	"vigil/detect"
	"vigil/storage"

	"go.uber.org/zap"
)

// InitSQLite opens the SQLite database used for alerts, snapshots,
// deployments, rollback requests and the audit log.
func InitSQLite(cfg *config.Config, sugar *zap.SugaredLogger) (*storage.SQLite, error) {
	sqlite, err := storage.NewSQLite(cfg.GetSQLitePath(), sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite at %s: %w", cfg.GetSQLitePath(), err)
	}

	sugar.Infow("SQLite initialized", "path", cfg.GetSQLitePath())
	return sqlite, nil
}

// InitCounterState selects the counter backend: Redis when enabled, the
// in-process fallback otherwise. Counter state is advisory (failure counts,
// known sources); losing it on restart widens detection slightly but never
// corrupts alerts or rollbacks.
func InitCounterState(cfg *config.Config, sugar *zap.SugaredLogger) detect.CounterState {
	if !cfg.Redis.Enabled {
		sugar.Info("Redis disabled, using in-process counter state")
		return detect.NewMemoryCounterState()
	}

	sugar.Infow("Using Redis counter state", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	return core.NewRedisState(
		cfg.Redis.Addr,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
		cfg.Redis.CounterTTL,
		sugar,
	)
}

// PolicyFromConfig builds the detector policy from configuration
func PolicyFromConfig(cfg *config.Config) detect.Policy {
	return detect.Policy{
		FloodEmitThreshold: int64(cfg.Detector.FloodEmitThreshold),
		FloodHighThreshold: int64(cfg.Detector.FloodHighThreshold),
		ExportHighPct:      cfg.Detector.ExportHighPct,
		ExportCriticalPct:  cfg.Detector.ExportCriticalPct,
		OffHoursStart:      cfg.Detector.OffHoursStart,
		OffHoursEnd:        cfg.Detector.OffHoursEnd,
		OffHoursQueryFloor: cfg.Detector.OffHoursQueryFloor,
	}
}
