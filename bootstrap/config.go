package bootstrap

import (
	"fmt"
	"os"

	"vigil/config"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger initializes the zap logger. Console format uses colored level
// output for interactive use; json is the default for service deployments.
func InitLogger(level, format string) (*zap.Logger, *zap.SugaredLogger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var encoder zapcore.Encoder
	if format == "console" {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(
		encoder,
		zapcore.AddSync(os.Stdout),
		zapLevel,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// logConfig reports the effective configuration once the logger is up.
func logConfig(cfg *config.Config, sugar *zap.SugaredLogger) {
	if viper.ConfigFileUsed() == "" {
		sugar.Info("No config file found, using defaults and env vars")
	}

	sugar.Infow("Data paths configuration",
		"data_dir", cfg.DataPaths.DataDir,
		"sqlite_path", cfg.GetSQLitePath(),
		"snapshots_dir", cfg.DataPaths.SnapshotsDir,
		"environments_dir", cfg.DataPaths.EnvironmentsDir)

	sugar.Infow("Config loaded",
		"redis_enabled", cfg.Redis.Enabled,
		"flood_emit_threshold", cfg.Detector.FloodEmitThreshold,
		"approvers", len(cfg.Rollback.Approvers))
}

// EnsureDataDirectories creates the data directories if they do not exist
func EnsureDataDirectories(cfg *config.Config, sugar *zap.SugaredLogger) error {
	dirs := []string{
		cfg.DataPaths.DataDir,
		cfg.DataPaths.SnapshotsDir,
		cfg.DataPaths.EnvironmentsDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}
	sugar.Debugw("Data directories ready", "count", len(dirs))
	return nil
}
