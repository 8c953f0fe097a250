// Package config loads and validates service configuration from file and
// environment. Settings come from config.yaml (searched in . and ./config)
// overridden by VIGIL_* environment variables.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DataPaths holds all data directory and file path configuration.
// Each path can be overridden individually via environment variables.
type DataPaths struct {
	// DataDir is the base data directory (VIGIL_DATA_DIR, default: ./data)
	DataDir string `mapstructure:"data_dir"`
	// SQLitePath is the SQLite database file path (VIGIL_SQLITE_PATH, default: ${DataDir}/vigil.db)
	SQLitePath string `mapstructure:"sqlite_path"`
	// SnapshotsDir holds captured snapshot content (VIGIL_SNAPSHOTS_DIR, default: ${DataDir}/snapshots)
	SnapshotsDir string `mapstructure:"snapshots_dir"`
	// EnvironmentsDir holds managed environment trees (VIGIL_ENVIRONMENTS_DIR, default: ${DataDir}/environments)
	EnvironmentsDir string `mapstructure:"environments_dir"`
}

// Config holds all configuration for the vigil service
type Config struct {
	// DataPaths holds all data directory configuration
	DataPaths DataPaths `mapstructure:"data_paths"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		PoolSize int    `mapstructure:"pool_size"`
		// CounterTTL bounds the lifetime of failed-login counters
		CounterTTL time.Duration `mapstructure:"counter_ttl"`
	} `mapstructure:"redis"`

	Detector struct {
		// FloodEmitThreshold is the failed-login count above which an
		// auth flood alert is emitted
		FloodEmitThreshold int `mapstructure:"flood_emit_threshold"`
		// FloodHighThreshold is the count above which the alert is high
		// instead of medium
		FloodHighThreshold int `mapstructure:"flood_high_threshold"`
		// ExportHighPct and ExportCriticalPct are percentage increases
		// over baseline that raise high and critical export alerts
		ExportHighPct     float64 `mapstructure:"export_high_pct"`
		ExportCriticalPct float64 `mapstructure:"export_critical_pct"`
		// OffHoursStart and OffHoursEnd bound the off-hours window
		// (hours of day, window wraps midnight)
		OffHoursStart int `mapstructure:"off_hours_start"`
		OffHoursEnd   int `mapstructure:"off_hours_end"`
		// OffHoursQueryFloor is the minimum query count for an off-hours
		// database access alert
		OffHoursQueryFloor int `mapstructure:"off_hours_query_floor"`
		// ConfigHashCacheSize bounds the in-memory config baseline cache
		ConfigHashCacheSize int `mapstructure:"config_hash_cache_size"`
		// KnownSources pre-seeds the known-login-source set so expected
		// networks never alert
		KnownSources []string `mapstructure:"known_sources"`
	} `mapstructure:"detector"`

	Rollback struct {
		// Approvers lists user IDs with approval rights; empty means any
		// non-empty user ID may approve
		Approvers []string `mapstructure:"approvers"`
		// OptionScanLimit bounds how many recent deployments are scanned
		// when listing rollback options
		OptionScanLimit int `mapstructure:"option_scan_limit"`
		// StoreTimeout bounds every individual storage call
		StoreTimeout time.Duration `mapstructure:"store_timeout"`
	} `mapstructure:"rollback"`

	Logging struct {
		Level string `mapstructure:"level"`
		// Format is "json" or "console"
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("data_paths.data_dir", "./data")
	viper.SetDefault("data_paths.sqlite_path", "")      // Empty = derive from data_dir
	viper.SetDefault("data_paths.snapshots_dir", "")    // Empty = derive from data_dir
	viper.SetDefault("data_paths.environments_dir", "") // Empty = derive from data_dir

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.counter_ttl", time.Hour)

	viper.SetDefault("detector.flood_emit_threshold", 5)
	viper.SetDefault("detector.flood_high_threshold", 10)
	viper.SetDefault("detector.export_high_pct", 50.0)
	viper.SetDefault("detector.export_critical_pct", 300.0)
	viper.SetDefault("detector.off_hours_start", 22)
	viper.SetDefault("detector.off_hours_end", 6)
	viper.SetDefault("detector.off_hours_query_floor", 100)
	viper.SetDefault("detector.config_hash_cache_size", 1024)
	viper.SetDefault("detector.known_sources", []string{})

	viper.SetDefault("rollback.approvers", []string{})
	viper.SetDefault("rollback.option_scan_limit", 500)
	viper.SetDefault("rollback.store_timeout", 5*time.Second)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// loadFromEnv wires environment variable overrides
func loadFromEnv() {
	viper.SetEnvPrefix("VIGIL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Explicit bindings for shorter, cleaner env var names
	_ = viper.BindEnv("data_paths.data_dir", "VIGIL_DATA_DIR")
	_ = viper.BindEnv("data_paths.sqlite_path", "VIGIL_SQLITE_PATH")
	_ = viper.BindEnv("data_paths.snapshots_dir", "VIGIL_SNAPSHOTS_DIR")
	_ = viper.BindEnv("data_paths.environments_dir", "VIGIL_ENVIRONMENTS_DIR")
	_ = viper.BindEnv("redis.addr", "VIGIL_REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "VIGIL_REDIS_PASSWORD")
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	config.ResolveDataPaths()

	return &config, nil
}

// ResolveDataPaths resolves all data paths, deriving from DataDir when not
// explicitly set
func (c *Config) ResolveDataPaths() {
	dataDir := c.DataPaths.DataDir
	if dataDir == "" {
		dataDir = "./data"
	}

	if c.DataPaths.SQLitePath == "" {
		c.DataPaths.SQLitePath = filepath.Join(dataDir, "vigil.db")
	} else if !filepath.IsAbs(c.DataPaths.SQLitePath) {
		c.DataPaths.SQLitePath = filepath.Clean(c.DataPaths.SQLitePath)
	}

	if c.DataPaths.SnapshotsDir == "" {
		c.DataPaths.SnapshotsDir = filepath.Join(dataDir, "snapshots")
	} else if !filepath.IsAbs(c.DataPaths.SnapshotsDir) {
		c.DataPaths.SnapshotsDir = filepath.Clean(c.DataPaths.SnapshotsDir)
	}

	if c.DataPaths.EnvironmentsDir == "" {
		c.DataPaths.EnvironmentsDir = filepath.Join(dataDir, "environments")
	} else if !filepath.IsAbs(c.DataPaths.EnvironmentsDir) {
		c.DataPaths.EnvironmentsDir = filepath.Clean(c.DataPaths.EnvironmentsDir)
	}

	c.DataPaths.DataDir = dataDir
}

// GetSQLitePath returns the resolved SQLite database path
func (c *Config) GetSQLitePath() string {
	if c.DataPaths.SQLitePath == "" {
		return filepath.Join(c.DataPaths.DataDir, "vigil.db")
	}
	return c.DataPaths.SQLitePath
}

// validateConfig validates the configuration for correctness
func validateConfig(config *Config) error {
	if config.Redis.Enabled {
		if config.Redis.Addr == "" {
			return fmt.Errorf("redis addr cannot be empty when redis is enabled")
		}
		if config.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis pool size must be positive, got %d", config.Redis.PoolSize)
		}
	}

	d := config.Detector
	if d.FloodEmitThreshold <= 0 {
		return fmt.Errorf("detector flood_emit_threshold must be positive, got %d", d.FloodEmitThreshold)
	}
	if d.FloodHighThreshold <= d.FloodEmitThreshold {
		return fmt.Errorf("detector flood_high_threshold (%d) must exceed flood_emit_threshold (%d)",
			d.FloodHighThreshold, d.FloodEmitThreshold)
	}
	if d.ExportHighPct <= 0 || d.ExportCriticalPct <= d.ExportHighPct {
		return fmt.Errorf("detector export thresholds must satisfy 0 < high (%v) < critical (%v)",
			d.ExportHighPct, d.ExportCriticalPct)
	}
	if d.OffHoursStart < 0 || d.OffHoursStart > 23 || d.OffHoursEnd < 0 || d.OffHoursEnd > 23 {
		return fmt.Errorf("detector off-hours window must use hours 0-23")
	}
	if d.ConfigHashCacheSize <= 0 {
		return fmt.Errorf("detector config_hash_cache_size must be positive, got %d", d.ConfigHashCacheSize)
	}

	if config.Rollback.OptionScanLimit <= 0 {
		return fmt.Errorf("rollback option_scan_limit must be positive, got %d", config.Rollback.OptionScanLimit)
	}
	if config.Rollback.StoreTimeout <= 0 {
		return fmt.Errorf("rollback store_timeout must be positive, got %v", config.Rollback.StoreTimeout)
	}

	switch config.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging format must be json or console, got %q", config.Logging.Format)
	}

	return nil
}
