// Package config provides configuration for the conversation store.
// Settings come from an optional YAML file, overridden by environment
// variables with the CONVSTORE_ prefix. Every option has a sensible
// default, so both sources are optional.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for the conversation store and its tooling.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Backup  BackupConfig  `yaml:"backup"`
	Migrate MigrateConfig `yaml:"migrate"`
}

// StorageConfig contains database and data directory settings.
type StorageConfig struct {
	// DBPath is the SQLite database file (default: ./data/conversations.db).
	// Env var: CONVSTORE_DB_PATH
	DBPath string `yaml:"db_path"`

	// DataPath is the directory for collection files and other artifacts
	// (default: ./data). Env var: CONVSTORE_DATA_PATH
	DataPath string `yaml:"data_path"`
}

// BackupConfig contains snapshot scheduling and retention settings.
type BackupConfig struct {
	// Enabled turns on the scheduled backup service (default: false).
	// Env var: CONVSTORE_BACKUP_ENABLED
	Enabled bool `yaml:"enabled"`

	// Interval between scheduled backups (default: 24h).
	// Env var: CONVSTORE_BACKUP_INTERVAL
	Interval string `yaml:"interval"`

	// Dir is the snapshot directory (default: ./backups).
	// Env var: CONVSTORE_BACKUP_DIR
	Dir string `yaml:"dir"`

	// Verify runs an integrity check after each snapshot (default: true).
	// Env var: CONVSTORE_BACKUP_VERIFY
	Verify bool `yaml:"verify"`

	// Retention caps per age tier.
	// Env vars: CONVSTORE_BACKUP_RETENTION_{HOURLY,DAILY,WEEKLY,MONTHLY}
	RetentionHourly  int `yaml:"retention_hourly"`
	RetentionDaily   int `yaml:"retention_daily"`
	RetentionWeekly  int `yaml:"retention_weekly"`
	RetentionMonthly int `yaml:"retention_monthly"`
}

// MigrateConfig contains schema migration settings.
type MigrateConfig struct {
	// AutoBackup snapshots the database before any migration batch
	// (default: true). Env var: CONVSTORE_MIGRATE_AUTO_BACKUP
	AutoBackup bool `yaml:"auto_backup"`
}

// BackupInterval parses the configured interval, falling back to 24h on
// an unparseable value.
func (c *Config) BackupInterval() time.Duration {
	d, err := time.ParseDuration(c.Backup.Interval)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// Load builds the configuration from defaults and environment variables.
func Load() *Config {
	cfg := defaults()
	applyEnv(cfg)
	return cfg
}

// LoadFile builds the configuration from defaults, the YAML file at
// path, and environment variables, in increasing order of precedence.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			DBPath:   "./data/conversations.db",
			DataPath: "./data",
		},
		Backup: BackupConfig{
			Enabled:          false,
			Interval:         "24h",
			Dir:              "./backups",
			Verify:           true,
			RetentionHourly:  24,
			RetentionDaily:   7,
			RetentionWeekly:  4,
			RetentionMonthly: 12,
		},
		Migrate: MigrateConfig{
			AutoBackup: true,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Storage.DBPath = getEnv("CONVSTORE_DB_PATH", cfg.Storage.DBPath)
	cfg.Storage.DataPath = getEnv("CONVSTORE_DATA_PATH", cfg.Storage.DataPath)

	cfg.Backup.Enabled = getEnvBool("CONVSTORE_BACKUP_ENABLED", cfg.Backup.Enabled)
	cfg.Backup.Interval = getEnv("CONVSTORE_BACKUP_INTERVAL", cfg.Backup.Interval)
	cfg.Backup.Dir = getEnv("CONVSTORE_BACKUP_DIR", cfg.Backup.Dir)
	cfg.Backup.Verify = getEnvBool("CONVSTORE_BACKUP_VERIFY", cfg.Backup.Verify)
	cfg.Backup.RetentionHourly = getEnvInt("CONVSTORE_BACKUP_RETENTION_HOURLY", cfg.Backup.RetentionHourly)
	cfg.Backup.RetentionDaily = getEnvInt("CONVSTORE_BACKUP_RETENTION_DAILY", cfg.Backup.RetentionDaily)
	cfg.Backup.RetentionWeekly = getEnvInt("CONVSTORE_BACKUP_RETENTION_WEEKLY", cfg.Backup.RetentionWeekly)
	cfg.Backup.RetentionMonthly = getEnvInt("CONVSTORE_BACKUP_RETENTION_MONTHLY", cfg.Backup.RetentionMonthly)

	cfg.Migrate.AutoBackup = getEnvBool("CONVSTORE_MIGRATE_AUTO_BACKUP", cfg.Migrate.AutoBackup)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false.
// If the environment variable exists but cannot be parsed as a boolean,
// it returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
