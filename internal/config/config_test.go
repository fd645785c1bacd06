package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specterhq/convstore/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	_ = os.Unsetenv("CONVSTORE_DB_PATH")
	_ = os.Unsetenv("CONVSTORE_BACKUP_DIR")

	cfg := config.Load()
	assert.Equal(t, "./data/conversations.db", cfg.Storage.DBPath)
	assert.Equal(t, "./backups", cfg.Backup.Dir)
	assert.False(t, cfg.Backup.Enabled)
	assert.True(t, cfg.Backup.Verify)
	assert.True(t, cfg.Migrate.AutoBackup)
	assert.Equal(t, 24, cfg.Backup.RetentionHourly)
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("CONVSTORE_DB_PATH", "/var/lib/convstore/db.sqlite")
	t.Setenv("CONVSTORE_BACKUP_ENABLED", "true")
	t.Setenv("CONVSTORE_BACKUP_INTERVAL", "30m")
	t.Setenv("CONVSTORE_BACKUP_RETENTION_DAILY", "14")
	t.Setenv("CONVSTORE_MIGRATE_AUTO_BACKUP", "no")

	cfg := config.Load()
	assert.Equal(t, "/var/lib/convstore/db.sqlite", cfg.Storage.DBPath)
	assert.True(t, cfg.Backup.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.BackupInterval())
	assert.Equal(t, 14, cfg.Backup.RetentionDaily)
	assert.False(t, cfg.Migrate.AutoBackup)
}

func TestUnparseableValuesFallBack(t *testing.T) {
	t.Setenv("CONVSTORE_BACKUP_RETENTION_HOURLY", "many")
	t.Setenv("CONVSTORE_BACKUP_INTERVAL", "soonish")
	t.Setenv("CONVSTORE_BACKUP_ENABLED", "perhaps")

	cfg := config.Load()
	assert.Equal(t, 24, cfg.Backup.RetentionHourly)
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
	assert.False(t, cfg.Backup.Enabled)
}

func TestLoadFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "convstore.yaml")
	yaml := `
storage:
  db_path: /srv/conv.db
backup:
  enabled: true
  interval: 2h
  retention_weekly: 8
migrate:
  auto_backup: false
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/conv.db", cfg.Storage.DBPath)
	assert.True(t, cfg.Backup.Enabled)
	assert.Equal(t, 2*time.Hour, cfg.BackupInterval())
	assert.Equal(t, 8, cfg.Backup.RetentionWeekly)
	assert.False(t, cfg.Migrate.AutoBackup)
	// Unset keys keep their defaults.
	assert.Equal(t, "./data", cfg.Storage.DataPath)
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "convstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  db_path: /from/yaml.db\n"), 0o600))

	t.Setenv("CONVSTORE_DB_PATH", "/from/env.db")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.Storage.DBPath)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
