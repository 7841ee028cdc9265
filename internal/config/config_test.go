package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func missingFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.yaml")
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFile(missingFile(t))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 15*time.Second, cfg.Readiness.Timeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Readiness.PollInterval)
	assert.Equal(t, "bolt", cfg.Cache.Backend)
	assert.False(t, cfg.Backup.Enabled)
	assert.Equal(t, filepath.Join("data", "ledger.db"), cfg.StorageDSN())
	assert.Equal(t, filepath.Join("data", "assets.db"), cfg.AssetCachePath())
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9090
storage:
  data_dir: /var/lib/ledger
readiness:
  timeout: 5s
  poll_interval: 50ms
cache:
  backend: redis
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Readiness.Timeout)
	assert.Equal(t, 50*time.Millisecond, cfg.Readiness.PollInterval)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, filepath.Join("/var/lib/ledger", "ledger.db"), cfg.StorageDSN())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("LEDGER_SERVER_PORT", "7070")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("BACKUP_BUCKET", "ledger-backups")

	cfg, err := LoadFile(missingFile(t))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, "ledger-backups", cfg.Backup.Bucket)
}

func TestStorageDSNForPostgres(t *testing.T) {
	cfg, err := LoadFile(missingFile(t))
	require.NoError(t, err)

	cfg.Storage.Driver = "pgx"
	assert.Equal(t, "postgres://postgres:@localhost:5432/ledger?sslmode=disable", cfg.StorageDSN())

	cfg.Storage.DSN = "postgres://u:p@h:1/x"
	assert.Equal(t, "postgres://u:p@h:1/x", cfg.StorageDSN())
}

func TestValidate(t *testing.T) {
	base, err := LoadFile(missingFile(t))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }},
		{"zero timeout", func(c *Config) { c.Readiness.Timeout = 0 }},
		{"poll longer than timeout", func(c *Config) { c.Readiness.PollInterval = time.Minute }},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"backup without bucket", func(c *Config) { c.Backup.Enabled = true; c.Backup.Bucket = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, base.Validate())
}
