package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "DB_DRIVER", "PRICE_DATA_SOURCE", "MARKET_TZ", "BACKFILL_WORKERS", "BACKFILL_LOOKBACK_DAYS", "UPSTREAM_RETRIES"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "twse", cfg.Upstream.Source)
	assert.Equal(t, 20*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 2, cfg.Retries())
	assert.Equal(t, 7, cfg.Backfill.LookbackDays)
	assert.Equal(t, 1, cfg.Backfill.Workers)
	assert.Equal(t, "Asia/Taipei", cfg.Location().String())
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
upstream:
  source: yahoo
  timeout: 5s
  retries: 0
backfill:
  lookback_days: 30
  workers: 4
server:
  allow_origins: ["https://a.example", "https://b.example"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "yahoo", cfg.Upstream.Source)
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 0, cfg.Retries(), "explicit zero retries survives defaults")
	assert.Equal(t, 30, cfg.Backfill.LookbackDays)
	assert.Equal(t, 4, cfg.Backfill.Workers)
	assert.Len(t, cfg.Server.AllowOrigins, 2)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgresql+psycopg2://u:p@db:5432/finsite")
	t.Setenv("BACKFILL_LOOKBACK_DAYS", "14")
	t.Setenv("UPSTREAM_TIMEOUT", "8")
	t.Setenv("UPSTREAM_RETRIES", "3")
	t.Setenv("ALLOW_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("RUN_ON_START", "true")

	cfg, err := Load(writeConfig(t, "backfill:\n  lookback_days: 3\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 14, cfg.Backfill.LookbackDays)
	assert.Equal(t, 8*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 3, cfg.Retries())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowOrigins)
	assert.True(t, cfg.Backfill.RunOnStart)
}

func TestEnvOverrideInvalid(t *testing.T) {
	t.Setenv("BACKFILL_WORKERS", "many")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "BACKFILL_WORKERS")
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "upstream: [unclosed"))
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	cfg.Database.Driver = "oracle"
	cfg.Upstream.Source = "bloomberg"
	cfg.Backfill.Workers = 0
	cfg.Market.Timezone = "Mars/Olympus"

	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"database.driver", "upstream.source", "backfill.workers", "market.timezone"} {
		assert.ErrorContains(t, err, want)
	}

	cfg.Database.Driver = DriverPostgres
	cfg.Database.PostgresDSN = ""
	assert.ErrorContains(t, cfg.Validate(), "DATABASE_URL")
}
