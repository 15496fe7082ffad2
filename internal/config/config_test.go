package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/glidepath/internal/segment"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9090

[storage]
backend = "postgres"

[storage.postgres]
host = "db.internal"
password = "secret"

[storage.clickhouse]
enabled = true
host = "ch.internal"

[segmenter]
valley_ceiling = 900
valley_merge_window = 90

[scoring.overrides]
grade_a = 92

[batch]
workers = 8
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, 15, cfg.Server.ReadTimeoutSeconds)

	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, "db.internal", cfg.Storage.Postgres.Host)
	assert.Equal(t, "glidepath", cfg.Storage.Postgres.Database)
	assert.Equal(t, 5432, cfg.Storage.Postgres.Port)

	assert.True(t, cfg.Storage.ClickHouse.Enabled)
	assert.Equal(t, "ch.internal", cfg.Storage.ClickHouse.Host)
	assert.Equal(t, 9000, cfg.Storage.ClickHouse.Port)

	assert.Equal(t, 900.0, cfg.Segmenter.ValleyCeiling)
	assert.Equal(t, segment.Seconds(90), cfg.Segmenter.ValleyMergeWindow)
	assert.Equal(t, segment.DefaultThresholds().MinPoints, cfg.Segmenter.MinPoints)
	assert.Equal(t, cfg.Segmenter, cfg.Batch.Segmenter)

	assert.Equal(t, 8, cfg.Batch.Workers)
	assert.Equal(t, 30, cfg.Batch.Days)
	assert.Equal(t, 92.0, cfg.Scoring.Overrides["grade_a"])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorContains(t, err, "config file not found")
}

func TestLoadWithFallback(t *testing.T) {
	path := writeConfig(t, "[server]\nport = 7000\n")
	cfg, err := LoadWithFallback(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)

	t.Chdir(t.TempDir())
	_, err = LoadWithFallback("")
	assert.ErrorContains(t, err, "expected locations")
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid logging format"},
		{"backend", func(c *Config) { c.Storage.Backend = "mysql" }, "unknown storage backend"},
		{"sqlite path", func(c *Config) { c.Storage.SQLite.Path = "" }, "storage.sqlite.path"},
		{"mirror host", func(c *Config) {
			c.Storage.ClickHouse.Enabled = true
			c.Storage.ClickHouse.Host = ""
		}, "storage.clickhouse.host"},
		{"feed", func(c *Config) {
			c.Feed.Enabled = true
			c.Feed.Subject = ""
		}, "invalid feed config"},
		{"adsb", func(c *Config) { c.ADSB.Enabled = true }, "invalid adsb config"},
		{"batch", func(c *Config) { c.Batch.Workers = 0 }, "invalid batch config"},
		{"scoring", func(c *Config) {
			c.Scoring.Overrides = map[string]float64{"no_such_constant": 1}
		}, "invalid scoring overrides"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestValidateDefaultsBackend(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
}
