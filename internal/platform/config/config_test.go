package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 15*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 20, cfg.Storage.MaxConns)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, "@every 5m", cfg.Reporting.Schedule)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9090"
  base_url: "https://api.example.com/"
storage:
  driver: SQLite
  sqlite_path: /tmp/a.db
log:
  level: debug
`), 0o600))

	t.Setenv("CHECKLIST_HTTP__ADDR", ":7070")
	t.Setenv("CHECKLIST_NATS__ENABLED", "true")
	t.Setenv("CHECKLIST_HTTP__RATE_BURST", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, "https://api.example.com", cfg.HTTP.BaseURL)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "/tmp/a.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, 7, cfg.HTTP.RateBurst)
}

func TestLoadLegacyEnvRanksBelowPrefixed(t *testing.T) {
	t.Setenv("APIKEY", "legacy-key")
	t.Setenv("BASE_URL", "http://legacy.local")
	t.Setenv("CHECKLIST_HTTP__BASE_URL", "http://new.local")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "legacy-key", cfg.Auth.APIKey)
	assert.Equal(t, "http://new.local", cfg.HTTP.BaseURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Auth.APIKey = "secret"
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig(t).Validate())

	cases := map[string]func(*Config){
		"unknown driver":   func(c *Config) { c.Storage.Driver = "mongo" },
		"no database url":  func(c *Config) { c.Storage.DatabaseURL = "" },
		"no sqlite path":   func(c *Config) { c.Storage.Driver = DriverSQLite; c.Storage.SQLitePath = "" },
		"no api key":       func(c *Config) { c.Auth.APIKey = "" },
		"relative base":    func(c *Config) { c.HTTP.BaseURL = "/checklists" },
		"negative rate":    func(c *Config) { c.HTTP.RateLimit = -1 },
		"bad log format":   func(c *Config) { c.Log.Format = "xml" },
		"bad schedule":     func(c *Config) { c.Reporting.Enabled = true; c.Reporting.Schedule = "every day" },
		"bad timezone":     func(c *Config) { c.Reporting.Enabled = true; c.Reporting.Timezone = "Mars/Olympus" },
		"nats without url": func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" },
	}
	for name, mutate := range cases {
		cfg := validConfig(t)
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}

	hashOnly := validConfig(t)
	hashOnly.Auth.APIKey = ""
	hashOnly.Auth.APIKeyHash = "$2a$10$abc"
	assert.NoError(t, hashOnly.Validate())
}
