// Package config loads the service configuration once at startup. Values
// come from built-in defaults, an optional YAML file, and the environment,
// in that order of precedence (later wins).
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	// EnvPrefix namespaces environment overrides. Nested keys use a double
	// underscore: CHECKLIST_HTTP__BASE_URL sets http.base_url.
	EnvPrefix = "CHECKLIST_"
)

type Config struct {
	HTTP      HTTPConfig      `koanf:"http"`
	Auth      AuthConfig      `koanf:"auth"`
	Storage   StorageConfig   `koanf:"storage"`
	NATS      NATSConfig      `koanf:"nats"`
	Log       LogConfig       `koanf:"log"`
	Reporting ReportingConfig `koanf:"reporting"`
}

type HTTPConfig struct {
	Addr              string        `koanf:"addr"`
	BaseURL           string        `koanf:"base_url"` // prefix for hyperlinks in responses
	AllowedOrigin     string        `koanf:"allowed_origin"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	RateLimit         float64       `koanf:"rate_limit"`
	RateBurst         int           `koanf:"rate_burst"`
}

type AuthConfig struct {
	APIKey     string `koanf:"api_key"`
	APIKeyHash string `koanf:"api_key_hash"` // bcrypt; preferred over api_key when set
}

type StorageConfig struct {
	Driver            string        `koanf:"driver"`
	DatabaseURL       string        `koanf:"database_url"`
	SQLitePath        string        `koanf:"sqlite_path"`
	MinConns          int           `koanf:"min_conns"`
	MaxConns          int           `koanf:"max_conns"`
	MaxConnLifetime   time.Duration `koanf:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `koanf:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `koanf:"health_check_period"`
	ConnectTimeout    time.Duration `koanf:"connect_timeout"`
}

type NATSConfig struct {
	Enabled        bool          `koanf:"enabled"`
	URL            string        `koanf:"url"`
	Name           string        `koanf:"name"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
}

type ReportingConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Schedule string `koanf:"schedule"`
	Timezone string `koanf:"timezone"`
}

// legacyEnv maps the variable names of earlier deployments to config keys.
// They rank below the prefixed variables.
var legacyEnv = map[string]string{
	"BASE_URL":     "http.base_url",
	"APIKEY":       "auth.api_key",
	"DATABASE_URL": "storage.database_url",
	"NATS_URL":     "nats.url",
}

func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	legacy := map[string]interface{}{}
	for name, key := range legacyEnv {
		if v := os.Getenv(name); v != "" {
			legacy[key] = v
		}
	}
	if err := k.Load(confmap.Provider(legacy, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load legacy env vars: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.HTTP.BaseURL = strings.TrimRight(cfg.HTTP.BaseURL, "/")
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Validate checks the settings serve depends on. Commands that never reach
// the HTTP surface (migrate, templates import) call ValidateStorage instead.
func (c *Config) Validate() error {
	if err := c.ValidateStorage(); err != nil {
		return err
	}
	if c.Auth.APIKey == "" && c.Auth.APIKeyHash == "" {
		return fmt.Errorf("an API key is required (set APIKEY, CHECKLIST_AUTH__API_KEY or auth.api_key_hash)")
	}
	u, err := url.Parse(c.HTTP.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("http.base_url must be an absolute http(s) URL, got %q", c.HTTP.BaseURL)
	}
	if c.HTTP.RateLimit < 0 || c.HTTP.RateBurst < 0 {
		return fmt.Errorf("http.rate_limit and http.rate_burst must not be negative")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format: %s (supported: json, console)", c.Log.Format)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.enabled is set")
	}
	if c.Reporting.Enabled {
		if _, err := cron.ParseStandard(c.Reporting.Schedule); err != nil {
			return fmt.Errorf("reporting.schedule: %w", err)
		}
		if _, err := time.LoadLocation(c.Reporting.Timezone); err != nil {
			return fmt.Errorf("reporting.timezone: %w", err)
		}
	}
	return nil
}

func (c *Config) ValidateStorage() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("storage.database_url is required for the postgres driver")
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage driver: %s (supported: %s, %s)",
			c.Storage.Driver, DriverPostgres, DriverSQLite)
	}
	return nil
}
