// Package config loads campusgate settings from command-line flags and
// CAMPUSGATE_* environment variables using Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jmcleod/campusgate/storage/sealed"
)

// EnvPrefix is prepended to every environment variable, e.g. CAMPUSGATE_BACKEND_URL.
const EnvPrefix = "CAMPUSGATE"

// Storage backends.
const (
	StorageBolt     = "bbolt"
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Read cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config holds the server configuration. Durations are kept as strings and
// parsed by the accessor methods so that both flags and env vars accept "30s".
type Config struct {
	// Addr is the listen address (e.g. :8443).
	Addr string `mapstructure:"addr"`
	// Env is "development" or "production". Development enables console logs.
	Env string `mapstructure:"env"`
	// LogLevel is a zerolog level name.
	LogLevel string `mapstructure:"log-level"`

	// Storage selects the session slot backend: bbolt, memory or postgres.
	Storage string `mapstructure:"storage"`
	// DataDir holds the bbolt file.
	DataDir string `mapstructure:"data-dir"`
	// PostgresDSN is required when Storage is postgres.
	PostgresDSN string `mapstructure:"postgres-dsn"`
	// StorageKey is a base64 AES-256 key. When set, persisted session slots
	// are encrypted at rest.
	StorageKey string `mapstructure:"storage-key"`

	// BackendURL is the LMS backend API base, e.g. https://lms.example.edu/api.
	BackendURL string `mapstructure:"backend-url"`
	// BackendTimeout bounds each backend round trip.
	BackendTimeout string `mapstructure:"backend-timeout"`
	// RefreshSkew is how long before access-token expiry a refresh is attempted.
	RefreshSkew string `mapstructure:"refresh-skew"`

	// Cache selects the read cache: memory, redis or none.
	Cache string `mapstructure:"cache"`
	// RedisAddr is required when Cache is redis.
	RedisAddr string `mapstructure:"redis-addr"`
	// CacheTTL is how long backend GET responses are reused.
	CacheTTL string `mapstructure:"cache-ttl"`

	// SessionIdle is how long an unused session store stays in memory.
	SessionIdle string `mapstructure:"session-idle"`

	// TLSCert and TLSKey enable TLS when both are set.
	TLSCert string `mapstructure:"tls-cert"`
	TLSKey  string `mapstructure:"tls-key"`
}

// Flags registers every setting on fs with its default.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "Optional YAML config file; flags and env vars override it")
	fs.String("addr", ":8443", "Address to listen on")
	fs.String("env", "production", "Environment: development or production")
	fs.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	fs.String("storage", StorageBolt, "Session storage: bbolt, memory or postgres")
	fs.String("data-dir", "./data", "Directory for persistent data")
	fs.String("postgres-dsn", "", "PostgreSQL connection string (storage=postgres)")
	fs.String("storage-key", "", "Base64 AES-256 key for encrypting stored sessions")
	fs.String("backend-url", "", "LMS backend API base URL")
	fs.String("backend-timeout", "15s", "Timeout for each backend request")
	fs.String("refresh-skew", "30s", "Refresh access tokens this long before they expire")
	fs.String("cache", CacheMemory, "Read cache: memory, redis or none")
	fs.String("redis-addr", "", "Redis address (cache=redis)")
	fs.String("cache-ttl", "30s", "How long backend reads are cached")
	fs.String("session-idle", "30m", "Evict session stores idle for this long")
	fs.String("tls-cert", "", "Path to TLS certificate file")
	fs.String("tls-key", "", "Path to TLS key file")
}

// Load merges fs (which must have been populated by Flags) with the
// environment and validates the result. Explicitly set flags win over env vars.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: addr must be set")
	}
	if c.BackendURL == "" {
		return errors.New("config: backend-url must be set")
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: backend-url %q is not an http(s) URL", c.BackendURL)
	}

	switch c.Storage {
	case StorageBolt:
		if c.DataDir == "" {
			return errors.New("config: data-dir must be set for bbolt storage")
		}
	case StorageMemory:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return errors.New("config: postgres-dsn must be set for postgres storage")
		}
	default:
		return fmt.Errorf("config: unknown storage %q", c.Storage)
	}

	if c.StorageKey != "" {
		if _, err := sealed.ParseKey(c.StorageKey); err != nil {
			return fmt.Errorf("config: storage-key: %w", err)
		}
	}

	switch c.Cache {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if c.RedisAddr == "" {
			return errors.New("config: redis-addr must be set for redis cache")
		}
	default:
		return fmt.Errorf("config: unknown cache %q", c.Cache)
	}

	for name, raw := range map[string]string{
		"backend-timeout": c.BackendTimeout,
		"refresh-skew":    c.RefreshSkew,
		"cache-ttl":       c.CacheTTL,
		"session-idle":    c.SessionIdle,
	} {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return fmt.Errorf("config: %s %q is not a valid duration", name, raw)
		}
	}

	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("config: tls-cert and tls-key must be set together")
	}
	return nil
}

// Development reports whether the server runs in development mode.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Env, "development")
}

// TLSEnabled reports whether a certificate pair was configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// BackendTimeoutDuration parses BackendTimeout. Returns 15s if unset or invalid.
func (c *Config) BackendTimeoutDuration() time.Duration {
	return parseDuration(c.BackendTimeout, 15*time.Second)
}

// RefreshSkewDuration parses RefreshSkew. Returns 30s if unset or invalid.
func (c *Config) RefreshSkewDuration() time.Duration {
	return parseDuration(c.RefreshSkew, 30*time.Second)
}

// CacheTTLDuration parses CacheTTL. Returns 30s if unset or invalid.
func (c *Config) CacheTTLDuration() time.Duration {
	return parseDuration(c.CacheTTL, 30*time.Second)
}

// SessionIdleDuration parses SessionIdle. Returns 30m if unset or invalid.
func (c *Config) SessionIdleDuration() time.Duration {
	return parseDuration(c.SessionIdle, 30*time.Minute)
}

func parseDuration(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
