// CLAUDE:SUMMARY Server configuration: YAML file loader, defaults and environment overrides.
package api

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/textract/docpipe"
	"github.com/hazyhaar/textract/observability"
)

// Config holds all server configuration.
type Config struct {
	Listen         string        `yaml:"listen"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	LogLevel       string        `yaml:"log_level"`
	Version        string        `yaml:"-"`

	// ObsDB is the SQLite path for metrics and the audit trail. Empty
	// disables both.
	ObsDB     string                        `yaml:"obs_db"`
	Retention observability.RetentionConfig `yaml:"retention"`

	RateLimit  RateLimitConfig `yaml:"rate_limit"`
	APIKeyHash string          `yaml:"api_key_hash"` // bcrypt; empty disables the key check
	CORS       CORSConfig      `yaml:"cors"`

	Layout docpipe.LayoutParams `yaml:"layout"`
}

// RateLimitConfig controls per-IP rate limiting. Buckets are keyed on the
// connection address after chi RealIP, which takes True-Client-IP,
// X-Real-IP or X-Forwarded-For when present. Exposed directly, clients can
// set those headers themselves; run behind a proxy that overwrites them.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"` // negative disables
	Burst             int     `yaml:"burst"`
}

// CORSConfig lists the origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func (c *Config) defaults() {
	if c.Listen == "" {
		c.Listen = ":8000"
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 50 << 20
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 20
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 40
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if c.Retention == (observability.RetentionConfig{}) {
		c.Retention = observability.RetentionConfig{MetricsDays: 30, AuditDays: 90, HeartbeatsDays: 7}
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfig loads path (if not empty), applies environment overrides and
// fills defaults.
//
// Environment: PORT, LISTEN_ADDR, LOG_LEVEL, TEXTRACT_OBS_DB,
// TEXTRACT_API_KEY_HASH, TEXTRACT_MAX_UPLOAD_BYTES, TEXTRACT_CORS_ORIGINS
// (comma separated).
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		var err error
		if cfg, err = LoadConfigFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.defaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if port := env("PORT", ""); port != "" {
		c.Listen = ":" + port
	}
	c.Listen = env("LISTEN_ADDR", c.Listen)
	c.LogLevel = env("LOG_LEVEL", c.LogLevel)
	c.ObsDB = env("TEXTRACT_OBS_DB", c.ObsDB)
	c.APIKeyHash = env("TEXTRACT_API_KEY_HASH", c.APIKeyHash)
	if v := env("TEXTRACT_MAX_UPLOAD_BYTES", ""); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TEXTRACT_MAX_UPLOAD_BYTES: %w", err)
		}
		c.MaxUploadBytes = n
	}
	if v := env("TEXTRACT_CORS_ORIGINS", ""); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORS.AllowedOrigins = origins
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
