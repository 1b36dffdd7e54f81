// Package config loads and validates the bridge configuration.
//
// FILES:
//   - config.go:   Config struct, YAML/env loading, validation
//   - defaults.go: Centralized default values
//
// Sources, in precedence order: environment variables (TAIGA_*), then the
// YAML file, then defaults. String values in YAML support ${VAR} expansion so
// secrets can stay out of the file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full bridge configuration.
type Config struct {
	Taiga      TaigaConfig      `yaml:"taiga"`
	Retry      RetryConfig      `yaml:"retry"`
	Cache      CacheConfig      `yaml:"cache"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// TaigaConfig describes the upstream API and its credentials.
type TaigaConfig struct {
	// BaseURL including the API prefix, e.g. "https://api.taiga.io/api/v1".
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Token is a pre-provisioned application token. When set, username and
	// password are not needed and no refresh is performed.
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// TokenTTLMinutes is the client-side token lifetime; the upstream does
	// not report one.
	TokenTTLMinutes      int `yaml:"token_ttl_minutes"`
	RefreshMarginSeconds int `yaml:"refresh_margin_seconds"`
}

// RetryConfig bounds the gateway retry loop.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// CacheConfig shapes the response cache.
type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
	MaxEntries int `yaml:"max_entries"`
}

// RateLimitConfig shapes the client-side token bucket. Configure below the
// upstream's published throttle (~80% of the ceiling) so well-behaved callers
// never provoke a 429.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BucketCapacity    int     `yaml:"bucket_capacity"`
}

// MonitoringConfig controls call telemetry.
type MonitoringConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Taiga: TaigaConfig{
			BaseURL:              DefaultBaseURL,
			TimeoutSeconds:       int(DefaultTimeout / time.Second),
			TokenTTLMinutes:      int(DefaultTokenTTL / time.Minute),
			RefreshMarginSeconds: int(DefaultRefreshMargin / time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts: DefaultMaxAttempts,
		},
		Cache: CacheConfig{
			TTLSeconds: int(DefaultCacheTTL / time.Second),
			MaxEntries: DefaultCacheMaxEntries,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: DefaultRateLimitRPS,
			BucketCapacity:    DefaultBucketCapacity,
		},
	}
}

// Load reads the YAML file at path (optional — empty path means defaults),
// applies environment overrides and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		cfg.applyEnv()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML config data, applies environment overrides and
// validates.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.Expand(string(data), envOrEmpty)), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays the TAIGA_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("TAIGA_BASE_URL"); v != "" {
		c.Taiga.BaseURL = v
	}
	if v := os.Getenv("TAIGA_USERNAME"); v != "" {
		c.Taiga.Username = v
	}
	if v := os.Getenv("TAIGA_PASSWORD"); v != "" {
		c.Taiga.Password = v
	}
	if v := os.Getenv("TAIGA_TOKEN"); v != "" {
		c.Taiga.Token = v
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Taiga.BaseURL == "" {
		return fmt.Errorf("config: taiga.base_url is required")
	}
	if c.Taiga.Token == "" && (c.Taiga.Username == "" || c.Taiga.Password == "") {
		return fmt.Errorf("config: either taiga.token or taiga.username+password is required")
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("config: rate_limit.requests_per_second must not be negative")
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("config: cache.max_entries must not be negative")
	}
	return nil
}

// Timeout returns the per-call deadline.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Taiga.TimeoutSeconds) * time.Second
}

// CacheTTL returns the response cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// TokenTTL returns the client-side token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Taiga.TokenTTLMinutes) * time.Minute
}

// RefreshMargin returns the pre-expiry refresh window.
func (c *Config) RefreshMargin() time.Duration {
	return time.Duration(c.Taiga.RefreshMarginSeconds) * time.Second
}

func envOrEmpty(name string) string {
	return os.Getenv(name)
}
