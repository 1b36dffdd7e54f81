package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultBaseURL, cfg.Taiga.BaseURL)
	assert.Equal(t, DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, DefaultCacheMaxEntries, cfg.Cache.MaxEntries)
	assert.Equal(t, DefaultRateLimitRPS, cfg.RateLimit.RequestsPerSecond)

	assert.Equal(t, DefaultTimeout, cfg.Timeout())
	assert.Equal(t, DefaultCacheTTL, cfg.CacheTTL())
	assert.Equal(t, DefaultTokenTTL, cfg.TokenTTL())
	assert.Equal(t, DefaultRefreshMargin, cfg.RefreshMargin())
}

func TestLoadFromBytes(t *testing.T) {
	yaml := []byte(`
taiga:
  base_url: https://taiga.internal/api/v1
  username: bot
  password: secret
  timeout_seconds: 10
retry:
  max_attempts: 5
cache:
  ttl_seconds: 120
  max_entries: 64
rate_limit:
  requests_per_second: 4
  bucket_capacity: 2
monitoring:
  enabled: true
  log_path: /tmp/taiga-bridge.jsonl
`)
	cfg, err := LoadFromBytes(yaml)
	require.NoError(t, err)

	assert.Equal(t, "https://taiga.internal/api/v1", cfg.Taiga.BaseURL)
	assert.Equal(t, "bot", cfg.Taiga.Username)
	assert.Equal(t, 10*time.Second, cfg.Timeout())
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL())
	assert.Equal(t, 64, cfg.Cache.MaxEntries)
	assert.Equal(t, 4.0, cfg.RateLimit.RequestsPerSecond)
	assert.True(t, cfg.Monitoring.Enabled)
}

func TestLoadFromBytes_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TB_TEST_PASSWORD", "from-env")
	yaml := []byte(`
taiga:
  username: bot
  password: ${TB_TEST_PASSWORD}
`)
	cfg, err := LoadFromBytes(yaml)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Taiga.Password)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("TAIGA_BASE_URL", "https://override.example/api/v1")
	t.Setenv("TAIGA_TOKEN", "app-token")

	cfg, err := LoadFromBytes([]byte(`
taiga:
  base_url: https://file.example/api/v1
`))
	require.NoError(t, err)
	assert.Equal(t, "https://override.example/api/v1", cfg.Taiga.BaseURL)
	assert.Equal(t, "app-token", cfg.Taiga.Token)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"token_only", func(c *Config) { c.Taiga.Token = "t" }, false},
		{"credentials", func(c *Config) { c.Taiga.Username = "u"; c.Taiga.Password = "p" }, false},
		{"no_credentials", func(c *Config) {}, true},
		{"username_without_password", func(c *Config) { c.Taiga.Username = "u" }, true},
		{"missing_base_url", func(c *Config) { c.Taiga.Token = "t"; c.Taiga.BaseURL = "" }, true},
		{"negative_rps", func(c *Config) { c.Taiga.Token = "t"; c.RateLimit.RequestsPerSecond = -1 }, true},
		{"negative_cache", func(c *Config) { c.Taiga.Token = "t"; c.Cache.MaxEntries = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFromBytes_BadYAML(t *testing.T) {
	_, err := LoadFromBytes([]byte(`taiga: [not a map`))
	assert.Error(t, err)
}
