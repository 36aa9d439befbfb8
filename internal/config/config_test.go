package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Venues = []VenueConfig{
		{ID: "solana-devnet", Name: "Solana Devnet Pool", BaseURL: "http://localhost:3001", Active: true},
	}
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "turbo" }, "unknown mode"},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log_level"},
		{"no venues", func(c *Config) { c.Venues = nil }, "at least one venue"},
		{"duplicate venue", func(c *Config) {
			c.Venues = append(c.Venues, c.Venues[0])
		}, "duplicate id"},
		{"active venue without url", func(c *Config) {
			c.Venues[0].BaseURL = ""
		}, "base_url"},
		{"bad slippage", func(c *Config) { c.Router.SlippageTolerance = 1.5 }, "slippage_tolerance"},
		{"inverted variance", func(c *Config) {
			c.Allocator.MinVariance = 0.5
			c.Allocator.MaxVariance = 0.1
		}, "variance range"},
		{"chain enabled without rpc", func(c *Config) { c.Chain.Enabled = true }, "rpc_url"},
		{"archive without bucket", func(c *Config) {
			c.Archive.Enabled = true
			c.S3.Bucket = ""
		}, "bucket"},
		{"bad server port", func(c *Config) { c.Server.Port = 0 }, "port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
mode = "paper"
log_level = "debug"

[router]
slippage_tolerance = 0.02

[[venues]]
id = "v1"
name = "Venue One"
base_url = "http://localhost:3001"
active = true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	t.Setenv("BETROUTER_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("BETROUTER_ROUTER_RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("BETROUTER_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "paper", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.02, cfg.Router.SlippageTolerance)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 7, cfg.Router.RetryMaxAttempts)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	require.Len(t, cfg.Venues, 1)
	assert.Equal(t, "v1", cfg.Venues[0].ID)

	require.NoError(t, cfg.Validate())
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "hunter2"
	cfg.S3.SecretKey = "topsecret"
	cfg.Notify.TelegramToken = "123:abc"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Original untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}
