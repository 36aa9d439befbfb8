// Package config defines the top-level configuration for the bet router and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BETROUTER_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Router    RouterConfig    `toml:"router"`
	Allocator AllocatorConfig `toml:"allocator"`
	Chain     ChainConfig     `toml:"chain"`
	Archive   ArchiveConfig   `toml:"archive"`
	Venues    []VenueConfig   `toml:"venues"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// RouterConfig holds bet placement parameters.
type RouterConfig struct {
	// SlippageTolerance is the fraction below the quoted price a fill may
	// land before the leg is rejected.
	SlippageTolerance float64  `toml:"slippage_tolerance"`
	RetryMaxAttempts  int      `toml:"retry_max_attempts"`
	RetryInitialDelay duration `toml:"retry_initial_delay"`
	RetryMaxDelay     duration `toml:"retry_max_delay"`
	LockTTL           duration `toml:"lock_ttl"`
}

// AllocatorConfig holds collateral split parameters.
type AllocatorConfig struct {
	// MinVariance and MaxVariance bound the odds nudge applied per venue by
	// the maximize-shares strategy.
	MinVariance float64 `toml:"min_variance"`
	MaxVariance float64 `toml:"max_variance"`
}

// ChainConfig holds the slip contract event feed parameters.
type ChainConfig struct {
	Enabled         bool     `toml:"enabled"`
	RPCURL          string   `toml:"rpc_url"`
	ContractAddress string   `toml:"contract_address"`
	PollInterval    duration `toml:"poll_interval"`
}

// ArchiveConfig holds slip archival parameters.
type ArchiveConfig struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// VenueConfig describes one downstream betting venue.
type VenueConfig struct {
	ID              string `toml:"id"`
	Name            string `toml:"name"`
	BaseURL         string `toml:"base_url"`
	SettlementWSURL string `toml:"settlement_ws_url"`
	Active          bool   `toml:"active"`
}

// duration wraps time.Duration so the TOML decoder can parse strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "betrouter",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "betrouter-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"slip_placed", "slip_failed", "slip_selling", "slip_closed"},
		},
		Router: RouterConfig{
			SlippageTolerance: 0.05,
			RetryMaxAttempts:  4,
			RetryInitialDelay: duration{250 * time.Millisecond},
			RetryMaxDelay:     duration{5 * time.Second},
			LockTTL:           duration{30 * time.Second},
		},
		Allocator: AllocatorConfig{
			MinVariance: 0.01,
			MaxVariance: 0.05,
		},
		Chain: ChainConfig{
			Enabled:      false,
			PollInterval: duration{5 * time.Second},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// Operating modes.
const (
	ModeServe   = "serve"
	ModePaper   = "paper"
	ModeArchive = "archive"
)

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	ModeServe:   true,
	ModePaper:   true,
	ModeArchive: true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, paper, archive)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres and Redis back the serve mode; paper mode runs in memory.
	if strings.ToLower(c.Mode) != "paper" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}

		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if c.Router.SlippageTolerance < 0 || c.Router.SlippageTolerance >= 1 {
		errs = append(errs, fmt.Sprintf("router: slippage_tolerance must be in [0, 1), got %g", c.Router.SlippageTolerance))
	}
	if c.Router.RetryMaxAttempts < 1 {
		errs = append(errs, "router: retry_max_attempts must be >= 1")
	}

	if c.Allocator.MinVariance < 0 || c.Allocator.MaxVariance < c.Allocator.MinVariance {
		errs = append(errs, fmt.Sprintf("allocator: variance range [%g, %g] is invalid",
			c.Allocator.MinVariance, c.Allocator.MaxVariance))
	}

	if c.Chain.Enabled {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty when enabled")
		}
		if c.Chain.ContractAddress == "" {
			errs = append(errs, "chain: contract_address must not be empty when enabled")
		}
	}

	if len(c.Venues) == 0 {
		errs = append(errs, "venues: at least one venue must be configured")
	}
	seen := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		if v.ID == "" {
			errs = append(errs, fmt.Sprintf("venues[%d]: id must not be empty", i))
			continue
		}
		if seen[v.ID] {
			errs = append(errs, fmt.Sprintf("venues[%d]: duplicate id %q", i, v.ID))
		}
		seen[v.ID] = true
		if v.Active && v.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("venues[%d] (%s): base_url must not be empty for an active venue", i, v.ID))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
