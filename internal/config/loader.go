package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BETROUTER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BETROUTER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "BETROUTER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BETROUTER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BETROUTER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BETROUTER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BETROUTER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BETROUTER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BETROUTER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BETROUTER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BETROUTER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BETROUTER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BETROUTER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BETROUTER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BETROUTER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BETROUTER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BETROUTER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BETROUTER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BETROUTER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BETROUTER_S3_REGION")
	setStr(&cfg.S3.Bucket, "BETROUTER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BETROUTER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BETROUTER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BETROUTER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BETROUTER_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BETROUTER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BETROUTER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BETROUTER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BETROUTER_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BETROUTER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BETROUTER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BETROUTER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BETROUTER_NOTIFY_EVENTS")

	// ── Router ──
	setFloat64(&cfg.Router.SlippageTolerance, "BETROUTER_ROUTER_SLIPPAGE_TOLERANCE")
	setInt(&cfg.Router.RetryMaxAttempts, "BETROUTER_ROUTER_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.Router.RetryInitialDelay, "BETROUTER_ROUTER_RETRY_INITIAL_DELAY")
	setDuration(&cfg.Router.RetryMaxDelay, "BETROUTER_ROUTER_RETRY_MAX_DELAY")
	setDuration(&cfg.Router.LockTTL, "BETROUTER_ROUTER_LOCK_TTL")

	// ── Allocator ──
	setFloat64(&cfg.Allocator.MinVariance, "BETROUTER_ALLOCATOR_MIN_VARIANCE")
	setFloat64(&cfg.Allocator.MaxVariance, "BETROUTER_ALLOCATOR_MAX_VARIANCE")

	// ── Chain ──
	setBool(&cfg.Chain.Enabled, "BETROUTER_CHAIN_ENABLED")
	setStr(&cfg.Chain.RPCURL, "BETROUTER_CHAIN_RPC_URL")
	setStr(&cfg.Chain.ContractAddress, "BETROUTER_CHAIN_CONTRACT_ADDRESS")
	setDuration(&cfg.Chain.PollInterval, "BETROUTER_CHAIN_POLL_INTERVAL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "BETROUTER_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "BETROUTER_ARCHIVE_RETENTION_DAYS")

	// ── Top-level ──
	setStr(&cfg.Mode, "BETROUTER_MODE")
	setStr(&cfg.LogLevel, "BETROUTER_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
