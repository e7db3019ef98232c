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
// built-in defaults, applies ARBMON_* environment variable overrides, and
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

// applyEnvOverrides reads well-known ARBMON_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Kalshi / Polymarket ──
	setStr(&cfg.Kalshi.BaseURL, "ARBMON_KALSHI_BASE_URL")
	setStr(&cfg.Polymarket.GammaHost, "ARBMON_POLYMARKET_GAMMA_HOST")

	// ── Monitor ──
	setDuration(&cfg.Monitor.CacheTTL, "ARBMON_MONITOR_CACHE_TTL")
	setDuration(&cfg.Monitor.FetchTimeout, "ARBMON_MONITOR_FETCH_TIMEOUT")
	setDuration(&cfg.Monitor.RefreshInterval, "ARBMON_MONITOR_REFRESH_INTERVAL")
	setFloat64(&cfg.Monitor.MatchThreshold, "ARBMON_MONITOR_MATCH_THRESHOLD")
	setFloat64(&cfg.Monitor.MinSpreadPct, "ARBMON_MONITOR_MIN_SPREAD_PCT")
	setFloat64(&cfg.Monitor.AlertThresholdPct, "ARBMON_MONITOR_ALERT_THRESHOLD_PCT")
	setInt(&cfg.Monitor.HistoryLimit, "ARBMON_MONITOR_HISTORY_LIMIT")
	setInt(&cfg.Monitor.AlertsLimit, "ARBMON_MONITOR_ALERTS_LIMIT")
	setDuration(&cfg.Monitor.Retention, "ARBMON_MONITOR_RETENTION")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBMON_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBMON_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBMON_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBMON_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBMON_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBMON_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBMON_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBMON_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBMON_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBMON_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBMON_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBMON_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBMON_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBMON_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBMON_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBMON_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBMON_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBMON_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBMON_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBMON_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBMON_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBMON_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBMON_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBMON_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBMON_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBMON_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBMON_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBMON_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBMON_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBMON_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ARBMON_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "ARBMON_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBMON_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBMON_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBMON_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBMON_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBMON_MODE")
	setStr(&cfg.LogLevel, "ARBMON_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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
