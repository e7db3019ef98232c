// Package config defines the top-level configuration for the arbitrage
// monitor and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBMON_* environment variables.
type Config struct {
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Monitor    MonitorConfig    `toml:"monitor"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// KalshiConfig holds Kalshi API endpoints.
type KalshiConfig struct {
	BaseURL string `toml:"base_url"`
}

// PolymarketConfig holds Polymarket Gamma API endpoints.
type PolymarketConfig struct {
	GammaHost string `toml:"gamma_host"`
}

// MonitorConfig holds matching, pricing, and cache parameters.
type MonitorConfig struct {
	CacheTTL          duration `toml:"cache_ttl"`
	FetchTimeout      duration `toml:"fetch_timeout"`
	RefreshInterval   duration `toml:"refresh_interval"`
	MatchThreshold    float64  `toml:"match_threshold"`
	MinSpreadPct      float64  `toml:"min_spread_pct"`
	AlertThresholdPct float64  `toml:"alert_threshold_pct"`
	HistoryLimit      int      `toml:"history_limit"`
	AlertsLimit       int      `toml:"alerts_limit"`
	// Retention bounds how long persisted opportunities and alerts are
	// kept in Postgres. Zero disables pruning.
	Retention duration `toml:"retention"`
	// ManualMappings pins Kalshi tickers to Polymarket IDs, bypassing
	// fuzzy matching for pairs the operator has verified by hand.
	ManualMappings map[string]string `toml:"manual_mappings"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
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
	// RateLimit caps requests per client per window. Zero disables
	// throttling. Requires Redis to be enabled.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
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
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Kalshi: KalshiConfig{
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
		},
		Polymarket: PolymarketConfig{
			GammaHost: "https://gamma-api.polymarket.com",
		},
		Monitor: MonitorConfig{
			CacheTTL:          duration{30 * time.Second},
			FetchTimeout:      duration{15 * time.Second},
			RefreshInterval:   duration{30 * time.Second},
			MatchThreshold:    60.0,
			MinSpreadPct:      0.5,
			AlertThresholdPct: 3.0,
			HistoryLimit:      100,
			AlertsLimit:       50,
			ManualMappings:    map[string]string{},
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "arbmonitor",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbmonitor-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"high_opportunity", "error"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"monitor": true,
	"scan":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, monitor, scan)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}

	// Monitor
	if c.Monitor.CacheTTL.Duration <= 0 {
		errs = append(errs, "monitor: cache_ttl must be positive")
	}
	if c.Monitor.FetchTimeout.Duration <= 0 {
		errs = append(errs, "monitor: fetch_timeout must be positive")
	}
	if c.Monitor.RefreshInterval.Duration <= 0 {
		errs = append(errs, "monitor: refresh_interval must be positive")
	}
	if c.Monitor.MatchThreshold <= 0 || c.Monitor.MatchThreshold > 100 {
		errs = append(errs, fmt.Sprintf("monitor: match_threshold must be in (0, 100], got %g", c.Monitor.MatchThreshold))
	}
	if c.Monitor.MinSpreadPct < 0 {
		errs = append(errs, "monitor: min_spread_pct must not be negative")
	}
	if c.Monitor.AlertThresholdPct < 0 {
		errs = append(errs, "monitor: alert_threshold_pct must not be negative")
	}
	if c.Monitor.HistoryLimit < 1 {
		errs = append(errs, "monitor: history_limit must be >= 1")
	}
	if c.Monitor.Retention.Duration < 0 {
		errs = append(errs, "monitor: retention must not be negative")
	}
	if c.Monitor.AlertsLimit < 1 {
		errs = append(errs, "monitor: alerts_limit must be >= 1")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
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
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must not be negative")
		}
		if c.Server.RateLimit > 0 {
			if c.Server.RateLimitWindow.Duration <= 0 {
				errs = append(errs, "server: rate_limit_window must be positive when rate_limit is set")
			}
			if !c.Redis.Enabled {
				errs = append(errs, "server: rate_limit requires redis to be enabled")
			}
		}
	}

	// Telegram credentials must be set together, or not at all.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
