package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "monitor"
log_level = "debug"

[monitor]
cache_ttl = "45s"
match_threshold = 75.0

[monitor.manual_mappings]
"BTC-100K" = "12345"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, 45*time.Second, cfg.Monitor.CacheTTL.Duration)
	assert.InDelta(t, 75.0, cfg.Monitor.MatchThreshold, 1e-9)
	assert.Equal(t, "12345", cfg.Monitor.ManualMappings["BTC-100K"])

	// Untouched fields keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.Monitor.FetchTimeout.Duration)
	assert.InDelta(t, 0.5, cfg.Monitor.MinSpreadPct, 1e-9)
	assert.Equal(t, "https://gamma-api.polymarket.com", cfg.Polymarket.GammaHost)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `mode = "server"`)

	t.Setenv("ARBMON_MONITOR_MATCH_THRESHOLD", "80")
	t.Setenv("ARBMON_SERVER_PORT", "9100")
	t.Setenv("ARBMON_REDIS_ENABLED", "true")
	t.Setenv("ARBMON_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 80.0, cfg.Monitor.MatchThreshold, 1e-9)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.LogLevel = "loud"
	cfg.Monitor.MatchThreshold = 150
	cfg.Monitor.HistoryLimit = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "bogus"`)
	assert.Contains(t, err.Error(), `unknown log_level "loud"`)
	assert.Contains(t, err.Error(), "match_threshold")
	assert.Contains(t, err.Error(), "history_limit")
}

func TestValidateOptionalBackends(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: addr")

	cfg = Defaults()
	cfg.Postgres.Enabled = true
	cfg.Postgres.Host = ""
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: host")

	cfg = Defaults()
	cfg.S3.Enabled = true
	cfg.S3.Bucket = ""
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: bucket")
}

func TestValidateTelegramPairing(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.TelegramToken = "token"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram_token and telegram_chat_id")

	cfg.Notify.TelegramChatID = "chat"
	assert.NoError(t, cfg.Validate())
}
