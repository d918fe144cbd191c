package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := writeTOML(t, `
mode = "trade"

[scanner]
min_reward = 25.0
target_categories = ["crypto"]

[selection.category_weights]
crypto = 0.95

[scan]
interval = "90s"

[redis]
addr = "localhost:6379"
`)
	t.Setenv("POLYBOT_SCAN_JITTER", "5s")
	t.Setenv("POLYBOT_REDIS_PASSWORD", "hunter2")
	t.Setenv("POLYBOT_EXECUTOR_IDENTITIES", "a:0x1, b:0x2,")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ModeTrade, cfg.Mode)
	assert.Equal(t, 25.0, cfg.Scanner.MinReward)
	assert.Equal(t, 3, cfg.Scanner.MaxCompetitionBars, "unset keys keep defaults")
	assert.Equal(t, 90*time.Second, cfg.Scan.Interval.Duration)
	assert.Equal(t, 5*time.Second, cfg.Scan.Jitter.Duration)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Equal(t, []string{"a:0x1", "b:0x2"}, cfg.Executor.Identities)
	assert.Equal(t, []domain.Category{domain.CategoryCrypto}, cfg.TargetCategories())
	assert.Equal(t, map[domain.Category]float64{domain.CategoryCrypto: 0.95}, cfg.CategoryWeights())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeTOML(t, "[scanner]\nmin_rewards = 5\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scanner.min_rewards")
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("POLYBOT_MODE", "server")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ModeServer, cfg.Mode)
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "arbitrage" }, "unknown mode"},
		{"unknown log level", func(c *Config) { c.LogLevel = "trace" }, "unknown log_level"},
		{"bad source", func(c *Config) { c.Polymarket.Source = "kalshi" }, "source must be gamma or clob"},
		{"unknown target category", func(c *Config) { c.Scanner.TargetCategories = []string{"weather"} }, "unknown target category"},
		{"unknown weight category", func(c *Config) { c.Selection.CategoryWeights = map[string]float64{"weather": 0.5} }, "unknown category"},
		{"weight out of range", func(c *Config) { c.Selection.CategoryWeights = map[string]float64{"crypto": 1.5} }, "within [0,1]"},
		{"threshold out of range", func(c *Config) { c.Selection.Threshold = 1.2 }, "threshold must be within"},
		{"max total", func(c *Config) { c.Selection.MaxTotal = 0 }, "max_total"},
		{"max per category", func(c *Config) { c.Selection.MaxPerCategory = 0 }, "max_per_category"},
		{"size range", func(c *Config) { c.Pricer.SizeMin = 60 }, "size_min <= size_max"},
		{"offset range", func(c *Config) { c.Pricer.OffsetMin = 0 }, "offset_min <= offset_max"},
		{"spread", func(c *Config) { c.Pricer.MaxSpreadPct = 0 }, "max_spread_pct"},
		{"failure threshold", func(c *Config) { c.Breaker.FailureThreshold = 0 }, "failure_threshold"},
		{"success threshold", func(c *Config) { c.Breaker.SuccessThreshold = 0 }, "success_threshold"},
		{"breaker timeout", func(c *Config) { c.Breaker.Timeout.Duration = 0 }, "breaker: timeout"},
		{"scan interval", func(c *Config) { c.Scan.Interval.Duration = -time.Second }, "scan: interval"},
		{"archive cron", func(c *Config) {
			c.Archive.Enabled = true
			c.Supabase.Host = "db"
			c.Archive.Cron = "every day"
		}, "archive:"},
		{"archive needs database", func(c *Config) { c.Archive.Enabled = true }, "supabase connection is required"},
		{"trade without identities", func(c *Config) { c.Mode = ModeTrade }, "executor: identities"},
		{"server port", func(c *Config) { c.Server.Port = 70000 }, "server: port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Selection.MaxTotal = 0
	cfg.Breaker.FailureThreshold = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_total")
	assert.Contains(t, err.Error(), "failure_threshold")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Supabase.Password = "pw"
	cfg.S3.SecretKey = "sk"
	cfg.Server.APIKey = "key"
	cfg.Notify.TelegramToken = "tok"
	cfg.Selection.CategoryWeights = map[string]float64{"crypto": 0.9}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Supabase.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Empty(t, out.Redis.Password, "empty secrets stay empty")
	assert.Equal(t, "pw", cfg.Supabase.Password, "original untouched")

	out.Selection.CategoryWeights["crypto"] = 0.1
	out.Server.CORSOrigins[0] = "mutated"
	assert.Equal(t, 0.9, cfg.Selection.CategoryWeights["crypto"])
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
