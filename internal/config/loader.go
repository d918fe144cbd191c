package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "POLYBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "POLYBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.Source, "POLYBOT_POLYMARKET_SOURCE")
	setInt(&cfg.Polymarket.PageLimit, "POLYBOT_POLYMARKET_PAGE_LIMIT")
	setInt(&cfg.Polymarket.MaxPages, "POLYBOT_POLYMARKET_MAX_PAGES")
	setDuration(&cfg.Polymarket.RequestTimeout, "POLYBOT_POLYMARKET_REQUEST_TIMEOUT")

	// ── Scanner ──
	setFloat64(&cfg.Scanner.MinReward, "POLYBOT_SCANNER_MIN_REWARD")
	setInt(&cfg.Scanner.MaxCompetitionBars, "POLYBOT_SCANNER_MAX_COMPETITION_BARS")
	setStringSlice(&cfg.Scanner.TargetCategories, "POLYBOT_SCANNER_TARGET_CATEGORIES")
	setBool(&cfg.Scanner.EstimateRewards, "POLYBOT_SCANNER_ESTIMATE_REWARDS")

	// ── Selection ──
	setFloat64(&cfg.Selection.Threshold, "POLYBOT_SELECTION_THRESHOLD")
	setInt(&cfg.Selection.MaxTotal, "POLYBOT_SELECTION_MAX_TOTAL")
	setInt(&cfg.Selection.MaxPerCategory, "POLYBOT_SELECTION_MAX_PER_CATEGORY")

	// ── Pricer ──
	setFloat64(&cfg.Pricer.MaxSpreadPct, "POLYBOT_PRICER_MAX_SPREAD_PCT")
	setInt(&cfg.Pricer.SizeMin, "POLYBOT_PRICER_SIZE_MIN")
	setInt(&cfg.Pricer.SizeMax, "POLYBOT_PRICER_SIZE_MAX")

	// ── Breaker ──
	setInt(&cfg.Breaker.FailureThreshold, "POLYBOT_BREAKER_FAILURE_THRESHOLD")
	setInt(&cfg.Breaker.SuccessThreshold, "POLYBOT_BREAKER_SUCCESS_THRESHOLD")
	setDuration(&cfg.Breaker.Timeout, "POLYBOT_BREAKER_TIMEOUT")

	// ── Scan ──
	setDuration(&cfg.Scan.Interval, "POLYBOT_SCAN_INTERVAL")
	setDuration(&cfg.Scan.Jitter, "POLYBOT_SCAN_JITTER")
	setInt(&cfg.Scan.BookRateLimit, "POLYBOT_SCAN_BOOK_RATE_LIMIT")
	setBool(&cfg.Scan.AutoExecute, "POLYBOT_SCAN_AUTO_EXECUTE")

	// ── Executor ──
	setStringSlice(&cfg.Executor.Identities, "POLYBOT_EXECUTOR_IDENTITIES")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "POLYBOT_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "POLYBOT_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "POLYBOT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "POLYBOT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "POLYBOT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "POLYBOT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "POLYBOT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "POLYBOT_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "POLYBOT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "POLYBOT_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "POLYBOT_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYBOT_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "POLYBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "POLYBOT_REDIS_KEY_PREFIX")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POLYBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "POLYBOT_S3_PREFIX")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "POLYBOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "POLYBOT_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "POLYBOT_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POLYBOT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYBOT_NOTIFY_EVENTS")

	// ── Log ──
	setStr(&cfg.Log.File, "POLYBOT_LOG_FILE")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYBOT_MODE")
	setStr(&cfg.LogLevel, "POLYBOT_LOG_LEVEL")
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
