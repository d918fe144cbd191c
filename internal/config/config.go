// Package config defines the configuration of the rewards bot and its
// validation rules.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/polyrewards/internal/domain"
	"github.com/alanyoungcy/polyrewards/internal/pipeline"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYBOT_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Scanner    ScannerConfig    `toml:"scanner"`
	Selection  SelectionConfig  `toml:"selection"`
	Pricer     PricerConfig     `toml:"pricer"`
	Breaker    BreakerConfig    `toml:"breaker"`
	Scan       ScanConfig       `toml:"scan"`
	Executor   ExecutorConfig   `toml:"executor"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Log        LogConfig        `toml:"log"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig selects the market listing source and its endpoints.
type PolymarketConfig struct {
	GammaHost string `toml:"gamma_host"`
	ClobHost  string `toml:"clob_host"`
	// Source is "gamma" (/markets, offset pagination) or "clob"
	// (/sampling-markets, cursor pagination).
	Source         string   `toml:"source"`
	PageLimit      int      `toml:"page_limit"`
	MaxPages       int      `toml:"max_pages"`
	RequestTimeout duration `toml:"request_timeout"`
	RetryCount     int      `toml:"retry_count"`
}

// ScannerConfig holds the MarketFilter knobs and the reward fallback.
type ScannerConfig struct {
	MinReward          float64  `toml:"min_reward"`
	MaxCompetitionBars int      `toml:"max_competition_bars"`
	TargetCategories   []string `toml:"target_categories"`
	EstimateRewards    bool     `toml:"estimate_rewards"`
	RewardPerVolume    float64  `toml:"reward_per_volume"`
	RewardEstimateCap  float64  `toml:"reward_estimate_cap"`
}

// SelectionConfig bounds the portfolio the selector builds.
type SelectionConfig struct {
	Threshold           float64            `toml:"threshold"`
	MaxTotal            int                `toml:"max_total"`
	MaxPerCategory      int                `toml:"max_per_category"`
	SimilarityThreshold float64            `toml:"similarity_threshold"`
	CategoryWeights     map[string]float64 `toml:"category_weights"`
	BaselineAlpha       float64            `toml:"baseline_alpha"`
}

// PricerConfig holds the position pricing knobs.
type PricerConfig struct {
	MaxSpreadPct float64 `toml:"max_spread_pct"`
	SizeMin      int     `toml:"size_min"`
	SizeMax      int     `toml:"size_max"`
	OffsetMin    float64 `toml:"offset_min"`
	OffsetMax    float64 `toml:"offset_max"`
	SizeJitter   float64 `toml:"size_jitter"`
	TickSize     float64 `toml:"tick_size"`
}

// BreakerConfig holds the per-provider circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int      `toml:"failure_threshold"`
	SuccessThreshold int      `toml:"success_threshold"`
	Timeout          duration `toml:"timeout"`
}

// ScanConfig controls the scan loop cadence.
type ScanConfig struct {
	Interval  duration `toml:"interval"`
	Jitter    duration `toml:"jitter"`
	PacingMin duration `toml:"pacing_min"`
	PacingMax duration `toml:"pacing_max"`
	// BookRateLimit caps order-book fetches per BookRateWindow across all
	// instances sharing the Redis. Zero disables the limiter.
	BookRateLimit  int      `toml:"book_rate_limit"`
	BookRateWindow duration `toml:"book_rate_window"`
	LockTTL        duration `toml:"lock_ttl"`
	// AutoExecute hands priced intents to the executor in trade and full
	// modes.
	AutoExecute bool `toml:"auto_execute"`
}

// ExecutorConfig configures intent execution. Identities are "name:address"
// entries; signing happens behind the order endpoint.
type ExecutorConfig struct {
	Identities []string `toml:"identities"`
	DedupTTL   duration `toml:"dedup_ttl"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
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

// Enabled reports whether any connection parameters are set.
func (s SupabaseConfig) Enabled() bool {
	return strings.TrimSpace(s.DSN) != "" || s.Host != ""
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
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
	Prefix         string `toml:"prefix"`
	Snapshots      bool   `toml:"snapshots"`
}

// ArchiveConfig controls the move of old scan runs to object storage.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	TelegramAPIBase   string   `toml:"telegram_api_base"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// LogConfig adds an optional rotating file sink next to stdout.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
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

// Defaults returns a Config populated with the stock values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost:      "https://gamma-api.polymarket.com",
			ClobHost:       "https://clob.polymarket.com",
			Source:         "gamma",
			PageLimit:      100,
			MaxPages:       50,
			RequestTimeout: duration{15 * time.Second},
			RetryCount:     2,
		},
		Scanner: ScannerConfig{
			MinReward:          10,
			MaxCompetitionBars: 3,
			TargetCategories:   []string{"crypto", "sports", "politics"},
			EstimateRewards:    false,
			RewardPerVolume:    0.001,
			RewardEstimateCap:  500,
		},
		Selection: SelectionConfig{
			Threshold:           0.7,
			MaxTotal:            10,
			MaxPerCategory:      3,
			SimilarityThreshold: 0.7,
			BaselineAlpha:       0.1,
		},
		Pricer: PricerConfig{
			MaxSpreadPct: 0.02,
			SizeMin:      20,
			SizeMax:      50,
			OffsetMin:    0.0005,
			OffsetMax:    0.0010,
			SizeJitter:   0.2,
			TickSize:     0.0001,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          duration{60 * time.Second},
		},
		Scan: ScanConfig{
			Interval:       duration{5 * time.Minute},
			Jitter:         duration{30 * time.Second},
			PacingMin:      duration{2 * time.Second},
			PacingMax:      duration{5 * time.Second},
			BookRateLimit:  10,
			BookRateWindow: duration{time.Second},
			LockTTL:        duration{5 * time.Minute},
			AutoExecute:    false,
		},
		Executor: ExecutorConfig{
			DedupTTL: duration{10 * time.Minute},
		},
		Supabase: SupabaseConfig{
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "polyrewards",
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "polyrewards-data",
			ForcePathStyle: true,
			Snapshots:      false,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 30,
			Cron:          "0 3 * * *",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			TelegramAPIBase: "https://api.telegram.org",
			Events:          []string{string(domain.EventScanSelected), string(domain.EventBreakerOpen), string(domain.EventError)},
		},
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// Modes.
const (
	ModeScan   = "scan"
	ModeTrade  = "trade"
	ModeServer = "server"
	ModeFull   = "full"
)

var validModes = map[string]bool{
	ModeScan:   true,
	ModeTrade:  true,
	ModeServer: true,
	ModeFull:   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSources = map[string]bool{
	"gamma": true,
	"clob":  true,
}

// TargetCategories returns the parsed scanner.target_categories. Unknown
// names are skipped; Validate reports them.
func (c *Config) TargetCategories() []domain.Category {
	out := make([]domain.Category, 0, len(c.Scanner.TargetCategories))
	for _, s := range c.Scanner.TargetCategories {
		if cat, ok := domain.ParseCategory(s); ok {
			out = append(out, cat)
		}
	}
	return out
}

// CategoryWeights returns the parsed selection.category_weights, or nil when
// none are configured.
func (c *Config) CategoryWeights() map[domain.Category]float64 {
	if len(c.Selection.CategoryWeights) == 0 {
		return nil
	}
	out := make(map[domain.Category]float64, len(c.Selection.CategoryWeights))
	for k, w := range c.Selection.CategoryWeights {
		if cat, ok := domain.ParseCategory(k); ok {
			out[cat] = w
		}
	}
	return out
}

// Executes reports whether priced intents go to the executor: always in
// trade mode, and in full mode when scan.auto_execute is set.
func (c *Config) Executes() bool {
	mode := strings.ToLower(c.Mode)
	return mode == ModeTrade || (mode == ModeFull && c.Scan.AutoExecute)
}

// Validate checks every rule and returns one error joining all problems,
// wrapped in domain.ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if !validModes[strings.ToLower(c.Mode)] {
		add("unknown mode %q (valid: scan, trade, server, full)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Polymarket
	if !validSources[strings.ToLower(c.Polymarket.Source)] {
		add("polymarket: source must be gamma or clob, got %q", c.Polymarket.Source)
	}
	if c.Polymarket.GammaHost == "" && strings.EqualFold(c.Polymarket.Source, "gamma") {
		add("polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ClobHost == "" {
		add("polymarket: clob_host must not be empty")
	}
	if c.Polymarket.PageLimit < 1 {
		add("polymarket: page_limit must be >= 1")
	}
	if c.Polymarket.MaxPages < 1 {
		add("polymarket: max_pages must be >= 1")
	}
	if c.Polymarket.RequestTimeout.Duration <= 0 {
		add("polymarket: request_timeout must be > 0")
	}

	// Scanner
	if c.Scanner.MinReward < 0 {
		add("scanner: min_reward must be >= 0")
	}
	if c.Scanner.MaxCompetitionBars < 0 {
		add("scanner: max_competition_bars must be >= 0")
	}
	for _, s := range c.Scanner.TargetCategories {
		if _, ok := domain.ParseCategory(s); !ok {
			add("scanner: unknown target category %q", s)
		}
	}
	if c.Scanner.EstimateRewards && (c.Scanner.RewardPerVolume <= 0 || c.Scanner.RewardEstimateCap <= 0) {
		add("scanner: reward_per_volume and reward_estimate_cap must be > 0 when estimate_rewards is on")
	}

	// Selection
	if c.Selection.Threshold < 0 || c.Selection.Threshold > 1 {
		add("selection: threshold must be within [0,1], got %g", c.Selection.Threshold)
	}
	if c.Selection.MaxTotal < 1 {
		add("selection: max_total must be >= 1")
	}
	if c.Selection.MaxPerCategory < 1 {
		add("selection: max_per_category must be >= 1")
	}
	if c.Selection.SimilarityThreshold <= 0 || c.Selection.SimilarityThreshold > 1 {
		add("selection: similarity_threshold must be within (0,1]")
	}
	for k, w := range c.Selection.CategoryWeights {
		if _, ok := domain.ParseCategory(k); !ok {
			add("selection: unknown category %q in category_weights", k)
		}
		if w < 0 || w > 1 {
			add("selection: weight for %q must be within [0,1], got %g", k, w)
		}
	}

	// Pricer
	if c.Pricer.MaxSpreadPct <= 0 || c.Pricer.MaxSpreadPct > 1 {
		add("pricer: max_spread_pct must be within (0,1], got %g", c.Pricer.MaxSpreadPct)
	}
	if c.Pricer.SizeMin <= 0 || c.Pricer.SizeMin > c.Pricer.SizeMax {
		add("pricer: need 0 < size_min <= size_max, got %d and %d", c.Pricer.SizeMin, c.Pricer.SizeMax)
	}
	if c.Pricer.OffsetMin <= 0 || c.Pricer.OffsetMin > c.Pricer.OffsetMax {
		add("pricer: need 0 < offset_min <= offset_max, got %g and %g", c.Pricer.OffsetMin, c.Pricer.OffsetMax)
	}
	if c.Pricer.SizeJitter < 0 || c.Pricer.SizeJitter >= 1 {
		add("pricer: size_jitter must be within [0,1)")
	}
	if c.Pricer.TickSize <= 0 {
		add("pricer: tick_size must be > 0")
	}

	// Breaker
	if c.Breaker.FailureThreshold < 1 {
		add("breaker: failure_threshold must be >= 1")
	}
	if c.Breaker.SuccessThreshold < 1 {
		add("breaker: success_threshold must be >= 1")
	}
	if c.Breaker.Timeout.Duration <= 0 {
		add("breaker: timeout must be > 0")
	}

	// Scan
	if c.Scan.Interval.Duration <= 0 {
		add("scan: interval must be > 0")
	}
	if c.Scan.Jitter.Duration < 0 {
		add("scan: jitter must be >= 0")
	}
	if c.Scan.PacingMin.Duration < 0 || c.Scan.PacingMin.Duration > c.Scan.PacingMax.Duration {
		add("scan: need 0 <= pacing_min <= pacing_max")
	}
	if c.Scan.BookRateLimit < 0 {
		add("scan: book_rate_limit must be >= 0")
	}
	if c.Scan.BookRateLimit > 0 && c.Scan.BookRateWindow.Duration <= 0 {
		add("scan: book_rate_window must be > 0 when book_rate_limit is set")
	}

	// Executor
	if c.Executes() && len(c.Executor.Identities) == 0 {
		add("executor: identities are required for mode %s", c.Mode)
	}

	// Supabase
	if c.Supabase.Enabled() {
		if c.Supabase.PoolMaxConns < 1 {
			add("supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 || c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			add("supabase: pool_min_conns must be within [0, pool_max_conns]")
		}
	}

	// Redis
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		add("redis: pool_size must be >= 1")
	}

	// Archive
	if c.Archive.Enabled {
		if c.Archive.RetentionDays < 1 {
			add("archive: retention_days must be >= 1")
		}
		if err := pipeline.ValidateCron(c.Archive.Cron); err != nil {
			add("archive: %v", err)
		}
		if c.S3.Bucket == "" {
			add("archive: s3.bucket is required when archive is enabled")
		}
		if !c.Supabase.Enabled() {
			add("archive: supabase connection is required when archive is enabled")
		}
	}

	// Server
	needsServer := c.Mode == ModeServer || c.Mode == ModeFull
	if needsServer || c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", domain.ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}
