package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/polyrewards/internal/blob/s3"
	"github.com/alanyoungcy/polyrewards/internal/breaker"
	"github.com/alanyoungcy/polyrewards/internal/cache/redis"
	"github.com/alanyoungcy/polyrewards/internal/config"
	"github.com/alanyoungcy/polyrewards/internal/domain"
	"github.com/alanyoungcy/polyrewards/internal/notify"
	"github.com/alanyoungcy/polyrewards/internal/store/postgres"
)

// Dependencies bundles the infrastructure the modes run on. Every backend is
// optional; a nil field means the backend is not configured and the
// corresponding sink is skipped.
type Dependencies struct {
	Postgres *postgres.Client
	Redis    *redis.Client

	// Stores
	ScanStore  domain.ScanStore
	AuditStore domain.AuditStore

	// Caches
	ScanCache   domain.ScanCache
	Baselines   domain.BaselineStore
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	Blob      *s3blob.Client
	Snapshots *s3blob.SnapshotWriter
	Archiver  domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Breakers are registered here as providers are built.
	Breakers *breaker.Registry
}

// Wire constructs the configured backends and returns them together with a
// cleanup function that should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Breakers: breaker.NewRegistry()}
	var scanStore *postgres.ScanStore

	// --- PostgreSQL ---
	if cfg.Supabase.Enabled() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Postgres = pgClient
		scanStore = postgres.NewScanStore(pool)
		deps.ScanStore = scanStore
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Redis = redisClient
		deps.ScanCache = redis.NewScanCache(redisClient)
		deps.Baselines = redis.NewBaselineStore(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage ---
	if cfg.S3.Bucket != "" && (cfg.S3.Snapshots || cfg.Archive.Enabled) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.Blob = s3Client
		writer := s3blob.NewWriter(s3Client)
		if cfg.S3.Snapshots {
			deps.Snapshots = s3blob.NewSnapshotWriter(writer)
		}
		// Archival moves rows out of Postgres, so it needs the scan store.
		if cfg.Archive.Enabled && scanStore != nil {
			deps.Archiver = s3blob.NewArchiver(writer, s3blob.NewReader(s3Client), scanStore, deps.AuditStore)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
			cfg.Notify.TelegramAPIBase,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	logger.InfoContext(ctx, "dependencies wired",
		slog.Bool("postgres", deps.Postgres != nil),
		slog.Bool("redis", deps.Redis != nil),
		slog.Bool("snapshots", deps.Snapshots != nil),
		slog.Bool("archiver", deps.Archiver != nil),
		slog.Bool("notifier", deps.Notifier.Enabled()),
	)
	return deps, cleanup, nil
}

// breakerTransition is the ch:breaker payload.
type breakerTransition struct {
	Name string        `json:"name"`
	From breaker.State `json:"from"`
	To   breaker.State `json:"to"`
	At   time.Time     `json:"at"`
}

// newBreaker builds a provider breaker, registers it and reports its
// transitions on the bus, in the audit log and, when it opens, to the
// notifier. Sinks run in their own goroutine so a slow backend never stalls
// the caller that tripped the breaker.
func (a *App) newBreaker(name string, deps *Dependencies) *breaker.Breaker {
	cfg := breaker.Config{
		FailureThreshold: a.cfg.Breaker.FailureThreshold,
		SuccessThreshold: a.cfg.Breaker.SuccessThreshold,
		Timeout:          a.cfg.Breaker.Timeout.Duration,
	}
	b := breaker.New(name, cfg,
		breaker.WithLogger(a.logger),
		breaker.OnStateChange(func(name string, from, to breaker.State) {
			go a.reportTransition(deps, breakerTransition{Name: name, From: from, To: to, At: time.Now().UTC()})
		}),
	)
	deps.Breakers.Register(b)
	return b
}

func (a *App) reportTransition(deps *Dependencies, t breakerTransition) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if deps.SignalBus != nil {
		if payload, err := json.Marshal(t); err == nil {
			if err := deps.SignalBus.Publish(ctx, domain.ChannelBreaker, payload); err != nil {
				a.logger.WarnContext(ctx, "breaker transition not published", slog.String("error", err.Error()))
			}
		}
	}
	if deps.AuditStore != nil {
		err := deps.AuditStore.Log(ctx, "breaker.transition", map[string]any{
			"name": t.Name, "from": string(t.From), "to": string(t.To),
		})
		if err != nil {
			a.logger.WarnContext(ctx, "breaker transition not audited", slog.String("error", err.Error()))
		}
	}
	if t.To == breaker.StateOpen {
		deps.Notifier.Emit(ctx, domain.Event{
			Type: domain.EventBreakerOpen,
			Payload: map[string]any{
				"provider": t.Name,
				"from":     string(t.From),
				"timeout":  a.cfg.Breaker.Timeout.Duration.String(),
			},
		})
	}
}
