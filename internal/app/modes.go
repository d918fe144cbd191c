package app

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyrewards/internal/breaker"
	"github.com/alanyoungcy/polyrewards/internal/executor"
	"github.com/alanyoungcy/polyrewards/internal/feed"
	"github.com/alanyoungcy/polyrewards/internal/pipeline"
	"github.com/alanyoungcy/polyrewards/internal/platform/polymarket"
	"github.com/alanyoungcy/polyrewards/internal/pricer"
	"github.com/alanyoungcy/polyrewards/internal/scanner"
	"github.com/alanyoungcy/polyrewards/internal/selector"
	"github.com/alanyoungcy/polyrewards/internal/server"
	"github.com/alanyoungcy/polyrewards/internal/server/handler"
	"github.com/alanyoungcy/polyrewards/internal/server/ws"
	"github.com/alanyoungcy/polyrewards/internal/service"
)

// components selects what a mode runs.
type components struct {
	scan    bool
	execute bool
	serve   bool
	archive bool
}

// ScanMode runs scan cycles only.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	return a.run(ctx, deps, components{scan: true})
}

// TradeMode runs scan cycles and hands every priced intent to the executor.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	return a.run(ctx, deps, components{scan: true, execute: true})
}

// ServerMode serves the diagnostics API from the stores and caches another
// process fills.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	return a.run(ctx, deps, components{serve: true})
}

// FullMode runs everything: scans, the executor when auto_execute is set,
// the API and archival.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	return a.run(ctx, deps, components{
		scan:    true,
		execute: a.cfg.Executes(),
		serve:   true,
		archive: a.cfg.Archive.Enabled,
	})
}

func (a *App) run(ctx context.Context, deps *Dependencies, c components) error {
	a.logger.InfoContext(ctx, "starting components",
		slog.Bool("scan", c.scan),
		slog.Bool("execute", c.execute),
		slog.Bool("serve", c.serve),
		slog.Bool("archive", c.archive),
	)

	var exec *executor.Executor
	if c.execute {
		var err error
		if exec, err = a.buildExecutor(deps); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	goUntilDone(ctx, g, deps.Notifier.Run)

	var intents service.IntentHandler
	if exec != nil {
		intents = exec
		goUntilDone(ctx, g, exec.Run)
	}

	var loop *pipeline.ScanLoop
	if c.scan {
		svc := a.buildScanService(deps, intents)
		svc.RestoreBaselines(ctx)
		loop = pipeline.NewScanLoop(svc, a.cfg.Scan.Interval.Duration, a.cfg.Scan.Jitter.Duration, newRand(), a.logger)
	}

	var archiver *pipeline.Archiver
	if c.archive && deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	}

	if loop != nil || archiver != nil {
		orch := pipeline.NewOrchestrator(loop, archiver, a.cfg.Archive.Cron, a.logger)
		goUntilDone(ctx, g, orch.Run)
	}

	if c.serve {
		hub := ws.NewHub(deps.SignalBus, a.logger)
		goUntilDone(ctx, g, hub.Run)
		srv := a.buildServer(deps, hub)
		goUntilDone(ctx, g, srv.Run)
	}

	return g.Wait()
}

// goUntilDone runs fn in g and swallows the error it returns once ctx is
// cancelled, so a clean shutdown does not surface as a failure.
func goUntilDone(ctx context.Context, g *errgroup.Group, fn func(context.Context) error) {
	g.Go(func() error {
		err := fn(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}

// buildScanService assembles the feed, filter, selector and pricer around
// the provider breakers. The CLOB client serves the order books in every
// configuration and the listing too when source is "clob".
func (a *App) buildScanService(deps *Dependencies, intents service.IntentHandler) *service.ScanService {
	pm := a.cfg.Polymarket
	clob := polymarket.NewClobClient(pm.ClobHost, pm.RequestTimeout.Duration,
		polymarket.WithRetry(pm.RetryCount, 500*time.Millisecond, 5*time.Second))
	clobBreaker := a.newBreaker("clob", deps)

	var (
		listing        feed.PageSource = clob
		listingBreaker                 = clobBreaker
	)
	if strings.EqualFold(pm.Source, "gamma") {
		listing = polymarket.NewGammaClient(pm.GammaHost, pm.PageLimit, pm.RequestTimeout.Duration)
		listingBreaker = a.newBreaker("gamma", deps)
	}

	sc := a.cfg.Scanner
	marketFeed := feed.NewMarketFeed(listing, listingBreaker, polymarket.NormalizeOptions{
		Classify:        scanner.Classify,
		EstimateRewards: sc.EstimateRewards,
		RewardPerVolume: sc.RewardPerVolume,
		RewardCap:       sc.RewardEstimateCap,
	}, pm.MaxPages, a.logger)

	filter := scanner.NewFilter(scanner.FilterConfig{
		MinReward:          sc.MinReward,
		MaxCompetitionBars: sc.MaxCompetitionBars,
		TargetCategories:   a.cfg.TargetCategories(),
	}, a.logger)

	sel := a.cfg.Selection
	scorer := selector.NewScorer(a.cfg.CategoryWeights(),
		selector.WithBaselines(selector.NewBaselines(sel.BaselineAlpha)))
	picker := selector.New(selector.Config{
		Threshold:           sel.Threshold,
		MaxTotal:            sel.MaxTotal,
		MaxPerCategory:      sel.MaxPerCategory,
		SimilarityThreshold: sel.SimilarityThreshold,
	}, scorer, a.logger)

	pc := a.cfg.Pricer
	pricing := pricer.New(pricer.Config{
		SizeMin:    pc.SizeMin,
		SizeMax:    pc.SizeMax,
		OffsetMin:  pc.OffsetMin,
		OffsetMax:  pc.OffsetMax,
		SizeJitter: pc.SizeJitter,
		TickSize:   pc.TickSize,
	}, newRand())

	books := feed.NewBookProvider(clob, clobBreaker, deps.RateLimiter,
		a.cfg.Scan.BookRateLimit, a.cfg.Scan.BookRateWindow.Duration, a.logger)

	sd := service.ScanDeps{
		Feed:      marketFeed,
		Filter:    filter,
		Selector:  picker,
		Scorer:    scorer,
		Books:     books,
		Pricer:    pricing,
		Lock:      deps.LockManager,
		Store:     deps.ScanStore,
		Cache:     deps.ScanCache,
		Bus:       deps.SignalBus,
		Baselines: deps.Baselines,
		Notifier:  deps.Notifier,
		Intents:   intents,
	}
	if deps.Snapshots != nil {
		sd.Snapshots = deps.Snapshots
	}

	return service.NewScanService(service.ScanConfig{
		MaxSpreadPct: pc.MaxSpreadPct,
		PacingMin:    a.cfg.Scan.PacingMin.Duration,
		PacingMax:    a.cfg.Scan.PacingMax.Duration,
		LockTTL:      a.cfg.Scan.LockTTL.Duration,
	}, sd, newRand(), a.logger)
}

// buildExecutor places intents through the dry-run endpoint. Live order
// signing sits behind domain.OrderEndpoint and is not part of this binary.
func (a *App) buildExecutor(deps *Dependencies) (*executor.Executor, error) {
	ids, err := executor.ParseIdentities(a.cfg.Executor.Identities)
	if err != nil {
		return nil, err
	}
	opts := []executor.Option{executor.WithNotifier(deps.Notifier)}
	if deps.AuditStore != nil {
		opts = append(opts, executor.WithAudit(deps.AuditStore))
	}
	if ttl := a.cfg.Executor.DedupTTL.Duration; ttl > 0 {
		opts = append(opts, executor.WithDedupTTL(ttl))
	}
	return executor.NewExecutor(
		executor.NewDryRunEndpoint(a.logger),
		executor.NewRoundRobinIdentities(ids),
		a.logger,
		opts...,
	), nil
}

func (a *App) buildServer(deps *Dependencies, hub *ws.Hub) *server.Server {
	checks := map[string]handler.Pinger{}
	if deps.Postgres != nil {
		checks["postgres"] = deps.Postgres.Ping
	}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis.Ping
	}
	if deps.Blob != nil {
		checks["s3"] = deps.Blob.Ping
	}

	var (
		history handler.ScanHistory
		latest  handler.LatestScan
	)
	if deps.ScanStore != nil {
		history = deps.ScanStore
	}
	if deps.ScanCache != nil {
		latest = deps.ScanCache
	}

	sc := a.cfg.Server
	cfg := server.Config{
		Port:        sc.Port,
		CORSOrigins: sc.CORSOrigins,
		APIKey:      sc.APIKey,
		RateLimit:   sc.RateLimit,
		RateWindow:  sc.RateWindow.Duration,
	}
	if deps.RateLimiter != nil {
		cfg.Limiter = deps.RateLimiter
	}

	return server.NewServer(cfg, server.Handlers{
		Health:   handler.NewHealthHandler(a.cfg.Mode, checks, a.logger),
		Scans:    handler.NewScanHandler(history, latest, a.logger),
		Breakers: handler.NewBreakerHandler(deps.Breakers),
	}, hub, a.logger)
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
}

// Compile-time check that the registry satisfies the handler's source.
var _ handler.BreakerSource = (*breaker.Registry)(nil)
