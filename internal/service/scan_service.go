package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polyrewards/internal/domain"
	"github.com/alanyoungcy/polyrewards/internal/pricer"
	"github.com/alanyoungcy/polyrewards/internal/scanner"
	"github.com/alanyoungcy/polyrewards/internal/selector"
)

const scanLockKey = "scan:cycle"

// MarketSource returns the normalized market listing for one cycle.
type MarketSource interface {
	Fetch(ctx context.Context) ([]domain.MarketRecord, error)
}

// BookPairer fetches the YES and NO order books of a binary market.
type BookPairer interface {
	Pair(ctx context.Context, rec domain.MarketRecord) (domain.BookPair, error)
}

// SnapshotWriter stores a completed cycle in object storage.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, run domain.ScanResult) error
}

// EventEmitter accepts fire-and-forget notifications.
type EventEmitter interface {
	Emit(ctx context.Context, ev domain.Event)
}

// IntentHandler receives the intents priced in a cycle.
type IntentHandler interface {
	HandleIntents(ctx context.Context, runID string, intents []domain.OrderIntent)
}

// ScanConfig tunes one scan cycle.
type ScanConfig struct {
	MaxSpreadPct float64
	// PacingMin and PacingMax bound the random pause between order-book
	// fetches of consecutive selections.
	PacingMin time.Duration
	PacingMax time.Duration
	LockTTL   time.Duration
}

// ScanDeps are the collaborators of a ScanService. Feed, Filter, Selector,
// Books and Pricer are required; the rest are optional sinks. Scorer is the
// one the Selector uses; its baselines are persisted through Baselines.
type ScanDeps struct {
	Feed     MarketSource
	Filter   *scanner.Filter
	Selector *selector.Selector
	Scorer   *selector.Scorer
	Books    BookPairer
	Pricer   *pricer.Pricer

	Lock      domain.LockManager
	Store     domain.ScanStore
	Cache     domain.ScanCache
	Bus       domain.SignalBus
	Baselines domain.BaselineStore
	Snapshots SnapshotWriter
	Notifier  EventEmitter
	Intents   IntentHandler
}

// ScanService runs the fetch, filter, select, price pipeline and fans the
// result out to storage and subscribers.
type ScanService struct {
	cfg    ScanConfig
	deps   ScanDeps
	rng    pricer.Rand
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
	logger *slog.Logger
}

// ScanOption customizes a ScanService.
type ScanOption func(*ScanService)

// WithScanClock replaces time.Now, for tests.
func WithScanClock(now func() time.Time) ScanOption {
	return func(s *ScanService) { s.now = now }
}

// WithSleep replaces the pacing sleep, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ScanOption {
	return func(s *ScanService) { s.sleep = sleep }
}

// NewScanService creates a ScanService. rng drives the pacing jitter.
func NewScanService(cfg ScanConfig, deps ScanDeps, rng pricer.Rand, logger *slog.Logger, opts ...ScanOption) *ScanService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	s := &ScanService{
		cfg:    cfg,
		deps:   deps,
		rng:    rng,
		sleep:  sleepCtx,
		now:    time.Now,
		logger: logger.With(slog.String("component", "scan_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RestoreBaselines loads persisted volume baselines into the scorer. A
// missing store or a load failure leaves the scorer cold.
func (s *ScanService) RestoreBaselines(ctx context.Context) {
	scorer := s.deps.Scorer
	if s.deps.Baselines == nil || scorer == nil {
		return
	}
	vals, err := s.deps.Baselines.LoadBaselines(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load volume baselines", slog.String("error", err.Error()))
		return
	}
	scorer.Baselines().Load(vals)
	s.logger.InfoContext(ctx, "volume baselines restored", slog.Int("markets", scorer.Baselines().Len()))
}

// RunCycle executes one scan cycle. It never returns an error: a failed
// fetch or a held lock degrade to a result with Error set and no
// candidates.
func (s *ScanService) RunCycle(ctx context.Context) domain.ScanResult {
	run := domain.ScanResult{
		ID:            uuid.NewString(),
		StartedAt:     s.now(),
		FilterRejects: domain.NewRejectionStats(),
		SelectRejects: domain.NewRejectionStats(),
		PriceRejects:  domain.NewRejectionStats(),
	}

	if s.deps.Lock != nil {
		unlock, err := s.deps.Lock.Acquire(ctx, scanLockKey, s.cfg.LockTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			s.logger.InfoContext(ctx, "scan cycle skipped, lock held elsewhere")
			run.Error = "scan lock held by another instance"
			run.FinishedAt = s.now()
			return run
		case err != nil:
			s.logger.WarnContext(ctx, "scan lock unavailable, scanning unlocked", slog.String("error", err.Error()))
		default:
			defer unlock()
		}
	}

	records, err := s.deps.Feed.Fetch(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "market fetch failed, cycle degraded", slog.String("error", err.Error()))
		run.Error = err.Error()
		run.FinishedAt = s.now()
		s.publish(ctx, run)
		return run
	}
	run.Fetched = len(records)

	candidates, filterStats := s.deps.Filter.Apply(records)
	run.Candidates = len(candidates)
	run.FilterRejects = filterStats

	selections, selectStats := s.deps.Selector.Select(candidates)
	run.Selections = selections
	run.SelectRejects = selectStats

	run.Intents = s.priceSelections(ctx, selections, run.PriceRejects)
	run.FinishedAt = s.now()

	s.logger.InfoContext(ctx, "scan cycle complete",
		slog.String("run_id", run.ID),
		slog.Int("fetched", run.Fetched),
		slog.Int("candidates", run.Candidates),
		slog.Int("selected", len(run.Selections)),
		slog.Int("intents", len(run.Intents)),
		slog.Duration("duration", run.Duration()),
		statsGroup("filter_rejects", run.FilterRejects),
		statsGroup("select_rejects", run.SelectRejects),
		statsGroup("price_rejects", run.PriceRejects),
	)

	s.publish(ctx, run)
	return run
}

// priceSelections fetches books and prices each selection in rank order,
// pausing a random interval between markets. Rejections are counted, never
// retried within the cycle.
func (s *ScanService) priceSelections(ctx context.Context, selections []domain.Selection, stats domain.RejectionStats) []domain.OrderIntent {
	var intents []domain.OrderIntent
	for i, sel := range selections {
		if i > 0 {
			if err := s.sleep(ctx, s.pacing()); err != nil {
				s.logger.InfoContext(ctx, "pricing interrupted", slog.Int("remaining", len(selections)-i))
				break
			}
		}

		pair, err := s.deps.Books.Pair(ctx, sel.Market)
		if err != nil {
			reason := domain.RejectBookUnavailable
			if errors.Is(err, domain.ErrNoBook) {
				reason = domain.RejectNoBook
			}
			stats.Inc(reason)
			s.logger.DebugContext(ctx, "order book unavailable",
				slog.String("market_id", sel.Market.ID),
				slog.String("reason", string(reason)),
				slog.String("error", err.Error()),
			)
			continue
		}

		intent, err := s.deps.Pricer.Price(pair, s.cfg.MaxSpreadPct)
		if err != nil {
			var rej *domain.Rejection
			if errors.As(err, &rej) {
				stats.Inc(rej.Reason)
				s.logger.DebugContext(ctx, "market not priced", slog.String("detail", rej.Error()))
			} else {
				stats.Inc(domain.RejectBookUnavailable)
				s.logger.WarnContext(ctx, "pricing failed", slog.String("market_id", sel.Market.ID), slog.String("error", err.Error()))
			}
			continue
		}
		intents = append(intents, intent)
	}
	return intents
}

func (s *ScanService) pacing() time.Duration {
	lo, hi := s.cfg.PacingMin, s.cfg.PacingMax
	if hi <= lo || s.rng == nil {
		return lo
	}
	return lo + time.Duration(s.rng.Float64()*float64(hi-lo))
}

// publish fans a finished cycle out to every configured sink. Each sink is
// best-effort; failures are logged and do not affect the others.
func (s *ScanService) publish(ctx context.Context, run domain.ScanResult) {
	warn := func(sink string, err error) {
		if err != nil {
			s.logger.WarnContext(ctx, "scan sink failed",
				slog.String("sink", sink),
				slog.String("run_id", run.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.deps.Store != nil {
		warn("store", s.deps.Store.SaveRun(ctx, run))
	}
	if s.deps.Cache != nil && !run.Degraded() {
		warn("cache", s.deps.Cache.SetLatest(ctx, run))
	}
	if s.deps.Snapshots != nil {
		warn("snapshot", s.deps.Snapshots.WriteSnapshot(ctx, run))
	}
	if s.deps.Bus != nil {
		warn("bus", s.publishBus(ctx, run))
	}
	if s.deps.Baselines != nil && s.deps.Scorer != nil && !run.Degraded() {
		warn("baselines", s.deps.Baselines.SaveBaselines(ctx, s.deps.Scorer.Baselines().Snapshot()))
	}
	if s.deps.Notifier != nil && len(run.Selections) > 0 {
		s.deps.Notifier.Emit(ctx, selectedEvent(run))
	}
	if s.deps.Intents != nil && len(run.Intents) > 0 {
		s.deps.Intents.HandleIntents(ctx, run.ID, run.Intents)
	}
}

func (s *ScanService) publishBus(ctx context.Context, run domain.ScanResult) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("service: marshal scan %s: %w", run.ID, err)
	}
	if err := s.deps.Bus.Publish(ctx, domain.ChannelScan, payload); err != nil {
		return err
	}
	for _, intent := range run.Intents {
		payload, err := json.Marshal(intent)
		if err != nil {
			return fmt.Errorf("service: marshal intent %s: %w", intent.MarketID, err)
		}
		if err := s.deps.Bus.Publish(ctx, domain.ChannelIntent, payload); err != nil {
			return err
		}
	}
	return nil
}

func selectedEvent(run domain.ScanResult) domain.Event {
	markets := make([]string, 0, len(run.Selections))
	for _, sel := range run.Selections {
		markets = append(markets, fmt.Sprintf("#%d %s (%.3f)", sel.Rank, sel.Market.Question, sel.Breakdown.Composite))
	}
	return domain.Event{
		Type: domain.EventScanSelected,
		Payload: map[string]any{
			"run_id":   run.ID,
			"selected": len(run.Selections),
			"intents":  len(run.Intents),
			"markets":  markets,
		},
	}
}

func statsGroup(name string, stats domain.RejectionStats) slog.Attr {
	attrs := make([]any, 0, len(stats))
	for _, reason := range stats.Reasons() {
		attrs = append(attrs, slog.Int(string(reason), stats[reason]))
	}
	return slog.Group(name, attrs...)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
