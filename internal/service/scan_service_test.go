package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyrewards/internal/breaker"
	"github.com/alanyoungcy/polyrewards/internal/domain"
	"github.com/alanyoungcy/polyrewards/internal/feed"
	"github.com/alanyoungcy/polyrewards/internal/platform/polymarket"
	"github.com/alanyoungcy/polyrewards/internal/pricer"
	"github.com/alanyoungcy/polyrewards/internal/scanner"
	"github.com/alanyoungcy/polyrewards/internal/selector"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type constRand float64

func (c constRand) Float64() float64 { return float64(c) }

// scenarioListing holds three raw markets: A passes every stage, B pays too
// little and C exposes three outcome tokens.
const scenarioListing = `[
  {"condition_id": "A", "question": "Will Bitcoin close above 120k this month?",
   "reward": 500, "competition_bars": 1, "volume": 20000,
   "clobTokenIds": "[\"A-yes\", \"A-no\"]"},
  {"condition_id": "B", "question": "Will Ethereum flip Bitcoin by June?",
   "reward": 5, "competition_bars": 1, "volume": 20000,
   "clobTokenIds": ["B-yes", "B-no"]},
  {"condition_id": "C", "question": "Which crypto token will lead Q3?",
   "reward": 500, "competition_bars": 1, "volume": 20000,
   "clobTokenIds": ["C-1", "C-2", "C-3"]}
]`

type staticPages struct {
	markets []polymarket.RawMarket
	err     error
}

func (s *staticPages) Name() string { return "static" }

func (s *staticPages) MarketsPage(context.Context, string) (polymarket.Page, error) {
	if s.err != nil {
		return polymarket.Page{}, s.err
	}
	return polymarket.Page{Markets: s.markets}, nil
}

func scenarioPages(t *testing.T) *staticPages {
	t.Helper()
	var raw []polymarket.RawMarket
	require.NoError(t, json.Unmarshal([]byte(scenarioListing), &raw))
	return &staticPages{markets: raw}
}

func levels(prices ...float64) []domain.PriceLevel {
	out := make([]domain.PriceLevel, len(prices))
	for i, p := range prices {
		out[i] = domain.PriceLevel{Price: p, Size: 100}
	}
	return out
}

type fakeBooks struct {
	calls []string
	err   map[string]error
}

func (f *fakeBooks) Pair(_ context.Context, rec domain.MarketRecord) (domain.BookPair, error) {
	f.calls = append(f.calls, rec.ID)
	if err := f.err[rec.ID]; err != nil {
		return domain.BookPair{}, err
	}
	return domain.BookPair{
		MarketID: rec.ID,
		Yes:      &domain.OrderbookSnapshot{AssetID: rec.YesToken(), Bids: levels(0.50, 0.495, 0.49), Asks: levels(0.51, 0.52, 0.53)},
		No:       &domain.OrderbookSnapshot{AssetID: rec.NoToken(), Bids: levels(0.48, 0.475, 0.47), Asks: levels(0.49, 0.50, 0.51)},
	}, nil
}

type memStore struct {
	runs []domain.ScanResult
}

func (m *memStore) SaveRun(_ context.Context, run domain.ScanResult) error {
	m.runs = append(m.runs, run)
	return nil
}
func (m *memStore) GetRun(context.Context, string) (domain.ScanResult, error) {
	return domain.ScanResult{}, domain.ErrNotFound
}
func (m *memStore) ListRuns(context.Context, domain.ListOpts) ([]domain.ScanResult, error) {
	return m.runs, nil
}
func (m *memStore) ListBefore(context.Context, time.Time) ([]domain.ScanResult, error) {
	return nil, nil
}
func (m *memStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type memCache struct{ latest *domain.ScanResult }

func (m *memCache) SetLatest(_ context.Context, run domain.ScanResult) error {
	m.latest = &run
	return nil
}
func (m *memCache) GetLatest(context.Context) (domain.ScanResult, error) {
	if m.latest == nil {
		return domain.ScanResult{}, domain.ErrNotFound
	}
	return *m.latest, nil
}

type memBus struct {
	mu       sync.Mutex
	messages map[string]int
	err      error
}

func (m *memBus) Publish(_ context.Context, channel string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.messages == nil {
		m.messages = map[string]int{}
	}
	m.messages[channel]++
	return nil
}
func (m *memBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

type memBaselines struct {
	loaded map[string]float64
	saved  map[string]float64
}

func (m *memBaselines) LoadBaselines(context.Context) (map[string]float64, error) {
	return m.loaded, nil
}
func (m *memBaselines) SaveBaselines(_ context.Context, b map[string]float64) error {
	m.saved = b
	return nil
}

type recEmitter struct{ events []domain.Event }

func (r *recEmitter) Emit(_ context.Context, ev domain.Event) { r.events = append(r.events, ev) }

type recIntents struct{ got []domain.OrderIntent }

func (r *recIntents) HandleIntents(_ context.Context, _ string, intents []domain.OrderIntent) {
	r.got = append(r.got, intents...)
}

type fakeLock struct {
	err      error
	released bool
}

func (f *fakeLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	return func() { f.released = true }, nil
}

type harness struct {
	books     *fakeBooks
	store     *memStore
	cache     *memCache
	bus       *memBus
	baselines *memBaselines
	notifier  *recEmitter
	intents   *recIntents
	scorer    *selector.Scorer
	deps      ScanDeps
}

func newHarness(pages feed.PageSource) *harness {
	h := &harness{
		books:     &fakeBooks{},
		store:     &memStore{},
		cache:     &memCache{},
		bus:       &memBus{},
		baselines: &memBaselines{},
		notifier:  &recEmitter{},
		intents:   &recIntents{},
		scorer:    selector.NewScorer(selector.DefaultCategoryWeights()),
	}
	brk := breaker.New("static", breaker.Config{FailureThreshold: 3}, breaker.WithLogger(discard))
	h.deps = ScanDeps{
		Feed: feed.NewMarketFeed(pages, brk, polymarket.NormalizeOptions{Classify: scanner.Classify}, 5, discard),
		Filter: scanner.NewFilter(scanner.FilterConfig{
			MinReward:          10,
			MaxCompetitionBars: 3,
			TargetCategories:   []domain.Category{domain.CategoryCrypto},
		}, discard),
		Selector:  selector.New(selector.DefaultConfig(), h.scorer, discard),
		Scorer:    h.scorer,
		Books:     h.books,
		Pricer:    pricer.New(pricer.DefaultConfig(), constRand(0.5)),
		Store:     h.store,
		Cache:     h.cache,
		Bus:       h.bus,
		Baselines: h.baselines,
		Notifier:  h.notifier,
		Intents:   h.intents,
	}
	return h
}

func (h *harness) service(opts ...ScanOption) *ScanService {
	opts = append([]ScanOption{WithSleep(func(context.Context, time.Duration) error { return nil })}, opts...)
	return NewScanService(ScanConfig{MaxSpreadPct: 0.05}, h.deps, constRand(0.5), discard, opts...)
}

func TestRunCycleScenario(t *testing.T) {
	h := newHarness(scenarioPages(t))
	run := h.service().RunCycle(context.Background())

	require.False(t, run.Degraded(), run.Error)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 3, run.Fetched)
	assert.Equal(t, 1, run.Candidates)
	assert.Equal(t, 1, run.FilterRejects[domain.RejectLowReward])
	assert.Equal(t, 1, run.FilterRejects[domain.RejectNotBinary])

	require.Len(t, run.Selections, 1)
	assert.Equal(t, "A", run.Selections[0].Market.ID)
	assert.Equal(t, domain.CategoryCrypto, run.Selections[0].Market.Category)
	assert.Equal(t, 1, run.Selections[0].Rank)

	require.Len(t, run.Intents, 1)
	intent := run.Intents[0]
	assert.Equal(t, "A", intent.MarketID)
	assert.Less(t, intent.YesPrice, 0.495)
	assert.Less(t, intent.NoPrice, 0.475)
	assert.LessOrEqual(t, intent.Info.Yes.Spread, 0.05)
	assert.Zero(t, run.PriceRejects.Total())
	assert.Equal(t, []string{"A"}, h.books.calls)
}

func TestRunCyclePublishesToSinks(t *testing.T) {
	h := newHarness(scenarioPages(t))
	run := h.service().RunCycle(context.Background())

	require.Len(t, h.store.runs, 1)
	assert.Equal(t, run.ID, h.store.runs[0].ID)
	require.NotNil(t, h.cache.latest)
	assert.Equal(t, run.ID, h.cache.latest.ID)
	assert.Equal(t, 1, h.bus.messages[domain.ChannelScan])
	assert.Equal(t, 1, h.bus.messages[domain.ChannelIntent])
	assert.Contains(t, h.baselines.saved, "A")
	require.Len(t, h.notifier.events, 1)
	assert.Equal(t, domain.EventScanSelected, h.notifier.events[0].Type)
	assert.Len(t, h.intents.got, 1)
}

func TestRunCycleSinkFailureIsNotFatal(t *testing.T) {
	h := newHarness(scenarioPages(t))
	h.bus.err = errors.New("redis down")
	run := h.service().RunCycle(context.Background())

	assert.False(t, run.Degraded())
	assert.Len(t, h.store.runs, 1)
	assert.Len(t, h.intents.got, 1)
}

func TestRunCycleFetchFailureDegrades(t *testing.T) {
	h := newHarness(&staticPages{err: errors.New("HTTP 503")})
	run := h.service().RunCycle(context.Background())

	assert.True(t, run.Degraded())
	assert.Contains(t, run.Error, "HTTP 503")
	assert.Zero(t, run.Candidates)
	assert.Empty(t, run.Selections)
	assert.Empty(t, h.books.calls)
	assert.Len(t, h.store.runs, 1, "degraded cycles are still recorded")
	assert.Nil(t, h.cache.latest, "latest cache keeps the last good cycle")
	assert.Nil(t, h.baselines.saved)
	assert.Empty(t, h.notifier.events)
}

// cryptoTrio returns three uncorrelated crypto markets that all clear the
// selection threshold.
func cryptoTrio(prefix string) []polymarket.RawMarket {
	questions := []string{
		"Will Solana flip Ethereum in daily volume?",
		"Dogecoin above one dollar before December?",
		"Cardano ships the Hydra upgrade on time?",
	}
	var raw []polymarket.RawMarket
	for i, q := range questions {
		id := fmt.Sprintf("%s%d", prefix, i)
		raw = append(raw, polymarket.RawMarket{
			ConditionID:  id,
			Question:     q,
			Reward:       500,
			Volume:       20000,
			ClobTokenIDs: []string{id + "-y", id + "-n"},
		})
	}
	return raw
}

func TestRunCycleCountsBookRejections(t *testing.T) {
	h := newHarness(&staticPages{markets: cryptoTrio("M")})
	h.books.err = map[string]error{
		"M0": fmt.Errorf("feed: token: %w", domain.ErrNoBook),
		"M1": errors.New("timeout"),
	}
	run := h.service().RunCycle(context.Background())

	require.Len(t, run.Selections, 3)
	assert.Len(t, run.Intents, 1)
	assert.Equal(t, 1, run.PriceRejects[domain.RejectNoBook])
	assert.Equal(t, 1, run.PriceRejects[domain.RejectBookUnavailable])
}

func TestRunCyclePricingRejection(t *testing.T) {
	h := newHarness(scenarioPages(t))
	svc := NewScanService(ScanConfig{MaxSpreadPct: 0.001}, h.deps, constRand(0.5), discard,
		WithSleep(func(context.Context, time.Duration) error { return nil }))
	run := svc.RunCycle(context.Background())

	assert.Empty(t, run.Intents)
	assert.Equal(t, 1, run.PriceRejects[domain.RejectSpread])
	assert.Empty(t, h.intents.got)
}

func TestRunCycleLockHeld(t *testing.T) {
	h := newHarness(scenarioPages(t))
	h.deps.Lock = &fakeLock{err: fmt.Errorf("redis: %w", domain.ErrLockHeld)}
	run := h.service().RunCycle(context.Background())

	assert.True(t, run.Degraded())
	assert.Empty(t, h.books.calls)
	assert.Empty(t, h.store.runs)
}

func TestRunCycleReleasesLock(t *testing.T) {
	h := newHarness(scenarioPages(t))
	lock := &fakeLock{}
	h.deps.Lock = lock
	h.service().RunCycle(context.Background())
	assert.True(t, lock.released)
}

func TestRunCyclePacingBetweenBooks(t *testing.T) {
	h := newHarness(&staticPages{markets: cryptoTrio("P")})
	var pauses []time.Duration
	svc := NewScanService(ScanConfig{MaxSpreadPct: 0.05, PacingMin: time.Second, PacingMax: 3 * time.Second},
		h.deps, constRand(0.5), discard,
		WithSleep(func(_ context.Context, d time.Duration) error {
			pauses = append(pauses, d)
			return nil
		}))
	run := svc.RunCycle(context.Background())

	require.Len(t, run.Selections, 3)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, pauses)
}

func TestRunCycleStopsPricingOnCancel(t *testing.T) {
	h := newHarness(&staticPages{markets: cryptoTrio("Q")})
	svc := NewScanService(ScanConfig{MaxSpreadPct: 0.05}, h.deps, nil, discard,
		WithSleep(func(context.Context, time.Duration) error { return context.Canceled }))
	run := svc.RunCycle(context.Background())

	assert.Len(t, run.Intents, 1)
	assert.Equal(t, 1, len(h.books.calls))
}

func TestRestoreBaselines(t *testing.T) {
	h := newHarness(scenarioPages(t))
	h.baselines.loaded = map[string]float64{"A": 4000}
	h.service().RestoreBaselines(context.Background())

	v, ok := h.scorer.Baselines().Get("A")
	require.True(t, ok)
	assert.Equal(t, 4000.0, v)
}
