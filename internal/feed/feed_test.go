package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyrewards/internal/breaker"
	"github.com/alanyoungcy/polyrewards/internal/domain"
	"github.com/alanyoungcy/polyrewards/internal/platform/polymarket"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakePages struct {
	pages  []polymarket.Page
	failAt int // 1-based page number that errors; 0 never
	calls  []string
}

func (f *fakePages) Name() string { return "fake" }

func (f *fakePages) MarketsPage(_ context.Context, cursor string) (polymarket.Page, error) {
	f.calls = append(f.calls, cursor)
	n := len(f.calls)
	if n == f.failAt {
		return polymarket.Page{}, errors.New("HTTP 502: bad gateway")
	}
	if n > len(f.pages) {
		return polymarket.Page{}, nil
	}
	return f.pages[n-1], nil
}

func raw(id string) polymarket.RawMarket {
	return polymarket.RawMarket{ConditionID: id, Question: "q " + id}
}

func pagesOf(ids ...[]string) []polymarket.Page {
	var out []polymarket.Page
	for i, group := range ids {
		p := polymarket.Page{}
		for _, id := range group {
			p.Markets = append(p.Markets, raw(id))
		}
		if i < len(ids)-1 {
			p.NextCursor = "c" + strconv.Itoa(i+1)
		}
		out = append(out, p)
	}
	return out
}

func recordIDs(recs []domain.MarketRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func newBreaker() *breaker.Breaker {
	return breaker.New("test", breaker.Config{FailureThreshold: 5, Timeout: time.Minute})
}

func TestFetchWalksAllPages(t *testing.T) {
	src := &fakePages{pages: pagesOf([]string{"a", "b"}, []string{"c", "b"}, []string{"d"})}
	f := NewMarketFeed(src, newBreaker(), polymarket.NormalizeOptions{}, 10, discard)

	recs, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, recordIDs(recs))
	assert.Equal(t, []string{"", "c1", "c2"}, src.calls)
}

func TestFetchStopsAtPageLimit(t *testing.T) {
	src := &fakePages{pages: pagesOf([]string{"a"}, []string{"b"}, []string{"c"})}
	f := NewMarketFeed(src, newBreaker(), polymarket.NormalizeOptions{}, 2, discard)

	recs, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, recordIDs(recs))
	assert.Len(t, src.calls, 2)
}

func TestFetchFirstPageFailureIsAnError(t *testing.T) {
	src := &fakePages{pages: pagesOf([]string{"a"}), failAt: 1}
	_, err := NewMarketFeed(src, newBreaker(), polymarket.NormalizeOptions{}, 10, discard).Fetch(context.Background())
	assert.Error(t, err)
}

func TestFetchLaterPageFailureKeepsPartial(t *testing.T) {
	src := &fakePages{pages: pagesOf([]string{"a"}, []string{"b"}, []string{"c"}), failAt: 2}
	recs, err := NewMarketFeed(src, newBreaker(), polymarket.NormalizeOptions{}, 10, discard).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, recordIDs(recs))
}

func TestFetchOpenBreakerFailsFast(t *testing.T) {
	b := breaker.New("gamma", breaker.Config{FailureThreshold: 1, Timeout: time.Hour})
	_ = b.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })

	src := &fakePages{pages: pagesOf([]string{"a"})}
	_, err := NewMarketFeed(src, b, polymarket.NormalizeOptions{}, 10, discard).Fetch(context.Background())
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.Empty(t, src.calls)
}

func TestFetchSkipsClosedAndAnonymous(t *testing.T) {
	closed := raw("closed")
	closed.Closed = true
	page := polymarket.Page{Markets: []polymarket.RawMarket{raw("open"), closed, {Question: "no id"}}}
	src := &fakePages{pages: []polymarket.Page{page}}

	recs, err := NewMarketFeed(src, newBreaker(), polymarket.NormalizeOptions{}, 10, discard).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"open"}, recordIDs(recs))
}

type fakeBooks struct {
	books map[string]domain.OrderbookSnapshot
	err   error
}

func (f *fakeBooks) GetOrderBook(_ context.Context, tokenID string) (domain.OrderbookSnapshot, error) {
	if f.err != nil {
		return domain.OrderbookSnapshot{}, f.err
	}
	b, ok := f.books[tokenID]
	if !ok {
		return domain.OrderbookSnapshot{}, domain.ErrNoBook
	}
	return b, nil
}

type countingLimiter struct {
	waits int
	err   error
}

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return l.err == nil, l.err
}

func (l *countingLimiter) Wait(context.Context, string, int, time.Duration) error {
	l.waits++
	return l.err
}

func TestBookPair(t *testing.T) {
	src := &fakeBooks{books: map[string]domain.OrderbookSnapshot{
		"y": {AssetID: "y"},
		"n": {AssetID: "n"},
	}}
	limiter := &countingLimiter{}
	p := NewBookProvider(src, newBreaker(), limiter, 10, time.Second, discard)

	pair, err := p.Pair(context.Background(), domain.MarketRecord{ID: "m", ClobTokenIDs: []string{"y", "n"}})
	require.NoError(t, err)
	assert.Equal(t, "m", pair.MarketID)
	assert.Equal(t, "y", pair.Yes.AssetID)
	assert.Equal(t, "n", pair.No.AssetID)
	assert.Equal(t, 2, limiter.waits)
}

func TestBookPairMissingBookDoesNotTripBreaker(t *testing.T) {
	b := breaker.New("clob", breaker.Config{FailureThreshold: 1, Timeout: time.Hour})
	p := NewBookProvider(&fakeBooks{}, b, nil, 0, 0, discard)

	_, err := p.Pair(context.Background(), domain.MarketRecord{ID: "m", ClobTokenIDs: []string{"y", "n"}})
	assert.ErrorIs(t, err, domain.ErrNoBook)
	assert.Equal(t, breaker.StateClosed, b.State())
}

func TestBookPairUpstreamFailureTripsBreaker(t *testing.T) {
	b := breaker.New("clob", breaker.Config{FailureThreshold: 1, Timeout: time.Hour})
	p := NewBookProvider(&fakeBooks{err: errors.New("HTTP 500")}, b, nil, 0, 0, discard)

	_, err := p.Pair(context.Background(), domain.MarketRecord{ID: "m", ClobTokenIDs: []string{"y", "n"}})
	assert.Error(t, err)
	assert.Equal(t, breaker.StateOpen, b.State())
}

func TestBookPairRejectsNonBinary(t *testing.T) {
	p := NewBookProvider(&fakeBooks{}, newBreaker(), nil, 0, 0, discard)
	_, err := p.Pair(context.Background(), domain.MarketRecord{ID: "m", ClobTokenIDs: []string{"a", "b", "c"}})
	assert.Error(t, err)
}

func TestBookPairLimiterOutageFetchesAnyway(t *testing.T) {
	src := &fakeBooks{books: map[string]domain.OrderbookSnapshot{
		"y": {AssetID: "y"},
		"n": {AssetID: "n"},
	}}
	limiter := &countingLimiter{err: errors.New("redis: connection refused")}
	b := breaker.New("clob", breaker.Config{FailureThreshold: 1, Timeout: time.Hour})
	p := NewBookProvider(src, b, limiter, 10, time.Second, discard)

	pair, err := p.Pair(context.Background(), domain.MarketRecord{ID: "m", ClobTokenIDs: []string{"y", "n"}})
	require.NoError(t, err)
	assert.Equal(t, "y", pair.Yes.AssetID)
	assert.Equal(t, "n", pair.No.AssetID)
	assert.Equal(t, 2, limiter.waits)
	assert.Equal(t, breaker.StateClosed, b.State())
}

func TestBookPairLimiterWaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	limiter := &countingLimiter{err: context.Canceled}
	p := NewBookProvider(&fakeBooks{}, newBreaker(), limiter, 10, time.Second, discard)

	_, err := p.Pair(ctx, domain.MarketRecord{ID: "m", ClobTokenIDs: []string{"y", "n"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, limiter.waits)
}
