package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

var errUpstream = errors.New("upstream 502")

func fail(context.Context) error    { return errUpstream }
func succeed(context.Context) error { return nil }

func newTestBreaker(clock *fakeClock) *Breaker {
	return New("gamma", Config{FailureThreshold: 3, SuccessThreshold: 2, Timeout: 30 * time.Second},
		WithClock(clock.now))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	require.Equal(t, StateClosed, b.State())
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
		assert.Equal(t, StateClosed, b.State())
	}
	assert.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.False(t, called, "open breaker must not invoke the call")
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	require.NoError(t, b.Execute(ctx, succeed))
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 2, b.Stats().FailureCount)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	require.Equal(t, StateOpen, b.State())

	clock.advance(29 * time.Second)
	assert.ErrorIs(t, b.Execute(ctx, succeed), domain.ErrCircuitOpen)

	clock.advance(time.Second)
	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	clock.advance(31 * time.Second)
	require.NoError(t, b.Execute(ctx, succeed))
	require.Equal(t, StateHalfOpen, b.State())

	assert.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Execute(ctx, succeed), domain.ErrCircuitOpen)
}

func TestBreakerHalfOpenAllowsSingleProbe(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	clock.advance(time.Minute)

	err := b.Execute(ctx, func(ctx context.Context) error {
		// A second caller arriving while the probe runs is turned away.
		assert.ErrorIs(t, b.Execute(ctx, succeed), domain.ErrCircuitOpen)
		return nil
	})
	require.NoError(t, err)
}

func TestBreakerCumulativeStats(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	_ = b.Execute(ctx, succeed)
	_ = b.Execute(ctx, succeed)
	clock.advance(time.Minute)
	_ = b.Execute(ctx, succeed)
	_ = b.Execute(ctx, succeed)

	st := b.Stats()
	assert.Equal(t, StateClosed, st.State)
	assert.EqualValues(t, 5, st.TotalCalls)
	assert.EqualValues(t, 3, st.TotalFailures)
	assert.EqualValues(t, 2, st.TotalRejected)
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b := New("clob", Config{FailureThreshold: 1})
	err := b.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
}

func cancelled(context.Context) error { return context.Canceled }

func TestBreakerCancellationKeepsFailureStreak(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	assert.ErrorIs(t, b.Execute(ctx, cancelled), context.Canceled)
	assert.Equal(t, 2, b.Stats().FailureCount)

	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, int64(3), b.Stats().TotalFailures)
}

func TestBreakerCancelledProbeDoesNotClose(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := New("clob", Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: 30 * time.Second},
		WithClock(clock.now))
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	require.Equal(t, StateOpen, b.State())
	clock.advance(30 * time.Second)

	assert.ErrorIs(t, b.Execute(ctx, cancelled), context.Canceled)
	assert.Equal(t, StateHalfOpen, b.State())
	assert.Equal(t, 0, b.Stats().SuccessCount)

	// The probe slot is free again.
	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	clock.advance(30 * time.Second)

	assert.PanicsWithValue(t, "boom", func() {
		_ = b.Execute(ctx, func(context.Context) error { panic("boom") })
	})
	assert.Equal(t, StateOpen, b.State())

	clock.advance(30 * time.Second)
	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreakerStateChangeCallback(t *testing.T) {
	var seen []State
	b := New("clob", Config{FailureThreshold: 1, Timeout: time.Hour},
		OnStateChange(func(_ string, _, to State) { seen = append(seen, to) }))

	_ = b.Execute(context.Background(), fail)
	b.Reset()
	assert.Equal(t, []State{StateOpen, StateClosed}, seen)
}

func TestDoReturnsValue(t *testing.T) {
	b := New("gamma", Config{})
	n, err := Do(context.Background(), b, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestRegistrySnapshotSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(New("gamma", Config{}))
	r.Register(New("clob-book", Config{}))

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "clob-book", snap[0].Name)
	assert.Equal(t, "gamma", snap[1].Name)
}
