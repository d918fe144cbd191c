// Package breaker implements a three-state circuit breaker that guards calls
// to external data providers (market listings, order books).
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

// State is the breaker's position in its state machine.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Config controls the breaker thresholds. Zero values fall back to defaults.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	return c
}

// Stats is a point-in-time view of the breaker. The Total* counters are
// cumulative across state transitions.
type Stats struct {
	Name          string    `json:"name"`
	State         State     `json:"state"`
	FailureCount  int       `json:"failure_count"`
	SuccessCount  int       `json:"success_count"`
	TotalCalls    int64     `json:"total_calls"`
	TotalFailures int64     `json:"total_failures"`
	TotalRejected int64     `json:"total_rejected"`
	OpenedAt      time.Time `json:"opened_at,omitempty"`
}

// Option customizes a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithLogger attaches a logger for state transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Breaker) {
		b.logger = logger.With(slog.String("component", "breaker"), slog.String("breaker", b.name))
	}
}

// OnStateChange registers a callback invoked after every transition. It runs
// outside the breaker lock.
func OnStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// IsFailure decides which errors count against the breaker. By default every
// non-nil error does. Context cancellation is never judged by fn: a cancelled
// call is neutral and leaves the counters untouched.
func IsFailure(fn func(error) bool) Option {
	return func(b *Breaker) { b.isFailure = fn }
}

// Breaker is a CLOSED -> OPEN -> HALF_OPEN -> CLOSED state machine. Each
// instance guards exactly one provider and is safe for concurrent use.
type Breaker struct {
	name string
	cfg  Config

	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	openedAt      time.Time
	probeInFlight bool

	totalCalls    int64
	totalFailures int64
	totalRejected int64

	now       func() time.Time
	isFailure func(error) bool
	onChange  func(name string, from, to State)
	logger    *slog.Logger
}

// New creates a Breaker in the CLOSED state.
func New(name string, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:      name,
		cfg:       cfg.withDefaults(),
		state:     StateClosed,
		now:       time.Now,
		isFailure: defaultIsFailure,
		logger:    slog.Default().With(slog.String("component", "breaker"), slog.String("breaker", name)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func defaultIsFailure(err error) bool {
	return err != nil
}

// outcome is how a finished call affects the breaker.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	// outcomeNeutral is a call that ended without an answer from the
	// provider, such as a cancelled context.
	outcomeNeutral
)

func (b *Breaker) classify(err error) outcome {
	switch {
	case errors.Is(err, context.Canceled):
		return outcomeNeutral
	case b.isFailure(err):
		return outcomeFailure
	default:
		return outcomeSuccess
	}
}

// Name returns the provider name the breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current state. OPEN only moves to HALF_OPEN when a call
// is attempted after the timeout.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot of the counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:          b.name,
		State:         b.state,
		FailureCount:  b.failureCount,
		SuccessCount:  b.successCount,
		TotalCalls:    b.totalCalls,
		TotalFailures: b.totalFailures,
		TotalRejected: b.totalRejected,
		OpenedAt:      b.openedAt,
	}
}

// Execute runs fn if the breaker admits the call and records its outcome.
// Rejected calls return an error wrapping domain.ErrCircuitOpen without
// invoking fn. A panic in fn is recorded as a failure and re-raised.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := b.before(); err != nil {
		return err
	}
	result := outcomeFailure
	defer func() { b.after(result) }()

	err = fn(ctx)
	result = b.classify(err)
	return err
}

// Do is Execute for calls that return a value.
func Do[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := b.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	var transition func()
	defer func() {
		b.mu.Unlock()
		if transition != nil {
			transition()
		}
	}()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Timeout {
			b.totalRejected++
			return fmt.Errorf("breaker %s: %w", b.name, domain.ErrCircuitOpen)
		}
		transition = b.setState(StateHalfOpen)
		b.probeInFlight = true
	case StateHalfOpen:
		if b.probeInFlight {
			b.totalRejected++
			return fmt.Errorf("breaker %s: probe in flight: %w", b.name, domain.ErrCircuitOpen)
		}
		b.probeInFlight = true
	}
	b.totalCalls++
	return nil
}

func (b *Breaker) after(result outcome) {
	b.mu.Lock()
	var transition func()
	defer func() {
		b.mu.Unlock()
		if transition != nil {
			transition()
		}
	}()

	if b.state == StateHalfOpen {
		b.probeInFlight = false
	}

	switch result {
	case outcomeNeutral:
		return
	case outcomeFailure:
		b.totalFailures++
		switch b.state {
		case StateClosed:
			b.failureCount++
			if b.failureCount >= b.cfg.FailureThreshold {
				transition = b.trip()
			}
		case StateHalfOpen:
			transition = b.trip()
		}
	case outcomeSuccess:
		switch b.state {
		case StateClosed:
			b.failureCount = 0
		case StateHalfOpen:
			b.successCount++
			if b.successCount >= b.cfg.SuccessThreshold {
				transition = b.setState(StateClosed)
			}
		}
	}
}

// trip moves to OPEN and stamps the open time. Caller holds the lock.
func (b *Breaker) trip() func() {
	b.openedAt = b.now()
	return b.setState(StateOpen)
}

// setState switches state, resets per-state counters and returns the
// notification to run once the lock is released.
func (b *Breaker) setState(to State) func() {
	from := b.state
	b.state = to
	b.failureCount = 0
	b.successCount = 0
	if to != StateHalfOpen {
		b.probeInFlight = false
	}
	logger, onChange, name := b.logger, b.onChange, b.name
	return func() {
		logger.Warn("circuit breaker state change",
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
		if onChange != nil {
			onChange(name, from, to)
		}
	}
}

// Reset forces the breaker back to CLOSED without touching cumulative stats.
func (b *Breaker) Reset() {
	b.mu.Lock()
	transition := b.setState(StateClosed)
	b.mu.Unlock()
	transition()
}
