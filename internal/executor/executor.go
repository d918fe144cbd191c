// Package executor hands priced order intents to the exchange order
// endpoint. Signing happens behind the endpoint; the executor only picks an
// identity, places the YES and NO legs and unwinds a half-placed pair.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

const defaultQueueSize = 128

// EventEmitter accepts fire-and-forget notifications.
type EventEmitter interface {
	Emit(ctx context.Context, ev domain.Event)
}

// Placement is the outcome of executing one intent.
type Placement struct {
	MarketID  string
	Identity  string
	YesOrder  string
	NoOrder   string
	Cancelled bool
}

// Executor reads intents from an internal queue, drops repeats and places
// them through the OrderEndpoint.
type Executor struct {
	queue      chan domain.OrderIntent
	endpoint   domain.OrderEndpoint
	identities domain.IdentitySupplier
	dedup      *Dedup
	audit      domain.AuditStore
	notifier   EventEmitter
	logger     *slog.Logger

	cleanupInterval time.Duration
}

// Option customizes an Executor.
type Option func(*Executor)

// WithAudit records placements in the audit log.
func WithAudit(a domain.AuditStore) Option {
	return func(e *Executor) { e.audit = a }
}

// WithNotifier emits an intent_placed event per placement.
func WithNotifier(n EventEmitter) Option {
	return func(e *Executor) { e.notifier = n }
}

// WithDedupTTL replaces the default two-minute dedup window.
func WithDedupTTL(ttl time.Duration) Option {
	return func(e *Executor) { e.dedup = NewDedup(ttl) }
}

// NewExecutor creates an Executor placing orders via endpoint with
// identities from ids.
func NewExecutor(endpoint domain.OrderEndpoint, ids domain.IdentitySupplier, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		queue:           make(chan domain.OrderIntent, defaultQueueSize),
		endpoint:        endpoint,
		identities:      ids,
		dedup:           NewDedup(2 * time.Minute),
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleIntents queues a cycle's intents. It never blocks; intents that do
// not fit in the queue are dropped and logged.
func (e *Executor) HandleIntents(ctx context.Context, runID string, intents []domain.OrderIntent) {
	for i, intent := range intents {
		select {
		case e.queue <- intent:
		default:
			e.logger.WarnContext(ctx, "intent queue full, dropping intents",
				slog.String("run_id", runID),
				slog.Int("dropped", len(intents)-i),
			)
			return
		}
	}
}

// Run processes queued intents until ctx is cancelled. Intents still queued
// at shutdown are stale and are discarded.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "executor started")
	defer e.logger.Info("executor stopped")

	cleanup := time.NewTicker(e.cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			if n := len(e.queue); n > 0 {
				e.logger.Warn("discarding queued intents at shutdown", slog.Int("count", n))
			}
			return ctx.Err()
		case intent := <-e.queue:
			if _, err := e.Execute(ctx, intent); err != nil {
				e.logger.WarnContext(ctx, "intent not placed",
					slog.String("market_id", intent.MarketID),
					slog.String("error", err.Error()),
				)
			}
		case <-cleanup.C:
			e.dedup.Cleanup()
		}
	}
}

// errDuplicate marks an intent skipped by the dedup window.
var errDuplicate = fmt.Errorf("executor: duplicate intent")

// Execute places one intent: the YES leg first, then the NO leg. If the NO
// leg fails the YES order is cancelled so no single-sided exposure is left
// behind.
func (e *Executor) Execute(ctx context.Context, intent domain.OrderIntent) (Placement, error) {
	p := Placement{MarketID: intent.MarketID}
	if e.dedup.IsDuplicate(intent.MarketID) {
		return p, fmt.Errorf("%w for market %s", errDuplicate, intent.MarketID)
	}

	identity, err := e.identities.Next(ctx)
	if err != nil {
		e.dedup.Forget(intent.MarketID)
		return p, fmt.Errorf("executor: identity for %s: %w", intent.MarketID, err)
	}
	p.Identity = identity.Name

	yes := domain.LimitOrder{
		MarketID: intent.MarketID,
		TokenID:  intent.YesTokenID,
		Side:     domain.SideYes,
		Price:    intent.YesPrice,
		Size:     intent.YesSize,
	}
	p.YesOrder, err = e.endpoint.Submit(ctx, yes, identity)
	if err != nil {
		e.dedup.Forget(intent.MarketID)
		e.record(ctx, "intent.failed", p, err)
		return p, fmt.Errorf("executor: submit yes %s: %w", intent.MarketID, err)
	}

	if intent.HasNoSide() {
		no := domain.LimitOrder{
			MarketID: intent.MarketID,
			TokenID:  intent.NoTokenID,
			Side:     domain.SideNo,
			Price:    intent.NoPrice,
			Size:     intent.NoSize,
		}
		p.NoOrder, err = e.endpoint.Submit(ctx, no, identity)
		if err != nil {
			p.Cancelled = e.cancel(ctx, p.YesOrder)
			// An uncancelled YES order is still resting; the market stays deduplicated.
			if p.Cancelled {
				e.dedup.Forget(intent.MarketID)
			}
			e.record(ctx, "intent.failed", p, err)
			return p, fmt.Errorf("executor: submit no %s: %w", intent.MarketID, err)
		}
	}

	e.logger.InfoContext(ctx, "intent placed",
		slog.String("market_id", p.MarketID),
		slog.String("identity", p.Identity),
		slog.String("yes_order", p.YesOrder),
		slog.String("no_order", p.NoOrder),
	)
	e.record(ctx, "intent.placed", p, nil)
	if e.notifier != nil {
		e.notifier.Emit(ctx, domain.Event{
			Type: domain.EventIntentPlaced,
			Payload: map[string]any{
				"market_id": intent.MarketID,
				"yes":       fmt.Sprintf("%d @ %.4f", intent.YesSize, intent.YesPrice),
				"no":        fmt.Sprintf("%d @ %.4f", intent.NoSize, intent.NoPrice),
			},
		})
	}
	return p, nil
}

func (e *Executor) cancel(ctx context.Context, orderID string) bool {
	ok, err := e.endpoint.Cancel(ctx, orderID)
	if err != nil || !ok {
		e.logger.ErrorContext(ctx, "failed to cancel orphaned yes order",
			slog.String("order_id", orderID),
			slog.Any("error", err),
		)
		return false
	}
	return true
}

func (e *Executor) record(ctx context.Context, event string, p Placement, cause error) {
	if e.audit == nil {
		return
	}
	detail := map[string]any{
		"market_id": p.MarketID,
		"identity":  p.Identity,
		"yes_order": p.YesOrder,
		"no_order":  p.NoOrder,
		"cancelled": p.Cancelled,
	}
	if cause != nil {
		detail["error"] = cause.Error()
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}
}
