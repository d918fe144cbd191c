// Package notify fans domain events out to chat channels (Telegram,
// Discord). Delivery is best-effort: a slow or failing channel never blocks
// or fails a scan cycle.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

const defaultQueueSize = 64

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches events to one or more Senders. Only event types in the
// allowed set are forwarded; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	queue   chan domain.Event
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		queue:   make(chan domain.Event, defaultQueueSize),
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Emit queues ev for asynchronous delivery by Run. It never blocks: when the
// queue is full the event is dropped and logged.
func (n *Notifier) Emit(ctx context.Context, ev domain.Event) {
	if !n.Enabled() || !n.allowed(ev.Type) {
		return
	}
	select {
	case n.queue <- ev:
	default:
		n.logger.WarnContext(ctx, "notification queue full, dropping event",
			slog.String("event", ev.Type),
		)
	}
}

// Run delivers queued events until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-n.queue:
			if err := n.Deliver(ctx, ev); err != nil {
				n.logger.WarnContext(ctx, "notification delivery failed",
					slog.String("event", ev.Type),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Deliver sends ev synchronously to every sender, subject to the event
// filter.
func (n *Notifier) Deliver(ctx context.Context, ev domain.Event) error {
	if !n.allowed(ev.Type) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", ev.Type))
		return nil
	}
	title, message := Render(ev)
	return n.dispatch(ctx, title, message)
}

func (n *Notifier) allowed(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// dispatch sends to every sender. A failing sender does not prevent delivery
// to the others; failures are joined into one error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

var titles = map[string]string{
	domain.EventScanSelected: "Markets selected",
	domain.EventBreakerOpen:  "Circuit breaker open",
	domain.EventIntentPlaced: "Orders placed",
	domain.EventError:        "Error",
}

// Render turns an event into a title and a body of sorted key: value lines.
func Render(ev domain.Event) (title, message string) {
	title = titles[ev.Type]
	if title == "" {
		title = ev.Type
	}
	keys := make([]string, 0, len(ev.Payload))
	for k := range ev.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, ev.Payload[k])
	}
	return title, strings.TrimRight(b.String(), "\n")
}
