package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

// DryRunEndpoint satisfies domain.OrderEndpoint without touching the
// exchange. Every submission is logged and answered with a synthetic id.
type DryRunEndpoint struct {
	logger *slog.Logger
}

// NewDryRunEndpoint creates a DryRunEndpoint.
func NewDryRunEndpoint(logger *slog.Logger) *DryRunEndpoint {
	return &DryRunEndpoint{logger: logger.With(slog.String("component", "dry_run_endpoint"))}
}

// Submit logs the order and returns a "dry-" prefixed id.
func (d *DryRunEndpoint) Submit(ctx context.Context, order domain.LimitOrder, identity domain.SigningIdentity) (string, error) {
	id := "dry-" + uuid.NewString()
	d.logger.InfoContext(ctx, "dry-run order",
		slog.String("order_id", id),
		slog.String("market_id", order.MarketID),
		slog.String("token_id", order.TokenID),
		slog.String("side", string(order.Side)),
		slog.Float64("price", order.Price),
		slog.Int("size", order.Size),
		slog.String("identity", identity.Name),
	)
	return id, nil
}

// Cancel logs the cancellation and reports success.
func (d *DryRunEndpoint) Cancel(ctx context.Context, orderID string) (bool, error) {
	d.logger.InfoContext(ctx, "dry-run cancel", slog.String("order_id", orderID))
	return true, nil
}

// RoundRobinIdentities hands out a fixed set of identities in turn.
type RoundRobinIdentities struct {
	mu   sync.Mutex
	ids  []domain.SigningIdentity
	next int
}

// NewRoundRobinIdentities creates a supplier over ids.
func NewRoundRobinIdentities(ids []domain.SigningIdentity) *RoundRobinIdentities {
	return &RoundRobinIdentities{ids: ids}
}

// ParseIdentities parses "name:address" entries. An entry without a colon is
// used as both name and address.
func ParseIdentities(entries []string) ([]domain.SigningIdentity, error) {
	out := make([]domain.SigningIdentity, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		name, addr, ok := strings.Cut(e, ":")
		if !ok {
			addr = name
		}
		if name == "" || addr == "" {
			return nil, fmt.Errorf("executor: malformed identity %q", e)
		}
		out = append(out, domain.SigningIdentity{Name: name, Address: addr})
	}
	return out, nil
}

// Next returns the next identity, or domain.ErrNoIdentity when none are
// configured.
func (r *RoundRobinIdentities) Next(context.Context) (domain.SigningIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ids) == 0 {
		return domain.SigningIdentity{}, domain.ErrNoIdentity
	}
	id := r.ids[r.next%len(r.ids)]
	r.next++
	return id, nil
}

// Compile-time interface checks.
var (
	_ domain.OrderEndpoint    = (*DryRunEndpoint)(nil)
	_ domain.IdentitySupplier = (*RoundRobinIdentities)(nil)
)
