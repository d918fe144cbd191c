package domain

import "context"

// SigningIdentity is an opaque handle to a wallet able to sign orders.
type SigningIdentity struct {
	Name    string
	Address string
}

// IdentitySupplier hands out an available signing identity.
type IdentitySupplier interface {
	Next(ctx context.Context) (SigningIdentity, error)
}

// OrderSide selects which leg of an intent an order belongs to.
type OrderSide string

const (
	SideYes OrderSide = "YES"
	SideNo  OrderSide = "NO"
)

// LimitOrder is one resting bid derived from an OrderIntent leg.
type LimitOrder struct {
	MarketID string    `json:"market_id"`
	TokenID  string    `json:"token_id"`
	Side     OrderSide `json:"side"`
	Price    float64   `json:"price"`
	Size     int       `json:"size"`
}

// OrderEndpoint is the exchange order surface. Signing happens behind it.
type OrderEndpoint interface {
	Submit(ctx context.Context, order LimitOrder, identity SigningIdentity) (orderID string, err error)
	Cancel(ctx context.Context, orderID string) (bool, error)
}

// Event is a fire-and-forget notification payload.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Event types.
const (
	EventScanSelected = "scan_selected"
	EventBreakerOpen  = "breaker_open"
	EventIntentPlaced = "intent_placed"
	EventError        = "error"
)
