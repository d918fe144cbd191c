package domain

import "time"

// SidePricing records how one side of an intent was derived from its book.
type SidePricing struct {
	TokenID   string  `json:"token_id"`
	SecondBid float64 `json:"second_bid"`
	BestAsk   float64 `json:"best_ask"`
	MidPrice  float64 `json:"mid_price"`
	Offset    float64 `json:"offset"`
	Price     float64 `json:"price"`
	Spread    float64 `json:"spread"`
}

// PositionInfo is diagnostic detail attached to an OrderIntent.
type PositionInfo struct {
	// ReferencePosition is the 1-based book position priced against.
	ReferencePosition int          `json:"reference_position"`
	TargetPosition    int          `json:"target_position"`
	MaxSpreadPct      float64      `json:"max_spread_pct"`
	Yes               SidePricing  `json:"yes"`
	No                *SidePricing `json:"no,omitempty"`
}

// OrderIntent is the pricer's output for one market: where and how much to
// rest on each side. It is never mutated after creation.
type OrderIntent struct {
	MarketID   string       `json:"market_id"`
	YesTokenID string       `json:"yes_token_id"`
	NoTokenID  string       `json:"no_token_id,omitempty"`
	YesPrice   float64      `json:"yes_price"`
	NoPrice    float64      `json:"no_price,omitempty"`
	YesSize    int          `json:"yes_size"`
	NoSize     int          `json:"no_size,omitempty"`
	Info       PositionInfo `json:"position_info"`
	CreatedAt  time.Time    `json:"created_at"`
}

// HasNoSide reports whether the intent carries a NO leg.
func (o OrderIntent) HasNoSide() bool {
	return o.NoTokenID != "" && o.NoSize > 0
}
