package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderbookSnapshot is a full snapshot of bids and asks for one token. Bids
// are ordered best (highest) first and asks best (lowest) first.
type OrderbookSnapshot struct {
	AssetID   string       `json:"asset_id"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// BestBid returns the top bid price, or 0 when the side is empty.
func (s OrderbookSnapshot) BestBid() float64 {
	if len(s.Bids) == 0 {
		return 0
	}
	return s.Bids[0].Price
}

// BestAsk returns the top ask price, or 0 when the side is empty.
func (s OrderbookSnapshot) BestAsk() float64 {
	if len(s.Asks) == 0 {
		return 0
	}
	return s.Asks[0].Price
}

// MidPrice returns the midpoint of the top of book, or 0 when either side is
// empty.
func (s OrderbookSnapshot) MidPrice() float64 {
	bid, ask := s.BestBid(), s.BestAsk()
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Crossed reports whether the best bid is at or above the best ask.
func (s OrderbookSnapshot) Crossed() bool {
	bid, ask := s.BestBid(), s.BestAsk()
	return bid > 0 && ask > 0 && bid >= ask
}

// BookPair groups the YES and NO books of a binary market. No may be nil
// for single-sided pricing.
type BookPair struct {
	MarketID string
	Yes      *OrderbookSnapshot
	No       *OrderbookSnapshot
}
