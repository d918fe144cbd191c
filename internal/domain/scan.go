package domain

import "time"

// ScoreBreakdown holds the seven normalized sub-scores of the selector and
// the composite derived from them.
type ScoreBreakdown struct {
	Reward          float64 `json:"reward"`
	Competition     float64 `json:"competition"`
	VolumeSpike     float64 `json:"volume_spike"`
	Liquidity       float64 `json:"liquidity"`
	Category        float64 `json:"category"`
	PriceEfficiency float64 `json:"price_efficiency"`
	Timing          float64 `json:"timing"`
	Weighted        float64 `json:"weighted"`
	Composite       float64 `json:"composite"`
}

// Selection is a market accepted into the cycle's portfolio.
type Selection struct {
	Market    MarketRecord   `json:"market"`
	Breakdown ScoreBreakdown `json:"breakdown"`
	Rank      int            `json:"rank"`
}

// ScanResult summarizes one scan cycle. Error is non-empty when the cycle
// degraded to an empty candidate set.
type ScanResult struct {
	ID            string         `json:"id"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	Fetched       int            `json:"fetched"`
	Candidates    int            `json:"candidates"`
	Selections    []Selection    `json:"selections"`
	Intents       []OrderIntent  `json:"intents"`
	FilterRejects RejectionStats `json:"filter_rejects"`
	SelectRejects RejectionStats `json:"select_rejects"`
	PriceRejects  RejectionStats `json:"price_rejects"`
	Error         string         `json:"error,omitempty"`
}

// Duration returns how long the cycle took.
func (r ScanResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Degraded reports whether the cycle failed before producing candidates.
func (r ScanResult) Degraded() bool {
	return r.Error != ""
}
