package domain

import (
	"fmt"
	"sort"
)

// RejectReason names why a market was excluded from a cycle.
type RejectReason string

// Filter stage reasons, in predicate order.
const (
	RejectLowReward       RejectReason = "low_reward"
	RejectHighCompetition RejectReason = "high_competition"
	RejectCategory        RejectReason = "category"
	RejectNoTokens        RejectReason = "no_tokens"
	RejectCategorical     RejectReason = "categorical_event"
	RejectNotBinary       RejectReason = "not_binary"
	RejectNoVolume        RejectReason = "no_volume"
)

// Selection stage reasons.
const (
	RejectBelowThreshold RejectReason = "below_threshold"
	RejectPortfolioFull  RejectReason = "portfolio_full"
	RejectCategoryCap    RejectReason = "category_cap"
	RejectCorrelated     RejectReason = "correlated"
)

// Pricing stage reasons.
const (
	RejectNoBook          RejectReason = "no_book"
	RejectBookUnavailable RejectReason = "book_unavailable"
	RejectThinBook        RejectReason = "insufficient_depth"
	RejectCrossedBook     RejectReason = "crossed_book"
	RejectSpread          RejectReason = "spread_exceeded"
	RejectPriceBounds     RejectReason = "price_out_of_bounds"
)

// Rejection is the typed outcome for a market that was deliberately
// excluded. It satisfies error so pricing can return it directly.
type Rejection struct {
	MarketID string
	Reason   RejectReason
	Detail   string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return fmt.Sprintf("market %s rejected: %s", r.MarketID, r.Reason)
	}
	return fmt.Sprintf("market %s rejected: %s (%s)", r.MarketID, r.Reason, r.Detail)
}

// Reject builds a Rejection with a formatted detail string.
func Reject(marketID string, reason RejectReason, format string, args ...any) *Rejection {
	return &Rejection{MarketID: marketID, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// RejectionStats counts rejections per reason. The zero value is not usable;
// build one with NewRejectionStats.
type RejectionStats map[RejectReason]int

// NewRejectionStats returns an empty counter set.
func NewRejectionStats() RejectionStats {
	return make(RejectionStats)
}

// Inc bumps the counter for reason.
func (s RejectionStats) Inc(reason RejectReason) {
	s[reason]++
}

// Merge adds every counter in other to s.
func (s RejectionStats) Merge(other RejectionStats) {
	for k, v := range other {
		s[k] += v
	}
}

// Total returns the sum of all counters.
func (s RejectionStats) Total() int {
	n := 0
	for _, v := range s {
		n += v
	}
	return n
}

// Reasons returns the reasons with a non-zero count, sorted by name.
func (s RejectionStats) Reasons() []RejectReason {
	out := make([]RejectReason, 0, len(s))
	for k, v := range s {
		if v > 0 {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
