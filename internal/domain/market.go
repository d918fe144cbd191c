package domain

import "strings"

// Category is the coarse topic bucket a market belongs to.
type Category string

const (
	CategoryCrypto        Category = "crypto"
	CategoryScience       Category = "science"
	CategoryPolitics      Category = "politics"
	CategoryEntertainment Category = "entertainment"
	CategoryEconomics     Category = "economics"
	CategorySports        Category = "sports"
	CategoryOther         Category = "other"
)

// Categories lists every known category in classifier priority order.
var Categories = []Category{
	CategoryCrypto,
	CategoryScience,
	CategoryPolitics,
	CategoryEntertainment,
	CategoryEconomics,
	CategorySports,
	CategoryOther,
}

// ParseCategory maps a free-form string onto a known Category.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// MarketRecord is one reward-eligible market, normalized from whichever
// listing endpoint produced it. Records are rebuilt on every scan cycle.
type MarketRecord struct {
	ID          string   `json:"market_id"`
	ConditionID string   `json:"condition_id,omitempty"`
	MarketSlug  string   `json:"market_slug,omitempty"`
	EventSlug   string   `json:"event_slug,omitempty"`
	EventID     string   `json:"event_id,omitempty"`
	Question    string   `json:"question"`
	Category    Category `json:"category"`
	Tags        []string `json:"tags,omitempty"`

	Reward           float64 `json:"reward"`
	RewardEstimated  bool    `json:"reward_estimated,omitempty"`
	CompetitionBars  int     `json:"competition_bars"`
	Volume           float64 `json:"volume"`
	Volume24hr       float64 `json:"volume_24hr"`
	Liquidity        float64 `json:"liquidity"`
	RewardsMinSize   float64 `json:"rewards_min_size"`
	RewardsMaxSpread float64 `json:"rewards_max_spread"`

	// YesPrice and NoPrice are the last outcome prices; zero when unknown.
	YesPrice float64 `json:"yes_price,omitempty"`
	NoPrice  float64 `json:"no_price,omitempty"`

	ClobTokenIDs []string `json:"clob_token_ids"`
	EndDate      string   `json:"end_date,omitempty"`

	Score float64 `json:"score"`
}

// IsBinary reports whether the market exposes exactly a YES and a NO token.
func (m MarketRecord) IsBinary() bool {
	return len(m.ClobTokenIDs) == 2
}

// IsCategoricalOutcome reports whether the record is one outcome of a
// multi-outcome event rather than a standalone binary market.
func (m MarketRecord) IsCategoricalOutcome() bool {
	return m.MarketSlug != "" && m.EventSlug != "" && m.MarketSlug != m.EventSlug
}

// YesToken returns the first CLOB token id, or "" for untradeable records.
func (m MarketRecord) YesToken() string {
	if !m.IsBinary() {
		return ""
	}
	return m.ClobTokenIDs[0]
}

// NoToken returns the second CLOB token id, or "" for untradeable records.
func (m MarketRecord) NoToken() string {
	if !m.IsBinary() {
		return ""
	}
	return m.ClobTokenIDs[1]
}
