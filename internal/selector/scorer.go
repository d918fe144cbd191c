// Package selector ranks filtered candidates with a multi-factor score and
// builds a bounded, diversified portfolio from them.
package selector

import (
	"math"
	"strings"
	"time"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

// Sub-score weights. They sum to 1.0.
const (
	WeightReward          = 0.25
	WeightCompetition     = 0.20
	WeightVolumeSpike     = 0.15
	WeightLiquidity       = 0.10
	WeightCategory        = 0.10
	WeightPriceEfficiency = 0.10
	WeightTiming          = 0.10
)

const (
	sportsMultiplier   = 1.2
	thinBookMultiplier = 1.15
	thinBookLiquidity  = 5000
	neutralScore       = 0.5
	unknownCategory    = 0.3
)

// DefaultCategoryWeights is the category_score table used when none is
// configured.
func DefaultCategoryWeights() map[domain.Category]float64 {
	return map[domain.Category]float64{
		domain.CategoryCrypto:        0.9,
		domain.CategorySports:        0.8,
		domain.CategoryPolitics:      0.7,
		domain.CategoryScience:       0.7,
		domain.CategoryEconomics:     0.6,
		domain.CategoryEntertainment: 0.5,
		domain.CategoryOther:         0.3,
	}
}

// Scorer computes the composite fitness score of a candidate. It owns the
// volume baselines, so a Scorer must be used by a single scan loop.
type Scorer struct {
	weights   map[domain.Category]float64
	baselines *Baselines
	now       func() time.Time
}

// ScorerOption configures a Scorer.
type ScorerOption func(*Scorer)

// WithBaselines injects a baseline set, e.g. one restored from the cache.
func WithBaselines(b *Baselines) ScorerOption {
	return func(s *Scorer) { s.baselines = b }
}

// WithNow overrides the clock used for time-to-expiry.
func WithNow(now func() time.Time) ScorerOption {
	return func(s *Scorer) { s.now = now }
}

// NewScorer creates a Scorer. A nil or empty weights table uses
// DefaultCategoryWeights.
func NewScorer(weights map[domain.Category]float64, opts ...ScorerOption) *Scorer {
	if len(weights) == 0 {
		weights = DefaultCategoryWeights()
	}
	s := &Scorer{
		weights: weights,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	if s.baselines == nil {
		s.baselines = NewBaselines(DefaultAlpha)
	}
	return s
}

// Baselines exposes the scorer's volume baseline state.
func (s *Scorer) Baselines() *Baselines { return s.baselines }

// Score returns the breakdown for rec. It updates the market's volume
// baseline as a side effect.
func (s *Scorer) Score(rec domain.MarketRecord) domain.ScoreBreakdown {
	b := domain.ScoreBreakdown{
		Reward:          rewardScore(rec.Reward),
		Competition:     competitionScore(rec.CompetitionBars),
		VolumeSpike:     s.volumeSpikeScore(rec),
		Liquidity:       liquidityScore(rec.Liquidity),
		Category:        s.categoryScore(rec.Category),
		PriceEfficiency: priceEfficiencyScore(rec.YesPrice, rec.NoPrice),
		Timing:          timingScore(rec.EndDate, s.now()),
	}
	b.Weighted = b.Reward*WeightReward +
		b.Competition*WeightCompetition +
		b.VolumeSpike*WeightVolumeSpike +
		b.Liquidity*WeightLiquidity +
		b.Category*WeightCategory +
		b.PriceEfficiency*WeightPriceEfficiency +
		b.Timing*WeightTiming

	composite := b.Weighted
	if rec.Category == domain.CategorySports {
		composite *= sportsMultiplier
	}
	if rec.Liquidity < thinBookLiquidity {
		composite *= thinBookMultiplier
	}
	b.Composite = math.Min(composite, 1.0)
	return b
}

func rewardScore(reward float64) float64 {
	switch {
	case reward >= 1000:
		return 1.0
	case reward >= 500:
		return 0.8
	case reward >= 300:
		return 0.6
	default:
		return 0.3
	}
}

// competitionScore treats zero bars as uncontested.
func competitionScore(bars int) float64 {
	switch bars {
	case 0, 1:
		return 1.0
	case 2:
		return 0.8
	case 3:
		return 0.5
	case 4:
		return 0.2
	default:
		return 0.1
	}
}

func (s *Scorer) volumeSpikeScore(rec domain.MarketRecord) float64 {
	current := rec.Volume24hr
	if current <= 0 {
		current = rec.Volume
	}
	prev, seen := s.baselines.Observe(rec.ID, current)
	if !seen || prev <= 0 {
		return neutralScore
	}

	ratio := current / prev
	switch {
	case ratio > 3:
		return 0.2
	case ratio > 2:
		return 0.4
	case ratio > 1.5:
		return 0.6
	case ratio > 1.2:
		return 0.8
	default:
		return 1.0
	}
}

func liquidityScore(liq float64) float64 {
	switch {
	case liq < 1000:
		return 1.0
	case liq < 5000:
		return 0.8
	case liq < 10000:
		return 0.6
	case liq < 50000:
		return 0.4
	default:
		return 0.2
	}
}

func (s *Scorer) categoryScore(c domain.Category) float64 {
	if w, ok := s.weights[c]; ok {
		return w
	}
	return unknownCategory
}

// priceEfficiencyScore rewards a moderate gap between the outcome prices
// and 1.0. Unknown prices are neutral.
func priceEfficiencyScore(yes, no float64) float64 {
	if yes <= 0 || no <= 0 {
		return neutralScore
	}
	gap := math.Abs(1.0 - (yes + no))
	switch {
	case gap < 0.02:
		return 0.3
	case gap < 0.05:
		return 0.8
	case gap <= 0.10:
		return 1.0
	default:
		return 0.5
	}
}

// endDateLayouts are tried in order when parsing end_date.
var endDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseEndDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range endDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func timingScore(endDate string, now time.Time) float64 {
	end, ok := parseEndDate(endDate)
	if !ok {
		return neutralScore
	}
	days := end.Sub(now).Hours() / 24
	switch {
	case days < 1:
		return 0.2
	case days < 3:
		return 0.8
	case days < 7:
		return 1.0
	case days < 30:
		return 0.7
	default:
		return 0.4
	}
}
