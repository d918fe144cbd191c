package polymarket

import (
	"math"
	"strconv"
	"strings"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

// NormalizeOptions controls the fallbacks applied by Normalize.
type NormalizeOptions struct {
	// Classify assigns the category. Nil leaves it empty.
	Classify func(question string, tags []string) domain.Category

	// EstimateRewards enables the volume-based reward fallback for markets
	// that declare no reward: min(volume_24hr*RewardPerVolume, RewardCap).
	EstimateRewards bool
	RewardPerVolume float64
	RewardCap       float64
}

// Normalize reconciles the field variants of a raw listing record into one
// MarketRecord. It is total: missing or malformed fields fall back to
// neutral values.
func Normalize(raw RawMarket, opts NormalizeOptions) domain.MarketRecord {
	rec := domain.MarketRecord{
		ConditionID: firstNonEmpty(raw.ConditionID, raw.ConditionIDCamel),
		Question:    strings.TrimSpace(raw.Question),
		Tags:        []string(raw.Tags),
		EndDate:     firstNonEmpty(raw.EndDateISO, raw.EndDateISOCamel, raw.EndDate),
		Volume:      nonNegative(firstPositive(float64(raw.Volume), float64(raw.VolumeNum))),
		Volume24hr:  nonNegative(firstPositive(float64(raw.Volume24hr), float64(raw.Volume24hrSnake))),
		Liquidity:   nonNegative(firstPositive(float64(raw.Liquidity), float64(raw.LiquidityNum))),
	}
	rec.ID = firstNonEmpty(string(raw.ID), rec.ConditionID)

	rec.MarketSlug = firstNonEmpty(raw.MarketSlug, raw.Slug)
	if len(raw.Events) > 0 {
		rec.EventSlug = raw.Events[0].Slug
		rec.EventID = string(raw.Events[0].ID)
	}

	rec.RewardsMinSize = float64(raw.RewardsMinSize)
	rec.RewardsMaxSpread = float64(raw.RewardsMaxSpread)
	if raw.Rewards != nil {
		rec.RewardsMinSize = firstPositive(float64(raw.Rewards.MinSize), rec.RewardsMinSize)
		rec.RewardsMaxSpread = firstPositive(float64(raw.Rewards.MaxSpread), rec.RewardsMaxSpread)
	}
	rec.RewardsMinSize = nonNegative(rec.RewardsMinSize)
	rec.RewardsMaxSpread = nonNegative(rec.RewardsMaxSpread)

	rec.Reward = declaredReward(raw)
	if rec.Reward <= 0 && opts.EstimateRewards {
		rec.Reward = estimateReward(rec, opts.RewardPerVolume, opts.RewardCap)
		rec.RewardEstimated = rec.Reward > 0
	}

	rec.CompetitionBars = competitionBars(raw)
	rec.ClobTokenIDs, rec.YesPrice, rec.NoPrice = tokensAndPrices(raw)

	if opts.Classify != nil {
		rec.Category = opts.Classify(rec.Question, rec.Tags)
	}
	return rec
}

// declaredReward prefers the summed daily rates, then any flat reward field.
func declaredReward(raw RawMarket) float64 {
	var sum float64
	if raw.Rewards != nil {
		for _, r := range raw.Rewards.Rates {
			sum += r.rate()
		}
	}
	for _, r := range raw.ClobRewards {
		sum += r.rate()
	}
	if sum > 0 {
		return sum
	}
	return nonNegative(firstPositive(float64(raw.Reward), float64(raw.RewardsDailyRate)))
}

func estimateReward(rec domain.MarketRecord, perVolume, limit float64) float64 {
	vol := rec.Volume24hr
	if vol <= 0 {
		return 0
	}
	est := vol * perVolume
	if limit > 0 {
		est = math.Min(est, limit)
	}
	return nonNegative(est)
}

// competitionBars takes an explicit bar count when present, otherwise buckets
// Gamma's 0..1 "competitive" ratio into quarters. Unknown is 0.
func competitionBars(raw RawMarket) int {
	if raw.CompetitionBars != nil {
		return clampBars(int(math.Round(float64(*raw.CompetitionBars))))
	}
	if raw.Competitive == nil {
		return 0
	}
	c := float64(*raw.Competitive)
	switch {
	case c < 0.25:
		return 0
	case c < 0.5:
		return 1
	case c < 0.75:
		return 2
	default:
		return 3
	}
}

func clampBars(n int) int {
	if n < 0 {
		return 0
	}
	if n > 3 {
		return 3
	}
	return n
}

// tokensAndPrices returns the CLOB token ids in listing order plus the YES
// and NO prices when known.
func tokensAndPrices(raw RawMarket) ([]string, float64, float64) {
	ids := []string(raw.ClobTokenIDs)
	if len(ids) == 0 {
		ids = []string(raw.ClobTokenIDsSnake)
	}
	if len(ids) == 0 {
		for _, t := range raw.Tokens {
			if id := strings.TrimSpace(string(t.TokenID)); id != "" {
				ids = append(ids, id)
			}
		}
	}

	var yes, no float64
	if len(raw.OutcomePrices) == 2 {
		yes = parsePrice(raw.OutcomePrices[0])
		no = parsePrice(raw.OutcomePrices[1])
	} else if len(raw.Tokens) == 2 {
		yes = float64(raw.Tokens[0].Price)
		no = float64(raw.Tokens[1].Price)
	}
	return ids, yes, no
}

func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 || v > 1 {
		return 0
	}
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
