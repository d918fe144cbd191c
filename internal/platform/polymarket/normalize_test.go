package polymarket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

func decodeRaw(t *testing.T, s string) RawMarket {
	t.Helper()
	var raw RawMarket
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return raw
}

func TestNormalizeGammaMarket(t *testing.T) {
	raw := decodeRaw(t, `{
		"id": "512345",
		"conditionId": "0xabc",
		"question": " Will Bitcoin hit $150k in 2026? ",
		"slug": "will-bitcoin-hit-150k-in-2026",
		"events": [{"id": 9001, "slug": "will-bitcoin-hit-150k-in-2026"}],
		"tags": [{"label": "Crypto", "slug": "crypto"}],
		"endDateIso": "2026-12-31",
		"volume": "20500.5",
		"volume24hr": 1200,
		"liquidity": "3500",
		"competitive": 0.6,
		"rewardsMinSize": 50,
		"rewardsMaxSpread": "3.5",
		"clobRewards": [{"rewardsDailyRate": 25}, {"rewardsDailyRate": "5"}],
		"clobTokenIds": "[\"111\", \"222\"]",
		"outcomePrices": "[\"0.42\", \"0.57\"]"
	}`)

	var gotQuestion string
	var gotTags []string
	rec := Normalize(raw, NormalizeOptions{
		Classify: func(q string, tags []string) domain.Category {
			gotQuestion, gotTags = q, tags
			return domain.CategoryCrypto
		},
	})

	assert.Equal(t, "512345", rec.ID)
	assert.Equal(t, "0xabc", rec.ConditionID)
	assert.Equal(t, "Will Bitcoin hit $150k in 2026?", rec.Question)
	assert.Equal(t, gotQuestion, rec.Question)
	assert.Equal(t, []string{"Crypto"}, gotTags)
	assert.Equal(t, domain.CategoryCrypto, rec.Category)
	assert.Equal(t, "will-bitcoin-hit-150k-in-2026", rec.MarketSlug)
	assert.Equal(t, rec.MarketSlug, rec.EventSlug)
	assert.Equal(t, "9001", rec.EventID)
	assert.Equal(t, "2026-12-31", rec.EndDate)
	assert.Equal(t, 20500.5, rec.Volume)
	assert.Equal(t, 1200.0, rec.Volume24hr)
	assert.Equal(t, 3500.0, rec.Liquidity)
	assert.Equal(t, 2, rec.CompetitionBars)
	assert.Equal(t, 50.0, rec.RewardsMinSize)
	assert.Equal(t, 3.5, rec.RewardsMaxSpread)
	assert.Equal(t, 30.0, rec.Reward)
	assert.False(t, rec.RewardEstimated)
	assert.Equal(t, []string{"111", "222"}, rec.ClobTokenIDs)
	assert.Equal(t, 0.42, rec.YesPrice)
	assert.Equal(t, 0.57, rec.NoPrice)
}

func TestNormalizeClobSamplingMarket(t *testing.T) {
	raw := decodeRaw(t, `{
		"condition_id": "0xdef",
		"question": "Lakers vs Celtics",
		"market_slug": "lakers-vs-celtics",
		"end_date_iso": "2026-02-01T00:00:00Z",
		"tags": ["Sports", "NBA"],
		"tokens": [
			{"token_id": "y1", "outcome": "Yes", "price": 0.51},
			{"token_id": "n1", "outcome": "No", "price": "0.48"}
		],
		"rewards": {
			"rates": [{"asset_address": "0xusdc", "rewards_daily_rate": 120}],
			"min_size": 100,
			"max_spread": 3
		}
	}`)

	rec := Normalize(raw, NormalizeOptions{})

	assert.Equal(t, "0xdef", rec.ID, "condition id stands in for a missing id")
	assert.Equal(t, "lakers-vs-celtics", rec.MarketSlug)
	assert.Empty(t, rec.EventSlug)
	assert.Empty(t, rec.Category)
	assert.Equal(t, []string{"Sports", "NBA"}, rec.Tags)
	assert.Equal(t, 120.0, rec.Reward)
	assert.Equal(t, 100.0, rec.RewardsMinSize)
	assert.Equal(t, 3.0, rec.RewardsMaxSpread)
	assert.Equal(t, []string{"y1", "n1"}, rec.ClobTokenIDs)
	assert.Equal(t, 0.51, rec.YesPrice)
	assert.Equal(t, 0.48, rec.NoPrice)
	assert.Equal(t, 0, rec.CompetitionBars)
}

func TestNormalizeIsTotalOverGarbage(t *testing.T) {
	raw := decodeRaw(t, `{
		"id": 77,
		"reward": "n/a",
		"volume": {"weird": true},
		"liquidity": -5,
		"competition_bars": 9,
		"clobTokenIds": "not json",
		"outcomePrices": "[\"abc\", \"2\"]",
		"active": "yes",
		"tags": 42
	}`)

	rec := Normalize(raw, NormalizeOptions{})
	assert.Equal(t, "77", rec.ID)
	assert.Zero(t, rec.Reward)
	assert.Zero(t, rec.Volume)
	assert.Zero(t, rec.Liquidity)
	assert.Equal(t, 3, rec.CompetitionBars)
	assert.Equal(t, []string{"not json"}, rec.ClobTokenIDs)
	assert.Zero(t, rec.YesPrice)
	assert.Zero(t, rec.NoPrice)
	assert.Empty(t, rec.Tags)
	assert.Empty(t, rec.Question)
}

func TestNormalizeRewardEstimate(t *testing.T) {
	opts := NormalizeOptions{EstimateRewards: true, RewardPerVolume: 0.001, RewardCap: 500}

	rec := Normalize(RawMarket{ID: "a", Volume24hr: 200_000}, opts)
	assert.Equal(t, 200.0, rec.Reward)
	assert.True(t, rec.RewardEstimated)

	rec = Normalize(RawMarket{ID: "b", Volume24hr: 5_000_000}, opts)
	assert.Equal(t, 500.0, rec.Reward)

	rec = Normalize(RawMarket{ID: "c", Reward: 40, Volume24hr: 5_000_000}, opts)
	assert.Equal(t, 40.0, rec.Reward, "declared reward wins")
	assert.False(t, rec.RewardEstimated)

	rec = Normalize(RawMarket{ID: "d", Volume24hr: 200_000}, NormalizeOptions{})
	assert.Zero(t, rec.Reward, "estimation is opt-in")
}

func TestCompetitionBarsBuckets(t *testing.T) {
	ratio := func(v float64) *flexFloat { f := flexFloat(v); return &f }
	tests := []struct {
		competitive float64
		want        int
	}{
		{0, 0}, {0.24, 0}, {0.25, 1}, {0.49, 1}, {0.5, 2}, {0.74, 2}, {0.75, 3}, {1, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, competitionBars(RawMarket{Competitive: ratio(tt.competitive)}), "competitive=%v", tt.competitive)
	}
	assert.Equal(t, 0, competitionBars(RawMarket{}))
	assert.Equal(t, 0, competitionBars(RawMarket{CompetitionBars: ratio(-2)}))
}
