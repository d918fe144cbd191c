package selector

import (
	"io"
	"log/slog"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestSelector(cfg Config) *Selector {
	return New(cfg, newTestScorer(), discard)
}

func ids(sel []domain.Selection) []string {
	out := make([]string, 0, len(sel))
	for _, s := range sel {
		out = append(out, s.Market.ID)
	}
	return out
}

func TestSelectRespectsBounds(t *testing.T) {
	cats := []domain.Category{domain.CategoryCrypto, domain.CategoryPolitics, domain.CategorySports}
	var cands []domain.MarketRecord
	for i := 0; i < 20; i++ {
		cands = append(cands, candidate("m"+strconv.Itoa(i), cats[i%len(cats)]))
	}

	cfg := DefaultConfig()
	cfg.MaxTotal = 5
	cfg.MaxPerCategory = 2
	sel, stats := newTestSelector(cfg).Select(cands)

	require.Len(t, sel, 5)
	perCat := map[domain.Category]int{}
	for i, s := range sel {
		perCat[s.Market.Category]++
		assert.Equal(t, i+1, s.Rank)
		assert.GreaterOrEqual(t, s.Breakdown.Composite, cfg.Threshold)
		assert.Equal(t, s.Breakdown.Composite, s.Market.Score)
	}
	for c, n := range perCat {
		assert.LessOrEqual(t, n, 2, "category %s", c)
	}
	assert.Equal(t, 15, stats.Total())
	assert.Positive(t, stats[domain.RejectPortfolioFull])
	assert.Positive(t, stats[domain.RejectCategoryCap])
}

func TestSelectThreshold(t *testing.T) {
	weak := domain.MarketRecord{
		ID:              "weak",
		Question:        "Will it rain",
		Category:        domain.CategoryOther,
		Reward:          10,
		CompetitionBars: 3,
		Volume:          1000,
		Liquidity:       100_000,
		ClobTokenIDs:    []string{"y", "n"},
	}
	sel, stats := newTestSelector(DefaultConfig()).Select([]domain.MarketRecord{weak})
	assert.Empty(t, sel)
	assert.Equal(t, 1, stats[domain.RejectBelowThreshold])
}

func TestSelectSkipsCorrelated(t *testing.T) {
	june := candidate("june", domain.CategoryCrypto)
	june.Question = "Will Bitcoin reach 100k by June?"
	july := candidate("july", domain.CategoryCrypto)
	july.Question = "Will Bitcoin reach 100k by July?"

	sameEvent := candidate("same-event", domain.CategoryPolitics)
	sameEvent.EventID = "evt-1"
	eventPeer := candidate("event-peer", domain.CategoryPolitics)
	eventPeer.EventID = "evt-1"

	unrelated := candidate("unrelated", domain.CategoryPolitics)

	sel, stats := newTestSelector(DefaultConfig()).Select(
		[]domain.MarketRecord{june, july, sameEvent, eventPeer, unrelated})

	assert.Equal(t, []string{"june", "same-event", "unrelated"}, ids(sel))
	assert.Equal(t, 2, stats[domain.RejectCorrelated])
}

func TestSelectEmptyEventIDsAreNotCorrelated(t *testing.T) {
	a := candidate("a", domain.CategoryCrypto)
	b := candidate("b", domain.CategoryCrypto)
	sel, _ := newTestSelector(DefaultConfig()).Select([]domain.MarketRecord{a, b})
	assert.Len(t, sel, 2)
}

func TestSelectTiesKeepInputOrder(t *testing.T) {
	var cands []domain.MarketRecord
	for _, id := range []string{"z", "y", "x"} {
		cands = append(cands, candidate(id, domain.CategoryCrypto))
	}
	sel, _ := newTestSelector(DefaultConfig()).Select(cands)
	assert.Equal(t, []string{"z", "y", "x"}, ids(sel))
}

func TestSelectOrdersByComposite(t *testing.T) {
	lower := candidate("lower", domain.CategoryCrypto)
	lower.Reward = 500
	higher := candidate("higher", domain.CategoryCrypto)

	sel, _ := newTestSelector(DefaultConfig()).Select([]domain.MarketRecord{lower, higher})
	require.Len(t, sel, 2)
	assert.Equal(t, "higher", sel[0].Market.ID)
}

func TestSelectScenarioCandidate(t *testing.T) {
	a := domain.MarketRecord{
		ID:              "A",
		Question:        "Will Bitcoin close above 120k this month?",
		Category:        domain.CategoryCrypto,
		Reward:          500,
		CompetitionBars: 1,
		Volume:          20_000,
		ClobTokenIDs:    []string{"A-yes", "A-no"},
	}
	sel, _ := newTestSelector(DefaultConfig()).Select([]domain.MarketRecord{a})
	assert.Equal(t, []string{"A"}, ids(sel))
}

func TestTitleSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, TitleSimilarity("Will X win", "will x WIN"))
	assert.Equal(t, 0.0, TitleSimilarity("", ""))
	assert.InDelta(t, 0.5, TitleSimilarity("a b c", "b c d"), 1e-9)
}
