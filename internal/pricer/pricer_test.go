package pricer

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

type constRand float64

func (c constRand) Float64() float64 { return float64(c) }

func book(asset string, bids, asks []float64) *domain.OrderbookSnapshot {
	b := &domain.OrderbookSnapshot{AssetID: asset}
	for _, p := range bids {
		b.Bids = append(b.Bids, domain.PriceLevel{Price: p, Size: 100})
	}
	for _, p := range asks {
		b.Asks = append(b.Asks, domain.PriceLevel{Price: p, Size: 100})
	}
	return b
}

func scenarioPair() domain.BookPair {
	return domain.BookPair{
		MarketID: "A",
		Yes:      book("A-yes", []float64{0.50, 0.495, 0.49}, []float64{0.51, 0.52, 0.53}),
		No:       book("A-no", []float64{0.48, 0.475, 0.47}, []float64{0.49, 0.50, 0.51}),
	}
}

func requireRejection(t *testing.T, err error, reason domain.RejectReason) *domain.Rejection {
	t.Helper()
	var rej *domain.Rejection
	require.True(t, errors.As(err, &rej), "expected a rejection, got %v", err)
	assert.Equal(t, reason, rej.Reason)
	assert.NotEmpty(t, rej.Detail)
	return rej
}

func TestPriceScenarioBook(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := New(DefaultConfig(), constRand(0.5), WithClock(func() time.Time { return now }))

	intent, err := p.Price(scenarioPair(), 0.05)
	require.NoError(t, err)

	assert.Equal(t, "A", intent.MarketID)
	assert.Equal(t, "A-yes", intent.YesTokenID)
	assert.Equal(t, "A-no", intent.NoTokenID)
	assert.True(t, intent.HasNoSide())
	assert.InDelta(t, 0.4942, intent.YesPrice, 1e-12)
	assert.InDelta(t, 0.4742, intent.NoPrice, 1e-12)
	assert.Less(t, intent.YesPrice, 0.495)
	assert.Less(t, intent.NoPrice, 0.475)
	assert.Equal(t, 35, intent.YesSize)
	assert.Equal(t, 35, intent.NoSize)
	assert.Equal(t, now, intent.CreatedAt)

	info := intent.Info
	assert.Equal(t, 2, info.ReferencePosition)
	assert.Equal(t, 3, info.TargetPosition)
	assert.InDelta(t, 0.00075, info.Yes.Offset, 1e-12)
	assert.InDelta(t, 0.505, info.Yes.MidPrice, 1e-12)
	assert.LessOrEqual(t, info.Yes.Spread, 0.05)
	require.NotNil(t, info.No)
	assert.LessOrEqual(t, info.No.Spread, 0.05)
}

func TestPriceRejectsThinBook(t *testing.T) {
	p := New(DefaultConfig(), constRand(0.5))
	pair := domain.BookPair{
		MarketID: "thin",
		Yes:      book("y", []float64{0.50}, []float64{0.51}),
		No:       book("n", []float64{0.48}, []float64{0.49}),
	}
	_, err := p.Price(pair, 0.05)
	requireRejection(t, err, domain.RejectThinBook)

	pair = scenarioPair()
	pair.No = book("n", []float64{0.48, 0.47}, []float64{0.49})
	_, err = p.Price(pair, 0.05)
	requireRejection(t, err, domain.RejectThinBook)
}

func TestPriceRejectsMissingBook(t *testing.T) {
	_, err := New(DefaultConfig(), constRand(0)).Price(domain.BookPair{MarketID: "x"}, 0.05)
	requireRejection(t, err, domain.RejectNoBook)
}

func TestPriceRejectsWideSpread(t *testing.T) {
	pair := domain.BookPair{
		MarketID: "wide",
		Yes:      book("y", []float64{0.30, 0.29}, []float64{0.60, 0.61}),
	}
	_, err := New(DefaultConfig(), constRand(0.5)).Price(pair, 0.05)
	requireRejection(t, err, domain.RejectSpread)
}

func TestPriceRejectsOutOfBounds(t *testing.T) {
	pair := domain.BookPair{
		MarketID: "penny",
		Yes:      book("y", []float64{0.0015, 0.0012}, []float64{0.002, 0.003}),
	}
	_, err := New(DefaultConfig(), constRand(0.5)).Price(pair, 1.0)
	requireRejection(t, err, domain.RejectPriceBounds)
}

func TestPriceRejectsCrossedBook(t *testing.T) {
	pair := domain.BookPair{
		MarketID: "crossed",
		Yes:      book("y", []float64{0.55, 0.54}, []float64{0.50, 0.51}),
	}
	_, err := New(DefaultConfig(), constRand(0.5)).Price(pair, 0.5)
	requireRejection(t, err, domain.RejectCrossedBook)
}

func TestPriceSingleSided(t *testing.T) {
	pair := scenarioPair()
	pair.No = nil

	intent, err := New(DefaultConfig(), constRand(0.5)).Price(pair, 0.05)
	require.NoError(t, err)
	assert.False(t, intent.HasNoSide())
	assert.Empty(t, intent.NoTokenID)
	assert.Nil(t, intent.Info.No)
	assert.Positive(t, intent.YesSize)
}

func TestPriceSizesClampIntoBand(t *testing.T) {
	cfg := DefaultConfig()

	low, err := New(cfg, constRand(0)).Price(scenarioPair(), 0.05)
	require.NoError(t, err)
	assert.Equal(t, cfg.SizeMin, low.YesSize)

	high, err := New(cfg, constRand(0.999999)).Price(scenarioPair(), 0.05)
	require.NoError(t, err)
	assert.Equal(t, cfg.SizeMax, high.YesSize)
}

func TestPriceInvariantsWithSeededRand(t *testing.T) {
	cfg := DefaultConfig()
	p := New(cfg, rand.New(rand.NewSource(99)))

	for i := 0; i < 500; i++ {
		intent, err := p.Price(scenarioPair(), 0.05)
		require.NoError(t, err)

		assert.Less(t, intent.YesPrice, 0.495)
		assert.Less(t, intent.NoPrice, 0.475)
		for _, price := range []float64{intent.YesPrice, intent.NoPrice} {
			assert.Greater(t, price, 0.001)
			assert.Less(t, price, 0.999)
		}
		for _, size := range []int{intent.YesSize, intent.NoSize} {
			assert.GreaterOrEqual(t, size, cfg.SizeMin)
			assert.LessOrEqual(t, size, cfg.SizeMax)
		}
		assert.GreaterOrEqual(t, intent.Info.Yes.Offset, cfg.OffsetMin)
		assert.LessOrEqual(t, intent.Info.Yes.Offset, cfg.OffsetMax)
		assert.LessOrEqual(t, intent.Info.Yes.Spread, 0.05)
		assert.LessOrEqual(t, intent.Info.No.Spread, 0.05)
	}
}
