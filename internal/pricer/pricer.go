// Package pricer turns order-book snapshots into resting bid intents. It
// never joins the best bid: each side rests just below the second-best bid.
package pricer

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

const (
	referencePosition = 2
	targetPosition    = 3
	minDepth          = 2
)

var (
	priceFloor = decimal.RequireFromString("0.001")
	priceCeil  = decimal.RequireFromString("0.999")
	two        = decimal.NewFromInt(2)
)

// Rand is the randomness source for offsets and size jitter. *rand.Rand
// satisfies it.
type Rand interface {
	Float64() float64
}

// Config holds the pricing knobs.
type Config struct {
	SizeMin    int
	SizeMax    int
	OffsetMin  float64
	OffsetMax  float64
	SizeJitter float64
	TickSize   float64
}

// DefaultConfig returns the stock pricing configuration.
func DefaultConfig() Config {
	return Config{
		SizeMin:    20,
		SizeMax:    50,
		OffsetMin:  0.0005,
		OffsetMax:  0.0010,
		SizeJitter: 0.2,
		TickSize:   0.0001,
	}
}

// Pricer computes OrderIntents. It is not safe for concurrent use when the
// injected Rand is not.
type Pricer struct {
	cfg  Config
	rng  Rand
	tick decimal.Decimal
	now  func() time.Time
}

// Option configures a Pricer.
type Option func(*Pricer)

// WithClock overrides the intent timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pricer) { p.now = now }
}

// New creates a Pricer drawing offsets and sizes from rng.
func New(cfg Config, rng Rand, opts ...Option) *Pricer {
	p := &Pricer{
		cfg:  cfg,
		rng:  rng,
		tick: decimal.NewFromFloat(cfg.TickSize),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Price returns the intent for pair, or a *domain.Rejection describing why
// the market cannot be quoted this cycle. A nil pair.No prices the YES side
// only.
func (p *Pricer) Price(pair domain.BookPair, maxSpreadPct float64) (domain.OrderIntent, error) {
	if pair.Yes == nil {
		return domain.OrderIntent{}, domain.Reject(pair.MarketID, domain.RejectNoBook, "missing yes book")
	}

	books := []*domain.OrderbookSnapshot{pair.Yes}
	if pair.No != nil {
		books = append(books, pair.No)
	}
	for _, b := range books {
		if len(b.Bids) < minDepth || len(b.Asks) < minDepth {
			return domain.OrderIntent{}, domain.Reject(pair.MarketID, domain.RejectThinBook,
				"token %s has %d bids and %d asks", b.AssetID, len(b.Bids), len(b.Asks))
		}
	}

	maxSpread := decimal.NewFromFloat(maxSpreadPct)
	yes, err := p.priceSide(pair.MarketID, pair.Yes, maxSpread)
	if err != nil {
		return domain.OrderIntent{}, err
	}

	intent := domain.OrderIntent{
		MarketID:   pair.MarketID,
		YesTokenID: pair.Yes.AssetID,
		YesPrice:   yes.Price,
		YesSize:    p.drawSize(),
		Info: domain.PositionInfo{
			ReferencePosition: referencePosition,
			TargetPosition:    targetPosition,
			MaxSpreadPct:      maxSpreadPct,
			Yes:               yes,
		},
		CreatedAt: p.now(),
	}

	if pair.No != nil {
		no, err := p.priceSide(pair.MarketID, pair.No, maxSpread)
		if err != nil {
			return domain.OrderIntent{}, err
		}
		intent.NoTokenID = pair.No.AssetID
		intent.NoPrice = no.Price
		intent.NoSize = p.drawSize()
		intent.Info.No = &no
	}
	return intent, nil
}

func (p *Pricer) priceSide(marketID string, book *domain.OrderbookSnapshot, maxSpread decimal.Decimal) (domain.SidePricing, error) {
	if book.Crossed() {
		return domain.SidePricing{}, domain.Reject(marketID, domain.RejectCrossedBook,
			"token %s best bid %.4f >= best ask %.4f", book.AssetID, book.BestBid(), book.BestAsk())
	}

	secondBid := decimal.NewFromFloat(book.Bids[referencePosition-1].Price)
	bestBid := decimal.NewFromFloat(book.BestBid())
	bestAsk := decimal.NewFromFloat(book.BestAsk())
	offset := decimal.NewFromFloat(p.drawOffset())

	price := secondBid.Sub(offset)
	if p.tick.IsPositive() {
		price = price.Div(p.tick).Floor().Mul(p.tick)
	}

	mid := bestBid.Add(bestAsk).Div(two)
	if !mid.IsPositive() {
		return domain.SidePricing{}, domain.Reject(marketID, domain.RejectNoBook,
			"token %s has no usable midpoint", book.AssetID)
	}
	spread := bestAsk.Sub(price).Div(mid)

	side := domain.SidePricing{
		TokenID:   book.AssetID,
		SecondBid: secondBid.InexactFloat64(),
		BestAsk:   bestAsk.InexactFloat64(),
		MidPrice:  mid.InexactFloat64(),
		Offset:    offset.InexactFloat64(),
		Price:     price.InexactFloat64(),
		Spread:    spread.InexactFloat64(),
	}

	if spread.GreaterThan(maxSpread) {
		return side, domain.Reject(marketID, domain.RejectSpread,
			"token %s spread %s exceeds %s", book.AssetID, spread.StringFixed(4), maxSpread.String())
	}
	if !price.GreaterThan(priceFloor) || !price.LessThan(priceCeil) {
		return side, domain.Reject(marketID, domain.RejectPriceBounds,
			"token %s price %s outside (0.001, 0.999)", book.AssetID, price.String())
	}
	return side, nil
}

// drawOffset returns a uniform offset in [OffsetMin, OffsetMax].
func (p *Pricer) drawOffset() float64 {
	return p.cfg.OffsetMin + p.rng.Float64()*(p.cfg.OffsetMax-p.cfg.OffsetMin)
}

// drawSize picks a size in the band, applies the jitter and clamps the
// result back into [SizeMin, SizeMax].
func (p *Pricer) drawSize() int {
	lo, hi := float64(p.cfg.SizeMin), float64(p.cfg.SizeMax)
	base := lo + p.rng.Float64()*(hi-lo)
	jitter := 1 + (p.rng.Float64()*2-1)*p.cfg.SizeJitter
	size := math.Round(base * jitter)
	return int(math.Max(lo, math.Min(hi, size)))
}
