package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyrewards/internal/breaker"
	"github.com/alanyoungcy/polyrewards/internal/domain"
)

const bookLimiterKey = "clob:book"

// BookSource fetches a single token's order book.
type BookSource interface {
	GetOrderBook(ctx context.Context, tokenID string) (domain.OrderbookSnapshot, error)
}

// BookProvider fetches both books of a binary market through the breaker
// and, when configured, a shared rate limiter.
type BookProvider struct {
	src     BookSource
	brk     *breaker.Breaker
	limiter domain.RateLimiter
	limit   int
	window  time.Duration
	logger  *slog.Logger
}

// NewBookProvider creates a provider. limiter may be nil.
func NewBookProvider(src BookSource, brk *breaker.Breaker, limiter domain.RateLimiter, limit int, window time.Duration, logger *slog.Logger) *BookProvider {
	return &BookProvider{
		src:     src,
		brk:     brk,
		limiter: limiter,
		limit:   limit,
		window:  window,
		logger:  logger.With(slog.String("component", "book_provider")),
	}
}

// Pair returns the YES and NO books of rec. A token without a book yields
// an error wrapping domain.ErrNoBook; it is not a provider failure and does
// not count against the breaker.
func (p *BookProvider) Pair(ctx context.Context, rec domain.MarketRecord) (domain.BookPair, error) {
	if !rec.IsBinary() {
		return domain.BookPair{}, fmt.Errorf("feed: market %s has %d tokens", rec.ID, len(rec.ClobTokenIDs))
	}
	yes, err := p.book(ctx, rec.YesToken())
	if err != nil {
		return domain.BookPair{}, err
	}
	no, err := p.book(ctx, rec.NoToken())
	if err != nil {
		return domain.BookPair{}, err
	}
	return domain.BookPair{MarketID: rec.ID, Yes: &yes, No: &no}, nil
}

type bookResult struct {
	snap  domain.OrderbookSnapshot
	found bool
}

func (p *BookProvider) book(ctx context.Context, tokenID string) (domain.OrderbookSnapshot, error) {
	if p.limiter != nil && p.limit > 0 {
		if err := p.limiter.Wait(ctx, bookLimiterKey, p.limit, p.window); err != nil {
			if ctx.Err() != nil {
				return domain.OrderbookSnapshot{}, fmt.Errorf("feed: book rate limit: %w", ctx.Err())
			}
			// Limiter backend down: fetch unthrottled.
			p.logger.WarnContext(ctx, "book rate limiter unavailable, fetching without limit",
				slog.String("token_id", tokenID),
				slog.String("error", err.Error()),
			)
		}
	}

	res, err := breaker.Do(ctx, p.brk, func(ctx context.Context) (bookResult, error) {
		snap, err := p.src.GetOrderBook(ctx, tokenID)
		if errors.Is(err, domain.ErrNoBook) {
			return bookResult{}, nil
		}
		if err != nil {
			return bookResult{}, err
		}
		return bookResult{snap: snap, found: true}, nil
	})
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("feed: book %s: %w", tokenID, err)
	}
	if !res.found {
		return domain.OrderbookSnapshot{}, fmt.Errorf("feed: book %s: %w", tokenID, domain.ErrNoBook)
	}
	return res.snap, nil
}
