// Package feed fetches the raw market listing and order books through the
// circuit breakers and turns them into domain values.
package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyrewards/internal/breaker"
	"github.com/alanyoungcy/polyrewards/internal/domain"
	"github.com/alanyoungcy/polyrewards/internal/platform/polymarket"
)

// PageSource is a paginated market listing. Both the Gamma and the CLOB
// clients satisfy it.
type PageSource interface {
	Name() string
	MarketsPage(ctx context.Context, cursor string) (polymarket.Page, error)
}

// MarketFeed walks every page of a listing and normalizes the records.
type MarketFeed struct {
	src      PageSource
	brk      *breaker.Breaker
	opts     polymarket.NormalizeOptions
	maxPages int
	logger   *slog.Logger
}

// NewMarketFeed creates a feed over src. maxPages bounds the walk; zero or
// less means 50.
func NewMarketFeed(src PageSource, brk *breaker.Breaker, opts polymarket.NormalizeOptions, maxPages int, logger *slog.Logger) *MarketFeed {
	if maxPages <= 0 {
		maxPages = 50
	}
	return &MarketFeed{
		src:      src,
		brk:      brk,
		opts:     opts,
		maxPages: maxPages,
		logger:   logger.With(slog.String("component", "market_feed"), slog.String("source", src.Name())),
	}
}

// Fetch returns the normalized records of every open market. A failure on
// the first page is returned as an error; a failure on a later page ends
// the walk and returns what was collected so far.
func (f *MarketFeed) Fetch(ctx context.Context) ([]domain.MarketRecord, error) {
	var (
		out    []domain.MarketRecord
		seen   = make(map[string]bool)
		cursor string
		pages  int
	)

	for pages < f.maxPages {
		page, err := breaker.Do(ctx, f.brk, func(ctx context.Context) (polymarket.Page, error) {
			return f.src.MarketsPage(ctx, cursor)
		})
		if err != nil {
			if pages == 0 {
				return nil, fmt.Errorf("feed: fetch %s page 1: %w", f.src.Name(), err)
			}
			f.logger.WarnContext(ctx, "page fetch failed, keeping partial listing",
				slog.Int("page", pages+1),
				slog.Int("records", len(out)),
				slog.String("error", err.Error()),
			)
			break
		}
		pages++

		for _, raw := range page.Markets {
			if bool(raw.Closed) {
				continue
			}
			rec := polymarket.Normalize(raw, f.opts)
			if rec.ID == "" || seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			out = append(out, rec)
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if pages >= f.maxPages {
		f.logger.WarnContext(ctx, "page limit reached", slog.Int("max_pages", f.maxPages))
	}
	f.logger.InfoContext(ctx, "market listing fetched",
		slog.Int("pages", pages),
		slog.Int("records", len(out)),
	)
	return out, nil
}
