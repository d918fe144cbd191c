package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

// endCursor marks the last page of a CLOB cursor listing.
const endCursor = "LTE="

// ClobClient is the public (unauthenticated) REST client for the Polymarket
// CLOB API: reward-sampling market listings and order books.
type ClobClient struct {
	client *resty.Client
}

// ClobOption configures a ClobClient.
type ClobOption func(*resty.Client)

// WithRetry overrides the retry policy for 5xx and 429 responses.
func WithRetry(count int, wait, maxWait time.Duration) ClobOption {
	return func(c *resty.Client) {
		c.SetRetryCount(count).
			SetRetryWaitTime(wait).
			SetRetryMaxWaitTime(maxWait)
	}
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
func NewClobClient(baseURL string, timeout time.Duration, opts ...ClobOption) *ClobClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil || resp == nil {
				return false
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		}).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if ra := resp.Header().Get("Retry-After"); ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						return time.Duration(secs) * time.Second, nil
					}
				}
			}
			return 0, nil
		})
	for _, o := range opts {
		o(client)
	}
	return &ClobClient{client: client}
}

// Name identifies the source in logs and breaker stats.
func (c *ClobClient) Name() string { return "clob" }

// MarketsPage returns one page of reward-sampling markets. An empty cursor
// starts from the beginning; the returned cursor is empty on the last page.
func (c *ClobClient) MarketsPage(ctx context.Context, cursor string) (Page, error) {
	req := c.client.R().SetContext(ctx)
	if cursor != "" {
		req.SetQueryParam("next_cursor", cursor)
	}

	body, err := c.get(req, "/sampling-markets")
	if err != nil {
		return Page{}, fmt.Errorf("polymarket/clob: sampling markets: %w", err)
	}

	var out samplingMarketsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Page{}, fmt.Errorf("polymarket/clob: decode sampling markets: %w", err)
	}

	page := Page{Markets: out.Data}
	if out.NextCursor != "" && out.NextCursor != endCursor && out.NextCursor != cursor {
		page.NextCursor = out.NextCursor
	}
	return page, nil
}

// GetOrderBook returns the book for one outcome token with bids sorted best
// (highest) first and asks best (lowest) first. A token without a book
// yields domain.ErrNoBook.
func (c *ClobClient) GetOrderBook(ctx context.Context, tokenID string) (domain.OrderbookSnapshot, error) {
	req := c.client.R().SetContext(ctx).SetQueryParam("token_id", tokenID)

	body, err := c.get(req, "/book")
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.OrderbookSnapshot{}, fmt.Errorf("polymarket/clob: token %s: %w", tokenID, domain.ErrNoBook)
		}
		return domain.OrderbookSnapshot{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}

	var raw bookResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}
	return bookToSnapshot(tokenID, raw), nil
}

func (c *ClobClient) get(req *resty.Request, path string) ([]byte, error) {
	resp, err := req.Get(path)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode(), resp.Body()); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// bookToSnapshot converts the wire book, dropping empty levels and sorting
// each side best first.
func bookToSnapshot(tokenID string, b bookResponse) domain.OrderbookSnapshot {
	snap := domain.OrderbookSnapshot{AssetID: b.AssetID}
	if snap.AssetID == "" {
		snap.AssetID = tokenID
	}
	for _, lvl := range b.Bids {
		if lvl.Price > 0 && lvl.Size > 0 {
			snap.Bids = append(snap.Bids, domain.PriceLevel{Price: float64(lvl.Price), Size: float64(lvl.Size)})
		}
	}
	for _, lvl := range b.Asks {
		if lvl.Price > 0 && lvl.Size > 0 {
			snap.Asks = append(snap.Asks, domain.PriceLevel{Price: float64(lvl.Price), Size: float64(lvl.Size)})
		}
	}
	sort.SliceStable(snap.Bids, func(i, j int) bool { return snap.Bids[i].Price > snap.Bids[j].Price })
	sort.SliceStable(snap.Asks, func(i, j int) bool { return snap.Asks[i].Price < snap.Asks[j].Price })

	if ms, err := strconv.ParseInt(string(b.Timestamp), 10, 64); err == nil && ms > 0 {
		snap.Timestamp = time.UnixMilli(ms).UTC()
	} else {
		snap.Timestamp = time.Now().UTC()
	}
	return snap
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
