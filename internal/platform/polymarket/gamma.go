package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery and metadata.
type GammaClient struct {
	baseURL    string
	pageLimit  int
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, pageLimit int, timeout time.Duration) *GammaClient {
	if pageLimit <= 0 {
		pageLimit = 100
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GammaClient{
		baseURL:   baseURL,
		pageLimit: pageLimit,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name identifies the source in logs and breaker stats.
func (g *GammaClient) Name() string { return "gamma" }

// MarketsPage returns one page of active, open markets. The cursor is the
// decimal offset; an empty cursor starts from the beginning. A short page
// ends the listing.
func (g *GammaClient) MarketsPage(ctx context.Context, cursor string) (Page, error) {
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return Page{}, fmt.Errorf("polymarket/gamma: invalid cursor %q", cursor)
		}
		offset = n
	}

	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("limit", strconv.Itoa(g.pageLimit))
	params.Set("offset", strconv.Itoa(offset))

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return Page{}, fmt.Errorf("polymarket/gamma: get markets: %w", err)
	}

	var markets []RawMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return Page{}, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}

	page := Page{Markets: markets}
	if len(markets) >= g.pageLimit {
		page.NextCursor = strconv.Itoa(offset + len(markets))
	}
	return page, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}
