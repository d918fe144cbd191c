package polymarket

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Lenient scalar types
// --------------------------------------------------------------------------

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*f = false
		return nil
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat accepts a JSON number, a numeric string, or anything else, which
// decodes to zero. A malformed number must never fail a whole page.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*f = flexFloat(v)
			return nil
		}
	}
	*f = 0
	return nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	*f = ""
	return nil
}

// flexStrings accepts a JSON array of strings or numbers, or a string that
// itself holds a JSON-encoded array (Gamma sends clobTokenIds and
// outcomePrices this way), or a comma separated list.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	*f = nil
	var arr []flexString
	if err := json.Unmarshal(data, &arr); err == nil {
		*f = toStrings(arr)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &arr); err == nil {
			*f = toStrings(arr)
		}
		return nil
	}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			*f = append(*f, p)
		}
	}
	return nil
}

func toStrings(in []flexString) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if s := strings.TrimSpace(string(v)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// flexTags accepts either a list of strings or Gamma's list of tag objects.
type flexTags []string

func (f *flexTags) UnmarshalJSON(data []byte) error {
	*f = nil
	var plain []string
	if err := json.Unmarshal(data, &plain); err == nil {
		*f = plain
		return nil
	}
	var objs []struct {
		Label string `json:"label"`
		Slug  string `json:"slug"`
	}
	if err := json.Unmarshal(data, &objs); err != nil {
		return nil
	}
	for _, o := range objs {
		switch {
		case o.Label != "":
			*f = append(*f, o.Label)
		case o.Slug != "":
			*f = append(*f, o.Slug)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Listing DTOs
// --------------------------------------------------------------------------

// RawMarket is one market as returned by either listing endpoint. Gamma uses
// camelCase field names and the CLOB uses snake_case; both sets are declared
// here and reconciled by Normalize.
type RawMarket struct {
	ID                flexString  `json:"id"`
	ConditionID       string      `json:"condition_id"`
	ConditionIDCamel  string      `json:"conditionId"`
	Question          string      `json:"question"`
	Slug              string      `json:"slug"`
	MarketSlug        string      `json:"market_slug"`
	Tags              flexTags    `json:"tags"`
	Events            []RawEvent  `json:"events"`
	Active            flexBool    `json:"active"`
	Closed            flexBool    `json:"closed"`
	EndDate           string      `json:"endDate"`
	EndDateISOCamel   string      `json:"endDateIso"`
	EndDateISO        string      `json:"end_date_iso"`
	Volume            flexFloat   `json:"volume"`
	VolumeNum         flexFloat   `json:"volumeNum"`
	Volume24hr        flexFloat   `json:"volume24hr"`
	Volume24hrSnake   flexFloat   `json:"volume_24hr"`
	Liquidity         flexFloat   `json:"liquidity"`
	LiquidityNum      flexFloat   `json:"liquidityNum"`
	Competitive       *flexFloat  `json:"competitive"`
	CompetitionBars   *flexFloat  `json:"competition_bars"`
	Reward            flexFloat   `json:"reward"`
	RewardsDailyRate  flexFloat   `json:"rewards_daily_rate"`
	RewardsMinSize    flexFloat   `json:"rewardsMinSize"`
	RewardsMaxSpread  flexFloat   `json:"rewardsMaxSpread"`
	ClobRewards       []RawRate   `json:"clobRewards"`
	Rewards           *RawRewards `json:"rewards"`
	ClobTokenIDs      flexStrings `json:"clobTokenIds"`
	ClobTokenIDsSnake flexStrings `json:"clob_token_ids"`
	OutcomePrices     flexStrings `json:"outcomePrices"`
	Tokens            []RawToken  `json:"tokens"`
}

// RawEvent is the parent event embedded in a Gamma market.
type RawEvent struct {
	ID    flexString `json:"id"`
	Slug  string     `json:"slug"`
	Title string     `json:"title"`
}

// RawToken is a CLOB outcome token.
type RawToken struct {
	TokenID flexString `json:"token_id"`
	Outcome string     `json:"outcome"`
	Price   flexFloat  `json:"price"`
	Winner  bool       `json:"winner"`
}

// RawRewards is the CLOB reward program block.
type RawRewards struct {
	Rates     []RawRate `json:"rates"`
	MinSize   flexFloat `json:"min_size"`
	MaxSpread flexFloat `json:"max_spread"`
}

// RawRate is one daily reward rate. The CLOB and Gamma spell the field
// differently.
type RawRate struct {
	AssetAddress     string    `json:"asset_address"`
	RewardsDailyRate flexFloat `json:"rewards_daily_rate"`
	DailyRateCamel   flexFloat `json:"rewardsDailyRate"`
}

func (r RawRate) rate() float64 {
	if r.RewardsDailyRate > 0 {
		return float64(r.RewardsDailyRate)
	}
	return float64(r.DailyRateCamel)
}

// Page is one page of a paginated listing. NextCursor is empty when the
// listing is exhausted.
type Page struct {
	Markets    []RawMarket
	NextCursor string
}

// samplingMarketsResponse is the paginated CLOB /sampling-markets envelope.
type samplingMarketsResponse struct {
	Limit      int         `json:"limit"`
	Count      int         `json:"count"`
	NextCursor string      `json:"next_cursor"`
	Data       []RawMarket `json:"data"`
}

// --------------------------------------------------------------------------
// Order book DTOs
// --------------------------------------------------------------------------

// bookResponse is the CLOB GET /book payload. Prices and sizes are strings.
type bookResponse struct {
	Market    string      `json:"market"`
	AssetID   string      `json:"asset_id"`
	Hash      string      `json:"hash"`
	Timestamp flexString  `json:"timestamp"`
	Bids      []bookLevel `json:"bids"`
	Asks      []bookLevel `json:"asks"`
}

type bookLevel struct {
	Price flexFloat `json:"price"`
	Size  flexFloat `json:"size"`
}
