// Package scanner decides which listed markets are candidates for reward
// farming: it classifies markets into categories and runs the eligibility
// filter chain.
package scanner

import (
	"strings"
	"unicode"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

// categoryKeywords is checked in order; the first category with a matching
// keyword wins. Generic vocabulary such as "game" or "tournament" lives in
// sports, which is checked last so that a more specific topic takes
// precedence.
var categoryKeywords = []struct {
	category domain.Category
	keywords []string
}{
	{domain.CategoryCrypto, []string{
		"crypto", "cryptocurrency", "bitcoin", "btc", "ethereum", "eth", "solana", "sol",
		"dogecoin", "doge", "xrp", "ripple", "cardano", "litecoin", "blockchain", "defi",
		"nft", "nfts", "stablecoin", "usdt", "usdc", "tether", "binance", "coinbase",
		"memecoin", "altcoin", "satoshi", "microstrategy", "etf flows", "halving", "airdrop",
	}},
	{domain.CategoryScience, []string{
		"science", "ai", "artificial intelligence", "openai", "chatgpt", "gpt", "llm", "agi",
		"anthropic", "gemini", "deepmind", "benchmark", "nasa", "spacex", "starship", "mars",
		"moon", "asteroid", "climate", "temperature", "hottest", "hurricane", "earthquake",
		"vaccine", "pandemic", "virus", "fda", "quantum", "nobel", "physics", "research",
	}},
	{domain.CategoryPolitics, []string{
		"politics", "election", "elections", "president", "presidential", "trump", "biden",
		"harris", "vance", "senate", "congress", "governor", "mayor", "democrat", "democrats",
		"republican", "republicans", "gop", "primary", "nominee", "nomination", "parliament",
		"prime minister", "minister", "impeach", "impeachment", "supreme court", "cabinet",
		"putin", "zelensky", "ukraine", "russia", "israel", "gaza", "iran", "nato", "ceasefire",
		"war", "referendum", "poll", "vote", "electoral",
	}},
	{domain.CategoryEntertainment, []string{
		"entertainment", "movie", "movies", "film", "box office", "oscar", "oscars", "grammy",
		"grammys", "emmy", "emmys", "golden globes", "album", "song", "billboard", "spotify",
		"netflix", "tv", "series finale", "celebrity", "taylor swift", "kanye", "drake",
		"youtube", "mrbeast", "tiktok", "twitch", "gta", "video game release", "eurovision",
	}},
	{domain.CategoryEconomics, []string{
		"economics", "economy", "fed", "federal reserve", "fomc", "interest rate", "interest rates",
		"rate cut", "rate hike", "inflation", "cpi", "gdp", "recession", "unemployment",
		"jobs report", "payrolls", "stock", "stocks", "s&p", "nasdaq", "dow", "earnings",
		"tariff", "tariffs", "treasury", "yield", "oil", "gold", "ipo", "market cap",
	}},
	{domain.CategorySports, []string{
		"sports", "nfl", "nba", "mlb", "nhl", "mls", "ncaa", "fifa", "uefa", "world cup",
		"super bowl", "champions league", "premier league", "la liga", "serie a", "playoffs",
		"finals", "championship", "tournament", "game", "match", "league", "ufc", "boxing",
		"tennis", "wimbledon", "golf", "masters", "f1", "formula 1", "grand prix", "olympics",
		"mvp", "coach", "team", "vs",
	}},
}

// Classify maps a market question (and optional tags) to a category using
// ordered keyword matching. It is pure and deterministic; an empty question
// yields CategoryOther.
func Classify(question string, tags []string) domain.Category {
	if strings.TrimSpace(question) == "" {
		return domain.CategoryOther
	}

	text := normalizeText(question)
	if len(tags) > 0 {
		text += normalizeText(strings.Join(tags, " "))
	}

	for _, group := range categoryKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(text, " "+normalizeKeyword(kw)+" ") {
				return group.category
			}
		}
	}
	return domain.CategoryOther
}

// normalizeText lower-cases s, turns every non letter/digit/& rune into a
// space and pads the result so whole-word matches can use Contains.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(' ')
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&' {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	if !lastSpace {
		b.WriteByte(' ')
	}
	return b.String()
}

func normalizeKeyword(kw string) string {
	return strings.TrimSpace(normalizeText(kw))
}
