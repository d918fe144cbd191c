package selector

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

// Config bounds the portfolio built by Select.
type Config struct {
	Threshold           float64
	MaxTotal            int
	MaxPerCategory      int
	SimilarityThreshold float64
}

// DefaultConfig returns the stock selection limits.
func DefaultConfig() Config {
	return Config{
		Threshold:           0.7,
		MaxTotal:            10,
		MaxPerCategory:      3,
		SimilarityThreshold: 0.7,
	}
}

// Selector greedily picks the best-scoring candidates subject to the
// threshold, the portfolio caps and the correlation rule.
type Selector struct {
	cfg    Config
	scorer *Scorer
	logger *slog.Logger
}

// New creates a Selector that scores with scorer.
func New(cfg Config, scorer *Scorer, logger *slog.Logger) *Selector {
	return &Selector{
		cfg:    cfg,
		scorer: scorer,
		logger: logger.With(slog.String("component", "selector")),
	}
}

type scored struct {
	rec domain.MarketRecord
	bd  domain.ScoreBreakdown
}

// Select scores every candidate and returns the accepted portfolio in
// acceptance order, together with the per-reason skip counts. Ties keep the
// incoming order.
func (s *Selector) Select(candidates []domain.MarketRecord) ([]domain.Selection, domain.RejectionStats) {
	stats := domain.NewRejectionStats()

	ranked := make([]scored, 0, len(candidates))
	for _, rec := range candidates {
		bd := s.scorer.Score(rec)
		rec.Score = bd.Composite
		ranked = append(ranked, scored{rec: rec, bd: bd})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].bd.Composite > ranked[j].bd.Composite
	})

	var (
		selected   []domain.Selection
		perCat     = make(map[domain.Category]int)
		titleWords []map[string]struct{}
	)
	for _, c := range ranked {
		reason, ok := s.admit(c, selected, perCat, titleWords)
		if !ok {
			stats.Inc(reason)
			s.logger.Debug("candidate skipped",
				slog.String("market_id", c.rec.ID),
				slog.String("reason", string(reason)),
				slog.Float64("score", c.bd.Composite),
			)
			continue
		}
		selected = append(selected, domain.Selection{
			Market:    c.rec,
			Breakdown: c.bd,
			Rank:      len(selected) + 1,
		})
		perCat[c.rec.Category]++
		titleWords = append(titleWords, wordSet(c.rec.Question))
	}

	s.logger.Info("selection complete",
		slog.Int("candidates", len(candidates)),
		slog.Int("selected", len(selected)),
		slog.Int("skipped", stats.Total()),
	)
	return selected, stats
}

func (s *Selector) admit(c scored, selected []domain.Selection, perCat map[domain.Category]int, titleWords []map[string]struct{}) (domain.RejectReason, bool) {
	if c.bd.Composite < s.cfg.Threshold {
		return domain.RejectBelowThreshold, false
	}
	if len(selected) >= s.cfg.MaxTotal {
		return domain.RejectPortfolioFull, false
	}
	if perCat[c.rec.Category] >= s.cfg.MaxPerCategory {
		return domain.RejectCategoryCap, false
	}
	words := wordSet(c.rec.Question)
	for i, sel := range selected {
		if c.rec.EventID != "" && c.rec.EventID == sel.Market.EventID {
			return domain.RejectCorrelated, false
		}
		if Jaccard(words, titleWords[i]) > s.cfg.SimilarityThreshold {
			return domain.RejectCorrelated, false
		}
	}
	return "", true
}

func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Jaccard returns |a∩b| / |a∪b|, or 0 when both sets are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// TitleSimilarity is the Jaccard index over lower-cased whitespace-separated
// words of two titles.
func TitleSimilarity(a, b string) float64 {
	return Jaccard(wordSet(a), wordSet(b))
}
