package scanner

import (
	"log/slog"
	"math"
	"sort"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

// FilterConfig holds the hard eligibility thresholds.
type FilterConfig struct {
	MinReward          float64
	MaxCompetitionBars int
	// TargetCategories restricts candidates when non-empty.
	TargetCategories []domain.Category
}

// Filter applies the eligibility predicate chain to a normalized feed.
type Filter struct {
	cfg     FilterConfig
	targets map[domain.Category]bool
	logger  *slog.Logger
}

// NewFilter creates a Filter for the given thresholds.
func NewFilter(cfg FilterConfig, logger *slog.Logger) *Filter {
	targets := make(map[domain.Category]bool, len(cfg.TargetCategories))
	for _, c := range cfg.TargetCategories {
		targets[c] = true
	}
	return &Filter{
		cfg:     cfg,
		targets: targets,
		logger:  logger.With(slog.String("component", "market_filter")),
	}
}

// Apply returns the records that pass every predicate, each annotated with
// its coarse score and sorted by that score descending, together with the
// per-reason rejection counts. The input slice is not modified.
func (f *Filter) Apply(records []domain.MarketRecord) ([]domain.MarketRecord, domain.RejectionStats) {
	stats := domain.NewRejectionStats()
	out := make([]domain.MarketRecord, 0, len(records))

	for _, rec := range records {
		if reason, ok := f.check(rec); !ok {
			stats.Inc(reason)
			f.logger.Debug("market rejected",
				slog.String("market_id", rec.ID),
				slog.String("reason", string(reason)),
			)
			continue
		}
		rec.Score = CoarseScore(rec)
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	f.logger.Info("filter pass complete",
		slog.Int("input", len(records)),
		slog.Int("passed", len(out)),
		slog.Int("rejected", stats.Total()),
	)
	return out, stats
}

// check runs the predicates in order and stops at the first failure.
func (f *Filter) check(rec domain.MarketRecord) (domain.RejectReason, bool) {
	if rec.Reward < f.cfg.MinReward {
		return domain.RejectLowReward, false
	}
	if rec.CompetitionBars > f.cfg.MaxCompetitionBars {
		return domain.RejectHighCompetition, false
	}
	// Records the classifier has not labelled yet pass through.
	if len(f.targets) > 0 && rec.Category != "" && !f.targets[rec.Category] {
		return domain.RejectCategory, false
	}
	if len(rec.ClobTokenIDs) == 0 {
		return domain.RejectNoTokens, false
	}
	if rec.IsCategoricalOutcome() {
		return domain.RejectCategorical, false
	}
	if !rec.IsBinary() {
		return domain.RejectNotBinary, false
	}
	if rec.Volume <= 0 && rec.Volume24hr <= 0 {
		return domain.RejectNoVolume, false
	}
	return "", true
}

// CoarseScore is the pre-selection ranking:
// reward*0.5 - bars*100 + min(volume/10000, 50) + min(liquidity/5000, 30).
func CoarseScore(rec domain.MarketRecord) float64 {
	return rec.Reward*0.5 -
		float64(rec.CompetitionBars)*100 +
		math.Min(rec.Volume/10000, 50) +
		math.Min(rec.Liquidity/5000, 30)
}
