package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

// ScanHistory is the read side of the scan run store.
type ScanHistory interface {
	GetRun(ctx context.Context, id string) (domain.ScanResult, error)
	ListRuns(ctx context.Context, opts domain.ListOpts) ([]domain.ScanResult, error)
}

// LatestScan returns the most recent completed cycle.
type LatestScan interface {
	GetLatest(ctx context.Context) (domain.ScanResult, error)
}

// ScanHandler serves scan cycle results.
type ScanHandler struct {
	history ScanHistory
	latest  LatestScan
	logger  *slog.Logger
}

// NewScanHandler creates a ScanHandler. Either source may be nil; latest
// falls back to the newest stored run when the cache is absent or empty.
func NewScanHandler(history ScanHistory, latest LatestScan, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{history: history, latest: latest, logger: logger}
}

type listRunsResponse struct {
	Runs   []domain.ScanResult `json:"runs"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// Latest returns the most recent cycle.
// GET /api/scan/latest
func (h *ScanHandler) Latest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.latest != nil {
		run, err := h.latest.GetLatest(ctx)
		if err == nil {
			writeJSON(w, http.StatusOK, run)
			return
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(ctx, "handler: latest scan cache read failed",
				slog.String("error", err.Error()),
			)
		}
	}

	if h.history == nil {
		writeError(w, http.StatusNotFound, "no scan available")
		return
	}
	runs, err := h.history.ListRuns(ctx, domain.ListOpts{Limit: 1})
	if err != nil {
		h.logger.ErrorContext(ctx, "handler: list scans failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load latest scan")
		return
	}
	if len(runs) == 0 {
		writeError(w, http.StatusNotFound, "no scan available")
		return
	}
	writeJSON(w, http.StatusOK, runs[0])
}

// ListRuns returns stored cycles newest first.
// GET /api/scan/runs?limit=50&offset=0&since=...&until=...
func (h *ScanHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "scan history not configured")
		return
	}
	opts := parseListOpts(r)
	runs, err := h.history.ListRuns(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list scans failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list scans")
		return
	}
	if runs == nil {
		runs = []domain.ScanResult{}
	}
	writeJSON(w, http.StatusOK, listRunsResponse{Runs: runs, Limit: opts.Limit, Offset: opts.Offset})
}

// GetRun returns one cycle by id.
// GET /api/scan/runs/{id}
func (h *ScanHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "scan history not configured")
		return
	}
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}

	run, err := h.history.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scan not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get scan failed",
			slog.String("run_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get scan")
		return
	}
	writeJSON(w, http.StatusOK, run)
}
