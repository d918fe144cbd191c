package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

// Rejection stages as stored in scan_rejections.stage.
const (
	stageFilter = "filter"
	stageSelect = "select"
	stagePrice  = "price"
)

// ScanStore implements domain.ScanStore using PostgreSQL. The full result is
// kept as JSONB in scan_runs; selections and rejection counts are also
// written to their own tables for ad-hoc analysis.
type ScanStore struct {
	pool *pgxpool.Pool
}

// NewScanStore creates a new ScanStore backed by the given connection pool.
func NewScanStore(pool *pgxpool.Pool) *ScanStore {
	return &ScanStore{pool: pool}
}

// SaveRun writes a cycle and its child rows in one transaction. Saving the
// same id twice replaces the earlier rows.
func (s *ScanStore) SaveRun(ctx context.Context, run domain.ScanResult) error {
	result, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("postgres: marshal scan %s: %w", run.ID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin save scan %s: %w", run.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsertRun = `
		INSERT INTO scan_runs (
			id, started_at, finished_at, fetched, candidates,
			selected, intents, error, result
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			fetched     = EXCLUDED.fetched,
			candidates  = EXCLUDED.candidates,
			selected    = EXCLUDED.selected,
			intents     = EXCLUDED.intents,
			error       = EXCLUDED.error,
			result      = EXCLUDED.result`
	if _, err := tx.Exec(ctx, upsertRun,
		run.ID, run.StartedAt, nullTime(run.FinishedAt), run.Fetched, run.Candidates,
		len(run.Selections), len(run.Intents), run.Error, result,
	); err != nil {
		return fmt.Errorf("postgres: upsert scan %s: %w", run.ID, err)
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM scan_selections WHERE run_id = $1`, run.ID)
	batch.Queue(`DELETE FROM scan_rejections WHERE run_id = $1`, run.ID)

	const insertSelection = `
		INSERT INTO scan_selections (run_id, rank, market_id, question, category, reward, composite, breakdown)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, sel := range run.Selections {
		bd, err := json.Marshal(sel.Breakdown)
		if err != nil {
			return fmt.Errorf("postgres: marshal breakdown %s: %w", sel.Market.ID, err)
		}
		batch.Queue(insertSelection,
			run.ID, sel.Rank, sel.Market.ID, sel.Market.Question, string(sel.Market.Category),
			sel.Market.Reward, sel.Breakdown.Composite, bd,
		)
	}

	const insertRejection = `
		INSERT INTO scan_rejections (run_id, stage, reason, count) VALUES ($1, $2, $3, $4)`
	for stage, stats := range map[string]domain.RejectionStats{
		stageFilter: run.FilterRejects,
		stageSelect: run.SelectRejects,
		stagePrice:  run.PriceRejects,
	} {
		for _, reason := range stats.Reasons() {
			batch.Queue(insertRejection, run.ID, stage, string(reason), stats[reason])
		}
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: save scan %s children: %w", run.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: close batch for scan %s: %w", run.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit scan %s: %w", run.ID, err)
	}
	return nil
}

// GetRun returns one cycle by id, or domain.ErrNotFound.
func (s *ScanStore) GetRun(ctx context.Context, id string) (domain.ScanResult, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT result FROM scan_runs WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ScanResult{}, fmt.Errorf("postgres: scan %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ScanResult{}, fmt.Errorf("postgres: get scan %s: %w", id, err)
	}
	return decodeRun(raw)
}

// ListRuns returns cycles newest first with pagination and optional time
// filtering.
func (s *ScanStore) ListRuns(ctx context.Context, opts domain.ListOpts) ([]domain.ScanResult, error) {
	query, args := listQuery(`SELECT result FROM scan_runs`, "started_at", opts)
	return s.queryRuns(ctx, query, args...)
}

// ListBefore returns every cycle that started before the cutoff, oldest
// first.
func (s *ScanStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ScanResult, error) {
	return s.queryRuns(ctx,
		`SELECT result FROM scan_runs WHERE started_at < $1 ORDER BY started_at ASC`, before)
}

// DeleteBefore removes cycles that started before the cutoff. Child rows go
// with them through ON DELETE CASCADE.
func (s *ScanStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scan_runs WHERE started_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete scans before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func (s *ScanStore) queryRuns(ctx context.Context, query string, args ...any) ([]domain.ScanResult, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list scans: %w", err)
	}
	defer rows.Close()

	var out []domain.ScanResult
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		run, err := decodeRun(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list scans rows: %w", err)
	}
	return out, nil
}

func decodeRun(raw []byte) (domain.ScanResult, error) {
	var run domain.ScanResult
	if err := json.Unmarshal(raw, &run); err != nil {
		return domain.ScanResult{}, fmt.Errorf("postgres: decode scan result: %w", err)
	}
	return run, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Compile-time interface check.
var _ domain.ScanStore = (*ScanStore)(nil)
