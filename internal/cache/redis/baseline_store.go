package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

const baselineKey = "scorer:baseline"

// BaselineStore implements domain.BaselineStore as one Redis hash mapping
// market id to its smoothed volume baseline.
type BaselineStore struct {
	c *Client
}

// NewBaselineStore creates a BaselineStore backed by the given Client.
func NewBaselineStore(c *Client) *BaselineStore {
	return &BaselineStore{c: c}
}

// LoadBaselines returns every stored baseline. Unparsable entries are
// skipped.
func (s *BaselineStore) LoadBaselines(ctx context.Context) (map[string]float64, error) {
	raw, err := s.c.Underlying().HGetAll(ctx, s.c.Key(baselineKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load baselines: %w", err)
	}
	return decodeBaselines(raw), nil
}

// SaveBaselines replaces the stored hash with baselines in one transaction.
func (s *BaselineStore) SaveBaselines(ctx context.Context, baselines map[string]float64) error {
	key := s.c.Key(baselineKey)
	pipe := s.c.Underlying().TxPipeline()
	pipe.Del(ctx, key)
	if fields := encodeBaselines(baselines); len(fields) > 0 {
		pipe.HSet(ctx, key, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: save baselines: %w", err)
	}
	return nil
}

func encodeBaselines(in map[string]float64) map[string]any {
	out := make(map[string]any, len(in))
	for id, v := range in {
		if id == "" || v <= 0 {
			continue
		}
		out[id] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return out
}

func decodeBaselines(in map[string]string) map[string]float64 {
	out := make(map[string]float64, len(in))
	for id, s := range in {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			continue
		}
		out[id] = v
	}
	return out
}

// Compile-time interface check.
var _ domain.BaselineStore = (*BaselineStore)(nil)
