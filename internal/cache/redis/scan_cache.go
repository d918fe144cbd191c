package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

const (
	scanLatestKey = "scan:latest"
	scanLatestTTL = 24 * time.Hour
)

// ScanCache implements domain.ScanCache by storing the latest cycle result
// as a JSON string.
type ScanCache struct {
	c *Client
}

// NewScanCache creates a ScanCache backed by the given Client.
func NewScanCache(c *Client) *ScanCache {
	return &ScanCache{c: c}
}

// SetLatest overwrites the cached result.
func (sc *ScanCache) SetLatest(ctx context.Context, run domain.ScanResult) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("redis: marshal scan %s: %w", run.ID, err)
	}
	if err := sc.c.Underlying().Set(ctx, sc.c.Key(scanLatestKey), data, scanLatestTTL).Err(); err != nil {
		return fmt.Errorf("redis: set latest scan: %w", err)
	}
	return nil
}

// GetLatest returns the cached result, or domain.ErrNotFound when no cycle
// has completed within the TTL.
func (sc *ScanCache) GetLatest(ctx context.Context) (domain.ScanResult, error) {
	data, err := sc.c.Underlying().Get(ctx, sc.c.Key(scanLatestKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ScanResult{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ScanResult{}, fmt.Errorf("redis: get latest scan: %w", err)
	}
	var run domain.ScanResult
	if err := json.Unmarshal(data, &run); err != nil {
		return domain.ScanResult{}, fmt.Errorf("redis: decode latest scan: %w", err)
	}
	return run, nil
}

// Compile-time interface check.
var _ domain.ScanCache = (*ScanCache)(nil)
