package domain

import (
	"context"
	"time"
)

// BaselineStore persists the selector's per-market volume baselines so they
// survive restarts.
type BaselineStore interface {
	LoadBaselines(ctx context.Context) (map[string]float64, error)
	SaveBaselines(ctx context.Context, baselines map[string]float64) error
}

// ScanCache keeps the most recent scan result for fast reads.
type ScanCache interface {
	SetLatest(ctx context.Context, run ScanResult) error
	GetLatest(ctx context.Context) (ScanResult, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out of cycle results.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Bus channels.
const (
	ChannelScan    = "ch:scan"
	ChannelIntent  = "ch:intent"
	ChannelBreaker = "ch:breaker"
)
