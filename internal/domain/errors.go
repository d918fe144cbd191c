package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrNoBook        = errors.New("no orderbook exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrCircuitOpen   = errors.New("circuit breaker open")
	ErrLockHeld      = errors.New("lock already held")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrNoIdentity    = errors.New("no signing identity available")
)
