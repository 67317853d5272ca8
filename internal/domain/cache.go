package domain

import (
	"context"
	"time"
)

// AssetCache provides fast storefront metadata lookups so catalog outages
// never block trading operations.
type AssetCache interface {
	Set(ctx context.Context, asset Asset) error
	Get(ctx context.Context, id string) (Asset, error)
	Invalidate(ctx context.Context, id string) error
}

// StatsCache stores precomputed marketplace aggregates with a short TTL.
type StatsCache interface {
	SetStats(ctx context.Context, window string, stats MarketStats) error
	GetStats(ctx context.Context, window string) (MarketStats, error)
	SetTrending(ctx context.Context, window string, stats []CollectionStats) error
	GetTrending(ctx context.Context, window string) ([]CollectionStats, error)
}

// RateLimiter provides request rate limiting keyed by caller.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager serializes settlement per listing. Acquire returns an unlock
// function on success and ErrLockHeld when another settlement holds the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
