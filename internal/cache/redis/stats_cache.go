package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blockmart/marketd/internal/domain"
)

const statsTTL = time.Minute

// StatsCache implements domain.StatsCache with short-TTL JSON blobs. Stats
// are derived and cheap to recompute, so a stale-by-a-minute read is fine.
type StatsCache struct {
	rdb *redis.Client
}

// NewStatsCache creates a StatsCache backed by the given Client.
func NewStatsCache(c *Client) *StatsCache {
	return &StatsCache{rdb: c.Underlying()}
}

func statsKey(window string) string    { return "stats:" + window }
func trendingKey(window string) string { return "trending:" + window }

// SetStats stores marketplace stats for a window label.
func (sc *StatsCache) SetStats(ctx context.Context, window string, stats domain.MarketStats) error {
	return sc.setJSON(ctx, statsKey(window), stats)
}

// GetStats retrieves cached marketplace stats for a window label.
func (sc *StatsCache) GetStats(ctx context.Context, window string) (domain.MarketStats, error) {
	var stats domain.MarketStats
	if err := sc.getJSON(ctx, statsKey(window), &stats); err != nil {
		return domain.MarketStats{}, err
	}
	return stats, nil
}

// SetTrending stores the trending collection ranking for a window label.
func (sc *StatsCache) SetTrending(ctx context.Context, window string, stats []domain.CollectionStats) error {
	return sc.setJSON(ctx, trendingKey(window), stats)
}

// GetTrending retrieves the cached trending ranking for a window label.
func (sc *StatsCache) GetTrending(ctx context.Context, window string) ([]domain.CollectionStats, error) {
	var stats []domain.CollectionStats
	if err := sc.getJSON(ctx, trendingKey(window), &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (sc *StatsCache) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: marshal %s: %w", key, err)
	}
	if err := sc.rdb.Set(ctx, key, data, statsTTL).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

func (sc *StatsCache) getJSON(ctx context.Context, key string, v any) error {
	data, err := sc.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("redis: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("redis: unmarshal %s: %w", key, err)
	}
	return nil
}

var _ domain.StatsCache = (*StatsCache)(nil)
