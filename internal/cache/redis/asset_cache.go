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

const assetTTL = 10 * time.Minute

// AssetCache implements domain.AssetCache using JSON-serialized storefront
// metadata under asset:{id} keys. A storefront outage is absorbed by serving
// from here until entries expire.
type AssetCache struct {
	rdb *redis.Client
}

// NewAssetCache creates an AssetCache backed by the given Client.
func NewAssetCache(c *Client) *AssetCache {
	return &AssetCache{rdb: c.Underlying()}
}

func assetKey(id string) string { return "asset:" + id }

// Set stores asset metadata with the cache TTL.
func (ac *AssetCache) Set(ctx context.Context, asset domain.Asset) error {
	data, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("redis: marshal asset %s: %w", asset.ID, err)
	}
	if err := ac.rdb.Set(ctx, assetKey(asset.ID), data, assetTTL).Err(); err != nil {
		return fmt.Errorf("redis: set asset %s: %w", asset.ID, err)
	}
	return nil
}

// Get retrieves cached asset metadata. It returns domain.ErrNotFound when the
// key does not exist.
func (ac *AssetCache) Get(ctx context.Context, id string) (domain.Asset, error) {
	data, err := ac.rdb.Get(ctx, assetKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Asset{}, domain.ErrNotFound
		}
		return domain.Asset{}, fmt.Errorf("redis: get asset %s: %w", id, err)
	}

	var asset domain.Asset
	if err := json.Unmarshal(data, &asset); err != nil {
		return domain.Asset{}, fmt.Errorf("redis: unmarshal asset %s: %w", id, err)
	}
	return asset, nil
}

// Invalidate removes an asset from the cache.
func (ac *AssetCache) Invalidate(ctx context.Context, id string) error {
	if err := ac.rdb.Del(ctx, assetKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate asset %s: %w", id, err)
	}
	return nil
}

var _ domain.AssetCache = (*AssetCache)(nil)
