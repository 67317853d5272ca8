package service

import (
	"context"
	"log/slog"

	"github.com/blockmart/marketd/internal/domain"
)

// CatalogService resolves asset display metadata with a cache-aside strategy:
// cache hit, then storefront fetch, then placeholder. A storefront outage
// degrades the response but never fails a trading request.
type CatalogService struct {
	client domain.CatalogClient
	cache  domain.AssetCache
	logger *slog.Logger
}

// NewCatalogService creates a CatalogService. cache may be nil.
func NewCatalogService(client domain.CatalogClient, cache domain.AssetCache, logger *slog.Logger) *CatalogService {
	return &CatalogService{client: client, cache: cache, logger: logger}
}

// Resolve returns display metadata for an asset. It never returns an error;
// the worst case is placeholder metadata.
func (s *CatalogService) Resolve(ctx context.Context, assetID string) domain.Asset {
	if s.cache != nil {
		if asset, err := s.cache.Get(ctx, assetID); err == nil {
			return asset
		}
	}

	if s.client != nil {
		asset, err := s.client.FetchAsset(ctx, assetID)
		if err == nil {
			if s.cache != nil {
				if cerr := s.cache.Set(ctx, asset); cerr != nil {
					s.logger.WarnContext(ctx, "catalog_service: cache write failed",
						slog.String("asset_id", assetID),
						slog.String("error", cerr.Error()),
					)
				}
			}
			return asset
		}
		s.logger.WarnContext(ctx, "catalog_service: storefront fetch failed",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
	}

	return domain.PlaceholderAsset(assetID)
}

// WarmCatalog bulk-loads the storefront catalog into the cache. Used at
// startup and by the sweeper's periodic refresh.
func (s *CatalogService) WarmCatalog(ctx context.Context) (int, error) {
	if s.client == nil || s.cache == nil {
		return 0, nil
	}
	assets, err := s.client.FetchCatalog(ctx)
	if err != nil {
		return 0, err
	}
	warmed := 0
	for _, asset := range assets {
		if err := s.cache.Set(ctx, asset); err != nil {
			s.logger.WarnContext(ctx, "catalog_service: cache write failed",
				slog.String("asset_id", asset.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		warmed++
	}
	return warmed, nil
}
