package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blockmart/marketd/internal/domain"
)

// Stats windows accepted by Stats and Trending.
const (
	Window24h = "24h"
	Window7d  = "7d"
	Window30d = "30d"
	WindowAll = "all"
)

const trendingLimit = 10

// ActivityService serves the read-side projections: the activity feed, per
// asset price history, marketplace stats, and trending collections. Stats and
// trending go through the short-TTL cache; everything else reads the stores
// directly.
type ActivityService struct {
	listings domain.ListingStore
	sales    domain.SaleStore
	activity domain.ActivityStore
	cache    domain.StatsCache
	logger   *slog.Logger
	now      func() time.Time
}

// NewActivityService creates an ActivityService. cache may be nil, in which
// case every stats query recomputes.
func NewActivityService(
	listings domain.ListingStore,
	sales domain.SaleStore,
	activity domain.ActivityStore,
	cache domain.StatsCache,
	logger *slog.Logger,
) *ActivityService {
	return &ActivityService{
		listings: listings,
		sales:    sales,
		activity: activity,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

// Feed returns the filtered activity feed, newest first.
func (s *ActivityService) Feed(ctx context.Context, f domain.ActivityFilter, opts domain.ListOpts) ([]domain.ActivityEntry, error) {
	entries, err := s.activity.List(ctx, f, opts)
	if err != nil {
		return nil, fmt.Errorf("activity_service: feed: %w", err)
	}
	return entries, nil
}

// PriceHistory returns an asset's sale prices in chronological order.
func (s *ActivityService) PriceHistory(ctx context.Context, assetID string, opts domain.ListOpts) ([]domain.PricePoint, error) {
	if assetID == "" {
		return nil, fmt.Errorf("%w: asset_id is required", domain.ErrValidation)
	}
	sales, err := s.sales.ListByAsset(ctx, assetID, opts)
	if err != nil {
		return nil, fmt.Errorf("activity_service: price history %q: %w", assetID, err)
	}
	points := make([]domain.PricePoint, 0, len(sales))
	for _, sale := range sales {
		points = append(points, domain.PricePoint{
			AssetID:  sale.AssetID,
			Price:    sale.SalePrice,
			Currency: sale.Currency,
			SoldAt:   sale.SettledAt,
		})
	}
	return points, nil
}

// Stats returns marketplace aggregates over the named window.
func (s *ActivityService) Stats(ctx context.Context, window string) (domain.MarketStats, error) {
	from, to, err := s.windowBounds(window)
	if err != nil {
		return domain.MarketStats{}, err
	}

	if s.cache != nil {
		if stats, err := s.cache.GetStats(ctx, window); err == nil {
			return stats, nil
		}
	}

	count, volume, err := s.sales.Volume(ctx, from, to)
	if err != nil {
		return domain.MarketStats{}, fmt.Errorf("activity_service: stats: %w", err)
	}
	active, err := s.listings.Count(ctx, domain.ListingFilter{Status: domain.ListingStatusActive})
	if err != nil {
		return domain.MarketStats{}, fmt.Errorf("activity_service: stats: %w", err)
	}

	stats := domain.MarketStats{
		ActiveListings: active,
		TotalSales:     count,
		Volume:         volume,
		WindowStart:    from,
		WindowEnd:      to,
	}
	if s.cache != nil {
		if err := s.cache.SetStats(ctx, window, stats); err != nil {
			s.logger.WarnContext(ctx, "activity_service: stats cache write failed",
				slog.String("window", window),
				slog.String("error", err.Error()),
			)
		}
	}
	return stats, nil
}

// Trending returns the top collections by sale volume over the named window.
func (s *ActivityService) Trending(ctx context.Context, window string) ([]domain.CollectionStats, error) {
	from, to, err := s.windowBounds(window)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if stats, err := s.cache.GetTrending(ctx, window); err == nil {
			return stats, nil
		}
	}

	stats, err := s.sales.CollectionVolume(ctx, from, to, trendingLimit)
	if err != nil {
		return nil, fmt.Errorf("activity_service: trending: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.SetTrending(ctx, window, stats); err != nil {
			s.logger.WarnContext(ctx, "activity_service: trending cache write failed",
				slog.String("window", window),
				slog.String("error", err.Error()),
			)
		}
	}
	return stats, nil
}

// Rebuild discards the activity feed and regenerates its sale entries from
// the immutable sale log. Non-sale entries are lost; the sale log is the only
// authoritative history.
func (s *ActivityService) Rebuild(ctx context.Context) (int64, error) {
	if err := s.activity.Reset(ctx); err != nil {
		return 0, fmt.Errorf("activity_service: rebuild: %w", err)
	}

	const batch = 500
	var total int64
	opts := domain.ListOpts{Limit: batch}
	for {
		sales, err := s.sales.ListSince(ctx, time.Time{}, opts)
		if err != nil {
			return total, fmt.Errorf("activity_service: rebuild: %w", err)
		}
		for _, sale := range sales {
			e := domain.ActivityEntry{
				Type:         domain.ActivityTypeSale,
				ListingID:    sale.ListingID,
				AssetID:      sale.AssetID,
				CollectionID: sale.CollectionID,
				From:         sale.Seller,
				To:           sale.Buyer,
				Amount:       sale.SalePrice,
				Currency:     sale.Currency,
				CreatedAt:    sale.SettledAt,
			}
			if err := s.activity.Append(ctx, e); err != nil {
				return total, fmt.Errorf("activity_service: rebuild: %w", err)
			}
			total++
		}
		if len(sales) < batch {
			return total, nil
		}
		opts.Offset += batch
	}
}

func (s *ActivityService) windowBounds(window string) (from, to time.Time, err error) {
	to = s.now().UTC()
	switch window {
	case Window24h:
		from = to.Add(-24 * time.Hour)
	case Window7d:
		from = to.Add(-7 * 24 * time.Hour)
	case Window30d:
		from = to.Add(-30 * 24 * time.Hour)
	case WindowAll, "":
		from = time.Time{}
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown window %q", domain.ErrValidation, window)
	}
	return from, to, nil
}
