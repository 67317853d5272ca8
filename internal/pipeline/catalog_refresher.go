package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// CatalogWarmer bulk-loads storefront metadata into the asset cache.
type CatalogWarmer interface {
	WarmCatalog(ctx context.Context) (int, error)
}

// CatalogRefresher keeps the asset cache warm by re-fetching the storefront
// catalog on an interval. A failed refresh is logged and retried next tick;
// trading keeps running on the cached entries.
type CatalogRefresher struct {
	warmer CatalogWarmer
	logger *slog.Logger
}

// NewCatalogRefresher creates a CatalogRefresher.
func NewCatalogRefresher(warmer CatalogWarmer, logger *slog.Logger) *CatalogRefresher {
	return &CatalogRefresher{warmer: warmer, logger: logger}
}

// RunLoop refreshes the catalog on a repeating interval until the context is
// cancelled.
func (r *CatalogRefresher) RunLoop(ctx context.Context, interval time.Duration) error {
	r.refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("catalog refresher loop stopped")
			return ctx.Err()
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *CatalogRefresher) refresh(ctx context.Context) {
	warmed, err := r.warmer.WarmCatalog(ctx)
	if err != nil {
		r.logger.Error("catalog refresh failed", slog.String("error", err.Error()))
		return
	}
	r.logger.Info("catalog refreshed", slog.Int("assets", warmed))
}
