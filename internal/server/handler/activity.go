package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/blockmart/marketd/internal/domain"
)

// ActivityQueries covers the read-side projections the handler exposes.
type ActivityQueries interface {
	Feed(ctx context.Context, f domain.ActivityFilter, opts domain.ListOpts) ([]domain.ActivityEntry, error)
	PriceHistory(ctx context.Context, assetID string, opts domain.ListOpts) ([]domain.PricePoint, error)
	Stats(ctx context.Context, window string) (domain.MarketStats, error)
	Trending(ctx context.Context, window string) ([]domain.CollectionStats, error)
}

// ActivityHandler serves the activity feed and analytics endpoints.
type ActivityHandler struct {
	queries ActivityQueries
	logger  *slog.Logger
}

// NewActivityHandler creates an ActivityHandler.
func NewActivityHandler(queries ActivityQueries, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{queries: queries, logger: logger}
}

func activityView(e domain.ActivityEntry) map[string]any {
	v := map[string]any{
		"type":       string(e.Type),
		"created_at": e.CreatedAt,
	}
	if e.ListingID != "" {
		v["listing_id"] = e.ListingID
	}
	if e.AssetID != "" {
		v["asset_id"] = e.AssetID
	}
	if e.CollectionID != "" {
		v["collection_id"] = e.CollectionID
	}
	if e.From != "" {
		v["from"] = e.From
	}
	if e.To != "" {
		v["to"] = e.To
	}
	if e.Amount != 0 {
		v["amount"] = e.Amount
		v["currency"] = string(e.Currency)
	}
	return v
}

// Feed returns the chronological activity feed, newest first.
// GET /api/activity?asset_id=...&collection_id=...&address=0x...&type=sale
func (h *ActivityHandler) Feed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.ActivityFilter{
		AssetID:      q.Get("asset_id"),
		CollectionID: q.Get("collection_id"),
		Address:      q.Get("address"),
		Type:         domain.ActivityType(q.Get("type")),
	}
	opts := parseListOpts(r)

	entries, err := h.queries.Feed(r.Context(), f, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	views := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		views = append(views, activityView(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": views})
}

// PriceHistory returns an asset's sale prices in chronological order.
// GET /api/price-history/{assetId}
func (h *ActivityHandler) PriceHistory(w http.ResponseWriter, r *http.Request) {
	assetID := pathParam(r, "assetId")
	opts := parseListOpts(r)

	points, err := h.queries.PriceHistory(r.Context(), assetID, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	views := make([]map[string]any, 0, len(points))
	for _, p := range points {
		views = append(views, map[string]any{
			"price":    p.Price,
			"currency": string(p.Currency),
			"sold_at":  p.SoldAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset_id": assetID,
		"points":   views,
	})
}

// Stats returns marketplace aggregates over a time window.
// GET /api/stats?window=24h
func (h *ActivityHandler) Stats(w http.ResponseWriter, r *http.Request) {
	window := r.URL.Query().Get("window")

	stats, err := h.queries.Stats(r.Context(), window)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active_listings": stats.ActiveListings,
		"total_sales":     stats.TotalSales,
		"volume":          stats.Volume,
		"window_start":    stats.WindowStart,
		"window_end":      stats.WindowEnd,
	})
}

// Trending returns the top collections by sale volume over a time window.
// GET /api/collections/trending?window=24h
func (h *ActivityHandler) Trending(w http.ResponseWriter, r *http.Request) {
	window := r.URL.Query().Get("window")

	stats, err := h.queries.Trending(r.Context(), window)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	views := make([]map[string]any, 0, len(stats))
	for _, c := range stats {
		views = append(views, map[string]any{
			"collection_id": c.CollectionID,
			"sales":         c.Sales,
			"volume":        c.Volume,
			"floor_price":   c.FloorPrice,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": views})
}
