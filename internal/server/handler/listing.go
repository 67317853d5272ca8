package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/blockmart/marketd/internal/domain"
	"github.com/blockmart/marketd/internal/server/middleware"
	"github.com/blockmart/marketd/internal/service"
)

// ListingReader resolves listings and their queries.
type ListingReader interface {
	Get(ctx context.Context, id string) (domain.Listing, error)
	List(ctx context.Context, f domain.ListingFilter, opts domain.ListOpts) ([]domain.Listing, error)
	Count(ctx context.Context, f domain.ListingFilter) (int64, error)
}

// ListingWriter mutates listings on behalf of the caller.
type ListingWriter interface {
	Create(ctx context.Context, in service.CreateListingInput) (domain.Listing, error)
	Cancel(ctx context.Context, id, requester string) error
	ToggleFavorite(ctx context.Context, id, address string) (bool, error)
}

// BidService covers the bid operations the listing handler exposes.
type BidService interface {
	PlaceBid(ctx context.Context, listingID, bidder, bidderName string, amount int64) (service.BidResult, error)
	ListBids(ctx context.Context, listingID string) ([]domain.Bid, error)
}

// BuyService settles direct purchases.
type BuyService interface {
	BuyNow(ctx context.Context, listingID, buyer string) (domain.Sale, error)
	AcceptBid(ctx context.Context, listingID, requester string) (domain.Sale, error)
}

// AssetResolver supplies display metadata for listing responses.
type AssetResolver interface {
	Resolve(ctx context.Context, assetID string) domain.Asset
}

// ListingHandler serves listing-related HTTP endpoints.
type ListingHandler struct {
	reader  ListingReader
	writer  ListingWriter
	bids    BidService
	buys    BuyService
	catalog AssetResolver
	logger  *slog.Logger
}

// NewListingHandler creates a ListingHandler.
func NewListingHandler(reader ListingReader, writer ListingWriter, bids BidService, buys BuyService, catalog AssetResolver, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		reader:  reader,
		writer:  writer,
		bids:    bids,
		buys:    buys,
		catalog: catalog,
		logger:  logger,
	}
}

// listingView is the JSON shape of a listing, with resolved asset metadata.
type listingView struct {
	ID                string        `json:"id"`
	AssetID           string        `json:"asset_id"`
	AssetName         string        `json:"asset_name,omitempty"`
	AssetImageURL     string        `json:"asset_image_url,omitempty"`
	Seller            string        `json:"seller"`
	Type              string        `json:"type"`
	Currency          string        `json:"currency"`
	Status            string        `json:"status"`
	Price             int64         `json:"price,omitempty"`
	StartingPrice     int64         `json:"starting_price,omitempty"`
	ReservePrice      int64         `json:"reserve_price,omitempty"`
	BuyNowPrice       int64         `json:"buy_now_price,omitempty"`
	EndingPrice       int64         `json:"ending_price,omitempty"`
	PriceDropInterval int64         `json:"price_drop_interval_seconds,omitempty"`
	EndsAt            *time.Time    `json:"ends_at,omitempty"`
	CollectionID      string        `json:"collection_id,omitempty"`
	RoyaltyBps        int64         `json:"royalty_bps,omitempty"`
	Favorites         int           `json:"favorites"`
	CreatedAt         time.Time     `json:"created_at"`
}

func (h *ListingHandler) view(ctx context.Context, l domain.Listing) listingView {
	v := listingView{
		ID:            l.ID,
		AssetID:       l.AssetID,
		Seller:        l.Seller,
		Type:          string(l.Type),
		Currency:      string(l.Currency),
		Status:        string(l.Status),
		Price:         l.Price,
		StartingPrice: l.StartingPrice,
		ReservePrice:  l.ReservePrice,
		BuyNowPrice:   l.BuyNowPrice,
		EndingPrice:   l.EndingPrice,
		EndsAt:        l.EndsAt,
		CollectionID:  l.CollectionID,
		RoyaltyBps:    l.RoyaltyBps,
		Favorites:     len(l.FavoritedBy),
		CreatedAt:     l.CreatedAt,
	}
	if l.PriceDropInterval > 0 {
		v.PriceDropInterval = int64(l.PriceDropInterval / time.Second)
	}
	if h.catalog != nil {
		asset := h.catalog.Resolve(ctx, l.AssetID)
		v.AssetName = asset.Name
		v.AssetImageURL = asset.ImageURL
	}
	return v
}

// createListingRequest is the POST /api/listings body.
type createListingRequest struct {
	AssetID                  string     `json:"asset_id"`
	Type                     string     `json:"type"`
	Currency                 string     `json:"currency"`
	Price                    int64      `json:"price"`
	StartingPrice            int64      `json:"starting_price"`
	ReservePrice             int64      `json:"reserve_price"`
	BuyNowPrice              int64      `json:"buy_now_price"`
	EndingPrice              int64      `json:"ending_price"`
	PriceDropIntervalSeconds int64      `json:"price_drop_interval_seconds"`
	EndsAt                   *time.Time `json:"ends_at"`
	CollectionID             string     `json:"collection_id"`
	RoyaltyBps               int64      `json:"royalty_bps"`
}

// listListingsResponse wraps the list endpoint output with metadata.
type listListingsResponse struct {
	Listings []listingView `json:"listings"`
	Total    int64         `json:"total"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
}

// ListListings returns filtered listings with pagination.
// GET /api/listings?status=active&type=fixed&collection_id=...&seller=0x...&currency=USDC&min_price=...&max_price=...&sort=recent
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.ListingFilter{
		Status:       domain.ListingStatus(q.Get("status")),
		Type:         domain.ListingType(q.Get("type")),
		AssetID:      q.Get("asset_id"),
		CollectionID: q.Get("collection_id"),
		Seller:       q.Get("seller"),
		Currency:     domain.Currency(q.Get("currency")),
		Sort:         domain.ListingSort(q.Get("sort")),
	}
	f.MinPrice = parseInt64(q.Get("min_price"))
	f.MaxPrice = parseInt64(q.Get("max_price"))
	opts := parseListOpts(r)

	listings, err := h.reader.List(r.Context(), f, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	total, err := h.reader.Count(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	views := make([]listingView, 0, len(listings))
	for _, l := range listings {
		views = append(views, h.view(r.Context(), l))
	}
	writeJSON(w, http.StatusOK, listListingsResponse{
		Listings: views,
		Total:    total,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}

// GetListing returns a single listing by its ID.
// GET /api/listings/{id}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	l, err := h.reader.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r.Context(), l))
}

// CreateListing creates a new listing for the authenticated wallet.
// POST /api/listings
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	seller := requireCaller(w, r, middleware.Caller)
	if seller == "" {
		return
	}

	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	l, err := h.writer.Create(r.Context(), service.CreateListingInput{
		AssetID:           req.AssetID,
		Seller:            seller,
		Type:              domain.ListingType(req.Type),
		Currency:          domain.Currency(req.Currency),
		Price:             req.Price,
		StartingPrice:     req.StartingPrice,
		ReservePrice:      req.ReservePrice,
		BuyNowPrice:       req.BuyNowPrice,
		EndingPrice:       req.EndingPrice,
		PriceDropInterval: time.Duration(req.PriceDropIntervalSeconds) * time.Second,
		EndsAt:            req.EndsAt,
		CollectionID:      req.CollectionID,
		RoyaltyBps:        req.RoyaltyBps,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(r.Context(), l))
}

// CancelListing cancels an active listing owned by the caller.
// DELETE /api/listings/{id}
func (h *ListingHandler) CancelListing(w http.ResponseWriter, r *http.Request) {
	caller := requireCaller(w, r, middleware.Caller)
	if caller == "" {
		return
	}
	id := pathParam(r, "id")

	if err := h.writer.Cancel(r.Context(), id, caller); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "cancelled",
		"listing_id": id,
	})
}

// BuyListing purchases a listing at its posted (or clock) price. The body is
// empty; the price comes from the listing.
// POST /api/listings/{id}/buy
func (h *ListingHandler) BuyListing(w http.ResponseWriter, r *http.Request) {
	buyer := requireCaller(w, r, middleware.Caller)
	if buyer == "" {
		return
	}
	id := pathParam(r, "id")

	sale, err := h.buys.BuyNow(r.Context(), id, buyer)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, saleView(sale))
}

// placeBidRequest is the POST /api/listings/{id}/bid body.
type placeBidRequest struct {
	Amount     int64  `json:"amount"`
	BidderName string `json:"bidder_name"`
}

// PlaceBid places a bid on an auction listing.
// POST /api/listings/{id}/bid
func (h *ListingHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	bidder := requireCaller(w, r, middleware.Caller)
	if bidder == "" {
		return
	}
	id := pathParam(r, "id")

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.bids.PlaceBid(r.Context(), id, bidder, req.BidderName, req.Amount)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	resp := map[string]any{"bid": bidView(res.Bid)}
	if res.Sale != nil {
		resp["sale"] = saleView(*res.Sale)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListBids returns a listing's bid ledger.
// GET /api/listings/{id}/bids
func (h *ListingHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	bids, err := h.bids.ListBids(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	views := make([]map[string]any, 0, len(bids))
	for _, b := range bids {
		views = append(views, bidView(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": views})
}

// AcceptBid settles an auction at the highest standing bid.
// POST /api/listings/{id}/accept-bid
func (h *ListingHandler) AcceptBid(w http.ResponseWriter, r *http.Request) {
	caller := requireCaller(w, r, middleware.Caller)
	if caller == "" {
		return
	}
	id := pathParam(r, "id")

	sale, err := h.buys.AcceptBid(r.Context(), id, caller)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, saleView(sale))
}

// ToggleFavorite flips the caller's favorite flag on a listing.
// POST /api/listings/{id}/favorite
func (h *ListingHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	caller := requireCaller(w, r, middleware.Caller)
	if caller == "" {
		return
	}
	id := pathParam(r, "id")

	favorited, err := h.writer.ToggleFavorite(r.Context(), id, caller)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"listing_id": id,
		"favorited":  favorited,
	})
}

func bidView(b domain.Bid) map[string]any {
	return map[string]any{
		"id":          b.ID,
		"listing_id":  b.ListingID,
		"bidder":      b.Bidder,
		"bidder_name": b.BidderName,
		"amount":      b.Amount,
		"status":      string(b.Status),
		"placed_at":   b.PlacedAt,
	}
}

func saleView(s domain.Sale) map[string]any {
	return map[string]any{
		"id":             s.ID,
		"listing_id":     s.ListingID,
		"offer_id":       s.OfferID,
		"asset_id":       s.AssetID,
		"buyer":          s.Buyer,
		"seller":         s.Seller,
		"sale_price":     s.SalePrice,
		"currency":       string(s.Currency),
		"royalty_amount": s.RoyaltyAmount,
		"transfer_state": string(s.TransferState),
		"settled_at":     s.SettledAt,
	}
}

func parseInt64(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
