package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/blockmart/marketd/internal/domain"
	"github.com/blockmart/marketd/internal/server/middleware"
)

// OfferService covers the offer operations the handler exposes.
type OfferService interface {
	MakeOffer(ctx context.Context, assetID, buyer string, amount int64, currency domain.Currency, expiresAt *time.Time) (domain.Offer, error)
	WithdrawOffer(ctx context.Context, offerID, requester string) error
	ListOffers(ctx context.Context, assetID, buyer string, opts domain.ListOpts) ([]domain.Offer, error)
}

// OfferAcceptor settles an accepted offer.
type OfferAcceptor interface {
	AcceptOffer(ctx context.Context, offerID, requester string) (domain.Sale, error)
}

// OfferHandler serves offer-related HTTP endpoints.
type OfferHandler struct {
	offers   OfferService
	acceptor OfferAcceptor
	logger   *slog.Logger
}

// NewOfferHandler creates an OfferHandler.
func NewOfferHandler(offers OfferService, acceptor OfferAcceptor, logger *slog.Logger) *OfferHandler {
	return &OfferHandler{
		offers:   offers,
		acceptor: acceptor,
		logger:   logger,
	}
}

// makeOfferRequest is the POST /api/offers body.
type makeOfferRequest struct {
	AssetID   string     `json:"asset_id"`
	Amount    int64      `json:"amount"`
	Currency  string     `json:"currency"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func offerView(o domain.Offer) map[string]any {
	v := map[string]any{
		"id":         o.ID,
		"asset_id":   o.AssetID,
		"buyer":      o.Buyer,
		"amount":     o.Amount,
		"currency":   string(o.Currency),
		"status":     string(o.Status),
		"created_at": o.CreatedAt,
	}
	if o.ExpiresAt != nil {
		v["expires_at"] = o.ExpiresAt
	}
	return v
}

// MakeOffer records a standing offer from the authenticated wallet.
// POST /api/offers
func (h *OfferHandler) MakeOffer(w http.ResponseWriter, r *http.Request) {
	buyer := requireCaller(w, r, middleware.Caller)
	if buyer == "" {
		return
	}

	var req makeOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	o, err := h.offers.MakeOffer(r.Context(), req.AssetID, buyer, req.Amount, domain.Currency(req.Currency), req.ExpiresAt)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, offerView(o))
}

// ListOffers returns offers for an asset or by a buyer.
// GET /api/offers?asset_id=...  or  GET /api/offers?buyer=0x...
func (h *OfferHandler) ListOffers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	assetID := q.Get("asset_id")
	buyer := q.Get("buyer")
	opts := parseListOpts(r)

	offers, err := h.offers.ListOffers(r.Context(), assetID, buyer, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	views := make([]map[string]any, 0, len(offers))
	for _, o := range offers {
		views = append(views, offerView(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": views})
}

// AcceptOffer settles an offer on behalf of the asset's seller.
// POST /api/offers/{id}/accept
func (h *OfferHandler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	caller := requireCaller(w, r, middleware.Caller)
	if caller == "" {
		return
	}
	id := pathParam(r, "id")

	sale, err := h.acceptor.AcceptOffer(r.Context(), id, caller)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, saleView(sale))
}

// WithdrawOffer closes the caller's open offer.
// DELETE /api/offers/{id}
func (h *OfferHandler) WithdrawOffer(w http.ResponseWriter, r *http.Request) {
	caller := requireCaller(w, r, middleware.Caller)
	if caller == "" {
		return
	}
	id := pathParam(r, "id")

	if err := h.offers.WithdrawOffer(r.Context(), id, caller); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "withdrawn",
		"offer_id": id,
	})
}
