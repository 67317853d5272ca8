package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blockmart/marketd/internal/server/middleware"
	"github.com/blockmart/marketd/internal/service"
	"github.com/blockmart/marketd/internal/store/memory"
)

const (
	sellerAddr = "0x1111111111111111111111111111111111111111"
	buyerAddr  = "0x2222222222222222222222222222222222222222"
)

// newTestMux wires the handlers over the in-memory backend with the auth
// middleware applied, mirroring the server's route table.
func newTestMux(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	locks := memory.NewLockManager()

	settlement := service.NewSettlementService(service.SettlementDeps{
		Listings: store.Listings(),
		Bids:     store.Bids(),
		Offers:   store.Offers(),
		Settle:   store.Settlements(),
		Sales:    store.Sales(),
		Activity: store.Activity(),
		Locks:    locks,
		Logger:   logger,
	})
	listings := service.NewListingService(store.Listings(), store.Settlements(), store.Activity(), nil, logger)
	ledger := service.NewLedgerService(store.Listings(), store.Bids(), store.Offers(), settlement, store.Activity(), locks, nil, logger)
	activity := service.NewActivityService(store.Listings(), store.Sales(), store.Activity(), nil, logger)

	lh := NewListingHandler(listings, listings, ledger, settlement, nil, logger)
	oh := NewOfferHandler(ledger, settlement, logger)
	ah := NewActivityHandler(activity, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/listings", lh.ListListings)
	mux.HandleFunc("POST /api/listings", lh.CreateListing)
	mux.HandleFunc("GET /api/listings/{id}", lh.GetListing)
	mux.HandleFunc("DELETE /api/listings/{id}", lh.CancelListing)
	mux.HandleFunc("POST /api/listings/{id}/buy", lh.BuyListing)
	mux.HandleFunc("POST /api/listings/{id}/bid", lh.PlaceBid)
	mux.HandleFunc("GET /api/listings/{id}/bids", lh.ListBids)
	mux.HandleFunc("POST /api/listings/{id}/accept-bid", lh.AcceptBid)
	mux.HandleFunc("POST /api/listings/{id}/favorite", lh.ToggleFavorite)
	mux.HandleFunc("GET /api/offers", oh.ListOffers)
	mux.HandleFunc("POST /api/offers", oh.MakeOffer)
	mux.HandleFunc("POST /api/offers/{id}/accept", oh.AcceptOffer)
	mux.HandleFunc("DELETE /api/offers/{id}", oh.WithdrawOffer)
	mux.HandleFunc("GET /api/activity", ah.Feed)
	mux.HandleFunc("GET /api/stats", ah.Stats)

	return middleware.Auth()(mux)
}

func doJSON(t *testing.T, h http.Handler, method, path, wallet, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if wallet != "" {
		req.Header.Set("Authorization", "Bearer "+wallet)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decoding %s %s response: %v (body %q)", method, path, err, rec.Body.String())
		}
	}
	return rec, out
}

func createFixed(t *testing.T, h http.Handler, price int64) string {
	t.Helper()
	rec, out := doJSON(t, h, "POST", "/api/listings", sellerAddr,
		`{"asset_id":"asset-1","type":"fixed","currency":"USDC","price":`+jsonInt(price)+`,"collection_id":"col-1","royalty_bps":250}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create listing: status %d, body %s", rec.Code, rec.Body.String())
	}
	return out["id"].(string)
}

func jsonInt(n int64) string {
	data, _ := json.Marshal(n)
	return string(data)
}

func TestListingLifecycleHTTP(t *testing.T) {
	h := newTestMux(t)
	id := createFixed(t, h, 100_000_000)

	rec, out := doJSON(t, h, "GET", "/api/listings/"+id, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	if out["status"] != "active" || out["seller"] != sellerAddr {
		t.Fatalf("get: unexpected body %v", out)
	}

	rec, out = doJSON(t, h, "GET", "/api/listings?status=active", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	if total := out["total"].(float64); total != 1 {
		t.Fatalf("list total = %v, want 1", total)
	}

	rec, out = doJSON(t, h, "POST", "/api/listings/"+id+"/buy", buyerAddr, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("buy: status %d, body %s", rec.Code, rec.Body.String())
	}
	if out["sale_price"].(float64) != 100_000_000 {
		t.Fatalf("buy: sale_price = %v", out["sale_price"])
	}

	// A second purchase conflicts.
	rec, _ = doJSON(t, h, "POST", "/api/listings/"+id+"/buy", buyerAddr, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second buy: status %d, want 409", rec.Code)
	}

	rec, out = doJSON(t, h, "GET", "/api/stats?window=24h", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: status %d", rec.Code)
	}
	if out["total_sales"].(float64) != 1 {
		t.Fatalf("stats total_sales = %v, want 1", out["total_sales"])
	}

	rec, out = doJSON(t, h, "GET", "/api/activity", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("activity: status %d", rec.Code)
	}
	entries := out["activity"].([]any)
	if len(entries) != 2 { // list + sale
		t.Fatalf("activity entries = %d, want 2", len(entries))
	}
}

func TestListingAuthRequired(t *testing.T) {
	h := newTestMux(t)

	rec, _ := doJSON(t, h, "POST", "/api/listings", "",
		`{"asset_id":"a","type":"fixed","currency":"USDC","price":100}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated create: status %d, want 401", rec.Code)
	}

	id := createFixed(t, h, 100)
	rec, _ = doJSON(t, h, "DELETE", "/api/listings/"+id, buyerAddr, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-seller cancel: status %d, want 403", rec.Code)
	}
}

func TestListingValidationHTTP(t *testing.T) {
	h := newTestMux(t)

	rec, _ := doJSON(t, h, "POST", "/api/listings", sellerAddr,
		`{"asset_id":"a","type":"fixed","currency":"USDC","price":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("zero price: status %d, want 400", rec.Code)
	}

	rec, _ = doJSON(t, h, "GET", "/api/listings/nope", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing listing: status %d, want 404", rec.Code)
	}
}

func TestAuctionBiddingHTTP(t *testing.T) {
	h := newTestMux(t)

	ends := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	rec, out := doJSON(t, h, "POST", "/api/listings", sellerAddr,
		`{"asset_id":"asset-a","type":"english_auction","currency":"USDC","starting_price":100,"ends_at":"`+ends+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create auction: status %d, body %s", rec.Code, rec.Body.String())
	}
	id := out["id"].(string)

	rec, _ = doJSON(t, h, "POST", "/api/listings/"+id+"/bid", buyerAddr, `{"amount":100}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("low bid: status %d, want 409", rec.Code)
	}

	rec, out = doJSON(t, h, "POST", "/api/listings/"+id+"/bid", buyerAddr, `{"amount":105,"bidder_name":"buyer"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("bid: status %d, body %s", rec.Code, rec.Body.String())
	}
	if _, hasSale := out["sale"]; hasSale {
		t.Fatal("english bid must not settle")
	}

	rec, out = doJSON(t, h, "GET", "/api/listings/"+id+"/bids", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list bids: status %d", rec.Code)
	}
	if bids := out["bids"].([]any); len(bids) != 1 {
		t.Fatalf("bids = %d, want 1", len(bids))
	}

	rec, out = doJSON(t, h, "POST", "/api/listings/"+id+"/accept-bid", sellerAddr, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("accept bid: status %d, body %s", rec.Code, rec.Body.String())
	}
	if out["buyer"] != buyerAddr || out["sale_price"].(float64) != 105 {
		t.Fatalf("accept bid: unexpected sale %v", out)
	}
}

func TestOffersHTTP(t *testing.T) {
	h := newTestMux(t)

	rec, out := doJSON(t, h, "POST", "/api/offers", buyerAddr,
		`{"asset_id":"asset-o","amount":500,"currency":"USDC"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("make offer: status %d, body %s", rec.Code, rec.Body.String())
	}
	offerID := out["id"].(string)

	rec, out = doJSON(t, h, "GET", "/api/offers?asset_id=asset-o", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list offers: status %d", rec.Code)
	}
	if offers := out["offers"].([]any); len(offers) != 1 {
		t.Fatalf("offers = %d, want 1", len(offers))
	}

	rec, out = doJSON(t, h, "POST", "/api/offers/"+offerID+"/accept", sellerAddr, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("accept offer: status %d, body %s", rec.Code, rec.Body.String())
	}
	if out["sale_price"].(float64) != 500 {
		t.Fatalf("accept offer: sale_price = %v", out["sale_price"])
	}

	rec, _ = doJSON(t, h, "DELETE", "/api/offers/"+offerID, buyerAddr, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("withdraw accepted offer: status %d, want 409", rec.Code)
	}
}

func TestToggleFavoriteHTTP(t *testing.T) {
	h := newTestMux(t)
	id := createFixed(t, h, 100)

	rec, out := doJSON(t, h, "POST", "/api/listings/"+id+"/favorite", buyerAddr, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("favorite: status %d", rec.Code)
	}
	if out["favorited"] != true {
		t.Fatalf("favorited = %v, want true", out["favorited"])
	}

	rec, out = doJSON(t, h, "POST", "/api/listings/"+id+"/favorite", buyerAddr, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unfavorite: status %d", rec.Code)
	}
	if out["favorited"] != false {
		t.Fatalf("favorited = %v, want false", out["favorited"])
	}
}

func TestParseListOpts(t *testing.T) {
	cases := []struct {
		name   string
		query  string
		limit  int
		offset int
	}{
		{"defaults", "", 50, 0},
		{"explicit", "?limit=25&offset=10", 25, 10},
		{"capped at max", "?limit=1000", 200, 0},
		{"negative ignored", "?limit=-5&offset=-2", 50, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/listings"+tc.query, nil)
			got := parseListOpts(r)
			if got.Limit != tc.limit || got.Offset != tc.offset {
				t.Fatalf("opts = %d/%d, want %d/%d", got.Limit, got.Offset, tc.limit, tc.offset)
			}
		})
	}
}
