package memory

import (
	"context"
	"testing"
	"time"

	"github.com/blockmart/marketd/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func activeListing(id string, price int64) domain.Listing {
	return domain.Listing{
		ID:        id,
		AssetID:   "asset-" + id,
		Seller:    "0xseller",
		Type:      domain.ListingTypeFixed,
		Currency:  domain.CurrencyUSDC,
		Status:    domain.ListingStatusActive,
		Price:     price,
		CreatedAt: t0,
	}
}

func TestSettle_TransitionsListingAndBids(t *testing.T) {
	ctx := context.Background()
	s := New()

	l := activeListing("l1", 100_000_000)
	l.Type = domain.ListingTypeEnglish
	l.StartingPrice = 10_000_000
	if err := s.Listings().Create(ctx, l); err != nil {
		t.Fatal(err)
	}
	win := domain.Bid{ID: "b1", ListingID: "l1", Bidder: "0xa", Amount: 60_000_000, Status: domain.BidStatusStanding, PlacedAt: t0}
	lose := domain.Bid{ID: "b2", ListingID: "l1", Bidder: "0xb", Amount: 30_000_000, Status: domain.BidStatusStanding, PlacedAt: t0.Add(time.Minute)}
	for _, b := range []domain.Bid{win, lose} {
		if err := s.Bids().Create(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	w := domain.SettlementWrite{
		ListingID:    "l1",
		WinningBidID: "b1",
		Sale: domain.Sale{
			ID: "s1", ListingID: "l1", AssetID: "asset-l1",
			Buyer: "0xa", Seller: "0xseller", SalePrice: 60_000_000,
			SettledAt: t0.Add(time.Hour),
		},
	}
	if err := s.Settlements().Settle(ctx, w); err != nil {
		t.Fatalf("Settle() error = %v", err)
	}

	got, _ := s.Listings().GetByID(ctx, "l1")
	if got.Status != domain.ListingStatusSold {
		t.Errorf("listing status = %q, want sold", got.Status)
	}
	b1, _ := s.Bids().GetByID(ctx, "b1")
	if b1.Status != domain.BidStatusAccepted {
		t.Errorf("winning bid status = %q, want accepted", b1.Status)
	}
	b2, _ := s.Bids().GetByID(ctx, "b2")
	if b2.Status != domain.BidStatusSuperseded {
		t.Errorf("losing bid status = %q, want superseded", b2.Status)
	}
	if _, err := s.Sales().GetByID(ctx, "s1"); err != nil {
		t.Errorf("sale not recorded: %v", err)
	}

	// Second settlement attempt must fail.
	if err := s.Settlements().Settle(ctx, w); err != domain.ErrListingSettled {
		t.Errorf("second Settle() error = %v, want ErrListingSettled", err)
	}
}

func TestSettle_ClosedOfferLeavesNothingApplied(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.Listings().Create(ctx, activeListing("l1", 100_000_000)); err != nil {
		t.Fatal(err)
	}
	o := domain.Offer{ID: "o1", AssetID: "asset-l1", Buyer: "0xa", Amount: 90_000_000, Status: domain.OfferStatusOpen}
	if err := s.Offers().Create(ctx, o); err != nil {
		t.Fatal(err)
	}
	if err := s.Offers().UpdateStatus(ctx, "o1", domain.OfferStatusOpen, domain.OfferStatusWithdrawn); err != nil {
		t.Fatal(err)
	}

	w := domain.SettlementWrite{
		ListingID: "l1",
		OfferID:   "o1",
		Sale: domain.Sale{
			ID: "s1", ListingID: "l1", AssetID: "asset-l1",
			Buyer: "0xa", Seller: "0xseller", SalePrice: 90_000_000,
			SettledAt: t0.Add(time.Hour),
		},
	}
	if err := s.Settlements().Settle(ctx, w); err != domain.ErrOfferClosed {
		t.Fatalf("Settle() error = %v, want ErrOfferClosed", err)
	}

	// The rejected write must leave no trace: listing still active and
	// purchasable, no sale recorded.
	got, _ := s.Listings().GetByID(ctx, "l1")
	if got.Status != domain.ListingStatusActive {
		t.Errorf("listing status = %q, want active", got.Status)
	}
	if _, err := s.Sales().GetByID(ctx, "s1"); err != domain.ErrNotFound {
		t.Errorf("sale lookup error = %v, want ErrNotFound", err)
	}
}

func TestExpire_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := New()

	ends := t0.Add(-time.Hour)
	l := activeListing("l1", 0)
	l.Type = domain.ListingTypeEnglish
	l.StartingPrice = 5_000_000
	l.EndsAt = &ends
	if err := s.Listings().Create(ctx, l); err != nil {
		t.Fatal(err)
	}
	if err := s.Bids().Create(ctx, domain.Bid{ID: "b1", ListingID: "l1", Amount: 1, Status: domain.BidStatusStanding}); err != nil {
		t.Fatal(err)
	}

	did, err := s.Settlements().Expire(ctx, "l1")
	if err != nil || !did {
		t.Fatalf("first Expire() = %v, %v", did, err)
	}
	got, _ := s.Listings().GetByID(ctx, "l1")
	if got.Status != domain.ListingStatusExpired {
		t.Errorf("status = %q, want expired", got.Status)
	}
	b, _ := s.Bids().GetByID(ctx, "b1")
	if b.Status != domain.BidStatusVoid {
		t.Errorf("bid status = %q, want void", b.Status)
	}

	did, err = s.Settlements().Expire(ctx, "l1")
	if err != nil || did {
		t.Errorf("second Expire() = %v, %v, want no-op", did, err)
	}
}

func TestCancel_VoidsBids(t *testing.T) {
	ctx := context.Background()
	s := New()

	l := activeListing("l1", 0)
	l.Type = domain.ListingTypeEnglish
	l.StartingPrice = 5_000_000
	if err := s.Listings().Create(ctx, l); err != nil {
		t.Fatal(err)
	}
	if err := s.Bids().Create(ctx, domain.Bid{ID: "b1", ListingID: "l1", Amount: 6_000_000, Status: domain.BidStatusStanding}); err != nil {
		t.Fatal(err)
	}

	if err := s.Settlements().Cancel(ctx, "l1"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	got, _ := s.Listings().GetByID(ctx, "l1")
	if got.Status != domain.ListingStatusCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
	b, _ := s.Bids().GetByID(ctx, "b1")
	if b.Status != domain.BidStatusVoid {
		t.Errorf("bid status = %q, want void", b.Status)
	}

	if err := s.Settlements().Cancel(ctx, "l1"); err != domain.ErrListingInactive {
		t.Errorf("second Cancel() error = %v, want ErrListingInactive", err)
	}
}

func TestList_FilterAndSort(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := activeListing("a", 300)
	a.CreatedAt = t0
	b := activeListing("b", 100)
	b.CreatedAt = t0.Add(time.Minute)
	c := activeListing("c", 200)
	c.CreatedAt = t0.Add(2 * time.Minute)
	c.Currency = domain.CurrencyBlock
	for _, l := range []domain.Listing{a, b, c} {
		if err := s.Listings().Create(ctx, l); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Listings().List(ctx, domain.ListingFilter{Sort: domain.SortPriceAsc}, domain.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != "b" || got[2].ID != "a" {
		t.Errorf("price_asc order wrong: %+v", ids(got))
	}

	got, _ = s.Listings().List(ctx, domain.ListingFilter{Currency: domain.CurrencyUSDC}, domain.ListOpts{})
	if len(got) != 2 {
		t.Errorf("currency filter returned %d listings, want 2", len(got))
	}

	got, _ = s.Listings().List(ctx, domain.ListingFilter{MinPrice: 150, MaxPrice: 250}, domain.ListOpts{})
	if len(got) != 1 || got[0].ID != "c" {
		t.Errorf("price range filter wrong: %+v", ids(got))
	}

	got, _ = s.Listings().List(ctx, domain.ListingFilter{}, domain.ListOpts{Limit: 2, Offset: 1})
	if len(got) != 2 {
		t.Errorf("pagination returned %d listings, want 2", len(got))
	}
}

func ids(ls []domain.Listing) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.ID
	}
	return out
}

func TestToggleFavorite(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Listings().Create(ctx, activeListing("l1", 1)); err != nil {
		t.Fatal(err)
	}

	on, err := s.Listings().ToggleFavorite(ctx, "l1", "0xfan")
	if err != nil || !on {
		t.Fatalf("first toggle = %v, %v, want on", on, err)
	}
	on, err = s.Listings().ToggleFavorite(ctx, "l1", "0xfan")
	if err != nil || on {
		t.Fatalf("second toggle = %v, %v, want off", on, err)
	}
	if _, err := s.Listings().ToggleFavorite(ctx, "missing", "0xfan"); err != domain.ErrNotFound {
		t.Errorf("toggle on missing listing error = %v, want ErrNotFound", err)
	}
}

func TestOffer_ExpireDue(t *testing.T) {
	ctx := context.Background()
	s := New()

	past := t0.Add(-time.Hour)
	future := t0.Add(time.Hour)
	offers := []domain.Offer{
		{ID: "o1", AssetID: "a", Buyer: "0xb", Amount: 1, Status: domain.OfferStatusOpen, ExpiresAt: &past},
		{ID: "o2", AssetID: "a", Buyer: "0xb", Amount: 1, Status: domain.OfferStatusOpen, ExpiresAt: &future},
		{ID: "o3", AssetID: "a", Buyer: "0xb", Amount: 1, Status: domain.OfferStatusOpen},
	}
	for _, o := range offers {
		if err := s.Offers().Create(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Offers().ExpireDue(ctx, t0)
	if err != nil || n != 1 {
		t.Fatalf("ExpireDue() = %d, %v, want 1", n, err)
	}
	o1, _ := s.Offers().GetByID(ctx, "o1")
	if o1.Status != domain.OfferStatusExpired {
		t.Errorf("o1 status = %q, want expired", o1.Status)
	}
	o2, _ := s.Offers().GetByID(ctx, "o2")
	if o2.Status != domain.OfferStatusOpen {
		t.Errorf("o2 status = %q, want open", o2.Status)
	}
}

func TestLockManager(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager()

	unlock, err := lm.Acquire(ctx, "listing:l1", time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := lm.Acquire(ctx, "listing:l1", time.Second); err != domain.ErrLockHeld {
		t.Errorf("second Acquire() error = %v, want ErrLockHeld", err)
	}
	// Other keys are independent.
	if _, err := lm.Acquire(ctx, "listing:l2", time.Second); err != nil {
		t.Errorf("Acquire(l2) error = %v", err)
	}

	unlock()
	unlock() // double release is safe
	if _, err := lm.Acquire(ctx, "listing:l1", time.Second); err != nil {
		t.Errorf("Acquire() after unlock error = %v", err)
	}
}
