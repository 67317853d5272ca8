package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/blockmart/marketd/internal/domain"
	"github.com/blockmart/marketd/internal/service"
	"github.com/blockmart/marketd/internal/store/memory"
)

func TestSweeperExpiresEndedAuctionsAndOffers(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()

	settlement := service.NewSettlementService(service.SettlementDeps{
		Listings: store.Listings(),
		Bids:     store.Bids(),
		Offers:   store.Offers(),
		Settle:   store.Settlements(),
		Sales:    store.Sales(),
		Activity: store.Activity(),
		Locks:    memory.NewLockManager(),
		Logger:   logger,
	})
	sweeper := NewSweeper(store.Listings(), store.Offers(), settlement, logger)

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	ended := domain.Listing{
		ID: uuid.New().String(), AssetID: "a1",
		Seller: "0x1111111111111111111111111111111111111111",
		Type:   domain.ListingTypeEnglish, Currency: domain.CurrencyUSDC,
		Status: domain.ListingStatusActive, StartingPrice: 100,
		EndsAt: &past, CreatedAt: past.Add(-time.Hour),
	}
	running := domain.Listing{
		ID: uuid.New().String(), AssetID: "a2",
		Seller: "0x1111111111111111111111111111111111111111",
		Type:   domain.ListingTypeEnglish, Currency: domain.CurrencyUSDC,
		Status: domain.ListingStatusActive, StartingPrice: 100,
		EndsAt: &future, CreatedAt: time.Now(),
	}
	for _, l := range []domain.Listing{ended, running} {
		if err := store.Listings().Create(ctx, l); err != nil {
			t.Fatalf("create listing: %v", err)
		}
	}

	bid := domain.Bid{
		ID: uuid.New().String(), ListingID: ended.ID,
		Bidder: "0x2222222222222222222222222222222222222222",
		Amount: 105, Status: domain.BidStatusStanding, PlacedAt: past,
	}
	if err := store.Bids().Create(ctx, bid); err != nil {
		t.Fatalf("create bid: %v", err)
	}

	stale := domain.Offer{
		ID: uuid.New().String(), AssetID: "a3",
		Buyer:  "0x2222222222222222222222222222222222222222",
		Amount: 50, Currency: domain.CurrencyUSDC,
		Status: domain.OfferStatusOpen, CreatedAt: past, ExpiresAt: &past,
	}
	if err := store.Offers().Create(ctx, stale); err != nil {
		t.Fatalf("create offer: %v", err)
	}

	if err := sweeper.Run(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, err := store.Listings().GetByID(ctx, ended.ID)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if got.Status != domain.ListingStatusExpired {
		t.Fatalf("ended auction status = %q, want expired", got.Status)
	}

	still, err := store.Listings().GetByID(ctx, running.ID)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if still.Status != domain.ListingStatusActive {
		t.Fatalf("running auction status = %q, want active", still.Status)
	}

	voided, err := store.Bids().GetByID(ctx, bid.ID)
	if err != nil {
		t.Fatalf("get bid: %v", err)
	}
	if voided.Status != domain.BidStatusVoid {
		t.Fatalf("bid status = %q, want void", voided.Status)
	}

	o, err := store.Offers().GetByID(ctx, stale.ID)
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	if o.Status != domain.OfferStatusExpired {
		t.Fatalf("offer status = %q, want expired", o.Status)
	}

	// A second sweep finds nothing to transition.
	if err := sweeper.Run(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
}
