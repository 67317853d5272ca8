package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/blockmart/marketd/internal/domain"
	"github.com/blockmart/marketd/internal/store/memory"
)

const (
	addrSeller = "0x1111111111111111111111111111111111111111"
	addrBuyer  = "0x2222222222222222222222222222222222222222"
	addrOther  = "0x3333333333333333333333333333333333333333"
)

type fakePayments struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakePayments) TransferFunds(ctx context.Context, from, to string, amount int64, currency domain.Currency) (domain.TransferReceipt, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return domain.TransferReceipt{}, f.err
	}
	return domain.TransferReceipt{Signature: "sig-" + from}, nil
}

type fixture struct {
	store      *memory.Store
	listings   *ListingService
	ledger     *LedgerService
	settlement *SettlementService
	activity   *ActivityService
	payments   *fakePayments
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	payments := &fakePayments{}
	locks := memory.NewLockManager()

	settlement := NewSettlementService(SettlementDeps{
		Listings: store.Listings(),
		Bids:     store.Bids(),
		Offers:   store.Offers(),
		Settle:   store.Settlements(),
		Sales:    store.Sales(),
		Activity: store.Activity(),
		Locks:    locks,
		Payments: payments,
		Logger:   logger,
	})

	return &fixture{
		store:      store,
		listings:   NewListingService(store.Listings(), store.Settlements(), store.Activity(), nil, logger),
		ledger:     NewLedgerService(store.Listings(), store.Bids(), store.Offers(), settlement, store.Activity(), locks, nil, logger),
		settlement: settlement,
		activity:   NewActivityService(store.Listings(), store.Sales(), store.Activity(), nil, logger),
		payments:   payments,
	}
}

func (f *fixture) fixedListing(t *testing.T, price int64) domain.Listing {
	t.Helper()
	l, err := f.listings.Create(context.Background(), CreateListingInput{
		AssetID:      "asset-1",
		Seller:       addrSeller,
		Type:         domain.ListingTypeFixed,
		Currency:     domain.CurrencyUSDC,
		Price:        price,
		CollectionID: "col-1",
		RoyaltyBps:   500,
	})
	if err != nil {
		t.Fatalf("create fixed listing: %v", err)
	}
	return l
}

func (f *fixture) englishListing(t *testing.T, starting, reserve, buyNow int64) domain.Listing {
	t.Helper()
	ends := time.Now().Add(time.Hour)
	l, err := f.listings.Create(context.Background(), CreateListingInput{
		AssetID:       "asset-2",
		Seller:        addrSeller,
		Type:          domain.ListingTypeEnglish,
		Currency:      domain.CurrencyUSDC,
		StartingPrice: starting,
		ReservePrice:  reserve,
		BuyNowPrice:   buyNow,
		EndsAt:        &ends,
		CollectionID:  "col-1",
	})
	if err != nil {
		t.Fatalf("create english listing: %v", err)
	}
	return l
}

func TestCreateListingValidation(t *testing.T) {
	f := newFixture(t)
	ends := time.Now().Add(time.Hour)

	tests := []struct {
		name string
		in   CreateListingInput
	}{
		{
			name: "bad seller address",
			in: CreateListingInput{
				AssetID: "a", Seller: "not-an-address",
				Type: domain.ListingTypeFixed, Currency: domain.CurrencyUSDC, Price: 100,
			},
		},
		{
			name: "fixed without price",
			in: CreateListingInput{
				AssetID: "a", Seller: addrSeller,
				Type: domain.ListingTypeFixed, Currency: domain.CurrencyUSDC,
			},
		},
		{
			name: "auction without deadline",
			in: CreateListingInput{
				AssetID: "a", Seller: addrSeller,
				Type: domain.ListingTypeEnglish, Currency: domain.CurrencyUSDC,
				StartingPrice: 100,
			},
		},
		{
			name: "dutch ending above starting",
			in: CreateListingInput{
				AssetID: "a", Seller: addrSeller,
				Type: domain.ListingTypeDutch, Currency: domain.CurrencyUSDC,
				StartingPrice: 100, EndingPrice: 200,
				PriceDropInterval: time.Minute, EndsAt: &ends,
			},
		},
		{
			name: "buy now below starting",
			in: CreateListingInput{
				AssetID: "a", Seller: addrSeller,
				Type: domain.ListingTypeEnglish, Currency: domain.CurrencyUSDC,
				StartingPrice: 100, BuyNowPrice: 50, EndsAt: &ends,
			},
		},
		{
			name: "royalty above 100 percent",
			in: CreateListingInput{
				AssetID: "a", Seller: addrSeller,
				Type: domain.ListingTypeFixed, Currency: domain.CurrencyUSDC,
				Price: 100, RoyaltyBps: 10001,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.listings.Create(context.Background(), tt.in)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestBuyNowFixed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.fixedListing(t, 100_000_000)

	sale, err := f.settlement.BuyNow(ctx, l.ID, addrBuyer)
	if err != nil {
		t.Fatalf("buy now: %v", err)
	}
	if sale.SalePrice != 100_000_000 {
		t.Fatalf("sale price = %d, want 100000000", sale.SalePrice)
	}
	if sale.RoyaltyAmount != 5_000_000 {
		t.Fatalf("royalty = %d, want 5000000", sale.RoyaltyAmount)
	}
	if sale.TransferState != domain.TransferStatePending {
		t.Fatalf("transfer state = %q, want pending", sale.TransferState)
	}

	got, err := f.listings.Get(ctx, l.ID)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if got.Status != domain.ListingStatusSold {
		t.Fatalf("status = %q, want sold", got.Status)
	}

	stored, err := f.store.Sales().GetByID(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if stored.TransferState != domain.TransferStateTransferred {
		t.Fatalf("stored transfer state = %q, want transferred", stored.TransferState)
	}
	if stored.TransferSig == "" {
		t.Fatal("expected transfer signature")
	}

	if _, err := f.settlement.BuyNow(ctx, l.ID, addrOther); !errors.Is(err, domain.ErrListingSettled) {
		t.Fatalf("second buy: expected ErrListingSettled, got %v", err)
	}
}

func TestBuyNowRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("seller buys own listing", func(t *testing.T) {
		l := f.fixedListing(t, 100)
		if _, err := f.settlement.BuyNow(ctx, l.ID, addrSeller); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("english auction without buy now", func(t *testing.T) {
		l := f.englishListing(t, 100, 0, 0)
		if _, err := f.settlement.BuyNow(ctx, l.ID, addrBuyer); !errors.Is(err, domain.ErrNoBuyNow) {
			t.Fatalf("expected ErrNoBuyNow, got %v", err)
		}
	})

	t.Run("cancelled listing", func(t *testing.T) {
		l := f.fixedListing(t, 100)
		if err := f.listings.Cancel(ctx, l.ID, addrSeller); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if _, err := f.settlement.BuyNow(ctx, l.ID, addrBuyer); !errors.Is(err, domain.ErrListingInactive) {
			t.Fatalf("expected ErrListingInactive, got %v", err)
		}
	})
}

func TestBuyNowConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.fixedListing(t, 100)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.settlement.BuyNow(ctx, l.ID, addrBuyer)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrListingSettled):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
}

func TestPlaceBidConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.englishListing(t, 100_000_000, 0, 0)

	// Every bidder offers the same minimum-clearing amount. Bids are
	// serialized per listing, so exactly one clears; the rest see the new
	// high and fall below the increment.
	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bidder := fmt.Sprintf("0x%040x", 0x4000+i)
			_, errs[i] = f.ledger.PlaceBid(ctx, l.ID, bidder, "bidder", 105_000_000)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrBidTooLow):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("accepted bids = %d, want exactly 1", wins)
	}

	ledger, err := f.ledger.ListBids(ctx, l.ID)
	if err != nil {
		t.Fatalf("list bids: %v", err)
	}
	if len(ledger) != 1 {
		t.Fatalf("ledger size = %d, want 1", len(ledger))
	}
	if ledger[0].Status != domain.BidStatusStanding || ledger[0].Amount != 105_000_000 {
		t.Fatalf("bid = %q at %d, want standing at 105000000", ledger[0].Status, ledger[0].Amount)
	}
}

func TestPlaceBidDutchConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ends := time.Now().Add(time.Hour)

	l, err := f.listings.Create(ctx, CreateListingInput{
		AssetID:           "asset-dc",
		Seller:            addrSeller,
		Type:              domain.ListingTypeDutch,
		Currency:          domain.CurrencyUSDC,
		StartingPrice:     100_000_000,
		EndingPrice:       10_000_000,
		PriceDropInterval: time.Minute,
		EndsAt:            &ends,
	})
	if err != nil {
		t.Fatalf("create dutch listing: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]BidResult, 2)
	errs := make([]error, 2)
	bidders := []string{addrBuyer, addrOther}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.ledger.PlaceBid(ctx, l.ID, bidders[i], "bidder", 120_000_000)
		}(i)
	}
	wg.Wait()

	wins := 0
	for i := range errs {
		switch {
		case errs[i] == nil:
			wins++
			if results[i].Sale == nil {
				t.Fatal("winning dutch bid must settle immediately")
			}
		case errors.Is(errs[i], domain.ErrListingInactive):
			// Loser entered the lock after the listing sold.
		default:
			t.Fatalf("unexpected error: %v", errs[i])
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}

	// The loser must leave no stray standing bid on the sold listing.
	ledger, err := f.ledger.ListBids(ctx, l.ID)
	if err != nil {
		t.Fatalf("list bids: %v", err)
	}
	if len(ledger) != 1 {
		t.Fatalf("ledger size = %d, want 1", len(ledger))
	}
	if ledger[0].Status != domain.BidStatusAccepted {
		t.Fatalf("bid status = %q, want accepted", ledger[0].Status)
	}
}

func TestPlaceBidEnglish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.englishListing(t, 100_000_000, 0, 0)

	// Below starting + 5% increment.
	if _, err := f.ledger.PlaceBid(ctx, l.ID, addrBuyer, "buyer", 100_000_000); !errors.Is(err, domain.ErrBidTooLow) {
		t.Fatalf("expected ErrBidTooLow, got %v", err)
	}

	res, err := f.ledger.PlaceBid(ctx, l.ID, addrBuyer, "buyer", 105_000_000)
	if err != nil {
		t.Fatalf("first bid: %v", err)
	}
	if res.Sale != nil {
		t.Fatal("english bid must not settle")
	}
	if res.Bid.Status != domain.BidStatusStanding {
		t.Fatalf("bid status = %q, want standing", res.Bid.Status)
	}

	// Next bid must clear 105M + 5%.
	if _, err := f.ledger.PlaceBid(ctx, l.ID, addrOther, "other", 110_000_000); !errors.Is(err, domain.ErrBidTooLow) {
		t.Fatalf("expected ErrBidTooLow, got %v", err)
	}
	if _, err := f.ledger.PlaceBid(ctx, l.ID, addrOther, "other", 110_250_000); err != nil {
		t.Fatalf("second bid: %v", err)
	}

	bids, err := f.ledger.ListBids(ctx, l.ID)
	if err != nil {
		t.Fatalf("list bids: %v", err)
	}
	if len(bids) != 2 {
		t.Fatalf("len(bids) = %d, want 2", len(bids))
	}

	if _, err := f.ledger.PlaceBid(ctx, l.ID, addrSeller, "seller", 200_000_000); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("seller self-bid: expected ErrValidation, got %v", err)
	}
}

func TestAcceptBid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("reserve not met", func(t *testing.T) {
		l := f.englishListing(t, 100, 200, 0)
		if _, err := f.ledger.PlaceBid(ctx, l.ID, addrBuyer, "buyer", 105); err != nil {
			t.Fatalf("bid: %v", err)
		}
		if _, err := f.settlement.AcceptBid(ctx, l.ID, addrSeller); !errors.Is(err, domain.ErrReserveNotMet) {
			t.Fatalf("expected ErrReserveNotMet, got %v", err)
		}
	})

	t.Run("settles at highest standing bid", func(t *testing.T) {
		l := f.englishListing(t, 100, 0, 0)
		first, err := f.ledger.PlaceBid(ctx, l.ID, addrBuyer, "buyer", 105)
		if err != nil {
			t.Fatalf("bid: %v", err)
		}
		second, err := f.ledger.PlaceBid(ctx, l.ID, addrOther, "other", 150)
		if err != nil {
			t.Fatalf("bid: %v", err)
		}

		if _, err := f.settlement.AcceptBid(ctx, l.ID, addrOther); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("non-seller accept: expected ErrUnauthorized, got %v", err)
		}

		sale, err := f.settlement.AcceptBid(ctx, l.ID, addrSeller)
		if err != nil {
			t.Fatalf("accept: %v", err)
		}
		if sale.Buyer != addrOther || sale.SalePrice != 150 {
			t.Fatalf("sale = buyer %q price %d, want %q / 150", sale.Buyer, sale.SalePrice, addrOther)
		}

		won, err := f.store.Bids().GetByID(ctx, second.Bid.ID)
		if err != nil {
			t.Fatalf("get bid: %v", err)
		}
		if won.Status != domain.BidStatusAccepted {
			t.Fatalf("winning bid status = %q, want accepted", won.Status)
		}
		lost, err := f.store.Bids().GetByID(ctx, first.Bid.ID)
		if err != nil {
			t.Fatalf("get bid: %v", err)
		}
		if lost.Status != domain.BidStatusSuperseded {
			t.Fatalf("losing bid status = %q, want superseded", lost.Status)
		}
	})

	t.Run("no standing bids", func(t *testing.T) {
		l := f.englishListing(t, 100, 0, 0)
		if _, err := f.settlement.AcceptBid(ctx, l.ID, addrSeller); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestPlaceBidDutchSettlesImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ends := time.Now().Add(time.Hour)

	l, err := f.listings.Create(ctx, CreateListingInput{
		AssetID:           "asset-d",
		Seller:            addrSeller,
		Type:              domain.ListingTypeDutch,
		Currency:          domain.CurrencyUSDC,
		StartingPrice:     100_000_000,
		EndingPrice:       10_000_000,
		PriceDropInterval: time.Minute,
		EndsAt:            &ends,
	})
	if err != nil {
		t.Fatalf("create dutch listing: %v", err)
	}

	// Just created, so the clock price is still the starting price.
	if _, err := f.ledger.PlaceBid(ctx, l.ID, addrBuyer, "buyer", 50_000_000); !errors.Is(err, domain.ErrBidTooLow) {
		t.Fatalf("expected ErrBidTooLow, got %v", err)
	}

	res, err := f.ledger.PlaceBid(ctx, l.ID, addrBuyer, "buyer", 120_000_000)
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	if res.Sale == nil {
		t.Fatal("dutch bid must settle immediately")
	}
	// Settles at the clock price, not the offered amount.
	if res.Sale.SalePrice != 100_000_000 {
		t.Fatalf("sale price = %d, want 100000000", res.Sale.SalePrice)
	}

	got, err := f.listings.Get(ctx, l.ID)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if got.Status != domain.ListingStatusSold {
		t.Fatalf("status = %q, want sold", got.Status)
	}

	won, err := f.store.Bids().GetByID(ctx, res.Bid.ID)
	if err != nil {
		t.Fatalf("get bid: %v", err)
	}
	if won.Status != domain.BidStatusAccepted {
		t.Fatalf("bid status = %q, want accepted", won.Status)
	}
}

func TestOffers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("withdraw", func(t *testing.T) {
		o, err := f.ledger.MakeOffer(ctx, "asset-o", addrBuyer, 50, domain.CurrencyUSDC, nil)
		if err != nil {
			t.Fatalf("make offer: %v", err)
		}
		if err := f.ledger.WithdrawOffer(ctx, o.ID, addrOther); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if err := f.ledger.WithdrawOffer(ctx, o.ID, addrBuyer); err != nil {
			t.Fatalf("withdraw: %v", err)
		}
		if err := f.ledger.WithdrawOffer(ctx, o.ID, addrBuyer); !errors.Is(err, domain.ErrOfferClosed) {
			t.Fatalf("double withdraw: expected ErrOfferClosed, got %v", err)
		}
	})

	t.Run("accept on listed asset settles listing too", func(t *testing.T) {
		l := f.fixedListing(t, 100)
		o, err := f.ledger.MakeOffer(ctx, l.AssetID, addrBuyer, 80, domain.CurrencyUSDC, nil)
		if err != nil {
			t.Fatalf("make offer: %v", err)
		}

		if _, err := f.settlement.AcceptOffer(ctx, o.ID, addrOther); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("non-seller accept: expected ErrUnauthorized, got %v", err)
		}

		sale, err := f.settlement.AcceptOffer(ctx, o.ID, addrSeller)
		if err != nil {
			t.Fatalf("accept: %v", err)
		}
		if sale.SalePrice != 80 || sale.Buyer != addrBuyer {
			t.Fatalf("sale = price %d buyer %q, want 80 / %q", sale.SalePrice, sale.Buyer, addrBuyer)
		}

		got, err := f.listings.Get(ctx, l.ID)
		if err != nil {
			t.Fatalf("get listing: %v", err)
		}
		if got.Status != domain.ListingStatusSold {
			t.Fatalf("listing status = %q, want sold", got.Status)
		}

		stored, err := f.store.Offers().GetByID(ctx, o.ID)
		if err != nil {
			t.Fatalf("get offer: %v", err)
		}
		if stored.Status != domain.OfferStatusAccepted {
			t.Fatalf("offer status = %q, want accepted", stored.Status)
		}

		if _, err := f.settlement.AcceptOffer(ctx, o.ID, addrSeller); !errors.Is(err, domain.ErrOfferClosed) {
			t.Fatalf("double accept: expected ErrOfferClosed, got %v", err)
		}
	})

	t.Run("accept on unlisted asset", func(t *testing.T) {
		o, err := f.ledger.MakeOffer(ctx, "asset-unlisted", addrBuyer, 70, domain.CurrencyUSDC, nil)
		if err != nil {
			t.Fatalf("make offer: %v", err)
		}
		sale, err := f.settlement.AcceptOffer(ctx, o.ID, addrOther)
		if err != nil {
			t.Fatalf("accept: %v", err)
		}
		if sale.Seller != addrOther || sale.ListingID != "" {
			t.Fatalf("sale = seller %q listing %q, want %q / empty", sale.Seller, sale.ListingID, addrOther)
		}
	})

	t.Run("accept own offer", func(t *testing.T) {
		o, err := f.ledger.MakeOffer(ctx, "asset-self", addrBuyer, 70, domain.CurrencyUSDC, nil)
		if err != nil {
			t.Fatalf("make offer: %v", err)
		}
		if _, err := f.settlement.AcceptOffer(ctx, o.ID, addrBuyer); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestCancelListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.fixedListing(t, 100)

	if err := f.listings.Cancel(ctx, l.ID, addrOther); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.listings.Cancel(ctx, l.ID, addrSeller); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := f.listings.Cancel(ctx, l.ID, addrSeller); !errors.Is(err, domain.ErrListingInactive) {
		t.Fatalf("double cancel: expected ErrListingInactive, got %v", err)
	}
}

func TestTransferFailureRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.payments.err = errors.New("executor unavailable")

	l := f.fixedListing(t, 100)
	sale, err := f.settlement.BuyNow(ctx, l.ID, addrBuyer)
	if err != nil {
		t.Fatalf("buy now: %v", err)
	}

	stored, err := f.store.Sales().GetByID(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if stored.TransferState != domain.TransferStateFailed {
		t.Fatalf("transfer state = %q, want failed", stored.TransferState)
	}

	// The sweeper retry path picks the failed transfer up once the executor
	// recovers.
	f.payments.err = nil
	if err := f.settlement.RetryPendingTransfers(ctx); err != nil {
		t.Fatalf("retry transfers: %v", err)
	}
	stored, err = f.store.Sales().GetByID(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if stored.TransferState != domain.TransferStateTransferred {
		t.Fatalf("transfer state after retry = %q, want transferred", stored.TransferState)
	}
}

func TestStatsAndPriceHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l := f.fixedListing(t, 100)
	if _, err := f.settlement.BuyNow(ctx, l.ID, addrBuyer); err != nil {
		t.Fatalf("buy now: %v", err)
	}

	stats, err := f.activity.Stats(ctx, Window24h)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalSales != 1 || stats.Volume != 100 {
		t.Fatalf("stats = %d sales / %d volume, want 1 / 100", stats.TotalSales, stats.Volume)
	}
	if stats.ActiveListings != 0 {
		t.Fatalf("active listings = %d, want 0", stats.ActiveListings)
	}

	if _, err := f.activity.Stats(ctx, "6h"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unknown window: expected ErrValidation, got %v", err)
	}

	points, err := f.activity.PriceHistory(ctx, l.AssetID, domain.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("price history: %v", err)
	}
	if len(points) != 1 || points[0].Price != 100 {
		t.Fatalf("points = %+v, want one point at 100", points)
	}
}

func TestRebuildActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l := f.fixedListing(t, 100)
	if _, err := f.settlement.BuyNow(ctx, l.ID, addrBuyer); err != nil {
		t.Fatalf("buy now: %v", err)
	}

	n, err := f.activity.Rebuild(ctx)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if n != 1 {
		t.Fatalf("rebuilt = %d, want 1", n)
	}

	entries, err := f.activity.Feed(ctx, domain.ActivityFilter{}, domain.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != domain.ActivityTypeSale {
		t.Fatalf("entries = %+v, want one sale entry", entries)
	}
}
