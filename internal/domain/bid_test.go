package domain

import (
	"testing"
	"time"
)

func TestHighestBid(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		bids   []Bid
		wantID string
		wantOK bool
	}{
		{"empty", nil, "", false},
		{
			"highest amount wins",
			[]Bid{
				{ID: "a", Amount: 100, Status: BidStatusStanding, PlacedAt: t0},
				{ID: "b", Amount: 250, Status: BidStatusStanding, PlacedAt: t0.Add(time.Minute)},
				{ID: "c", Amount: 180, Status: BidStatusStanding, PlacedAt: t0.Add(2 * time.Minute)},
			},
			"b", true,
		},
		{
			"tie broken by earliest placement",
			[]Bid{
				{ID: "late", Amount: 300, Status: BidStatusStanding, PlacedAt: t0.Add(time.Hour)},
				{ID: "early", Amount: 300, Status: BidStatusStanding, PlacedAt: t0},
			},
			"early", true,
		},
		{
			"non-standing bids ignored",
			[]Bid{
				{ID: "void", Amount: 500, Status: BidStatusVoid, PlacedAt: t0},
				{ID: "live", Amount: 100, Status: BidStatusStanding, PlacedAt: t0},
			},
			"live", true,
		},
		{
			"all superseded",
			[]Bid{
				{ID: "x", Amount: 500, Status: BidStatusSuperseded, PlacedAt: t0},
			},
			"", false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := HighestBid(tt.bids)
			if ok != tt.wantOK {
				t.Fatalf("HighestBid() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.ID != tt.wantID {
				t.Errorf("HighestBid() id = %q, want %q", got.ID, tt.wantID)
			}
		})
	}
}

func TestRoyaltyAmount(t *testing.T) {
	tests := []struct {
		name  string
		price int64
		bps   int64
		want  int64
	}{
		{"zero bps", 100_000_000, 0, 0},
		{"250 bps of 100 USDC", 100_000_000, 250, 2_500_000},
		{"full 10000 bps", 42_000_000, 10000, 42_000_000},
		{"rounds down", 333, 100, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoyaltyAmount(tt.price, tt.bps); got != tt.want {
				t.Errorf("RoyaltyAmount(%d, %d) = %d, want %d", tt.price, tt.bps, got, tt.want)
			}
		})
	}
}

func TestListing_BuyPrice(t *testing.T) {
	if _, ok := (Listing{Type: ListingTypeDutch, StartingPrice: 100}).BuyPrice(); ok {
		t.Error("dutch auction should not expose a static buy price")
	}
	if p, ok := (Listing{Type: ListingTypeFixed, Price: 77}).BuyPrice(); !ok || p != 77 {
		t.Errorf("fixed BuyPrice() = %d, %v", p, ok)
	}
	if _, ok := (Listing{Type: ListingTypeEnglish}).BuyPrice(); ok {
		t.Error("english auction without buy-now should not expose a buy price")
	}
	if p, ok := (Listing{Type: ListingTypeEnglish, BuyNowPrice: 500}).BuyPrice(); !ok || p != 500 {
		t.Errorf("english BuyPrice() = %d, %v", p, ok)
	}
}
