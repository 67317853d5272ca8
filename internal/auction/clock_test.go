package auction

import (
	"testing"
	"time"

	"github.com/blockmart/marketd/internal/domain"
)

func dutchListing(start, end int64, interval time.Duration, steps int64) domain.Listing {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	endsAt := created.Add(time.Duration(steps) * interval)
	return domain.Listing{
		Type:              domain.ListingTypeDutch,
		StartingPrice:     start,
		EndingPrice:       end,
		PriceDropInterval: interval,
		CreatedAt:         created,
		EndsAt:            &endsAt,
	}
}

func TestCurrentPrice_DutchLinearDecay(t *testing.T) {
	// 100 -> 10 over 10 one-hour intervals.
	l := dutchListing(100_000_000, 10_000_000, time.Hour, 10)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    int64
	}{
		{"at creation", 0, 100_000_000},
		{"mid first interval", 30 * time.Minute, 100_000_000},
		{"after one interval", time.Hour, 91_000_000},
		{"interval five", 5 * time.Hour, 55_000_000},
		{"just before a tick", 5*time.Hour + 59*time.Minute, 55_000_000},
		{"interval nine", 9 * time.Hour, 19_000_000},
		{"at deadline", 10 * time.Hour, 10_000_000},
		{"past deadline", 24 * time.Hour, 10_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := l.CreatedAt.Add(tt.elapsed)
			if got := CurrentPrice(l, now); got != tt.want {
				t.Errorf("CurrentPrice(+%v) = %d, want %d", tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestCurrentPrice_DutchMonotonicAndBounded(t *testing.T) {
	l := dutchListing(250_000_000, 40_000_000, 15*time.Minute, 48)

	prev := int64(1<<62 - 1)
	for m := 0; m <= 48*15+60; m += 7 {
		now := l.CreatedAt.Add(time.Duration(m) * time.Minute)
		p := CurrentPrice(l, now)
		if p > prev {
			t.Fatalf("price increased at +%dm: %d > %d", m, p, prev)
		}
		if p < l.EndingPrice || p > l.StartingPrice {
			t.Fatalf("price %d at +%dm outside [%d, %d]", p, m, l.EndingPrice, l.StartingPrice)
		}
		prev = p
	}
}

func TestCurrentPrice_NonDutch(t *testing.T) {
	fixed := domain.Listing{Type: domain.ListingTypeFixed, Price: 42}
	if got := CurrentPrice(fixed, time.Now()); got != 42 {
		t.Errorf("fixed CurrentPrice = %d, want 42", got)
	}
	english := domain.Listing{Type: domain.ListingTypeEnglish, StartingPrice: 10}
	if got := CurrentPrice(english, time.Now()); got != 10 {
		t.Errorf("english CurrentPrice = %d, want 10", got)
	}
}

func TestMinBid(t *testing.T) {
	l := domain.Listing{Type: domain.ListingTypeEnglish, StartingPrice: 100_000_000}

	tests := []struct {
		name    string
		highBid int64
		want    int64
	}{
		{"no bids: starting price plus increment", 0, 105_000_000},
		{"high bid below starting", 50_000_000, 105_000_000},
		{"high bid above starting", 200_000_000, 210_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MinBid(l, tt.highBid); got != tt.want {
				t.Errorf("MinBid(high=%d) = %d, want %d", tt.highBid, got, tt.want)
			}
		})
	}
}

func TestExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	if Expired(domain.Listing{}, now) {
		t.Error("listing without deadline should never expire")
	}
	if !Expired(domain.Listing{EndsAt: &past}, now) {
		t.Error("past deadline should be expired")
	}
	if !Expired(domain.Listing{EndsAt: &now}, now) {
		t.Error("deadline exactly now should be expired")
	}
	if Expired(domain.Listing{EndsAt: &future}, now) {
		t.Error("future deadline should not be expired")
	}
}

func TestReserveMet(t *testing.T) {
	l := domain.Listing{ReservePrice: 50_000_000}
	if ReserveMet(l, 49_999_999) {
		t.Error("amount below reserve should not satisfy it")
	}
	if !ReserveMet(l, 50_000_000) {
		t.Error("amount at reserve should satisfy it")
	}
	if !ReserveMet(domain.Listing{}, 1) {
		t.Error("no reserve should always be satisfied")
	}
}
