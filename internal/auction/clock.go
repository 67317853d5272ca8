// Package auction computes auction prices as pure functions of listing
// parameters and time. It holds no mutable state, so concurrent readers can
// evaluate it freely.
package auction

import (
	"time"

	"github.com/blockmart/marketd/internal/domain"
)

// MinIncrementBps is the minimum English-auction bid increment, in basis
// points of the current base price. It prevents degenerate 1-unit outbids.
const MinIncrementBps = 500 // 5%

// MinBid returns the minimum acceptable next bid on an English auction:
// max(highest standing bid, starting price) plus the minimum increment.
// Pass highBid = 0 when no standing bid exists.
func MinBid(l domain.Listing, highBid int64) int64 {
	base := l.StartingPrice
	if highBid > base {
		base = highBid
	}
	return base + base*MinIncrementBps/10000
}

// CurrentPrice returns the effective price of a Dutch auction at time now.
// The price decays linearly from StartingPrice at listing creation to
// EndingPrice at EndsAt, but only moves at PriceDropInterval boundaries. At
// or after EndsAt it is clamped to EndingPrice.
//
// For non-Dutch listings it returns the static ask where one exists.
func CurrentPrice(l domain.Listing, now time.Time) int64 {
	if l.Type != domain.ListingTypeDutch {
		if p, ok := l.BuyPrice(); ok {
			return p
		}
		return l.StartingPrice
	}
	if l.EndsAt == nil || l.PriceDropInterval <= 0 {
		return l.StartingPrice
	}
	if !now.Before(*l.EndsAt) {
		return l.EndingPrice
	}

	totalSteps := int64(l.EndsAt.Sub(l.CreatedAt) / l.PriceDropInterval)
	if totalSteps <= 0 {
		return l.StartingPrice
	}
	elapsed := int64(now.Sub(l.CreatedAt) / l.PriceDropInterval)
	if elapsed <= 0 {
		return l.StartingPrice
	}
	if elapsed >= totalSteps {
		return l.EndingPrice
	}
	return l.StartingPrice - (l.StartingPrice-l.EndingPrice)*elapsed/totalSteps
}

// Expired reports whether an auction listing's clock has run out at time now.
// Listings without a deadline never expire.
func Expired(l domain.Listing, now time.Time) bool {
	return l.EndsAt != nil && !now.Before(*l.EndsAt)
}

// ReserveMet reports whether amount satisfies the listing's reserve price.
// Listings without a reserve are always satisfied.
func ReserveMet(l domain.Listing, amount int64) bool {
	return l.ReservePrice == 0 || amount >= l.ReservePrice
}
