package domain

import "time"

// BidStatus tracks what became of a bid after it was appended to the ledger.
type BidStatus string

const (
	BidStatusStanding   BidStatus = "standing"
	BidStatusAccepted   BidStatus = "accepted"
	BidStatusSuperseded BidStatus = "superseded"
	BidStatusVoid       BidStatus = "void" // listing cancelled or expired
)

// Bid is an append-only ledger entry offering to pay Amount for an active
// auction listing. Amount is in micro-units of the listing currency.
type Bid struct {
	ID         string
	ListingID  string
	Bidder     string
	BidderName string
	Amount     int64
	Status     BidStatus
	PlacedAt   time.Time
}

// HighestBid returns the current winner of a set of ledger entries: the
// standing bid with the highest amount, ties broken by earliest PlacedAt.
// The second return is false when no standing bid exists.
func HighestBid(bids []Bid) (Bid, bool) {
	var best Bid
	found := false
	for _, b := range bids {
		if b.Status != BidStatusStanding {
			continue
		}
		if !found || b.Amount > best.Amount ||
			(b.Amount == best.Amount && b.PlacedAt.Before(best.PlacedAt)) {
			best = b
			found = true
		}
	}
	return best, found
}
