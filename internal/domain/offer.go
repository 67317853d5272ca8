package domain

import "time"

// OfferStatus tracks the offer lifecycle.
type OfferStatus string

const (
	OfferStatusOpen      OfferStatus = "open"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusExpired   OfferStatus = "expired"
	OfferStatusWithdrawn OfferStatus = "withdrawn"
)

// Offer is a standing bid to buy a specific asset, independent of any active
// listing. A buyer may hold multiple open offers on the same asset; accept and
// withdraw act on a single offer by ID.
type Offer struct {
	ID        string
	AssetID   string
	Buyer     string
	Amount    int64
	Currency  Currency
	Status    OfferStatus
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// Open reports whether the offer can still be accepted or withdrawn.
func (o Offer) Open() bool {
	return o.Status == OfferStatusOpen
}
