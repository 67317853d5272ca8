package domain

import "time"

// TransferState tracks the downstream funds transfer for a committed sale.
// The sale itself is immutable once written; only the transfer state advances
// as the payment collaborator confirms or fails out-of-band.
type TransferState string

const (
	TransferStatePending     TransferState = "pending"
	TransferStateTransferred TransferState = "transferred"
	TransferStateFailed      TransferState = "failed"
)

// Sale is the immutable settlement record produced when a listing sells or an
// offer is accepted. Exactly one of ListingID / OfferID is set.
type Sale struct {
	ID            string
	ListingID     string
	OfferID       string
	AssetID       string
	Buyer         string
	Seller        string
	SalePrice     int64
	Currency      Currency
	CollectionID  string
	RoyaltyBps    int64
	RoyaltyAmount int64
	TransferState TransferState
	TransferSig   string // payment executor signature, set once transferred
	SettledAt     time.Time
}
