package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// ListingSort selects the ordering of a listing query.
type ListingSort string

const (
	SortRecent     ListingSort = "recent"
	SortPriceAsc   ListingSort = "price_asc"
	SortPriceDesc  ListingSort = "price_desc"
	SortEndingSoon ListingSort = "ending_soon"
)

// ListingFilter narrows a listing query. Zero values match anything.
type ListingFilter struct {
	Status       ListingStatus
	Type         ListingType
	AssetID      string
	CollectionID string
	Seller       string
	Currency     Currency
	MinPrice     int64
	MaxPrice     int64
	Sort         ListingSort
}

// ListingStore persists listings. Status transitions happen only through
// SettlementStore; this store only writes the active-state fields.
type ListingStore interface {
	Create(ctx context.Context, l Listing) error
	GetByID(ctx context.Context, id string) (Listing, error)
	List(ctx context.Context, f ListingFilter, opts ListOpts) ([]Listing, error)
	Count(ctx context.Context, f ListingFilter) (int64, error)
	// ToggleFavorite flips the (listing, address) favorite membership and
	// returns whether the address favorites the listing afterwards.
	ToggleFavorite(ctx context.Context, id, address string) (bool, error)
	// ListEndedAuctions returns active auction listings whose EndsAt is at or
	// before now. Used by the expiry sweeper.
	ListEndedAuctions(ctx context.Context, now time.Time) ([]Listing, error)
}

// BidStore persists the append-only bid ledger.
type BidStore interface {
	Create(ctx context.Context, b Bid) error
	ListByListing(ctx context.Context, listingID string) ([]Bid, error)
	GetByID(ctx context.Context, id string) (Bid, error)
}

// OfferStore persists standing offers.
type OfferStore interface {
	Create(ctx context.Context, o Offer) error
	GetByID(ctx context.Context, id string) (Offer, error)
	ListByAsset(ctx context.Context, assetID string, opts ListOpts) ([]Offer, error)
	ListByBuyer(ctx context.Context, buyer string, opts ListOpts) ([]Offer, error)
	// UpdateStatus transitions an offer from an expected status. It returns
	// ErrOfferClosed when the offer is no longer in the expected status.
	UpdateStatus(ctx context.Context, id string, from, to OfferStatus) error
	// ExpireDue moves open offers whose ExpiresAt has passed to expired and
	// returns how many were transitioned.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

// SettlementWrite is the full write set of one settlement: the listing status
// transition, the sale record, and the bid/offer dispositions. Implementations
// apply it atomically; a reader never observes part of it.
type SettlementWrite struct {
	ListingID    string // empty when an offer on an unlisted asset settles
	Sale         Sale
	WinningBidID string // marked accepted; sibling standing bids superseded
	OfferID      string // marked accepted when the settlement came from an offer
}

// SettlementStore is the sole writer of listing status transitions and Sale
// records.
type SettlementStore interface {
	// Settle applies the write set. It fails with ErrListingSettled when the
	// listing has already left the active state, guaranteeing at most one
	// settlement per listing.
	Settle(ctx context.Context, w SettlementWrite) error
	// Expire transitions an active listing to expired (no Sale) and voids its
	// standing bids. It returns false without error when the listing is
	// already terminal, making redundant sweeps idempotent.
	Expire(ctx context.Context, listingID string) (bool, error)
	// Cancel transitions an active listing to cancelled and voids standing
	// bids. It fails with ErrListingInactive when the listing is terminal.
	Cancel(ctx context.Context, listingID string) error
}

// SaleStore reads and maintains the immutable sale log.
type SaleStore interface {
	GetByID(ctx context.Context, id string) (Sale, error)
	ListByAsset(ctx context.Context, assetID string, opts ListOpts) ([]Sale, error)
	ListSince(ctx context.Context, since time.Time, opts ListOpts) ([]Sale, error)
	ListPendingTransfers(ctx context.Context) ([]Sale, error)
	SetTransferState(ctx context.Context, id string, state TransferState, sig string) error
	Volume(ctx context.Context, from, to time.Time) (count int64, volume int64, err error)
	CollectionVolume(ctx context.Context, from, to time.Time, limit int) ([]CollectionStats, error)
}

// ActivityStore persists the derived activity feed. The feed is rebuildable;
// Reset discards it so a projector can regenerate it from the sale log.
type ActivityStore interface {
	Append(ctx context.Context, e ActivityEntry) error
	List(ctx context.Context, f ActivityFilter, opts ListOpts) ([]ActivityEntry, error)
	Reset(ctx context.Context) error
}
