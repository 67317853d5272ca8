package domain

import "time"

// ActivityType classifies an activity feed entry.
type ActivityType string

const (
	ActivityTypeList          ActivityType = "list"
	ActivityTypeCancelListing ActivityType = "cancel_listing"
	ActivityTypeBid           ActivityType = "bid"
	ActivityTypeOffer         ActivityType = "offer"
	ActivityTypeCancelOffer   ActivityType = "cancel_offer"
	ActivityTypeSale          ActivityType = "sale"
	ActivityTypeExpire        ActivityType = "expire"
)

// ActivityEntry is one row of the chronological activity feed. Entries are
// derived from listing/bid/offer/sale events and are rebuildable; they carry
// no information that is not already in the authoritative stores.
type ActivityEntry struct {
	ID           int64
	Type         ActivityType
	ListingID    string
	AssetID      string
	CollectionID string
	From         string // acting address (seller, bidder, buyer)
	To           string // counterparty, when one exists
	Amount       int64
	Currency     Currency
	CreatedAt    time.Time
}

// ActivityFilter narrows an activity feed query. Zero values match anything.
type ActivityFilter struct {
	AssetID      string
	CollectionID string
	Address      string // matches either From or To
	Type         ActivityType
}

// PricePoint is one sale on an asset's price history.
type PricePoint struct {
	AssetID   string
	Price     int64
	Currency  Currency
	SoldAt    time.Time
}

// MarketStats are marketplace-wide aggregates over a time window.
type MarketStats struct {
	ActiveListings int64
	TotalSales     int64
	Volume         int64 // summed sale prices in the window, micro-units
	WindowStart    time.Time
	WindowEnd      time.Time
}

// CollectionStats are per-collection aggregates used for trending rankings.
type CollectionStats struct {
	CollectionID string
	Sales        int64
	Volume       int64
	FloorPrice   int64 // lowest active fixed/buy-now ask, 0 if none
}
