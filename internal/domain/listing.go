package domain

import "time"

// ListingType selects the pricing mechanism for a listing.
type ListingType string

const (
	ListingTypeFixed   ListingType = "fixed"
	ListingTypeEnglish ListingType = "english_auction"
	ListingTypeDutch   ListingType = "dutch_auction"
)

// ListingStatus tracks the listing lifecycle. A listing starts active and
// moves to exactly one of the terminal states; terminal states are never
// reversed.
type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusSold      ListingStatus = "sold"
	ListingStatusCancelled ListingStatus = "cancelled"
	ListingStatusExpired   ListingStatus = "expired"
)

// Currency is the settlement currency of a listing or offer.
type Currency string

const (
	CurrencyUSDC  Currency = "USDC"
	CurrencyBlock Currency = "BLOCK" // platform token
)

// Listing is a seller's position to sell one asset. All monetary amounts are
// fixed-point micro-units (amount * 1e6), matching the 6-decimal USDC
// convention used throughout the engine.
type Listing struct {
	ID       string
	AssetID  string
	Seller   string // hex address
	Type     ListingType
	Currency Currency
	Status   ListingStatus

	// Pricing. Which fields are meaningful depends on Type:
	//   fixed           -> Price
	//   english_auction -> StartingPrice, ReservePrice?, BuyNowPrice?, EndsAt
	//   dutch_auction   -> StartingPrice, EndingPrice, PriceDropInterval, EndsAt
	Price             int64
	StartingPrice     int64
	ReservePrice      int64 // 0 means no reserve
	BuyNowPrice       int64 // 0 means no buy-now shortcut on an English auction
	EndingPrice       int64
	PriceDropInterval time.Duration
	EndsAt            *time.Time

	CollectionID string
	RoyaltyBps   int64 // basis points owed to the creator on every sale
	FavoritedBy  []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAuction reports whether the listing is one of the two auction types.
func (l Listing) IsAuction() bool {
	return l.Type == ListingTypeEnglish || l.Type == ListingTypeDutch
}

// Terminal reports whether the listing is in a terminal lifecycle state.
func (l Listing) Terminal() bool {
	return l.Status != ListingStatusActive
}

// BuyPrice returns the price a buy-now settlement pays for the listing. For a
// Dutch auction the caller must supply the clock-computed price instead; this
// covers fixed listings and English auctions with a buy-now shortcut. The
// second return is false when the listing has no buy-now path.
func (l Listing) BuyPrice() (int64, bool) {
	switch l.Type {
	case ListingTypeFixed:
		return l.Price, true
	case ListingTypeEnglish:
		if l.BuyNowPrice > 0 {
			return l.BuyNowPrice, true
		}
	}
	return 0, false
}

// RoyaltyAmount computes the creator royalty for a sale at the given price.
func RoyaltyAmount(salePrice, royaltyBps int64) int64 {
	return salePrice * royaltyBps / 10000
}
