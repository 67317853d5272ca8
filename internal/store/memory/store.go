// Package memory implements the domain store interfaces with mutex-guarded
// in-process maps. It backs the standalone development mode and the service
// test suites; production deployments use the postgres package.
package memory

import (
	"sync"

	"github.com/blockmart/marketd/internal/domain"
)

// state is the shared backing data. One RWMutex guards every aggregate so
// settlement writes are atomic with respect to concurrent readers.
type state struct {
	mu sync.RWMutex

	listings map[string]domain.Listing

	bids        map[string]domain.Bid
	listingBids map[string][]string // listing ID -> bid IDs in placement order

	offers map[string]domain.Offer

	sales     map[string]domain.Sale
	saleOrder []string

	activity   []domain.ActivityEntry
	activityID int64
}

// Store bundles every in-memory store view over one shared state.
type Store struct {
	st *state
}

// New creates an empty Store.
func New() *Store {
	return &Store{st: &state{
		listings:    make(map[string]domain.Listing),
		bids:        make(map[string]domain.Bid),
		listingBids: make(map[string][]string),
		offers:      make(map[string]domain.Offer),
		sales:       make(map[string]domain.Sale),
	}}
}

// Listings returns the listing store view.
func (s *Store) Listings() domain.ListingStore { return &listingStore{s.st} }

// Bids returns the bid ledger view.
func (s *Store) Bids() domain.BidStore { return &bidStore{s.st} }

// Offers returns the offer store view.
func (s *Store) Offers() domain.OfferStore { return &offerStore{s.st} }

// Settlements returns the settlement store view.
func (s *Store) Settlements() domain.SettlementStore { return &settlementStore{s.st} }

// Sales returns the sale log view.
func (s *Store) Sales() domain.SaleStore { return &saleStore{s.st} }

// Activity returns the activity feed view.
func (s *Store) Activity() domain.ActivityStore { return &activityStore{s.st} }

// askPrice is the price a listing is sorted and range-filtered by: the static
// buy price where one exists, otherwise the auction starting price.
func askPrice(l domain.Listing) int64 {
	if p, ok := l.BuyPrice(); ok {
		return p
	}
	return l.StartingPrice
}

func paginate[T any](in []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(in) {
			return []T{}
		}
		in = in[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(in) {
		in = in[:opts.Limit]
	}
	return in
}

// voidStandingBidsLocked marks every standing bid on the listing void.
// Caller holds the write lock.
func (st *state) voidStandingBidsLocked(listingID string) {
	for _, id := range st.listingBids[listingID] {
		if b := st.bids[id]; b.Status == domain.BidStatusStanding {
			b.Status = domain.BidStatusVoid
			st.bids[id] = b
		}
	}
}
