package memory

import (
	"context"

	"github.com/blockmart/marketd/internal/domain"
)

type settlementStore struct {
	st *state
}

// Settle applies the full settlement write set under the state write lock:
// the listing status transition, the sale record, and the bid/offer
// dispositions all become visible together.
func (s *settlementStore) Settle(ctx context.Context, w domain.SettlementWrite) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	// Every precondition is checked before any state changes, so a rejected
	// write leaves nothing applied, same as the postgres transaction.
	var l domain.Listing
	if w.ListingID != "" {
		var ok bool
		l, ok = s.st.listings[w.ListingID]
		if !ok {
			return domain.ErrNotFound
		}
		if l.Status != domain.ListingStatusActive {
			return domain.ErrListingSettled
		}
	}
	var o domain.Offer
	if w.OfferID != "" {
		var ok bool
		o, ok = s.st.offers[w.OfferID]
		if !ok {
			return domain.ErrNotFound
		}
		if o.Status != domain.OfferStatusOpen {
			return domain.ErrOfferClosed
		}
	}

	if w.ListingID != "" {
		l.Status = domain.ListingStatusSold
		l.UpdatedAt = w.Sale.SettledAt
		s.st.listings[w.ListingID] = l

		for _, id := range s.st.listingBids[w.ListingID] {
			b := s.st.bids[id]
			if b.Status != domain.BidStatusStanding {
				continue
			}
			if id == w.WinningBidID {
				b.Status = domain.BidStatusAccepted
			} else {
				b.Status = domain.BidStatusSuperseded
			}
			s.st.bids[id] = b
		}
	}

	if w.OfferID != "" {
		o.Status = domain.OfferStatusAccepted
		s.st.offers[w.OfferID] = o
	}

	s.st.sales[w.Sale.ID] = w.Sale
	s.st.saleOrder = append(s.st.saleOrder, w.Sale.ID)
	return nil
}

// Expire transitions an active listing to expired and voids standing bids.
// Already-terminal listings are a no-op, so redundant sweeps are safe.
func (s *settlementStore) Expire(ctx context.Context, listingID string) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	l, ok := s.st.listings[listingID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if l.Status != domain.ListingStatusActive {
		return false, nil
	}
	l.Status = domain.ListingStatusExpired
	s.st.listings[listingID] = l
	s.st.voidStandingBidsLocked(listingID)
	return true, nil
}

// Cancel transitions an active listing to cancelled and voids standing bids.
func (s *settlementStore) Cancel(ctx context.Context, listingID string) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	l, ok := s.st.listings[listingID]
	if !ok {
		return domain.ErrNotFound
	}
	if l.Status != domain.ListingStatusActive {
		return domain.ErrListingInactive
	}
	l.Status = domain.ListingStatusCancelled
	s.st.listings[listingID] = l
	s.st.voidStandingBidsLocked(listingID)
	return nil
}

var _ domain.SettlementStore = (*settlementStore)(nil)
