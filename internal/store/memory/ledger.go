package memory

import (
	"context"
	"sort"
	"time"

	"github.com/blockmart/marketd/internal/domain"
)

type bidStore struct {
	st *state
}

func (s *bidStore) Create(ctx context.Context, b domain.Bid) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.bids[b.ID] = b
	s.st.listingBids[b.ListingID] = append(s.st.listingBids[b.ListingID], b.ID)
	return nil
}

func (s *bidStore) ListByListing(ctx context.Context, listingID string) ([]domain.Bid, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	ids := s.st.listingBids[listingID]
	out := make([]domain.Bid, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.st.bids[id])
	}
	return out, nil
}

func (s *bidStore) GetByID(ctx context.Context, id string) (domain.Bid, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	b, ok := s.st.bids[id]
	if !ok {
		return domain.Bid{}, domain.ErrNotFound
	}
	return b, nil
}

var _ domain.BidStore = (*bidStore)(nil)

type offerStore struct {
	st *state
}

func (s *offerStore) Create(ctx context.Context, o domain.Offer) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.offers[o.ID] = o
	return nil
}

func (s *offerStore) GetByID(ctx context.Context, id string) (domain.Offer, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	o, ok := s.st.offers[id]
	if !ok {
		return domain.Offer{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *offerStore) ListByAsset(ctx context.Context, assetID string, opts domain.ListOpts) ([]domain.Offer, error) {
	return s.list(func(o domain.Offer) bool { return o.AssetID == assetID }, opts)
}

func (s *offerStore) ListByBuyer(ctx context.Context, buyer string, opts domain.ListOpts) ([]domain.Offer, error) {
	return s.list(func(o domain.Offer) bool { return o.Buyer == buyer }, opts)
}

func (s *offerStore) list(keep func(domain.Offer) bool, opts domain.ListOpts) ([]domain.Offer, error) {
	s.st.mu.RLock()
	out := make([]domain.Offer, 0)
	for _, o := range s.st.offers {
		if keep(o) {
			out = append(out, o)
		}
	}
	s.st.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

func (s *offerStore) UpdateStatus(ctx context.Context, id string, from, to domain.OfferStatus) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	o, ok := s.st.offers[id]
	if !ok {
		return domain.ErrNotFound
	}
	if o.Status != from {
		return domain.ErrOfferClosed
	}
	o.Status = to
	s.st.offers[id] = o
	return nil
}

func (s *offerStore) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	var n int64
	for id, o := range s.st.offers {
		if o.Status == domain.OfferStatusOpen && o.ExpiresAt != nil && !now.Before(*o.ExpiresAt) {
			o.Status = domain.OfferStatusExpired
			s.st.offers[id] = o
			n++
		}
	}
	return n, nil
}

var _ domain.OfferStore = (*offerStore)(nil)
