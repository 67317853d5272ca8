package memory

import (
	"context"
	"sort"
	"time"

	"github.com/blockmart/marketd/internal/domain"
)

type listingStore struct {
	st *state
}

func (s *listingStore) Create(ctx context.Context, l domain.Listing) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.listings[l.ID] = l
	return nil
}

func (s *listingStore) GetByID(ctx context.Context, id string) (domain.Listing, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	l, ok := s.st.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return l, nil
}

func matches(l domain.Listing, f domain.ListingFilter) bool {
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	if f.Type != "" && l.Type != f.Type {
		return false
	}
	if f.AssetID != "" && l.AssetID != f.AssetID {
		return false
	}
	if f.CollectionID != "" && l.CollectionID != f.CollectionID {
		return false
	}
	if f.Seller != "" && l.Seller != f.Seller {
		return false
	}
	if f.Currency != "" && l.Currency != f.Currency {
		return false
	}
	p := askPrice(l)
	if f.MinPrice > 0 && p < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && p > f.MaxPrice {
		return false
	}
	return true
}

func (s *listingStore) List(ctx context.Context, f domain.ListingFilter, opts domain.ListOpts) ([]domain.Listing, error) {
	s.st.mu.RLock()
	out := make([]domain.Listing, 0)
	for _, l := range s.st.listings {
		if matches(l, f) {
			out = append(out, l)
		}
	}
	s.st.mu.RUnlock()

	switch f.Sort {
	case domain.SortPriceAsc:
		sort.Slice(out, func(i, j int) bool { return askPrice(out[i]) < askPrice(out[j]) })
	case domain.SortPriceDesc:
		sort.Slice(out, func(i, j int) bool { return askPrice(out[i]) > askPrice(out[j]) })
	case domain.SortEndingSoon:
		sort.Slice(out, func(i, j int) bool {
			a, b := out[i].EndsAt, out[j].EndsAt
			switch {
			case a == nil:
				return false
			case b == nil:
				return true
			default:
				return a.Before(*b)
			}
		})
	default: // SortRecent
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}

	return paginate(out, opts), nil
}

func (s *listingStore) Count(ctx context.Context, f domain.ListingFilter) (int64, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	var n int64
	for _, l := range s.st.listings {
		if matches(l, f) {
			n++
		}
	}
	return n, nil
}

func (s *listingStore) ToggleFavorite(ctx context.Context, id, address string) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	l, ok := s.st.listings[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	for i, a := range l.FavoritedBy {
		if a == address {
			l.FavoritedBy = append(append([]string{}, l.FavoritedBy[:i]...), l.FavoritedBy[i+1:]...)
			s.st.listings[id] = l
			return false, nil
		}
	}
	l.FavoritedBy = append(append([]string{}, l.FavoritedBy...), address)
	s.st.listings[id] = l
	return true, nil
}

func (s *listingStore) ListEndedAuctions(ctx context.Context, now time.Time) ([]domain.Listing, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	var out []domain.Listing
	for _, l := range s.st.listings {
		if l.Status != domain.ListingStatusActive || !l.IsAuction() {
			continue
		}
		if l.EndsAt != nil && !now.Before(*l.EndsAt) {
			out = append(out, l)
		}
	}
	return out, nil
}

var _ domain.ListingStore = (*listingStore)(nil)
