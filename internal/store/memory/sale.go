package memory

import (
	"context"
	"sort"
	"time"

	"github.com/blockmart/marketd/internal/domain"
)

type saleStore struct {
	st *state
}

func (s *saleStore) GetByID(ctx context.Context, id string) (domain.Sale, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	sale, ok := s.st.sales[id]
	if !ok {
		return domain.Sale{}, domain.ErrNotFound
	}
	return sale, nil
}

func (s *saleStore) ListByAsset(ctx context.Context, assetID string, opts domain.ListOpts) ([]domain.Sale, error) {
	return s.list(func(sl domain.Sale) bool { return sl.AssetID == assetID }, opts)
}

func (s *saleStore) ListSince(ctx context.Context, since time.Time, opts domain.ListOpts) ([]domain.Sale, error) {
	return s.list(func(sl domain.Sale) bool { return !sl.SettledAt.Before(since) }, opts)
}

func (s *saleStore) ListPendingTransfers(ctx context.Context) ([]domain.Sale, error) {
	return s.list(func(sl domain.Sale) bool {
		return sl.TransferState == domain.TransferStatePending || sl.TransferState == domain.TransferStateFailed
	}, domain.ListOpts{})
}

func (s *saleStore) list(keep func(domain.Sale) bool, opts domain.ListOpts) ([]domain.Sale, error) {
	s.st.mu.RLock()
	out := make([]domain.Sale, 0)
	for _, id := range s.st.saleOrder {
		if sl := s.st.sales[id]; keep(sl) {
			out = append(out, sl)
		}
	}
	s.st.mu.RUnlock()
	// Sale order is insertion order, which is settlement-chronological.
	return paginate(out, opts), nil
}

func (s *saleStore) SetTransferState(ctx context.Context, id string, state domain.TransferState, sig string) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	sale, ok := s.st.sales[id]
	if !ok {
		return domain.ErrNotFound
	}
	sale.TransferState = state
	if sig != "" {
		sale.TransferSig = sig
	}
	s.st.sales[id] = sale
	return nil
}

func (s *saleStore) Volume(ctx context.Context, from, to time.Time) (int64, int64, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	var count, volume int64
	for _, sl := range s.st.sales {
		if sl.SettledAt.Before(from) || !sl.SettledAt.Before(to) {
			continue
		}
		count++
		volume += sl.SalePrice
	}
	return count, volume, nil
}

func (s *saleStore) CollectionVolume(ctx context.Context, from, to time.Time, limit int) ([]domain.CollectionStats, error) {
	s.st.mu.RLock()
	agg := make(map[string]*domain.CollectionStats)
	for _, sl := range s.st.sales {
		if sl.CollectionID == "" || sl.SettledAt.Before(from) || !sl.SettledAt.Before(to) {
			continue
		}
		cs, ok := agg[sl.CollectionID]
		if !ok {
			cs = &domain.CollectionStats{CollectionID: sl.CollectionID}
			agg[sl.CollectionID] = cs
		}
		cs.Sales++
		cs.Volume += sl.SalePrice
	}
	// Floor price from active listings with a static ask.
	for _, l := range s.st.listings {
		if l.Status != domain.ListingStatusActive || l.CollectionID == "" {
			continue
		}
		cs, ok := agg[l.CollectionID]
		if !ok {
			continue
		}
		if p, ok := l.BuyPrice(); ok && (cs.FloorPrice == 0 || p < cs.FloorPrice) {
			cs.FloorPrice = p
		}
	}
	s.st.mu.RUnlock()

	out := make([]domain.CollectionStats, 0, len(agg))
	for _, cs := range agg {
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Volume > out[j].Volume })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

var _ domain.SaleStore = (*saleStore)(nil)

type activityStore struct {
	st *state
}

func (s *activityStore) Append(ctx context.Context, e domain.ActivityEntry) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.activityID++
	e.ID = s.st.activityID
	s.st.activity = append(s.st.activity, e)
	return nil
}

func (s *activityStore) List(ctx context.Context, f domain.ActivityFilter, opts domain.ListOpts) ([]domain.ActivityEntry, error) {
	s.st.mu.RLock()
	out := make([]domain.ActivityEntry, 0)
	// Newest first.
	for i := len(s.st.activity) - 1; i >= 0; i-- {
		e := s.st.activity[i]
		if f.AssetID != "" && e.AssetID != f.AssetID {
			continue
		}
		if f.CollectionID != "" && e.CollectionID != f.CollectionID {
			continue
		}
		if f.Address != "" && e.From != f.Address && e.To != f.Address {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		out = append(out, e)
	}
	s.st.mu.RUnlock()
	return paginate(out, opts), nil
}

func (s *activityStore) Reset(ctx context.Context) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.activity = nil
	s.st.activityID = 0
	return nil
}

var _ domain.ActivityStore = (*activityStore)(nil)
