package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/blockmart/marketd/internal/domain"
)

// Broadcaster pushes activity entries to live subscribers (the WebSocket
// hub). Implementations must not block.
type Broadcaster interface {
	Broadcast(e domain.ActivityEntry)
}

// nopBroadcaster is used when no hub is attached.
type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(domain.ActivityEntry) {}

// CreateListingInput carries the client-supplied fields of a new listing.
type CreateListingInput struct {
	AssetID           string
	Seller            string
	Type              domain.ListingType
	Currency          domain.Currency
	Price             int64
	StartingPrice     int64
	ReservePrice      int64
	BuyNowPrice       int64
	EndingPrice       int64
	PriceDropInterval time.Duration
	EndsAt            *time.Time
	CollectionID      string
	RoyaltyBps        int64
}

// ListingService owns listing creation, queries, cancellation, and the
// favorite toggle. Status transitions go through the settlement store, which
// is their sole writer.
type ListingService struct {
	listings domain.ListingStore
	settle   domain.SettlementStore
	activity domain.ActivityStore
	hub      Broadcaster
	logger   *slog.Logger
	now      func() time.Time
}

// NewListingService creates a ListingService with all required dependencies.
func NewListingService(
	listings domain.ListingStore,
	settle domain.SettlementStore,
	activity domain.ActivityStore,
	hub Broadcaster,
	logger *slog.Logger,
) *ListingService {
	if hub == nil {
		hub = nopBroadcaster{}
	}
	return &ListingService{
		listings: listings,
		settle:   settle,
		activity: activity,
		hub:      hub,
		logger:   logger,
		now:      time.Now,
	}
}

// validate checks the per-type field requirements from the listing rules.
func (in CreateListingInput) validate(now time.Time) error {
	if !common.IsHexAddress(in.Seller) {
		return fmt.Errorf("%w: seller is not a valid address", domain.ErrValidation)
	}
	switch in.Currency {
	case domain.CurrencyUSDC, domain.CurrencyBlock:
	default:
		return fmt.Errorf("%w: unsupported currency %q", domain.ErrValidation, in.Currency)
	}
	if in.AssetID == "" {
		return fmt.Errorf("%w: asset_id is required", domain.ErrValidation)
	}
	if in.RoyaltyBps < 0 || in.RoyaltyBps > 10000 {
		return fmt.Errorf("%w: royalty_bps must be within [0, 10000]", domain.ErrValidation)
	}

	switch in.Type {
	case domain.ListingTypeFixed:
		if in.Price <= 0 {
			return fmt.Errorf("%w: price must be positive", domain.ErrValidation)
		}

	case domain.ListingTypeEnglish:
		if in.StartingPrice <= 0 {
			return fmt.Errorf("%w: starting_price must be positive", domain.ErrValidation)
		}
		if in.EndsAt == nil {
			return fmt.Errorf("%w: ends_at is required for an auction", domain.ErrValidation)
		}
		if !in.EndsAt.After(now) {
			return fmt.Errorf("%w: ends_at must be in the future", domain.ErrValidation)
		}
		if in.BuyNowPrice > 0 && in.BuyNowPrice < in.StartingPrice {
			return fmt.Errorf("%w: buy_now_price below starting_price", domain.ErrValidation)
		}

	case domain.ListingTypeDutch:
		if in.StartingPrice <= 0 || in.EndingPrice <= 0 {
			return fmt.Errorf("%w: starting_price and ending_price must be positive", domain.ErrValidation)
		}
		if in.EndingPrice > in.StartingPrice {
			return fmt.Errorf("%w: ending_price exceeds starting_price", domain.ErrValidation)
		}
		if in.PriceDropInterval <= 0 {
			return fmt.Errorf("%w: price_drop_interval must be positive", domain.ErrValidation)
		}
		if in.EndsAt == nil {
			return fmt.Errorf("%w: ends_at is required for an auction", domain.ErrValidation)
		}
		if !in.EndsAt.After(now) {
			return fmt.Errorf("%w: ends_at must be in the future", domain.ErrValidation)
		}

	default:
		return fmt.Errorf("%w: unknown listing type %q", domain.ErrValidation, in.Type)
	}
	return nil
}

// Create validates the input and stores a new active listing.
func (s *ListingService) Create(ctx context.Context, in CreateListingInput) (domain.Listing, error) {
	now := s.now().UTC()
	if err := in.validate(now); err != nil {
		return domain.Listing{}, err
	}

	l := domain.Listing{
		ID:                uuid.New().String(),
		AssetID:           in.AssetID,
		Seller:            in.Seller,
		Type:              in.Type,
		Currency:          in.Currency,
		Status:            domain.ListingStatusActive,
		Price:             in.Price,
		StartingPrice:     in.StartingPrice,
		ReservePrice:      in.ReservePrice,
		BuyNowPrice:       in.BuyNowPrice,
		EndingPrice:       in.EndingPrice,
		PriceDropInterval: in.PriceDropInterval,
		EndsAt:            in.EndsAt,
		CollectionID:      in.CollectionID,
		RoyaltyBps:        in.RoyaltyBps,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.listings.Create(ctx, l); err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: create: %w", err)
	}

	s.record(ctx, domain.ActivityEntry{
		Type:         domain.ActivityTypeList,
		ListingID:    l.ID,
		AssetID:      l.AssetID,
		CollectionID: l.CollectionID,
		From:         l.Seller,
		Amount:       askAmount(l),
		Currency:     l.Currency,
		CreatedAt:    now,
	})

	return l, nil
}

// Get returns a listing by ID.
func (s *ListingService) Get(ctx context.Context, id string) (domain.Listing, error) {
	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: get %q: %w", id, err)
	}
	return l, nil
}

// List returns filtered, sorted, paginated listings.
func (s *ListingService) List(ctx context.Context, f domain.ListingFilter, opts domain.ListOpts) ([]domain.Listing, error) {
	listings, err := s.listings.List(ctx, f, opts)
	if err != nil {
		return nil, fmt.Errorf("listing_service: list: %w", err)
	}
	return listings, nil
}

// Count returns how many listings match the filter.
func (s *ListingService) Count(ctx context.Context, f domain.ListingFilter) (int64, error) {
	count, err := s.listings.Count(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("listing_service: count: %w", err)
	}
	return count, nil
}

// Cancel transitions an active listing to cancelled. Only the seller may
// cancel; standing bids become void silently.
func (s *ListingService) Cancel(ctx context.Context, id, requester string) error {
	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("listing_service: cancel %q: %w", id, err)
	}
	if l.Seller != requester {
		return domain.ErrUnauthorized
	}
	if err := s.settle.Cancel(ctx, id); err != nil {
		return fmt.Errorf("listing_service: cancel %q: %w", id, err)
	}

	s.record(ctx, domain.ActivityEntry{
		Type:         domain.ActivityTypeCancelListing,
		ListingID:    l.ID,
		AssetID:      l.AssetID,
		CollectionID: l.CollectionID,
		From:         requester,
		Currency:     l.Currency,
		CreatedAt:    s.now().UTC(),
	})
	return nil
}

// ToggleFavorite flips the (listing, address) favorite membership and returns
// the new state.
func (s *ListingService) ToggleFavorite(ctx context.Context, id, address string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, fmt.Errorf("%w: address is not a valid address", domain.ErrValidation)
	}
	on, err := s.listings.ToggleFavorite(ctx, id, address)
	if err != nil {
		return false, fmt.Errorf("listing_service: toggle favorite %q: %w", id, err)
	}
	return on, nil
}

// record appends to the activity feed and broadcasts. Feed failures are
// logged, not surfaced: the feed is a rebuildable projection.
func (s *ListingService) record(ctx context.Context, e domain.ActivityEntry) {
	if err := s.activity.Append(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "listing_service: activity append failed",
			slog.String("listing_id", e.ListingID),
			slog.String("error", err.Error()),
		)
	}
	s.hub.Broadcast(e)
}

func askAmount(l domain.Listing) int64 {
	if p, ok := l.BuyPrice(); ok {
		return p
	}
	return l.StartingPrice
}
