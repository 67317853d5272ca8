package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/blockmart/marketd/internal/auction"
	"github.com/blockmart/marketd/internal/domain"
)

// BidResult is the outcome of placing a bid. Sale is non-nil on the Dutch
// path, where a bid at the clock price settles the listing immediately.
type BidResult struct {
	Bid  domain.Bid
	Sale *domain.Sale
}

// LedgerService owns the append-only bid ledger and the offer book. It never
// changes listing status itself; the Dutch immediate-settlement path hands
// off to the settlement service.
type LedgerService struct {
	listings   domain.ListingStore
	bids       domain.BidStore
	offers     domain.OfferStore
	settlement *SettlementService
	activity   domain.ActivityStore
	locks      domain.LockManager
	hub        Broadcaster
	logger     *slog.Logger
	now        func() time.Time
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(
	listings domain.ListingStore,
	bids domain.BidStore,
	offers domain.OfferStore,
	settlement *SettlementService,
	activity domain.ActivityStore,
	locks domain.LockManager,
	hub Broadcaster,
	logger *slog.Logger,
) *LedgerService {
	if hub == nil {
		hub = nopBroadcaster{}
	}
	return &LedgerService{
		listings:   listings,
		bids:       bids,
		offers:     offers,
		settlement: settlement,
		activity:   activity,
		locks:      locks,
		hub:        hub,
		logger:     logger,
		now:        time.Now,
	}
}

// bidLockAttempts and bidLockDelay bound how long a bid waits behind a
// concurrent writer on the same listing before giving up.
const (
	bidLockAttempts = 50
	bidLockDelay    = 20 * time.Millisecond
)

// acquireListing takes the per-listing lock, retrying briefly while a
// concurrent bid or settlement holds it.
func (s *LedgerService) acquireListing(ctx context.Context, listingID string) (func(), error) {
	for attempt := 0; ; attempt++ {
		unlock, err := s.locks.Acquire(ctx, lockKey(listingID), settleLockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) || attempt >= bidLockAttempts {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bidLockDelay):
		}
	}
}

// PlaceBid appends a bid to an auction listing's ledger. On an English
// auction the amount must clear the minimum increment over the current high.
// On a Dutch auction the amount must meet the clock price and the bid settles
// the listing immediately at that price.
//
// The whole read-validate-append sequence runs under the per-listing lock so
// concurrent bids observe each other: the minimum increment is computed over
// a ledger no other bid can be entering at the same time.
func (s *LedgerService) PlaceBid(ctx context.Context, listingID, bidder, bidderName string, amount int64) (BidResult, error) {
	if !common.IsHexAddress(bidder) {
		return BidResult{}, fmt.Errorf("%w: bidder is not a valid address", domain.ErrValidation)
	}
	if amount <= 0 {
		return BidResult{}, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}

	unlock, err := s.acquireListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			// The listing has been under settlement for the whole wait.
			return BidResult{}, domain.ErrListingSettled
		}
		return BidResult{}, fmt.Errorf("ledger_service: place bid %q: %w", listingID, err)
	}
	defer unlock()

	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return BidResult{}, fmt.Errorf("ledger_service: place bid %q: %w", listingID, err)
	}
	if !l.IsAuction() {
		return BidResult{}, fmt.Errorf("%w: listing does not take bids", domain.ErrValidation)
	}
	now := s.now().UTC()
	if l.Terminal() || auction.Expired(l, now) {
		return BidResult{}, domain.ErrListingInactive
	}
	if l.Seller == bidder {
		return BidResult{}, fmt.Errorf("%w: seller cannot bid on own listing", domain.ErrValidation)
	}

	switch l.Type {
	case domain.ListingTypeEnglish:
		return s.placeEnglish(ctx, l, bidder, bidderName, amount, now)
	case domain.ListingTypeDutch:
		return s.placeDutch(ctx, l, bidder, bidderName, amount, now)
	}
	return BidResult{}, fmt.Errorf("%w: listing does not take bids", domain.ErrValidation)
}

func (s *LedgerService) placeEnglish(ctx context.Context, l domain.Listing, bidder, bidderName string, amount int64, now time.Time) (BidResult, error) {
	ledger, err := s.bids.ListByListing(ctx, l.ID)
	if err != nil {
		return BidResult{}, fmt.Errorf("ledger_service: place bid %q: %w", l.ID, err)
	}
	var high int64
	if b, ok := domain.HighestBid(ledger); ok {
		high = b.Amount
	}
	if min := auction.MinBid(l, high); amount < min {
		return BidResult{}, fmt.Errorf("%w: minimum acceptable bid is %d", domain.ErrBidTooLow, min)
	}

	b := domain.Bid{
		ID:         uuid.New().String(),
		ListingID:  l.ID,
		Bidder:     bidder,
		BidderName: bidderName,
		Amount:     amount,
		Status:     domain.BidStatusStanding,
		PlacedAt:   now,
	}
	if err := s.bids.Create(ctx, b); err != nil {
		return BidResult{}, fmt.Errorf("ledger_service: place bid %q: %w", l.ID, err)
	}

	s.record(ctx, domain.ActivityEntry{
		Type:         domain.ActivityTypeBid,
		ListingID:    l.ID,
		AssetID:      l.AssetID,
		CollectionID: l.CollectionID,
		From:         bidder,
		Amount:       amount,
		Currency:     l.Currency,
		CreatedAt:    now,
	})
	return BidResult{Bid: b}, nil
}

// placeDutch treats a qualifying bid as an immediate purchase at the clock
// price. The ledger entry is appended first so the settlement can mark it
// accepted; the bid records the clock price, not the offered amount.
func (s *LedgerService) placeDutch(ctx context.Context, l domain.Listing, bidder, bidderName string, amount int64, now time.Time) (BidResult, error) {
	price := auction.CurrentPrice(l, now)
	if amount < price {
		return BidResult{}, fmt.Errorf("%w: current price is %d", domain.ErrBidTooLow, price)
	}

	b := domain.Bid{
		ID:         uuid.New().String(),
		ListingID:  l.ID,
		Bidder:     bidder,
		BidderName: bidderName,
		Amount:     price,
		Status:     domain.BidStatusStanding,
		PlacedAt:   now,
	}
	if err := s.bids.Create(ctx, b); err != nil {
		return BidResult{}, fmt.Errorf("ledger_service: place bid %q: %w", l.ID, err)
	}

	s.record(ctx, domain.ActivityEntry{
		Type:         domain.ActivityTypeBid,
		ListingID:    l.ID,
		AssetID:      l.AssetID,
		CollectionID: l.CollectionID,
		From:         bidder,
		Amount:       price,
		Currency:     l.Currency,
		CreatedAt:    now,
	})

	sale, err := s.settlement.BuyDutch(ctx, l, b)
	if err != nil {
		return BidResult{}, err
	}
	return BidResult{Bid: b, Sale: &sale}, nil
}

// ListBids returns a listing's full ledger, newest first ordering left to the
// store.
func (s *LedgerService) ListBids(ctx context.Context, listingID string) ([]domain.Bid, error) {
	if _, err := s.listings.GetByID(ctx, listingID); err != nil {
		return nil, fmt.Errorf("ledger_service: list bids %q: %w", listingID, err)
	}
	bids, err := s.bids.ListByListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: list bids %q: %w", listingID, err)
	}
	return bids, nil
}

// MakeOffer records a standing offer on an asset. Offers are independent of
// listings; multiple open offers from the same buyer on the same asset are
// allowed.
func (s *LedgerService) MakeOffer(ctx context.Context, assetID, buyer string, amount int64, currency domain.Currency, expiresAt *time.Time) (domain.Offer, error) {
	if !common.IsHexAddress(buyer) {
		return domain.Offer{}, fmt.Errorf("%w: buyer is not a valid address", domain.ErrValidation)
	}
	if assetID == "" {
		return domain.Offer{}, fmt.Errorf("%w: asset_id is required", domain.ErrValidation)
	}
	if amount <= 0 {
		return domain.Offer{}, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	switch currency {
	case domain.CurrencyUSDC, domain.CurrencyBlock:
	default:
		return domain.Offer{}, fmt.Errorf("%w: unsupported currency %q", domain.ErrValidation, currency)
	}
	now := s.now().UTC()
	if expiresAt != nil && !expiresAt.After(now) {
		return domain.Offer{}, fmt.Errorf("%w: expires_at must be in the future", domain.ErrValidation)
	}

	o := domain.Offer{
		ID:        uuid.New().String(),
		AssetID:   assetID,
		Buyer:     buyer,
		Amount:    amount,
		Currency:  currency,
		Status:    domain.OfferStatusOpen,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	if err := s.offers.Create(ctx, o); err != nil {
		return domain.Offer{}, fmt.Errorf("ledger_service: make offer: %w", err)
	}

	s.record(ctx, domain.ActivityEntry{
		Type:      domain.ActivityTypeOffer,
		AssetID:   assetID,
		From:      buyer,
		Amount:    amount,
		Currency:  currency,
		CreatedAt: now,
	})
	return o, nil
}

// WithdrawOffer closes an open offer. Only its buyer may withdraw it.
func (s *LedgerService) WithdrawOffer(ctx context.Context, offerID, requester string) error {
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return fmt.Errorf("ledger_service: withdraw offer %q: %w", offerID, err)
	}
	if o.Buyer != requester {
		return domain.ErrUnauthorized
	}
	if err := s.offers.UpdateStatus(ctx, offerID, domain.OfferStatusOpen, domain.OfferStatusWithdrawn); err != nil {
		return fmt.Errorf("ledger_service: withdraw offer %q: %w", offerID, err)
	}

	s.record(ctx, domain.ActivityEntry{
		Type:      domain.ActivityTypeCancelOffer,
		AssetID:   o.AssetID,
		From:      requester,
		Amount:    o.Amount,
		Currency:  o.Currency,
		CreatedAt: s.now().UTC(),
	})
	return nil
}

// ListOffers returns offers for an asset or from a buyer. Exactly one of the
// two selectors must be set.
func (s *LedgerService) ListOffers(ctx context.Context, assetID, buyer string, opts domain.ListOpts) ([]domain.Offer, error) {
	switch {
	case assetID != "" && buyer == "":
		offers, err := s.offers.ListByAsset(ctx, assetID, opts)
		if err != nil {
			return nil, fmt.Errorf("ledger_service: list offers: %w", err)
		}
		return offers, nil
	case buyer != "" && assetID == "":
		offers, err := s.offers.ListByBuyer(ctx, buyer, opts)
		if err != nil {
			return nil, fmt.Errorf("ledger_service: list offers: %w", err)
		}
		return offers, nil
	default:
		return nil, fmt.Errorf("%w: exactly one of asset_id or buyer must be set", domain.ErrValidation)
	}
}

func (s *LedgerService) record(ctx context.Context, e domain.ActivityEntry) {
	if err := s.activity.Append(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "ledger_service: activity append failed",
			slog.String("asset_id", e.AssetID),
			slog.String("error", err.Error()),
		)
	}
	s.hub.Broadcast(e)
}
