package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/blockmart/marketd/internal/auction"
	"github.com/blockmart/marketd/internal/domain"
	"github.com/blockmart/marketd/internal/notify"
)

// settleLockTTL bounds how long a settlement may hold the per-listing lock
// before it self-expires. Generous relative to a store round trip.
const settleLockTTL = 10 * time.Second

// transferTimeout bounds the post-commit payment executor call.
const transferTimeout = 15 * time.Second

// Notifier delivers operator alerts. Matches the notify package dispatcher.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// SettlementService executes every path that can turn an active listing into
// a sale: direct purchase, Dutch-auction purchase, seller bid acceptance,
// offer acceptance, and the sweeper's auction close. All paths serialize per
// listing through the lock manager and commit through the settlement store,
// which enforces at most one settlement per listing.
type SettlementService struct {
	listings domain.ListingStore
	bids     domain.BidStore
	offers   domain.OfferStore
	settle   domain.SettlementStore
	sales    domain.SaleStore
	activity domain.ActivityStore
	locks    domain.LockManager
	payments domain.PaymentExecutor
	registry domain.CollectionRegistry
	notifier Notifier
	hub      Broadcaster
	logger   *slog.Logger
	now      func() time.Time
}

// SettlementDeps bundles the settlement service's collaborators. Payments,
// registry, notifier, and hub may be nil; the corresponding post-commit step
// is skipped.
type SettlementDeps struct {
	Listings domain.ListingStore
	Bids     domain.BidStore
	Offers   domain.OfferStore
	Settle   domain.SettlementStore
	Sales    domain.SaleStore
	Activity domain.ActivityStore
	Locks    domain.LockManager
	Payments domain.PaymentExecutor
	Registry domain.CollectionRegistry
	Notifier Notifier
	Hub      Broadcaster
	Logger   *slog.Logger
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(d SettlementDeps) *SettlementService {
	if d.Hub == nil {
		d.Hub = nopBroadcaster{}
	}
	return &SettlementService{
		listings: d.Listings,
		bids:     d.Bids,
		offers:   d.Offers,
		settle:   d.Settle,
		sales:    d.Sales,
		activity: d.Activity,
		locks:    d.Locks,
		payments: d.Payments,
		registry: d.Registry,
		notifier: d.Notifier,
		hub:      d.Hub,
		logger:   d.Logger,
		now:      time.Now,
	}
}

// BuyNow purchases a fixed-price listing, or an English auction with a
// buy-now shortcut, at its posted price. Exactly one of any number of
// concurrent purchases on the same listing succeeds.
func (s *SettlementService) BuyNow(ctx context.Context, listingID, buyer string) (domain.Sale, error) {
	unlock, err := s.locks.Acquire(ctx, lockKey(listingID), settleLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			// A concurrent settlement holds the listing; from the caller's
			// view the listing is being sold out from under them.
			return domain.Sale{}, domain.ErrListingSettled
		}
		return domain.Sale{}, fmt.Errorf("settlement_service: buy now %q: %w", listingID, err)
	}
	defer unlock()

	l, err := s.activeListing(ctx, listingID)
	if err != nil {
		return domain.Sale{}, err
	}
	if l.Seller == buyer {
		return domain.Sale{}, fmt.Errorf("%w: seller cannot buy own listing", domain.ErrValidation)
	}

	var price int64
	switch l.Type {
	case domain.ListingTypeDutch:
		price = auction.CurrentPrice(l, s.now().UTC())
	default:
		p, ok := l.BuyPrice()
		if !ok {
			return domain.Sale{}, domain.ErrNoBuyNow
		}
		price = p
	}

	sale := s.buildSale(l, buyer, price)
	w := domain.SettlementWrite{ListingID: l.ID, Sale: sale}
	if err := s.settle.Settle(ctx, w); err != nil {
		return domain.Sale{}, fmt.Errorf("settlement_service: buy now %q: %w", listingID, err)
	}

	s.afterCommit(ctx, l, sale)
	return sale, nil
}

// BuyDutch settles a Dutch auction at the clock price for the given bidder.
// The bid has already been appended to the ledger; its ID rides along so the
// settlement marks it accepted. The caller holds the per-listing lock for the
// whole append-then-settle sequence.
func (s *SettlementService) BuyDutch(ctx context.Context, l domain.Listing, bid domain.Bid) (domain.Sale, error) {
	sale := s.buildSale(l, bid.Bidder, bid.Amount)
	w := domain.SettlementWrite{ListingID: l.ID, Sale: sale, WinningBidID: bid.ID}
	if err := s.settle.Settle(ctx, w); err != nil {
		return domain.Sale{}, fmt.Errorf("settlement_service: dutch settle %q: %w", l.ID, err)
	}

	s.afterCommit(ctx, l, sale)
	return sale, nil
}

// AcceptBid lets the seller settle an English auction early at the current
// highest standing bid. The reserve, when set, must be met.
func (s *SettlementService) AcceptBid(ctx context.Context, listingID, requester string) (domain.Sale, error) {
	unlock, err := s.locks.Acquire(ctx, lockKey(listingID), settleLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return domain.Sale{}, domain.ErrListingSettled
		}
		return domain.Sale{}, fmt.Errorf("settlement_service: accept bid %q: %w", listingID, err)
	}
	defer unlock()

	l, err := s.activeListing(ctx, listingID)
	if err != nil {
		return domain.Sale{}, err
	}
	if l.Seller != requester {
		return domain.Sale{}, domain.ErrUnauthorized
	}
	if l.Type != domain.ListingTypeEnglish {
		return domain.Sale{}, fmt.Errorf("%w: not an english auction", domain.ErrValidation)
	}

	bids, err := s.bids.ListByListing(ctx, listingID)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("settlement_service: accept bid %q: %w", listingID, err)
	}
	high, ok := domain.HighestBid(bids)
	if !ok {
		return domain.Sale{}, fmt.Errorf("%w: no standing bids", domain.ErrValidation)
	}
	if !auction.ReserveMet(l, high.Amount) {
		return domain.Sale{}, domain.ErrReserveNotMet
	}

	sale := s.buildSale(l, high.Bidder, high.Amount)
	w := domain.SettlementWrite{ListingID: l.ID, Sale: sale, WinningBidID: high.ID}
	if err := s.settle.Settle(ctx, w); err != nil {
		return domain.Sale{}, fmt.Errorf("settlement_service: accept bid %q: %w", listingID, err)
	}

	s.afterCommit(ctx, l, sale)
	return sale, nil
}

// AcceptOffer settles a standing offer on an asset. When the asset has an
// active listing, the requester must be that listing's seller and the listing
// settles in the same write. When the asset is unlisted, the authenticated
// requester is taken as the seller; the external transfer executor is the
// ownership authority.
func (s *SettlementService) AcceptOffer(ctx context.Context, offerID, requester string) (domain.Sale, error) {
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("settlement_service: accept offer %q: %w", offerID, err)
	}
	if !o.Open() {
		return domain.Sale{}, domain.ErrOfferClosed
	}
	now := s.now().UTC()
	if o.ExpiresAt != nil && !now.Before(*o.ExpiresAt) {
		return domain.Sale{}, domain.ErrOfferClosed
	}
	if o.Buyer == requester {
		return domain.Sale{}, fmt.Errorf("%w: cannot accept own offer", domain.ErrValidation)
	}

	// Find the asset's active listing, if any. Its ask does not constrain the
	// offer amount; an offer is its own price.
	active, err := s.listings.List(ctx,
		domain.ListingFilter{AssetID: o.AssetID, Status: domain.ListingStatusActive},
		domain.ListOpts{Limit: 1},
	)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("settlement_service: accept offer %q: %w", offerID, err)
	}

	var l domain.Listing
	if len(active) > 0 {
		l = active[0]
		if l.Seller != requester {
			return domain.Sale{}, domain.ErrUnauthorized
		}
		unlock, err := s.locks.Acquire(ctx, lockKey(l.ID), settleLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.Sale{}, domain.ErrListingSettled
			}
			return domain.Sale{}, fmt.Errorf("settlement_service: accept offer %q: %w", offerID, err)
		}
		defer unlock()
	}

	sale := domain.Sale{
		ID:            uuid.New().String(),
		ListingID:     l.ID,
		OfferID:       o.ID,
		AssetID:       o.AssetID,
		Buyer:         o.Buyer,
		Seller:        requester,
		SalePrice:     o.Amount,
		Currency:      o.Currency,
		CollectionID:  l.CollectionID,
		RoyaltyBps:    l.RoyaltyBps,
		RoyaltyAmount: domain.RoyaltyAmount(o.Amount, l.RoyaltyBps),
		TransferState: domain.TransferStatePending,
		SettledAt:     now,
	}
	w := domain.SettlementWrite{ListingID: l.ID, Sale: sale, OfferID: o.ID}
	if err := s.settle.Settle(ctx, w); err != nil {
		return domain.Sale{}, fmt.Errorf("settlement_service: accept offer %q: %w", offerID, err)
	}

	s.afterCommit(ctx, l, sale)
	return sale, nil
}

// CloseExpiredAuction transitions an ended auction to expired. No Sale is
// produced; a seller who wants to honor the winning bid accepts it before the
// deadline. Redundant closes are no-ops.
func (s *SettlementService) CloseExpiredAuction(ctx context.Context, l domain.Listing) error {
	unlock, err := s.locks.Acquire(ctx, lockKey(l.ID), settleLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return nil // a settlement in flight wins over expiry
		}
		return fmt.Errorf("settlement_service: close %q: %w", l.ID, err)
	}
	defer unlock()

	transitioned, err := s.settle.Expire(ctx, l.ID)
	if err != nil {
		return fmt.Errorf("settlement_service: close %q: %w", l.ID, err)
	}
	if !transitioned {
		return nil
	}

	s.record(ctx, domain.ActivityEntry{
		Type:         domain.ActivityTypeExpire,
		ListingID:    l.ID,
		AssetID:      l.AssetID,
		CollectionID: l.CollectionID,
		From:         l.Seller,
		Currency:     l.Currency,
		CreatedAt:    s.now().UTC(),
	})
	return nil
}

// RetryPendingTransfers re-drives the payment executor for sales whose funds
// transfer has not confirmed. Called by the sweeper.
func (s *SettlementService) RetryPendingTransfers(ctx context.Context) error {
	if s.payments == nil {
		return nil
	}
	pending, err := s.sales.ListPendingTransfers(ctx)
	if err != nil {
		return fmt.Errorf("settlement_service: pending transfers: %w", err)
	}
	for _, sale := range pending {
		s.executeTransfer(ctx, sale)
	}
	return nil
}

func (s *SettlementService) activeListing(ctx context.Context, id string) (domain.Listing, error) {
	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("settlement_service: listing %q: %w", id, err)
	}
	if l.Status == domain.ListingStatusSold {
		return domain.Listing{}, domain.ErrListingSettled
	}
	if l.Terminal() {
		return domain.Listing{}, domain.ErrListingInactive
	}
	if l.IsAuction() && auction.Expired(l, s.now().UTC()) {
		// The sweeper owns the status transition; writes just reject.
		return domain.Listing{}, domain.ErrListingInactive
	}
	return l, nil
}

func (s *SettlementService) buildSale(l domain.Listing, buyer string, price int64) domain.Sale {
	return domain.Sale{
		ID:            uuid.New().String(),
		ListingID:     l.ID,
		AssetID:       l.AssetID,
		Buyer:         buyer,
		Seller:        l.Seller,
		SalePrice:     price,
		Currency:      l.Currency,
		CollectionID:  l.CollectionID,
		RoyaltyBps:    l.RoyaltyBps,
		RoyaltyAmount: domain.RoyaltyAmount(price, l.RoyaltyBps),
		TransferState: domain.TransferStatePending,
		SettledAt:     s.now().UTC(),
	}
}

// afterCommit runs the post-settlement side effects. The sale is already
// durable; nothing here can undo it, so every step degrades to a log line.
func (s *SettlementService) afterCommit(ctx context.Context, l domain.Listing, sale domain.Sale) {
	s.record(ctx, domain.ActivityEntry{
		Type:         domain.ActivityTypeSale,
		ListingID:    sale.ListingID,
		AssetID:      sale.AssetID,
		CollectionID: sale.CollectionID,
		From:         sale.Seller,
		To:           sale.Buyer,
		Amount:       sale.SalePrice,
		Currency:     sale.Currency,
		CreatedAt:    sale.SettledAt,
	})

	if s.payments != nil {
		s.executeTransfer(ctx, sale)
	}

	if s.registry != nil && sale.CollectionID != "" {
		if err := s.registry.RecordSale(ctx, sale.CollectionID, sale.SalePrice); err != nil {
			s.logger.WarnContext(ctx, "settlement_service: registry update failed",
				slog.String("sale_id", sale.ID),
				slog.String("collection_id", sale.CollectionID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.notifier != nil {
		msg := fmt.Sprintf("asset %s sold for %d %s (seller %s, buyer %s)",
			sale.AssetID, sale.SalePrice, sale.Currency, sale.Seller, sale.Buyer)
		if err := s.notifier.Notify(ctx, notify.EventSale, "Sale settled", msg); err != nil {
			s.logger.WarnContext(ctx, "settlement_service: notify failed",
				slog.String("sale_id", sale.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// executeTransfer drives one payment attempt and records the outcome on the
// sale. Royalties are paid out of the sale amount by the executor downstream;
// the engine transfers the gross price and records the split.
func (s *SettlementService) executeTransfer(ctx context.Context, sale domain.Sale) {
	tctx, cancel := context.WithTimeout(ctx, transferTimeout)
	defer cancel()

	receipt, err := s.payments.TransferFunds(tctx, sale.Buyer, sale.Seller, sale.SalePrice, sale.Currency)
	if err != nil {
		s.logger.ErrorContext(ctx, "settlement_service: funds transfer failed",
			slog.String("sale_id", sale.ID),
			slog.String("error", err.Error()),
		)
		if serr := s.sales.SetTransferState(ctx, sale.ID, domain.TransferStateFailed, ""); serr != nil {
			s.logger.ErrorContext(ctx, "settlement_service: transfer state update failed",
				slog.String("sale_id", sale.ID),
				slog.String("error", serr.Error()),
			)
		}
		if s.notifier != nil {
			_ = s.notifier.Notify(ctx, notify.EventTransferFailed, "Funds transfer failed",
				fmt.Sprintf("sale %s: %v", sale.ID, err))
		}
		return
	}

	if err := s.sales.SetTransferState(ctx, sale.ID, domain.TransferStateTransferred, receipt.Signature); err != nil {
		s.logger.ErrorContext(ctx, "settlement_service: transfer state update failed",
			slog.String("sale_id", sale.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SettlementService) record(ctx context.Context, e domain.ActivityEntry) {
	if err := s.activity.Append(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: activity append failed",
			slog.String("listing_id", e.ListingID),
			slog.String("error", err.Error()),
		)
	}
	s.hub.Broadcast(e)
}

func lockKey(listingID string) string {
	return "settle:listing:" + listingID
}
