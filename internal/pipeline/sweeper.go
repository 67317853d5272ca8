package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blockmart/marketd/internal/domain"
)

// AuctionCloser settles or expires listings on behalf of the sweeper.
type AuctionCloser interface {
	CloseExpiredAuction(ctx context.Context, l domain.Listing) error
	RetryPendingTransfers(ctx context.Context) error
}

// Sweeper drives the time-based lifecycle transitions: ended auctions move to
// expired, overdue offers close, and unconfirmed funds transfers are retried.
// Reads never mutate state; the sweeper is the only place expiry happens.
type Sweeper struct {
	listings domain.ListingStore
	offers   domain.OfferStore
	closer   AuctionCloser
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweeper creates a Sweeper.
func NewSweeper(listings domain.ListingStore, offers domain.OfferStore, closer AuctionCloser, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		listings: listings,
		offers:   offers,
		closer:   closer,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes a single sweep.
func (s *Sweeper) Run(ctx context.Context) error {
	now := s.now().UTC()

	ended, err := s.listings.ListEndedAuctions(ctx, now)
	if err != nil {
		return fmt.Errorf("sweeper: listing ended auctions: %w", err)
	}
	closed := 0
	for _, l := range ended {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sweeper: cancelled: %w", err)
		}
		if err := s.closer.CloseExpiredAuction(ctx, l); err != nil {
			s.logger.Error("auction close failed",
				slog.String("listing_id", l.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		closed++
	}

	expiredOffers, err := s.offers.ExpireDue(ctx, now)
	if err != nil {
		return fmt.Errorf("sweeper: expiring offers: %w", err)
	}

	if err := s.closer.RetryPendingTransfers(ctx); err != nil {
		s.logger.Error("transfer retry failed", slog.String("error", err.Error()))
	}

	if closed > 0 || expiredOffers > 0 {
		s.logger.Info("sweep complete",
			slog.Int("auctions_closed", closed),
			slog.Int64("offers_expired", expiredOffers),
		)
	}
	return nil
}

// RunLoop runs the sweeper on a repeating interval until the context is
// cancelled.
func (s *Sweeper) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if err := s.Run(ctx); err != nil {
		s.logger.Error("sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
