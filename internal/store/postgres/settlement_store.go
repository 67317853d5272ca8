package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blockmart/marketd/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL. Every
// settlement runs in a single transaction with a compare-and-swap on the
// listing status, so concurrent settlements on the same listing resolve to
// exactly one winner.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Settle applies the full settlement write set atomically.
func (s *SettlementStore) Settle(ctx context.Context, w domain.SettlementWrite) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	if w.ListingID != "" {
		tag, err := tx.Exec(ctx,
			`UPDATE listings SET status = 'sold', updated_at = $2
			 WHERE id = $1 AND status = 'active'`,
			w.ListingID, w.Sale.SettledAt,
		)
		if err != nil {
			return fmt.Errorf("postgres: settle listing %s: %w", w.ListingID, err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM listings WHERE id = $1)`, w.ListingID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("postgres: check listing %s: %w", w.ListingID, err)
			}
			if !exists {
				return domain.ErrNotFound
			}
			return domain.ErrListingSettled
		}

		if _, err := tx.Exec(ctx,
			`UPDATE bids SET status = CASE WHEN id = $2 THEN 'accepted' ELSE 'superseded' END
			 WHERE listing_id = $1 AND status = 'standing'`,
			w.ListingID, w.WinningBidID,
		); err != nil {
			return fmt.Errorf("postgres: settle bids for %s: %w", w.ListingID, err)
		}
	}

	if w.OfferID != "" {
		tag, err := tx.Exec(ctx,
			`UPDATE offers SET status = 'accepted' WHERE id = $1 AND status = 'open'`,
			w.OfferID,
		)
		if err != nil {
			return fmt.Errorf("postgres: accept offer %s: %w", w.OfferID, err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrOfferClosed
		}
	}

	if err := insertSale(ctx, tx, w.Sale); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit settlement: %w", err)
	}
	return nil
}

func insertSale(ctx context.Context, tx pgx.Tx, sale domain.Sale) error {
	const query = `
		INSERT INTO sales (
			id, listing_id, offer_id, asset_id, buyer, seller,
			sale_price, currency, collection_id, royalty_bps, royalty_amount,
			transfer_state, transfer_sig, settled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14
		)`

	_, err := tx.Exec(ctx, query,
		sale.ID, sale.ListingID, sale.OfferID, sale.AssetID, sale.Buyer, sale.Seller,
		sale.SalePrice, string(sale.Currency), sale.CollectionID, sale.RoyaltyBps, sale.RoyaltyAmount,
		string(sale.TransferState), sale.TransferSig, sale.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert sale %s: %w", sale.ID, err)
	}
	return nil
}

// Expire transitions an active listing to expired and voids standing bids.
// A listing already in a terminal state is a no-op, so redundant sweeps are
// idempotent.
func (s *SettlementStore) Expire(ctx context.Context, listingID string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("postgres: begin expire: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE listings SET status = 'expired', updated_at = NOW()
		 WHERE id = $1 AND status = 'active'`,
		listingID,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: expire listing %s: %w", listingID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM listings WHERE id = $1)`, listingID,
		).Scan(&exists); err != nil {
			return false, fmt.Errorf("postgres: check listing %s: %w", listingID, err)
		}
		if !exists {
			return false, domain.ErrNotFound
		}
		return false, nil
	}

	if err := voidStandingBids(ctx, tx, listingID); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("postgres: commit expire: %w", err)
	}
	return true, nil
}

// Cancel transitions an active listing to cancelled and voids standing bids.
func (s *SettlementStore) Cancel(ctx context.Context, listingID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin cancel: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE listings SET status = 'cancelled', updated_at = NOW()
		 WHERE id = $1 AND status = 'active'`,
		listingID,
	)
	if err != nil {
		return fmt.Errorf("postgres: cancel listing %s: %w", listingID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM listings WHERE id = $1)`, listingID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check listing %s: %w", listingID, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrListingInactive
	}

	if err := voidStandingBids(ctx, tx, listingID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit cancel: %w", err)
	}
	return nil
}

func voidStandingBids(ctx context.Context, tx pgx.Tx, listingID string) error {
	if _, err := tx.Exec(ctx,
		`UPDATE bids SET status = 'void' WHERE listing_id = $1 AND status = 'standing'`,
		listingID,
	); err != nil {
		return fmt.Errorf("postgres: void bids for %s: %w", listingID, err)
	}
	return nil
}

var _ domain.SettlementStore = (*SettlementStore)(nil)
