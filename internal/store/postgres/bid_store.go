package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blockmart/marketd/internal/domain"
)

// BidStore implements domain.BidStore using PostgreSQL.
type BidStore struct {
	pool *pgxpool.Pool
}

// NewBidStore creates a BidStore backed by the given connection pool.
func NewBidStore(pool *pgxpool.Pool) *BidStore {
	return &BidStore{pool: pool}
}

const bidCols = `id, listing_id, bidder, bidder_name, amount, status, placed_at`

func scanBid(row pgx.Row) (domain.Bid, error) {
	var b domain.Bid
	var status string
	err := row.Scan(&b.ID, &b.ListingID, &b.Bidder, &b.BidderName, &b.Amount, &status, &b.PlacedAt)
	if err != nil {
		return domain.Bid{}, err
	}
	b.Status = domain.BidStatus(status)
	return b, nil
}

// Create appends a bid to the ledger.
func (s *BidStore) Create(ctx context.Context, b domain.Bid) error {
	const query = `
		INSERT INTO bids (id, listing_id, bidder, bidder_name, amount, status, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		b.ID, b.ListingID, b.Bidder, b.BidderName, b.Amount, string(b.Status), b.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create bid %s: %w", b.ID, err)
	}
	return nil
}

// ListByListing returns a listing's bids in placement order.
func (s *BidStore) ListByListing(ctx context.Context, listingID string) ([]domain.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bidCols+` FROM bids WHERE listing_id = $1 ORDER BY placed_at ASC`, listingID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bids for %s: %w", listingID, err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bids rows: %w", err)
	}
	return bids, nil
}

// GetByID retrieves a bid by its primary key.
func (s *BidStore) GetByID(ctx context.Context, id string) (domain.Bid, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+bidCols+` FROM bids WHERE id = $1`, id)
	b, err := scanBid(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bid{}, domain.ErrNotFound
		}
		return domain.Bid{}, fmt.Errorf("postgres: get bid %s: %w", id, err)
	}
	return b, nil
}

var _ domain.BidStore = (*BidStore)(nil)
