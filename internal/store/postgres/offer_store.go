package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blockmart/marketd/internal/domain"
)

// OfferStore implements domain.OfferStore using PostgreSQL.
type OfferStore struct {
	pool *pgxpool.Pool
}

// NewOfferStore creates an OfferStore backed by the given connection pool.
func NewOfferStore(pool *pgxpool.Pool) *OfferStore {
	return &OfferStore{pool: pool}
}

const offerCols = `id, asset_id, buyer, amount, currency, status, created_at, expires_at`

func scanOffer(row pgx.Row) (domain.Offer, error) {
	var o domain.Offer
	var currency, status string
	err := row.Scan(&o.ID, &o.AssetID, &o.Buyer, &o.Amount, &currency, &status, &o.CreatedAt, &o.ExpiresAt)
	if err != nil {
		return domain.Offer{}, err
	}
	o.Currency = domain.Currency(currency)
	o.Status = domain.OfferStatus(status)
	return o, nil
}

// Create stores a new offer.
func (s *OfferStore) Create(ctx context.Context, o domain.Offer) error {
	const query = `
		INSERT INTO offers (id, asset_id, buyer, amount, currency, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.AssetID, o.Buyer, o.Amount, string(o.Currency), string(o.Status), o.CreatedAt, o.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create offer %s: %w", o.ID, err)
	}
	return nil
}

// GetByID retrieves an offer by its primary key.
func (s *OfferStore) GetByID(ctx context.Context, id string) (domain.Offer, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+offerCols+` FROM offers WHERE id = $1`, id)
	o, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Offer{}, domain.ErrNotFound
		}
		return domain.Offer{}, fmt.Errorf("postgres: get offer %s: %w", id, err)
	}
	return o, nil
}

// ListByAsset returns offers on an asset, newest first.
func (s *OfferStore) ListByAsset(ctx context.Context, assetID string, opts domain.ListOpts) ([]domain.Offer, error) {
	return s.list(ctx, `asset_id = $1`, assetID, opts)
}

// ListByBuyer returns a buyer's offers, newest first.
func (s *OfferStore) ListByBuyer(ctx context.Context, buyer string, opts domain.ListOpts) ([]domain.Offer, error) {
	return s.list(ctx, `buyer = $1`, buyer, opts)
}

func (s *OfferStore) list(ctx context.Context, cond string, arg any, opts domain.ListOpts) ([]domain.Offer, error) {
	query := `SELECT ` + offerCols + ` FROM offers WHERE ` + cond + ` ORDER BY created_at DESC`
	args := []any{arg}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list offers: %w", err)
	}
	defer rows.Close()

	var offers []domain.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan offer: %w", err)
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list offers rows: %w", err)
	}
	return offers, nil
}

// UpdateStatus transitions an offer from an expected status. The guard in the
// WHERE clause makes the transition a compare-and-swap.
func (s *OfferStore) UpdateStatus(ctx context.Context, id string, from, to domain.OfferStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE offers SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("postgres: update offer %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing offer from a lost race.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM offers WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check offer %s: %w", id, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrOfferClosed
	}
	return nil
}

// ExpireDue moves open offers past their expiry to expired.
func (s *OfferStore) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE offers SET status = 'expired'
		 WHERE status = 'open' AND expires_at IS NOT NULL AND expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: expire offers: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.OfferStore = (*OfferStore)(nil)
