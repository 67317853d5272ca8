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

// SaleStore implements domain.SaleStore using PostgreSQL. Sale rows are
// written only by SettlementStore; this store reads them and advances the
// transfer state.
type SaleStore struct {
	pool *pgxpool.Pool
}

// NewSaleStore creates a SaleStore backed by the given connection pool.
func NewSaleStore(pool *pgxpool.Pool) *SaleStore {
	return &SaleStore{pool: pool}
}

const saleCols = `id, listing_id, offer_id, asset_id, buyer, seller,
	sale_price, currency, collection_id, royalty_bps, royalty_amount,
	transfer_state, transfer_sig, settled_at`

func scanSale(row pgx.Row) (domain.Sale, error) {
	var s domain.Sale
	var currency, state string
	err := row.Scan(
		&s.ID, &s.ListingID, &s.OfferID, &s.AssetID, &s.Buyer, &s.Seller,
		&s.SalePrice, &currency, &s.CollectionID, &s.RoyaltyBps, &s.RoyaltyAmount,
		&state, &s.TransferSig, &s.SettledAt,
	)
	if err != nil {
		return domain.Sale{}, err
	}
	s.Currency = domain.Currency(currency)
	s.TransferState = domain.TransferState(state)
	return s, nil
}

// GetByID retrieves a sale by its primary key.
func (s *SaleStore) GetByID(ctx context.Context, id string) (domain.Sale, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+saleCols+` FROM sales WHERE id = $1`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Sale{}, domain.ErrNotFound
		}
		return domain.Sale{}, fmt.Errorf("postgres: get sale %s: %w", id, err)
	}
	return sale, nil
}

// ListByAsset returns an asset's sales in chronological order.
func (s *SaleStore) ListByAsset(ctx context.Context, assetID string, opts domain.ListOpts) ([]domain.Sale, error) {
	return s.list(ctx, `WHERE asset_id = $1 ORDER BY settled_at ASC`, []any{assetID}, opts)
}

// ListSince returns sales settled at or after the given time, oldest first.
func (s *SaleStore) ListSince(ctx context.Context, since time.Time, opts domain.ListOpts) ([]domain.Sale, error) {
	return s.list(ctx, `WHERE settled_at >= $1 ORDER BY settled_at ASC`, []any{since}, opts)
}

// ListPendingTransfers returns sales whose funds transfer has not confirmed.
func (s *SaleStore) ListPendingTransfers(ctx context.Context) ([]domain.Sale, error) {
	return s.list(ctx,
		`WHERE transfer_state IN ('pending', 'failed') ORDER BY settled_at ASC`,
		nil, domain.ListOpts{})
}

func (s *SaleStore) list(ctx context.Context, tail string, args []any, opts domain.ListOpts) ([]domain.Sale, error) {
	query := `SELECT ` + saleCols + ` FROM sales ` + tail
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
		return nil, fmt.Errorf("postgres: list sales: %w", err)
	}
	defer rows.Close()

	var sales []domain.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan sale: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list sales rows: %w", err)
	}
	return sales, nil
}

// SetTransferState advances a sale's downstream transfer state.
func (s *SaleStore) SetTransferState(ctx context.Context, id string, state domain.TransferState, sig string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sales SET transfer_state = $2,
			transfer_sig = CASE WHEN $3 <> '' THEN $3 ELSE transfer_sig END
		 WHERE id = $1`,
		id, string(state), sig,
	)
	if err != nil {
		return fmt.Errorf("postgres: set transfer state for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Volume returns the sale count and summed sale prices in [from, to).
func (s *SaleStore) Volume(ctx context.Context, from, to time.Time) (int64, int64, error) {
	var count, volume int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(sale_price), 0) FROM sales
		 WHERE settled_at >= $1 AND settled_at < $2`,
		from, to,
	).Scan(&count, &volume)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: sale volume: %w", err)
	}
	return count, volume, nil
}

// CollectionVolume aggregates sale count, volume, and current floor price per
// collection over [from, to), ordered by volume.
func (s *SaleStore) CollectionVolume(ctx context.Context, from, to time.Time, limit int) ([]domain.CollectionStats, error) {
	const query = `
		SELECT s.collection_id,
		       COUNT(*),
		       COALESCE(SUM(s.sale_price), 0),
		       COALESCE((
		           SELECT MIN(` + askExpr + `)
		           FROM listings
		           WHERE collection_id = s.collection_id
		             AND status = 'active'
		             AND (type = 'fixed' OR buy_now_price > 0)
		       ), 0)
		FROM sales s
		WHERE s.collection_id <> '' AND s.settled_at >= $1 AND s.settled_at < $2
		GROUP BY s.collection_id
		ORDER BY 3 DESC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: collection volume: %w", err)
	}
	defer rows.Close()

	var out []domain.CollectionStats
	for rows.Next() {
		var cs domain.CollectionStats
		if err := rows.Scan(&cs.CollectionID, &cs.Sales, &cs.Volume, &cs.FloorPrice); err != nil {
			return nil, fmt.Errorf("postgres: scan collection stats: %w", err)
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: collection volume rows: %w", err)
	}
	return out, nil
}

var _ domain.SaleStore = (*SaleStore)(nil)
