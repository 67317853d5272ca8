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

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a ListingStore backed by the given connection pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

const listingCols = `id, asset_id, seller, type, currency, status,
	price, starting_price, reserve_price, buy_now_price, ending_price,
	price_drop_interval, ends_at, collection_id, royalty_bps, favorited_by,
	created_at, updated_at`

// askExpr is the price a listing is sorted and range-filtered by: the static
// buy price where one exists, otherwise the auction starting price.
const askExpr = `CASE
	WHEN type = 'fixed' THEN price
	WHEN type = 'english_auction' AND buy_now_price > 0 THEN buy_now_price
	ELSE starting_price END`

func scanListing(row pgx.Row) (domain.Listing, error) {
	var l domain.Listing
	var typ, currency, status string
	var dropInterval int64
	err := row.Scan(
		&l.ID, &l.AssetID, &l.Seller, &typ, &currency, &status,
		&l.Price, &l.StartingPrice, &l.ReservePrice, &l.BuyNowPrice, &l.EndingPrice,
		&dropInterval, &l.EndsAt, &l.CollectionID, &l.RoyaltyBps, &l.FavoritedBy,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.Listing{}, err
	}
	l.Type = domain.ListingType(typ)
	l.Currency = domain.Currency(currency)
	l.Status = domain.ListingStatus(status)
	l.PriceDropInterval = time.Duration(dropInterval)
	return l, nil
}

// Create inserts a new listing.
func (s *ListingStore) Create(ctx context.Context, l domain.Listing) error {
	const query = `
		INSERT INTO listings (
			id, asset_id, seller, type, currency, status,
			price, starting_price, reserve_price, buy_now_price, ending_price,
			price_drop_interval, ends_at, collection_id, royalty_bps, favorited_by,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, NOW()
		)`

	favorites := l.FavoritedBy
	if favorites == nil {
		favorites = []string{}
	}

	_, err := s.pool.Exec(ctx, query,
		l.ID, l.AssetID, l.Seller, string(l.Type), string(l.Currency), string(l.Status),
		l.Price, l.StartingPrice, l.ReservePrice, l.BuyNowPrice, l.EndingPrice,
		int64(l.PriceDropInterval), l.EndsAt, l.CollectionID, l.RoyaltyBps, favorites,
		l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create listing %s: %w", l.ID, err)
	}
	return nil
}

// GetByID retrieves a listing by its primary key.
func (s *ListingStore) GetByID(ctx context.Context, id string) (domain.Listing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingCols+` FROM listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %s: %w", id, err)
	}
	return l, nil
}

// filterClause appends WHERE conditions for the filter and returns the
// updated args slice.
func filterClause(f domain.ListingFilter, args []any) (string, []any) {
	clause := " WHERE 1=1"
	add := func(cond string, v any) {
		args = append(args, v)
		clause += fmt.Sprintf(" AND "+cond, len(args))
	}

	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.AssetID != "" {
		add("asset_id = $%d", f.AssetID)
	}
	if f.CollectionID != "" {
		add("collection_id = $%d", f.CollectionID)
	}
	if f.Seller != "" {
		add("seller = $%d", f.Seller)
	}
	if f.Currency != "" {
		add("currency = $%d", string(f.Currency))
	}
	if f.MinPrice > 0 {
		add("("+askExpr+") >= $%d", f.MinPrice)
	}
	if f.MaxPrice > 0 {
		add("("+askExpr+") <= $%d", f.MaxPrice)
	}
	return clause, args
}

func orderClause(sort domain.ListingSort) string {
	switch sort {
	case domain.SortPriceAsc:
		return " ORDER BY (" + askExpr + ") ASC"
	case domain.SortPriceDesc:
		return " ORDER BY (" + askExpr + ") DESC"
	case domain.SortEndingSoon:
		return " ORDER BY ends_at ASC NULLS LAST"
	default:
		return " ORDER BY created_at DESC"
	}
}

// List returns filtered, sorted, paginated listings.
func (s *ListingStore) List(ctx context.Context, f domain.ListingFilter, opts domain.ListOpts) ([]domain.Listing, error) {
	query := `SELECT ` + listingCols + ` FROM listings`
	clause, args := filterClause(f, nil)
	query += clause + orderClause(f.Sort)

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
		return nil, fmt.Errorf("postgres: list listings: %w", err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list listings rows: %w", err)
	}
	return listings, nil
}

// Count returns how many listings match the filter.
func (s *ListingStore) Count(ctx context.Context, f domain.ListingFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM listings`
	clause, args := filterClause(f, nil)
	query += clause

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count listings: %w", err)
	}
	return count, nil
}

// ToggleFavorite flips the (listing, address) favorite membership and returns
// the new state. The array update is a single statement, so concurrent
// toggles by different addresses never lose writes.
func (s *ListingStore) ToggleFavorite(ctx context.Context, id, address string) (bool, error) {
	const query = `
		UPDATE listings SET
			favorited_by = CASE
				WHEN $2 = ANY(favorited_by)
					THEN array_remove(favorited_by, $2)
				ELSE array_append(favorited_by, $2)
			END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING $2 = ANY(favorited_by)`

	var favorited bool
	err := s.pool.QueryRow(ctx, query, id, address).Scan(&favorited)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.ErrNotFound
		}
		return false, fmt.Errorf("postgres: toggle favorite %s: %w", id, err)
	}
	return favorited, nil
}

// ListEndedAuctions returns active auction listings whose deadline has passed.
func (s *ListingStore) ListEndedAuctions(ctx context.Context, now time.Time) ([]domain.Listing, error) {
	query := `SELECT ` + listingCols + ` FROM listings
		WHERE status = 'active'
		  AND type IN ('english_auction', 'dutch_auction')
		  AND ends_at IS NOT NULL AND ends_at <= $1
		ORDER BY ends_at ASC`

	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ended auctions: %w", err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan ended auction: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list ended auctions rows: %w", err)
	}
	return listings, nil
}

var _ domain.ListingStore = (*ListingStore)(nil)
