package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blockmart/marketd/internal/domain"
)

// ActivityStore implements domain.ActivityStore using PostgreSQL. The feed is
// a derived projection: Reset truncates it so the projector can rebuild from
// the sale log.
type ActivityStore struct {
	pool *pgxpool.Pool
}

// NewActivityStore creates an ActivityStore backed by the given pool.
func NewActivityStore(pool *pgxpool.Pool) *ActivityStore {
	return &ActivityStore{pool: pool}
}

// Append writes one feed entry.
func (s *ActivityStore) Append(ctx context.Context, e domain.ActivityEntry) error {
	const query = `
		INSERT INTO activity (type, listing_id, asset_id, collection_id,
			from_addr, to_addr, amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		string(e.Type), e.ListingID, e.AssetID, e.CollectionID,
		e.From, e.To, e.Amount, string(e.Currency), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append activity: %w", err)
	}
	return nil
}

// List returns feed entries newest first, filtered and paginated.
func (s *ActivityStore) List(ctx context.Context, f domain.ActivityFilter, opts domain.ListOpts) ([]domain.ActivityEntry, error) {
	query := `SELECT id, type, listing_id, asset_id, collection_id,
		from_addr, to_addr, amount, currency, created_at
		FROM activity WHERE 1=1`
	var args []any

	if f.AssetID != "" {
		args = append(args, f.AssetID)
		query += fmt.Sprintf(" AND asset_id = $%d", len(args))
	}
	if f.CollectionID != "" {
		args = append(args, f.CollectionID)
		query += fmt.Sprintf(" AND collection_id = $%d", len(args))
	}
	if f.Address != "" {
		args = append(args, f.Address)
		query += fmt.Sprintf(" AND (from_addr = $%d OR to_addr = $%d)", len(args), len(args))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}

	query += " ORDER BY created_at DESC, id DESC"

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
		return nil, fmt.Errorf("postgres: list activity: %w", err)
	}
	defer rows.Close()

	var out []domain.ActivityEntry
	for rows.Next() {
		var e domain.ActivityEntry
		var typ, currency string
		if err := rows.Scan(
			&e.ID, &typ, &e.ListingID, &e.AssetID, &e.CollectionID,
			&e.From, &e.To, &e.Amount, &currency, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan activity: %w", err)
		}
		e.Type = domain.ActivityType(typ)
		e.Currency = domain.Currency(currency)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list activity rows: %w", err)
	}
	return out, nil
}

// Reset discards the projection so it can be rebuilt.
func (s *ActivityStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE activity RESTART IDENTITY`); err != nil {
		return fmt.Errorf("postgres: reset activity: %w", err)
	}
	return nil
}

var _ domain.ActivityStore = (*ActivityStore)(nil)
