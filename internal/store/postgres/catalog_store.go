package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polybets/betrouter/internal/domain"
)

// CatalogStore implements domain.MarketCatalog using PostgreSQL.
type CatalogStore struct {
	pool *pgxpool.Pool
}

// NewCatalogStore creates a CatalogStore backed by the given connection pool.
func NewCatalogStore(pool *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

var _ domain.MarketCatalog = (*CatalogStore)(nil)

func (s *CatalogStore) Resolve(ctx context.Context, parentMarketID string) ([]domain.TargetMarket, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT venue_id, market_id FROM market_catalog
		 WHERE parent_market_id = $1 ORDER BY position, venue_id`,
		parentMarketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: resolve market %s: %w", parentMarketID, err)
	}
	defer rows.Close()

	var targets []domain.TargetMarket
	for rows.Next() {
		var t domain.TargetMarket
		if err := rows.Scan(&t.VenueID, &t.MarketID); err != nil {
			return nil, fmt.Errorf("postgres: scan catalog row: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: resolve market %s: %w", parentMarketID, err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("postgres: parent market %s: %w", parentMarketID, domain.ErrNotFound)
	}
	return targets, nil
}

// Register maps a parent market to its venue-level markets, replacing any
// previous mapping.
func (s *CatalogStore) Register(ctx context.Context, parentMarketID string, targets []domain.TargetMarket) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: register market %s: %w", parentMarketID, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM market_catalog WHERE parent_market_id = $1`, parentMarketID); err != nil {
		return fmt.Errorf("postgres: register market %s: %w", parentMarketID, err)
	}
	for i, t := range targets {
		if _, err := tx.Exec(ctx,
			`INSERT INTO market_catalog (parent_market_id, venue_id, market_id, position)
			 VALUES ($1, $2, $3, $4)`,
			parentMarketID, t.VenueID, t.MarketID, i); err != nil {
			return fmt.Errorf("postgres: register market %s: %w", parentMarketID, err)
		}
	}
	return tx.Commit(ctx)
}
