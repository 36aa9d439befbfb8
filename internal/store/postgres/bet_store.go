package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polybets/betrouter/internal/domain"
)

// BetStore implements domain.ProxiedBetStore using PostgreSQL. The primary
// key is the deterministic leg ID, so duplicate submissions surface as
// domain.ErrAlreadyExists.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

var _ domain.ProxiedBetStore = (*BetStore)(nil)

func (s *BetStore) Create(ctx context.Context, bet *domain.ProxiedBet) error {
	const query = `
		INSERT INTO proxied_bets (
			id, slip_id, venue_id, market_id, option_index,
			minimum_shares, original_collateral, final_collateral,
			shares_bought, shares_sold, outcome, failure_reason,
			placed_at, settled_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12,
			$13, $14
		)`

	placedAt := bet.PlacedAt
	if placedAt.IsZero() {
		placedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, query,
		bet.ID, bet.SlipID, bet.VenueID, bet.MarketID, bet.OptionIndex,
		bet.MinimumShares, bet.OriginalCollateralAmount, bet.FinalCollateralAmount,
		bet.SharesBought, bet.SharesSold, string(bet.Outcome), bet.FailureReason,
		placedAt, bet.SettledAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: leg %s: %w", bet.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create leg %s: %w", bet.ID, err)
	}
	return nil
}

const betSelectCols = `id, slip_id, venue_id, market_id, option_index,
	minimum_shares, original_collateral, final_collateral,
	shares_bought, shares_sold, outcome, failure_reason, placed_at, settled_at`

func scanBet(scanner interface{ Scan(dest ...any) error }) (*domain.ProxiedBet, error) {
	var bet domain.ProxiedBet
	var outcome string
	err := scanner.Scan(
		&bet.ID, &bet.SlipID, &bet.VenueID, &bet.MarketID, &bet.OptionIndex,
		&bet.MinimumShares, &bet.OriginalCollateralAmount, &bet.FinalCollateralAmount,
		&bet.SharesBought, &bet.SharesSold, &outcome, &bet.FailureReason,
		&bet.PlacedAt, &bet.SettledAt,
	)
	if err != nil {
		return nil, err
	}
	bet.Outcome = domain.LegOutcome(outcome)
	return &bet, nil
}

func (s *BetStore) Get(ctx context.Context, id string) (*domain.ProxiedBet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betSelectCols+` FROM proxied_bets WHERE id = $1`, id)

	bet, err := scanBet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: leg %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: get leg %s: %w", id, err)
	}
	return bet, nil
}

func (s *BetStore) listBySlip(ctx context.Context, slipID, filter string) ([]*domain.ProxiedBet, error) {
	query := `SELECT ` + betSelectCols + ` FROM proxied_bets WHERE slip_id = $1` + filter + ` ORDER BY placed_at`
	rows, err := s.pool.Query(ctx, query, slipID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list legs for slip %s: %w", slipID, err)
	}
	defer rows.Close()

	var bets []*domain.ProxiedBet
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan leg: %w", err)
		}
		bets = append(bets, bet)
	}
	return bets, rows.Err()
}

func (s *BetStore) ListBySlip(ctx context.Context, slipID string) ([]*domain.ProxiedBet, error) {
	return s.listBySlip(ctx, slipID, "")
}

func (s *BetStore) ListOpenBySlip(ctx context.Context, slipID string) ([]*domain.ProxiedBet, error) {
	return s.listBySlip(ctx, slipID, ` AND outcome = 'placed'`)
}

func (s *BetStore) ListOpenByMarket(ctx context.Context, venueID, marketID string) ([]*domain.ProxiedBet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betSelectCols+` FROM proxied_bets
		 WHERE venue_id = $1 AND market_id = $2 AND outcome = 'placed'
		 ORDER BY placed_at`, venueID, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open legs for %s/%s: %w", venueID, marketID, err)
	}
	defer rows.Close()

	var bets []*domain.ProxiedBet
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan leg: %w", err)
		}
		bets = append(bets, bet)
	}
	return bets, rows.Err()
}

func (s *BetStore) MarkOutcome(ctx context.Context, id string, outcome domain.LegOutcome, settlementAmount int64, settledAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE proxied_bets SET outcome = $1, final_collateral = $2, settled_at = $3 WHERE id = $4`,
		string(outcome), settlementAmount, settledAt, id)
	if err != nil {
		return fmt.Errorf("postgres: mark outcome %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: leg %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *BetStore) RecordSale(ctx context.Context, id string, sharesSold, proceeds int64, settledAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE proxied_bets
		 SET outcome = 'sold', shares_sold = $1, final_collateral = $2, settled_at = $3
		 WHERE id = $4`,
		sharesSold, proceeds, settledAt, id)
	if err != nil {
		return fmt.Errorf("postgres: record sale %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: leg %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *BetStore) SetFailureReason(ctx context.Context, id, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE proxied_bets SET failure_reason = $1 WHERE id = $2`, reason, id)
	if err != nil {
		return fmt.Errorf("postgres: set failure reason %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: leg %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
