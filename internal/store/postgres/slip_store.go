package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polybets/betrouter/internal/domain"
)

// SlipStore implements domain.BetSlipStore using PostgreSQL.
type SlipStore struct {
	pool *pgxpool.Pool
}

// NewSlipStore creates a SlipStore backed by the given connection pool.
func NewSlipStore(pool *pgxpool.Pool) *SlipStore {
	return &SlipStore{pool: pool}
}

var _ domain.BetSlipStore = (*SlipStore)(nil)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *SlipStore) Create(ctx context.Context, slip *domain.BetSlip) error {
	const query = `
		INSERT INTO bet_slips (
			id, user_id, strategy, parent_market_id, outcome_index,
			initial_collateral, final_collateral, dust_amount, status,
			instant_arbitrage, failure_reason, parent_id, legs,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			NOW(), NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		slip.ID, slip.User, string(slip.Strategy), slip.ParentMarketID, slip.OutcomeIndex,
		slip.InitialCollateral, slip.FinalCollateral, slip.DustAmount, string(slip.Status),
		slip.InstantArbitrage, slip.FailureReason, slip.ParentID, slip.Legs,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: slip %s: %w", slip.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create slip %s: %w", slip.ID, err)
	}
	return nil
}

const slipSelectCols = `id, user_id, strategy, parent_market_id, outcome_index,
	initial_collateral, final_collateral, dust_amount, status,
	instant_arbitrage, failure_reason, parent_id, legs, created_at, updated_at`

func scanSlip(scanner interface{ Scan(dest ...any) error }) (*domain.BetSlip, error) {
	var slip domain.BetSlip
	var strategy, status string
	err := scanner.Scan(
		&slip.ID, &slip.User, &strategy, &slip.ParentMarketID, &slip.OutcomeIndex,
		&slip.InitialCollateral, &slip.FinalCollateral, &slip.DustAmount, &status,
		&slip.InstantArbitrage, &slip.FailureReason, &slip.ParentID, &slip.Legs,
		&slip.CreatedAt, &slip.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	slip.Strategy = domain.BetStrategy(strategy)
	slip.Status = domain.SlipStatus(status)
	return &slip, nil
}

func (s *SlipStore) Get(ctx context.Context, id string) (*domain.BetSlip, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+slipSelectCols+` FROM bet_slips WHERE id = $1`, id)

	slip, err := scanSlip(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: slip %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: get slip %s: %w", id, err)
	}
	return slip, nil
}

func (s *SlipStore) ListByUser(ctx context.Context, user string, opts domain.ListOpts) ([]*domain.BetSlip, error) {
	query := `SELECT ` + slipSelectCols + ` FROM bet_slips WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{user}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list slips by user: %w", err)
	}
	defer rows.Close()

	var slips []*domain.BetSlip
	for rows.Next() {
		slip, err := scanSlip(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan slip: %w", err)
		}
		slips = append(slips, slip)
	}
	return slips, rows.Err()
}

// ListFinishedBefore returns terminal slips last updated strictly before the
// cutoff, oldest first. Used by the archiver.
func (s *SlipStore) ListFinishedBefore(ctx context.Context, before time.Time) ([]*domain.BetSlip, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+slipSelectCols+` FROM bet_slips
		 WHERE status IN ('closed', 'failed') AND updated_at < $1
		 ORDER BY updated_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list finished slips: %w", err)
	}
	defer rows.Close()

	var slips []*domain.BetSlip
	for rows.Next() {
		slip, err := scanSlip(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan slip: %w", err)
		}
		slips = append(slips, slip)
	}
	return slips, rows.Err()
}

// UpdateStatus validates the transition against the current status inside a
// transaction, so concurrent writers cannot race a terminal slip back to
// life.
func (s *SlipStore) UpdateStatus(ctx context.Context, id string, next domain.SlipStatus, failureReason string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: update slip status %s: %w", id, err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx,
		`SELECT status FROM bet_slips WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("postgres: slip %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("postgres: update slip status %s: %w", id, err)
	}

	if !domain.SlipStatus(current).CanTransition(next) {
		return &domain.TransitionError{SlipID: id, From: domain.SlipStatus(current), To: next}
	}

	if failureReason != "" {
		_, err = tx.Exec(ctx,
			`UPDATE bet_slips SET status = $1, failure_reason = $2, updated_at = NOW() WHERE id = $3`,
			string(next), failureReason, id)
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE bet_slips SET status = $1, updated_at = NOW() WHERE id = $2`,
			string(next), id)
	}
	if err != nil {
		return fmt.Errorf("postgres: update slip status %s: %w", id, err)
	}
	return tx.Commit(ctx)
}

func (s *SlipStore) SetFinalCollateral(ctx context.Context, id string, final, dust int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bet_slips SET final_collateral = $1, dust_amount = $2, updated_at = NOW() WHERE id = $3`,
		final, dust, id)
	if err != nil {
		return fmt.Errorf("postgres: set final collateral %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: slip %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *SlipStore) SetLegs(ctx context.Context, id string, legIDs []string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bet_slips SET legs = $1, updated_at = NOW() WHERE id = $2`,
		legIDs, id)
	if err != nil {
		return fmt.Errorf("postgres: set legs %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: slip %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
