package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/polybets/betrouter/internal/domain"
)

// BetStore is an in-memory domain.ProxiedBetStore.
type BetStore struct {
	mu   sync.RWMutex
	bets map[string]*domain.ProxiedBet
}

// NewBetStore creates an empty proxied-bet store.
func NewBetStore() *BetStore {
	return &BetStore{bets: make(map[string]*domain.ProxiedBet)}
}

var _ domain.ProxiedBetStore = (*BetStore)(nil)

func (s *BetStore) Create(_ context.Context, bet *domain.ProxiedBet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bets[bet.ID]; ok {
		return fmt.Errorf("memory: leg %s: %w", bet.ID, domain.ErrAlreadyExists)
	}
	cp := *bet
	s.bets[bet.ID] = &cp
	return nil
}

func (s *BetStore) Get(_ context.Context, id string) (*domain.ProxiedBet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bet, ok := s.bets[id]
	if !ok {
		return nil, fmt.Errorf("memory: leg %s: %w", id, domain.ErrNotFound)
	}
	cp := *bet
	return &cp, nil
}

func (s *BetStore) ListBySlip(_ context.Context, slipID string) ([]*domain.ProxiedBet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.ProxiedBet
	for _, bet := range s.bets {
		if bet.SlipID != slipID {
			continue
		}
		cp := *bet
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out, nil
}

func (s *BetStore) ListOpenBySlip(ctx context.Context, slipID string) ([]*domain.ProxiedBet, error) {
	all, err := s.ListBySlip(ctx, slipID)
	if err != nil {
		return nil, err
	}
	open := all[:0]
	for _, bet := range all {
		if bet.Open() {
			open = append(open, bet)
		}
	}
	return open, nil
}

func (s *BetStore) ListOpenByMarket(_ context.Context, venueID, marketID string) ([]*domain.ProxiedBet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.ProxiedBet
	for _, bet := range s.bets {
		if bet.VenueID == venueID && bet.MarketID == marketID && bet.Open() {
			cp := *bet
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out, nil
}

func (s *BetStore) MarkOutcome(_ context.Context, id string, outcome domain.LegOutcome, settlementAmount int64, settledAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bet, ok := s.bets[id]
	if !ok {
		return fmt.Errorf("memory: leg %s: %w", id, domain.ErrNotFound)
	}
	bet.Outcome = outcome
	bet.FinalCollateralAmount = settlementAmount
	bet.SettledAt = &settledAt
	return nil
}

func (s *BetStore) SetFailureReason(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bet, ok := s.bets[id]
	if !ok {
		return fmt.Errorf("memory: leg %s: %w", id, domain.ErrNotFound)
	}
	bet.FailureReason = reason
	return nil
}

func (s *BetStore) RecordSale(_ context.Context, id string, sharesSold, proceeds int64, settledAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bet, ok := s.bets[id]
	if !ok {
		return fmt.Errorf("memory: leg %s: %w", id, domain.ErrNotFound)
	}
	bet.Outcome = domain.LegOutcomeSold
	bet.SharesSold = sharesSold
	bet.FinalCollateralAmount = proceeds
	bet.SettledAt = &settledAt
	return nil
}
