// Package memory holds in-memory store implementations used by paper mode
// and tests. They mirror the postgres stores' semantics, including status
// transition validation and duplicate-key errors.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/polybets/betrouter/internal/domain"
)

// SlipStore is an in-memory domain.BetSlipStore.
type SlipStore struct {
	mu    sync.RWMutex
	slips map[string]*domain.BetSlip
}

// NewSlipStore creates an empty slip store.
func NewSlipStore() *SlipStore {
	return &SlipStore{slips: make(map[string]*domain.BetSlip)}
}

var _ domain.BetSlipStore = (*SlipStore)(nil)

func (s *SlipStore) Create(_ context.Context, slip *domain.BetSlip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slips[slip.ID]; ok {
		return fmt.Errorf("memory: slip %s: %w", slip.ID, domain.ErrAlreadyExists)
	}
	now := time.Now()
	cp := *slip
	cp.Legs = append([]string(nil), slip.Legs...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.slips[slip.ID] = &cp
	return nil
}

func (s *SlipStore) Get(_ context.Context, id string) (*domain.BetSlip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slip, ok := s.slips[id]
	if !ok {
		return nil, fmt.Errorf("memory: slip %s: %w", id, domain.ErrNotFound)
	}
	cp := *slip
	cp.Legs = append([]string(nil), slip.Legs...)
	return &cp, nil
}

func (s *SlipStore) ListByUser(_ context.Context, user string, opts domain.ListOpts) ([]*domain.BetSlip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.BetSlip
	for _, slip := range s.slips {
		if slip.User != user {
			continue
		}
		cp := *slip
		cp.Legs = append([]string(nil), slip.Legs...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// ListFinishedBefore returns terminal slips last updated strictly before the
// cutoff, oldest first.
func (s *SlipStore) ListFinishedBefore(_ context.Context, before time.Time) ([]*domain.BetSlip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.BetSlip
	for _, slip := range s.slips {
		if !slip.Status.Terminal() || !slip.UpdatedAt.Before(before) {
			continue
		}
		cp := *slip
		cp.Legs = append([]string(nil), slip.Legs...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (s *SlipStore) UpdateStatus(_ context.Context, id string, next domain.SlipStatus, failureReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slip, ok := s.slips[id]
	if !ok {
		return fmt.Errorf("memory: slip %s: %w", id, domain.ErrNotFound)
	}
	if !slip.Status.CanTransition(next) {
		return &domain.TransitionError{SlipID: id, From: slip.Status, To: next}
	}
	slip.Status = next
	if failureReason != "" {
		slip.FailureReason = failureReason
	}
	slip.UpdatedAt = time.Now()
	return nil
}

func (s *SlipStore) SetFinalCollateral(_ context.Context, id string, final, dust int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slip, ok := s.slips[id]
	if !ok {
		return fmt.Errorf("memory: slip %s: %w", id, domain.ErrNotFound)
	}
	slip.FinalCollateral = final
	slip.DustAmount = dust
	slip.UpdatedAt = time.Now()
	return nil
}

func (s *SlipStore) SetLegs(_ context.Context, id string, legIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slip, ok := s.slips[id]
	if !ok {
		return fmt.Errorf("memory: slip %s: %w", id, domain.ErrNotFound)
	}
	slip.Legs = append([]string(nil), legIDs...)
	slip.UpdatedAt = time.Now()
	return nil
}
