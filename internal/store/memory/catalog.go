package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/polybets/betrouter/internal/domain"
)

// VenueStore is an in-memory domain.VenueStore over a static roster.
type VenueStore struct {
	mu     sync.RWMutex
	venues map[string]*domain.Venue
	order  []string
}

// NewVenueStore creates a venue store from the configured roster.
func NewVenueStore(venues []*domain.Venue) *VenueStore {
	s := &VenueStore{venues: make(map[string]*domain.Venue, len(venues))}
	for _, v := range venues {
		cp := *v
		s.venues[v.ID] = &cp
		s.order = append(s.order, v.ID)
	}
	return s
}

var _ domain.VenueStore = (*VenueStore)(nil)

func (s *VenueStore) Get(_ context.Context, id string) (*domain.Venue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.venues[id]
	if !ok {
		return nil, fmt.Errorf("memory: venue %s: %w", id, domain.ErrNotFound)
	}
	cp := *v
	return &cp, nil
}

func (s *VenueStore) ListActive(_ context.Context) ([]*domain.Venue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Venue
	for _, id := range s.order {
		if v := s.venues[id]; v.Active {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Catalog is an in-memory domain.MarketCatalog mapping parent markets to
// their per-venue markets.
type Catalog struct {
	mu      sync.RWMutex
	markets map[string][]domain.TargetMarket
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{markets: make(map[string][]domain.TargetMarket)}
}

var _ domain.MarketCatalog = (*Catalog)(nil)

// Register maps a parent market to its venue-level markets, replacing any
// previous mapping.
func (c *Catalog) Register(parentMarketID string, targets []domain.TargetMarket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markets[parentMarketID] = append([]domain.TargetMarket(nil), targets...)
}

func (c *Catalog) Resolve(_ context.Context, parentMarketID string) ([]domain.TargetMarket, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	targets, ok := c.markets[parentMarketID]
	if !ok || len(targets) == 0 {
		return nil, fmt.Errorf("memory: parent market %s: %w", parentMarketID, domain.ErrNotFound)
	}
	return append([]domain.TargetMarket(nil), targets...), nil
}
