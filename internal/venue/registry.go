package venue

import (
	"fmt"

	"github.com/polybets/betrouter/internal/domain"
)

// Registry maps venue IDs to their adapters. Built once at wiring time and
// read-only afterwards.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the active venue roster. factory turns
// one venue's static configuration into its adapter; inactive venues are
// skipped.
func NewRegistry(venues []*domain.Venue, factory func(*domain.Venue) (Adapter, error)) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(venues))}
	for _, v := range venues {
		if !v.Active {
			continue
		}
		a, err := factory(v)
		if err != nil {
			return nil, fmt.Errorf("venue: build adapter for %s: %w", v.ID, err)
		}
		r.adapters[v.ID] = a
	}
	return r, nil
}

// Get returns the adapter for venueID, or domain.ErrNotFound.
func (r *Registry) Get(venueID string) (Adapter, error) {
	a, ok := r.adapters[venueID]
	if !ok {
		return nil, fmt.Errorf("venue: %s: %w", venueID, domain.ErrNotFound)
	}
	return a, nil
}

// IDs lists every registered venue.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		out = append(out, id)
	}
	return out
}
