package models

import (
	"sync"
	"time"
)

// AdStateStore holds the authoritative AdState per ad, keyed explicitly by ad
// ID. Keying on the ID rather than the struct makes the "same ID means same
// entity" rule obvious and testable. Ads are never deleted from the store;
// pausing and archiving are handled by an external status flag.
type AdStateStore interface {
	// Get returns a copy of the stored state for the ID, or nil if unseen.
	Get(id string) *AdState
	// List returns copies of all stored states.
	List() []AdState
	// ApplySnapshot merges a metrics snapshot into the stored state. The first
	// sighting of an ID creates the state. A snapshot whose counters or
	// accumulators are below the stored values is rejected with a
	// *DataIntegrityError and the stored state is left untouched.
	ApplySnapshot(snap AdState) error
}

// InMemoryAdStateStore is the default AdStateStore. All methods are safe for
// concurrent use.
type InMemoryAdStateStore struct {
	mu  sync.RWMutex
	ads map[string]*AdState
}

// NewInMemoryAdStateStore returns an empty store.
func NewInMemoryAdStateStore() *InMemoryAdStateStore {
	return &InMemoryAdStateStore{ads: make(map[string]*AdState)}
}

func (s *InMemoryAdStateStore) Get(id string) *AdState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.ads[id]
	if !ok {
		return nil
	}
	cp := *cur
	return &cp
}

func (s *InMemoryAdStateStore) List() []AdState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AdState, 0, len(s.ads))
	for _, a := range s.ads {
		out = append(out, *a)
	}
	return out
}

func (s *InMemoryAdStateStore) ApplySnapshot(snap AdState) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.ads[snap.ID]
	if !ok {
		cp := snap
		if cp.UpdatedAt.IsZero() {
			cp.UpdatedAt = time.Now()
		}
		s.ads[snap.ID] = &cp
		return nil
	}

	if err := checkMonotonic(cur, &snap); err != nil {
		return err
	}

	cp := snap
	// Creation time is fixed at first sighting; later snapshots may carry a
	// collector-side timestamp that drifted.
	cp.CreatedAt = cur.CreatedAt
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	s.ads[snap.ID] = &cp
	return nil
}

func checkMonotonic(cur, snap *AdState) error {
	switch {
	case snap.Impressions < cur.Impressions:
		return &DataIntegrityError{AdID: snap.ID, Field: "impressions",
			Stored: float64(cur.Impressions), Seen: float64(snap.Impressions)}
	case snap.Clicks < cur.Clicks:
		return &DataIntegrityError{AdID: snap.ID, Field: "clicks",
			Stored: float64(cur.Clicks), Seen: float64(snap.Clicks)}
	case snap.Conversions < cur.Conversions:
		return &DataIntegrityError{AdID: snap.ID, Field: "conversions",
			Stored: float64(cur.Conversions), Seen: float64(snap.Conversions)}
	case snap.Spend < cur.Spend:
		return &DataIntegrityError{AdID: snap.ID, Field: "spend",
			Stored: cur.Spend, Seen: snap.Spend}
	case snap.Revenue < cur.Revenue:
		return &DataIntegrityError{AdID: snap.ID, Field: "revenue",
			Stored: cur.Revenue, Seen: snap.Revenue}
	}
	return nil
}
