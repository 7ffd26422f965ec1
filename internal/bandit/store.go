// Package bandit allocates incremental budget across ad variants using
// Thompson sampling over per-variant Beta beliefs.
//
// Variants with little data have wide belief distributions and occasionally
// win a sample by chance (exploration); variants with strong track records
// have narrow distributions peaked high (exploitation). Old evidence decays
// toward a neutral prior so a stale winner cannot dominate after the audience
// or creative has moved on.
package bandit

import (
	"context"
	"sync"
	"time"
)

// Belief is one variant's Beta-distribution evidence plus bookkeeping.
type Belief struct {
	VariantID string    `json:"variant_id"`
	Alpha     float64   `json:"alpha"` // successes + prior
	Beta      float64   `json:"beta"`  // failures + prior
	Spend     float64   `json:"spend"`
	Revenue   float64   `json:"revenue"`
	UpdatedAt time.Time `json:"updated_at"`
	// LastDecayAt marks the end of the last applied decay window, making
	// ApplyTimeDecay idempotent within a window.
	LastDecayAt time.Time `json:"last_decay_at"`
}

// neutralPrior is the Beta(1,1) uniform prior beliefs decay toward.
const neutralPrior = 1.0

// NewBelief returns a belief at the neutral prior.
func NewBelief(variantID string, now time.Time) Belief {
	return Belief{
		VariantID:   variantID,
		Alpha:       neutralPrior,
		Beta:        neutralPrior,
		UpdatedAt:   now,
		LastDecayAt: now,
	}
}

// BeliefStore persists variant beliefs. The selector serializes its own
// calls, but implementations must still be safe for concurrent use because
// multiple decision groups may share a store.
type BeliefStore interface {
	// Get returns the belief for a variant, or ok=false when unseen.
	Get(ctx context.Context, variantID string) (Belief, bool, error)
	// Put stores a belief, replacing any prior value.
	Put(ctx context.Context, b Belief) error
	// List returns all stored beliefs.
	List(ctx context.Context) ([]Belief, error)
}

// MemoryStore is the in-memory BeliefStore used in tests and single-process
// deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	beliefs map[string]Belief
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{beliefs: make(map[string]Belief)}
}

func (s *MemoryStore) Get(_ context.Context, variantID string) (Belief, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.beliefs[variantID]
	return b, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, b Belief) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beliefs[b.VariantID] = b
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Belief, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Belief, 0, len(s.beliefs))
	for _, b := range s.beliefs {
		out = append(out, b)
	}
	return out, nil
}
