package engine

import (
	"context"
	"sync"
	"time"
)

// WinnerEvent describes an ad that has sustained a high blended score long
// enough to be treated as a candidate winning creative. Events are consumed
// by an external similarity-search store; this engine only emits them.
type WinnerEvent struct {
	AdID         string    `json:"ad_id"`
	Tenant       string    `json:"tenant"`
	BlendedScore float64   `json:"blended_score"`
	BlendWeight  float64   `json:"blend_weight"`
	CTR          float64   `json:"ctr"`
	RealizedROAS float64   `json:"realized_roas"`
	Spend        float64   `json:"spend"`
	Revenue      float64   `json:"revenue"`
	Stage        string    `json:"stage,omitempty"`
	ObservedAt   time.Time `json:"observed_at"`
}

// WinnerSink receives candidate-winner events.
type WinnerSink interface {
	Publish(ctx context.Context, ev WinnerEvent) error
}

// MemoryWinnerSink keeps the most recent events in a ring buffer. It backs
// the /winners endpoint and stands in for the pattern-memory pipeline in
// tests and single-process deployments.
type MemoryWinnerSink struct {
	mu     sync.Mutex
	events []WinnerEvent
	limit  int
}

// NewMemoryWinnerSink returns a sink retaining up to limit events.
func NewMemoryWinnerSink(limit int) *MemoryWinnerSink {
	if limit <= 0 {
		limit = 100
	}
	return &MemoryWinnerSink{limit: limit}
}

func (s *MemoryWinnerSink) Publish(_ context.Context, ev WinnerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	if len(s.events) > s.limit {
		s.events = s.events[len(s.events)-s.limit:]
	}
	return nil
}

// Recent returns a copy of the retained events, newest last.
func (s *MemoryWinnerSink) Recent() []WinnerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WinnerEvent, len(s.events))
	copy(out, s.events)
	return out
}
