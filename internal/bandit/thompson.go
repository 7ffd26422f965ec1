package bandit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adpilot/budgetd/internal/models"
)

// nowFn is replaced in tests to pin decay windows.
var nowFn = time.Now

// ErrNoVariants is returned when Select is called with an empty candidate set.
var ErrNoVariants = errors.New("no variants to select from")

// Signals are optional contextual match scores, each in [0,1], used to nudge
// the sampled score of a variant. The resulting boost is bounded by the
// tenant's MaxContextBoost so it can break ties but never override a clear
// statistical winner.
type Signals struct {
	TimeOfDayMatch  float64 `json:"time_of_day_match"`
	DeviceMatch     float64 `json:"device_match"`
	AudienceRecency float64 `json:"audience_recency"`
}

// Selector picks the variant that should receive incremental budget. Bandit
// policy (decay factor, decay window, context boost cap) is passed per call
// because it is tenant configuration, hot-reloaded between cycles.
//
// Select, Update and ApplyTimeDecay are serialized by an internal mutex: the
// belief store is shared mutable state across the variants being compared and
// lost updates would bias the posterior.
type Selector struct {
	store  BeliefStore
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector constructs a Selector. The seed makes sampling reproducible in
// tests; production callers pass something like time.Now().UnixNano().
func NewSelector(store BeliefStore, seed int64, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.L()
	}
	return &Selector{
		store:  store,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Select samples each candidate's Beta belief and returns the variant with
// the highest (optionally boosted) sample. Unseen variants start at the
// neutral prior, which gives them a wide distribution and a fair shot.
// Floating-point samples collide with probability zero, but ties from
// degenerate inputs break deterministically toward the lowest variant id.
func (s *Selector) Select(ctx context.Context, cfg models.BanditConfig, variantIDs []string, signals map[string]Signals) (string, error) {
	if len(variantIDs) == 0 {
		return "", ErrNoVariants
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	best := ""
	bestScore := math.Inf(-1)
	for _, id := range variantIDs {
		b, ok, err := s.store.Get(ctx, id)
		if err != nil {
			return "", err
		}
		if !ok {
			b = NewBelief(id, nowFn())
			if err := s.store.Put(ctx, b); err != nil {
				return "", err
			}
		}

		score := s.sampleBeta(b.Alpha, b.Beta)
		if sig, ok := signals[id]; ok {
			score *= contextBoost(cfg, sig)
		}

		if score > bestScore || (score == bestScore && id < best) {
			best = id
			bestScore = score
		}
	}

	s.logger.Debug("bandit selection",
		zap.String("variant_id", best),
		zap.Float64("sample", bestScore),
		zap.Int("candidates", len(variantIDs)),
	)
	return best, nil
}

// Update folds an observed batch of trials into a variant's belief.
// Negative counts and successes exceeding trials are rejected.
func (s *Selector) Update(ctx context.Context, variantID string, successes, trials int64) error {
	if successes < 0 || trials < 0 {
		return fmt.Errorf("bandit update for %s: negative counts (successes=%d trials=%d)",
			variantID, successes, trials)
	}
	if successes > trials {
		return fmt.Errorf("bandit update for %s: successes %d exceed trials %d",
			variantID, successes, trials)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok, err := s.store.Get(ctx, variantID)
	if err != nil {
		return err
	}
	if !ok {
		b = NewBelief(variantID, nowFn())
	}

	b.Alpha += float64(successes)
	b.Beta += float64(trials - successes)
	b.UpdatedAt = nowFn()
	return s.store.Put(ctx, b)
}

// RecordOutcome accumulates spend and realized revenue on a variant's belief
// for reporting alongside the statistical evidence.
func (s *Selector) RecordOutcome(ctx context.Context, variantID string, spend, revenue float64) error {
	if spend < 0 || revenue < 0 {
		return fmt.Errorf("bandit outcome for %s: negative amounts", variantID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok, err := s.store.Get(ctx, variantID)
	if err != nil {
		return err
	}
	if !ok {
		b = NewBelief(variantID, nowFn())
	}
	b.Spend += spend
	b.Revenue += revenue
	b.UpdatedAt = nowFn()
	return s.store.Put(ctx, b)
}

// ApplyTimeDecay shrinks beliefs toward the neutral prior by the tenant's
// factor once per elapsed decay window. Calling it again inside the same
// window is a no-op: each belief tracks the end of its last applied window in
// LastDecayAt. A non-empty scope restricts decay to variant ids carrying that
// prefix, so one tenant's policy never touches another tenant's beliefs.
func (s *Selector) ApplyTimeDecay(ctx context.Context, cfg models.BanditConfig, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := time.Duration(cfg.DecayWindowHours * float64(time.Hour))
	if window <= 0 {
		window = 24 * time.Hour
	}
	factor := cfg.DecayFactor
	if factor <= 0 || factor >= 1 {
		return fmt.Errorf("bandit decay: factor must be in (0,1), got %g", factor)
	}

	beliefs, err := s.store.List(ctx)
	if err != nil {
		return err
	}

	now := nowFn()
	for _, b := range beliefs {
		if scope != "" && !strings.HasPrefix(b.VariantID, scope) {
			continue
		}
		if b.LastDecayAt.IsZero() {
			b.LastDecayAt = b.UpdatedAt
		}
		elapsed := now.Sub(b.LastDecayAt)
		windows := int(elapsed / window)
		if windows < 1 {
			continue
		}

		shrink := math.Pow(factor, float64(windows))
		b.Alpha = neutralPrior + (b.Alpha-neutralPrior)*shrink
		b.Beta = neutralPrior + (b.Beta-neutralPrior)*shrink
		b.LastDecayAt = b.LastDecayAt.Add(time.Duration(windows) * window)
		if err := s.store.Put(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// contextBoost maps signals to a multiplier in [1, MaxContextBoost].
func contextBoost(cfg models.BanditConfig, sig Signals) float64 {
	maxBoost := cfg.MaxContextBoost
	if maxBoost <= 1 {
		return 1
	}
	match := (clamp01(sig.TimeOfDayMatch) + clamp01(sig.DeviceMatch) + clamp01(sig.AudienceRecency)) / 3
	return 1 + (maxBoost-1)*match
}

// sampleBeta draws one value from Beta(a, b) via two gamma draws.
func (s *Selector) sampleBeta(a, b float64) float64 {
	x := s.sampleGamma(a)
	y := s.sampleGamma(b)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma draws from Gamma(shape, 1) using Marsaglia–Tsang, with the
// standard boost for shape < 1.
func (s *Selector) sampleGamma(shape float64) float64 {
	if shape < 1 {
		u := s.rng.Float64()
		return s.sampleGamma(shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		x := s.rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := s.rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
