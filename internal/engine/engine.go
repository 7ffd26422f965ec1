// Package engine contains the decision orchestrator: the component that turns
// an ad's observed state, metric history and tenant policy into a single
// explainable budget decision.
//
// Every evaluation is a pure function of its inputs plus immutable tenant
// configuration, so any number of ads can be evaluated concurrently. The
// ordering of the algorithm matters and is deliberate:
//
//  1. The ignorance-zone gate runs first. Ads that will pay off in 5-7 days
//     look like losers on day 1 because no revenue has landed yet; killing
//     them there is the classic failure this engine exists to prevent.
//  2. The blended score fuses click and revenue signals by ad age.
//  3. A severe fatigue verdict overrides a positive blended score: a
//     fatigued audience will not respond profitably to a historically good ad.
//  4. Only then are the kill/scale thresholds applied.
package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adpilot/budgetd/internal/bandit"
	"github.com/adpilot/budgetd/internal/blending"
	"github.com/adpilot/budgetd/internal/fatigue"
	"github.com/adpilot/budgetd/internal/models"
	"github.com/adpilot/budgetd/internal/observability"
	"github.com/adpilot/budgetd/internal/valuation"
)

// nowFn is used to get the current time. Tests replace it to pin ad ages.
var nowFn = time.Now

// Engine evaluates ads into decisions. It carries no per-ad mutable state
// except the winner streak tracker; the bandit selector serializes its own
// shared belief store.
type Engine struct {
	Bandit  *bandit.Selector
	Metrics observability.MetricsRegistry
	Logger  *zap.Logger
	Winners WinnerSink

	streakMu sync.Mutex
	streaks  map[string]int
}

// New constructs an Engine. Bandit and winner sink are optional; metrics and
// logger fall back to no-op and the global logger.
func New(sel *bandit.Selector, metrics observability.MetricsRegistry, logger *zap.Logger, winners WinnerSink) *Engine {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Engine{
		Bandit:  sel,
		Metrics: metrics,
		Logger:  logger,
		Winners: winners,
		streaks: make(map[string]int),
	}
}

// Evaluate produces a decision for one ad. Malformed ad state or tenant
// config fails fast with a typed error. Insufficient history never errors; it degrades to OBSERVE
// or a no-override fatigue verdict.
func (e *Engine) Evaluate(ctx context.Context, ad *models.AdState, history []models.MetricSnapshot, tenant *models.TenantConfig) (*models.Decision, error) {
	start := nowFn()
	defer func() {
		e.Metrics.RecordEvaluateLatency(time.Since(start))
	}()

	if err := ad.Validate(); err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, &models.ConfigurationError{Field: "tenant", Reason: "nil"}
	}
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", ad.ID, err)
	}

	now := nowFn()
	ageHours := ad.Age(now).Hours()

	// Step 1: ignorance-zone gate. Both limits must be crossed before any
	// kill/scale decision is allowed, however extreme the early signals look.
	if ageHours < tenant.MinObservationHours && ad.Spend < tenant.MinObservationSpend {
		d := e.finish(ad, tenant, models.Decision{
			Action:     models.ActionObserve,
			Confidence: 0,
			Reason:     "observation_window",
			Detail: fmt.Sprintf("insufficient data: still in observation window (age %.1fh < %.1fh and spend %.2f < %.2f)",
				ageHours, tenant.MinObservationHours, ad.Spend, tenant.MinObservationSpend),
			Breakdown: models.ScoreBreakdown{
				InIgnoranceZone: true,
				AgeHours:        ageHours,
				KillThreshold:   tenant.KillThreshold,
				ScaleThreshold:  tenant.ScaleThreshold,
			},
		}, now)
		return d, nil
	}

	// Step 2: blended score. A reported pipeline stage acts as synthetic
	// revenue until realized revenue catches up: an appointment booked
	// yesterday is evidence even though no invoice exists yet. Unknown stage
	// names fail fast; a silent zero would read as "no value".
	scored := *ad
	if ad.Stage != "" {
		hoursSince := now.Sub(ad.StageAt).Hours()
		v, err := valuation.ValueWithDecay(ad.Stage, tenant, hoursSince)
		if err != nil {
			return nil, err
		}
		if fv, _ := v.Float64(); fv > scored.Revenue {
			scored.Revenue = fv
		}
	}
	scores := blending.BlendedScore(&scored, tenant, ageHours)
	e.Metrics.RecordBlendWeight(scores.Weight)

	// Step 3: fatigue, with insufficient history degrading to no override.
	analyzer := fatigue.NewAnalyzer(tenant.Fatigue, e.Logger)
	fat := analyzer.Analyze(ad.ID, history)
	e.Metrics.IncrementFatigueVerdicts(string(fat.Status))

	breakdown := models.ScoreBreakdown{
		AgeHours:       ageHours,
		BlendWeight:    scores.Weight,
		ClickScore:     scores.ClickScore,
		RevenueScore:   scores.RevenueScore,
		BlendedScore:   scores.Blended,
		FatigueStatus:  string(fat.Status),
		FatigueConf:    fat.Confidence,
		KillThreshold:  tenant.KillThreshold,
		ScaleThreshold: tenant.ScaleThreshold,
	}

	if fat.Confidence > 0 {
		switch fat.Status {
		case fatigue.StatusExhausted:
			d := e.finish(ad, tenant, models.Decision{
				Action:     models.ActionRefreshCreative,
				Confidence: fat.Confidence,
				Reason:     "audience_exhausted",
				Detail: fmt.Sprintf("audience exhausted (%s) overrides blended score %.2f; rotate creative",
					fat.Reason, scores.Blended),
				Breakdown: breakdown,
			}, now)
			return d, nil
		case fatigue.StatusSaturated:
			d := e.finish(ad, tenant, models.Decision{
				Action:     models.ActionKill,
				Confidence: fat.Confidence,
				Reason:     "fatigue_saturated",
				Detail: fmt.Sprintf("saturated audience (%s) overrides blended score %.2f",
					fat.Reason, scores.Blended),
				Breakdown: breakdown,
			}, now)
			return d, nil
		}
	}

	// Step 4: policy thresholds.
	var (
		action models.Action
		reason string
		detail string
	)
	switch {
	case scores.Blended < tenant.KillThreshold:
		action = models.ActionKill
		reason = "below_kill_threshold"
		detail = fmt.Sprintf("blended score %.2f below kill threshold %.2f", scores.Blended, tenant.KillThreshold)
	case scores.Blended > tenant.ScaleThreshold:
		action = models.ActionScale
		reason = "above_scale_threshold"
		detail = fmt.Sprintf("blended score %.2f above scale threshold %.2f", scores.Blended, tenant.ScaleThreshold)
	default:
		action = models.ActionMaintain
		reason = "within_thresholds"
		detail = fmt.Sprintf("blended score %.2f between thresholds [%.2f, %.2f]",
			scores.Blended, tenant.KillThreshold, tenant.ScaleThreshold)
	}

	d := e.finish(ad, tenant, models.Decision{
		Action:     action,
		Confidence: confidence(action, scores, tenant),
		Reason:     reason,
		Detail:     detail,
		Breakdown:  breakdown,
	}, now)

	e.trackWinner(ctx, ad, tenant, scores, fat)
	return d, nil
}

// finish stamps identity and emits decision telemetry.
func (e *Engine) finish(ad *models.AdState, tenant *models.TenantConfig, d models.Decision, now time.Time) *models.Decision {
	d.ID = uuid.NewString()
	d.AdID = ad.ID
	d.EvaluatedAt = now

	e.Metrics.IncrementDecisions(string(d.Action))
	e.Logger.Info("decision",
		zap.String("tenant", tenant.Name),
		zap.String("ad_id", ad.ID),
		zap.String("action", string(d.Action)),
		zap.Float64("confidence", d.Confidence),
		zap.String("reason", d.Reason),
		zap.Float64("blended_score", d.Breakdown.BlendedScore),
		zap.Float64("blend_weight", d.Breakdown.BlendWeight),
		zap.String("fatigue", d.Breakdown.FatigueStatus),
	)
	return &d
}

// confidence scales with how far the blended score sits from the nearest
// threshold and with the blend weight: a decision grounded in late revenue
// data deserves more trust than one riding on sparse early clicks.
func confidence(action models.Action, scores blending.Scores, tenant *models.TenantConfig) float64 {
	var dist, maxDist float64
	switch action {
	case models.ActionKill:
		dist = tenant.KillThreshold - scores.Blended
		maxDist = tenant.KillThreshold
	case models.ActionScale:
		dist = scores.Blended - tenant.ScaleThreshold
		maxDist = 1 - tenant.ScaleThreshold
	default:
		dist = math.Min(scores.Blended-tenant.KillThreshold, tenant.ScaleThreshold-scores.Blended)
		maxDist = (tenant.ScaleThreshold - tenant.KillThreshold) / 2
	}
	if maxDist <= 0 {
		return 0
	}

	norm := dist / maxDist
	if norm > 1 {
		norm = 1
	}
	if norm < 0 {
		norm = 0
	}
	c := norm * (0.35 + 0.65*scores.Weight)
	if c > 1 {
		return 1
	}
	return c
}

// trackWinner counts consecutive high-scoring evaluations and publishes a
// candidate-winner event once the tenant's streak requirement is met.
func (e *Engine) trackWinner(ctx context.Context, ad *models.AdState, tenant *models.TenantConfig, scores blending.Scores, fat fatigue.Result) {
	if e.Winners == nil || tenant.WinnerStreak <= 0 {
		return
	}
	// Streaks are tracked per tenant and ad; two tenants reusing an ad id
	// must not share a counter.
	key := tenant.Name + "/" + ad.ID

	healthy := fat.Status == fatigue.StatusHealthy
	if scores.Blended < tenant.WinnerScore || !healthy {
		e.streakMu.Lock()
		delete(e.streaks, key)
		e.streakMu.Unlock()
		return
	}

	e.streakMu.Lock()
	e.streaks[key]++
	streak := e.streaks[key]
	if streak >= tenant.WinnerStreak {
		delete(e.streaks, key) // re-arm after emitting
	}
	e.streakMu.Unlock()

	if streak < tenant.WinnerStreak {
		return
	}

	ev := WinnerEvent{
		AdID:         ad.ID,
		Tenant:       tenant.Name,
		BlendedScore: scores.Blended,
		BlendWeight:  scores.Weight,
		CTR:          ad.CTR(),
		RealizedROAS: ad.RealizedROAS(),
		Spend:        ad.Spend,
		Revenue:      ad.Revenue,
		Stage:        ad.Stage,
		ObservedAt:   nowFn(),
	}
	if err := e.Winners.Publish(ctx, ev); err != nil {
		e.Logger.Warn("winner event publish failed", zap.String("ad_id", ad.ID), zap.Error(err))
		return
	}
	e.Metrics.IncrementWinnerEvents()
	e.Logger.Info("candidate winner",
		zap.String("tenant", tenant.Name),
		zap.String("ad_id", ad.ID),
		zap.Float64("blended_score", scores.Blended),
	)
}
