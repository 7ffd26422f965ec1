package models

import (
	"github.com/shopspring/decimal"
)

// Curve names the shape of the blending curve used to trade click signal
// against realized-revenue signal as an ad ages.
type Curve string

const (
	CurveStep        Curve = "step"
	CurveLinear      Curve = "linear"
	CurveExponential Curve = "exponential"
	// CurveSigmoid is the default: it ramps smoothly through the attribution
	// window without the discontinuities of the step and linear shapes.
	CurveSigmoid Curve = "sigmoid"
)

// StageValue is the calibrated dollar value of one pipeline stage, with an
// optional decay half-life for stale transitions.
type StageValue struct {
	Value decimal.Decimal `json:"value"`
	// HalfLifeHours of 0 disables decay for the stage.
	HalfLifeHours float64 `json:"half_life_hours,omitempty"`
}

// BlendingConfig parameterizes the blending curve per tenant. E-commerce
// tenants attribute within hours and want a tight curve; B2B service tenants
// need the window stretched out to days.
type BlendingConfig struct {
	Curve Curve `json:"curve"`
	// CenterHours is the age at which the curve reaches half its maximum.
	CenterHours float64 `json:"center_hours"`
	// SteepnessHours controls how quickly the sigmoid ramps around the center.
	SteepnessHours float64 `json:"steepness_hours"`
	// MaxWeight caps how much the blended score can ever trust revenue data.
	// Kept below 1 so the click signal always retains a residual weight:
	// realized-value sampling is itself noisy for low-volume ads.
	MaxWeight float64 `json:"max_weight"`
}

// FatigueConfig holds the per-tenant thresholds for the fatigue rules.
type FatigueConfig struct {
	BaselineWindow int `json:"baseline_window"` // snapshots in the baseline window
	RecentWindow   int `json:"recent_window"`   // snapshots in the recent window

	CTRDropWarn   float64 `json:"ctr_drop_warn"`   // relative drop, e.g. 0.20
	CTRDropSevere float64 `json:"ctr_drop_severe"` // e.g. 0.40

	FrequencyWarn   float64 `json:"frequency_warn"`   // impressions per viewer, e.g. 3.5
	FrequencySevere float64 `json:"frequency_severe"` // e.g. 8.0

	CPIRiseWarn   float64 `json:"cpi_rise_warn"`   // relative rise, e.g. 0.30
	CPIRiseSevere float64 `json:"cpi_rise_severe"` // e.g. 0.50

	// MaxCriticalHorizonHours clamps the time-to-critical extrapolation. The
	// estimate is a heuristic, not a deadline; downstream automation must not
	// treat it as one.
	MaxCriticalHorizonHours float64 `json:"max_critical_horizon_hours"`
}

// BanditConfig parameterizes the variant selector.
type BanditConfig struct {
	// DecayFactor is applied once per elapsed decay window, shrinking each
	// belief toward the neutral prior so stale winners lose their grip.
	DecayFactor      float64 `json:"decay_factor"`
	DecayWindowHours float64 `json:"decay_window_hours"`
	// MaxContextBoost caps the contextual multiplier applied after sampling.
	// It is a tie-breaker among close contenders, never an override.
	MaxContextBoost float64 `json:"max_context_boost"`
}

// TenantConfig is the full per-tenant decision configuration. It is loaded
// from the configuration store, validated once, and treated as read-only
// during evaluation; hot reloads swap in a whole new value between cycles.
type TenantConfig struct {
	ID   int    `json:"id"`
	Name string `json:"name"`

	// Stages maps pipeline stage name to its calibrated value.
	Stages map[string]StageValue `json:"stages"`

	Blending BlendingConfig `json:"blending"`

	// Ignorance zone: no kill/scale decision before both limits are crossed.
	MinObservationHours float64 `json:"min_observation_hours"`
	MinObservationSpend float64 `json:"min_observation_spend"`

	KillThreshold  float64 `json:"kill_threshold"`
	ScaleThreshold float64 `json:"scale_threshold"`

	// Normalization targets: a realized ROAS at TargetROAS scores 1.0, a CTR
	// at TargetCTR scores 1.0. Both sub-scores clamp at 1 so one well-scaled
	// metric cannot drown the other.
	TargetROAS float64 `json:"target_roas"`
	TargetCTR  float64 `json:"target_ctr"`

	Fatigue FatigueConfig `json:"fatigue"`
	Bandit  BanditConfig  `json:"bandit"`

	// WinnerStreak evaluations at or above WinnerScore emit a candidate-winner
	// event for the pattern-memory store.
	WinnerStreak int     `json:"winner_streak"`
	WinnerScore  float64 `json:"winner_score"`
}

// Validate checks the config for holes that would make decisions
// untrustworthy. Missing thresholds are configuration errors, never defaults.
func (t *TenantConfig) Validate() error {
	if t.Name == "" {
		return &ConfigurationError{Field: "name", Reason: "empty"}
	}
	switch t.Blending.Curve {
	case CurveStep, CurveLinear, CurveExponential, CurveSigmoid:
	default:
		return &ConfigurationError{Tenant: t.Name, Field: "blending.curve",
			Reason: "unknown curve " + string(t.Blending.Curve)}
	}
	if t.Blending.CenterHours <= 0 || t.Blending.SteepnessHours <= 0 {
		return &ConfigurationError{Tenant: t.Name, Field: "blending",
			Reason: "center_hours and steepness_hours must be positive"}
	}
	if t.Blending.MaxWeight <= 0 || t.Blending.MaxWeight > 1 {
		return &ConfigurationError{Tenant: t.Name, Field: "blending.max_weight",
			Reason: "must be in (0,1]"}
	}
	if t.MinObservationHours < 0 || t.MinObservationSpend < 0 {
		return &ConfigurationError{Tenant: t.Name, Field: "observation_window",
			Reason: "negative threshold"}
	}
	if t.KillThreshold <= 0 || t.ScaleThreshold <= 0 {
		return &ConfigurationError{Tenant: t.Name, Field: "thresholds",
			Reason: "kill_threshold and scale_threshold are required"}
	}
	if t.KillThreshold >= t.ScaleThreshold {
		return &ConfigurationError{Tenant: t.Name, Field: "thresholds",
			Reason: "kill_threshold must be below scale_threshold"}
	}
	if t.TargetROAS <= 0 || t.TargetCTR <= 0 {
		return &ConfigurationError{Tenant: t.Name, Field: "targets",
			Reason: "target_roas and target_ctr must be positive"}
	}
	for name, sv := range t.Stages {
		if sv.Value.IsNegative() {
			return &ConfigurationError{Tenant: t.Name, Field: "stages." + name,
				Reason: "negative stage value"}
		}
		if sv.HalfLifeHours < 0 {
			return &ConfigurationError{Tenant: t.Name, Field: "stages." + name,
				Reason: "negative half-life"}
		}
	}
	return nil
}
