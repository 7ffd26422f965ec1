package models

import "time"

// Action is the closed set of decisions the engine can emit for an ad.
type Action string

const (
	// ActionObserve means the ad is still inside its observation window and
	// no budget change should be made yet.
	ActionObserve Action = "OBSERVE"
	// ActionMaintain continues delivery at the current budget.
	ActionMaintain Action = "MAINTAIN"
	// ActionScale recommends increasing the ad's budget.
	ActionScale Action = "SCALE"
	// ActionKill recommends stopping spend on the ad.
	ActionKill Action = "KILL"
	// ActionRefreshCreative recommends rotating in new creative because the
	// addressable audience is exhausted; the targeting itself may still be
	// sound.
	ActionRefreshCreative Action = "REFRESH_CREATIVE"
)

// ScoreBreakdown records every sub-score that produced a decision. Decisions
// move real money autonomously, so each one must be traceable back to the
// exact inputs and thresholds that produced it.
type ScoreBreakdown struct {
	InIgnoranceZone bool    `json:"in_ignorance_zone"`
	AgeHours        float64 `json:"age_hours"`
	BlendWeight     float64 `json:"blend_weight"`
	ClickScore      float64 `json:"click_score"`
	RevenueScore    float64 `json:"revenue_score"`
	BlendedScore    float64 `json:"blended_score"`
	FatigueStatus   string  `json:"fatigue_status"`
	FatigueConf     float64 `json:"fatigue_confidence"`
	KillThreshold   float64 `json:"kill_threshold"`
	ScaleThreshold  float64 `json:"scale_threshold"`
}

// Decision is the immutable output record of one orchestrator evaluation.
// It is created fresh on every invocation and never mutated afterwards.
type Decision struct {
	ID          string         `json:"id"`
	AdID        string         `json:"ad_id"`
	Action      Action         `json:"action"`
	Confidence  float64        `json:"confidence"` // in [0,1]
	Reason      string         `json:"reason"`     // short snake_case cause
	Detail      string         `json:"detail"`     // human-readable explanation
	Breakdown   ScoreBreakdown `json:"breakdown"`
	EvaluatedAt time.Time      `json:"evaluated_at"`
}
