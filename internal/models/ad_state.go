package models

import "time"

// AdState is the engine's view of one advertisement under management. It is
// identified solely by ID: two AdState values with the same ID refer to the
// same ad even when their mutable fields differ, which is why AdStateStore
// keys on ID rather than on the struct itself.
//
// Counters are cumulative and must never decrease across updates to the same
// ID; AdStateStore.ApplySnapshot enforces that invariant.
type AdState struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Impressions int64 `json:"impressions"`
	Clicks      int64 `json:"clicks"`
	Conversions int64 `json:"conversions"`

	Spend   float64 `json:"spend"`
	Revenue float64 `json:"revenue"` // realized pipeline value attributed so far

	// Latest pipeline stage transition reported by the CRM, if any.
	// Stage is empty when no stage event has been attributed to this ad.
	Stage   string    `json:"stage,omitempty"`
	StageAt time.Time `json:"stage_at,omitempty"`
}

// Age returns how long the ad has been live at the given instant.
func (a *AdState) Age(now time.Time) time.Duration {
	return now.Sub(a.CreatedAt)
}

// CTR returns clicks over impressions, or 0 when no impressions have been
// recorded yet.
func (a *AdState) CTR() float64 {
	if a.Impressions == 0 {
		return 0
	}
	return float64(a.Clicks) / float64(a.Impressions)
}

// RealizedROAS returns revenue over spend. Spend of zero yields 0 rather than
// an error; callers that need to distinguish "no spend yet" should check
// Spend directly.
func (a *AdState) RealizedROAS() float64 {
	if a.Spend == 0 {
		return 0
	}
	return a.Revenue / a.Spend
}

// Validate checks that the state is well formed enough to evaluate. The
// engine fails fast on malformed input instead of defaulting to a decision.
func (a *AdState) Validate() error {
	if a == nil {
		return &ConfigurationError{Field: "ad_state", Reason: "nil"}
	}
	if a.ID == "" {
		return &ConfigurationError{Field: "ad_state.id", Reason: "empty"}
	}
	if a.CreatedAt.IsZero() {
		return &ConfigurationError{Field: "ad_state.created_at", Reason: "zero time"}
	}
	switch {
	case a.Impressions < 0:
		return &DataIntegrityError{AdID: a.ID, Field: "impressions", Seen: float64(a.Impressions)}
	case a.Clicks < 0:
		return &DataIntegrityError{AdID: a.ID, Field: "clicks", Seen: float64(a.Clicks)}
	case a.Conversions < 0:
		return &DataIntegrityError{AdID: a.ID, Field: "conversions", Seen: float64(a.Conversions)}
	case a.Spend < 0:
		return &DataIntegrityError{AdID: a.ID, Field: "spend", Seen: a.Spend}
	case a.Revenue < 0:
		return &DataIntegrityError{AdID: a.ID, Field: "revenue", Seen: a.Revenue}
	case a.Clicks > a.Impressions:
		return &DataIntegrityError{AdID: a.ID, Field: "clicks", Stored: float64(a.Impressions), Seen: float64(a.Clicks)}
	}
	return nil
}

// MetricSnapshot is one period of observed delivery metrics for an ad, as
// produced by the metrics collector. Histories passed to the fatigue analyzer
// must be ordered oldest first.
type MetricSnapshot struct {
	Timestamp   time.Time `json:"timestamp"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	Spend       float64   `json:"spend"`
	// CPI is the cost per impression paid during the period.
	CPI float64 `json:"cpi"`
	// Frequency is average impressions per unique viewer during the period.
	Frequency float64 `json:"frequency"`
}

// CTR returns the snapshot's click-through rate, 0 when no impressions.
func (m *MetricSnapshot) CTR() float64 {
	if m.Impressions == 0 {
		return 0
	}
	return float64(m.Clicks) / float64(m.Impressions)
}
