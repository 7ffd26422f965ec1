package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adpilot/budgetd/internal/models"
)

func explainTenant() *models.TenantConfig {
	return &models.TenantConfig{
		Name:                "acme",
		MinObservationHours: 24,
		MinObservationSpend: 100,
		KillThreshold:       0.25,
		ScaleThreshold:      0.65,
	}
}

func TestExplain_ObservationWindow(t *testing.T) {
	d := &models.Decision{
		Action:     models.ActionObserve,
		Confidence: 0,
		Reason:     "observation_window",
		Breakdown: models.ScoreBreakdown{
			InIgnoranceZone: true,
			AgeHours:        3.2,
		},
	}

	out := explain(d, explainTenant())
	assert.Contains(t, out, "OBSERVE")
	assert.Contains(t, out, "observation window")
	assert.NotContains(t, out, "blend", "no score talk while still observing")
}

func TestExplain_ScaleWithFatigueNote(t *testing.T) {
	d := &models.Decision{
		Action:     models.ActionScale,
		Confidence: 0.86,
		Reason:     "above_scale_threshold",
		Detail:     "blended score 0.96 above scale threshold 0.65",
		Breakdown: models.ScoreBreakdown{
			AgeHours:       72,
			BlendWeight:    0.95,
			ClickScore:     0.25,
			RevenueScore:   1.0,
			BlendedScore:   0.96,
			FatigueStatus:  "FATIGUING",
			FatigueConf:    0.6,
			KillThreshold:  0.25,
			ScaleThreshold: 0.65,
		},
	}

	out := explain(d, explainTenant())
	assert.Contains(t, out, "SCALE")
	assert.Contains(t, out, "95%")
	assert.Contains(t, out, "FATIGUING")
	assert.Contains(t, out, "blended score 0.96")
}
