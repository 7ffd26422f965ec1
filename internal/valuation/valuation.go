// Package valuation converts qualitative pipeline stages into estimated
// dollar values.
//
// A stage like "appointment_scheduled" is an early proxy for eventual
// realized revenue: the tenant calibrates a dollar value per stage and the
// engine treats it as synthetic revenue until the real outcome lands. Stage
// values optionally decay as the transition goes stale, since an appointment
// booked three weeks ago that never progressed is worth less than one booked
// yesterday.
//
// All functions are pure and safe for concurrent use.
package valuation

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/adpilot/budgetd/internal/models"
)

// decayFloor keeps a decayed value strictly positive so downstream ratios
// never divide by zero.
const decayFloor = 0.01

// ValueForStage returns the calibrated dollar value of a pipeline stage.
// An unknown stage is a *models.ConfigurationError, never a silent zero:
// zero would be indistinguishable from "no value" and corrupt blending.
func ValueForStage(stage string, tenant *models.TenantConfig) (decimal.Decimal, error) {
	sv, ok := tenant.Stages[stage]
	if !ok {
		return decimal.Zero, &models.ConfigurationError{
			Tenant: tenant.Name,
			Field:  "stages." + stage,
			Reason: "unknown pipeline stage",
		}
	}
	return sv.Value, nil
}

// ValueWithDecay returns the stage value discounted by how long ago the
// transition happened: base * exp(-hours/halfLife), floored at a small
// positive epsilon. Stages without a configured half-life do not decay.
func ValueWithDecay(stage string, tenant *models.TenantConfig, hoursSinceTransition float64) (decimal.Decimal, error) {
	sv, ok := tenant.Stages[stage]
	if !ok {
		return decimal.Zero, &models.ConfigurationError{
			Tenant: tenant.Name,
			Field:  "stages." + stage,
			Reason: "unknown pipeline stage",
		}
	}
	if sv.HalfLifeHours <= 0 || hoursSinceTransition <= 0 {
		return sv.Value, nil
	}

	factor := math.Exp(-hoursSinceTransition / sv.HalfLifeHours)
	decayed := sv.Value.Mul(decimal.NewFromFloat(factor))

	floor := decimal.NewFromFloat(decayFloor)
	if decayed.LessThan(floor) && sv.Value.GreaterThan(decimal.Zero) {
		return floor, nil
	}
	return decayed, nil
}
