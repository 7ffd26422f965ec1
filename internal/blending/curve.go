// Package blending fuses the fast click signal with the slow realized-revenue
// signal.
//
// Early in an ad's life click-through rate is the only honest signal: sales
// and qualified leads land days later. As the attribution window passes, the
// realized pipeline value becomes the signal worth trusting. The blending
// curve maps ad age to a weight in [0,1] that says how much of the final
// score comes from revenue versus clicks.
package blending

import (
	"math"

	"github.com/adpilot/budgetd/internal/models"
)

// Weight returns the revenue-trust weight for an ad of the given age under
// the tenant's configured curve. The result is always within [0,1].
//
// For the sigmoid curve the weight stays near zero below the early edge of
// the attribution window, ramps smoothly through it, and approaches but never
// reaches MaxWeight, so the click signal always keeps a residual say.
func Weight(ageHours float64, cfg models.BlendingConfig) float64 {
	if ageHours < 0 {
		ageHours = 0
	}

	var w float64
	switch cfg.Curve {
	case models.CurveStep:
		if ageHours >= cfg.CenterHours {
			w = cfg.MaxWeight
		}
	case models.CurveLinear:
		// Ramp from zero at center-steepness to MaxWeight at center+steepness.
		lo := cfg.CenterHours - cfg.SteepnessHours
		hi := cfg.CenterHours + cfg.SteepnessHours
		switch {
		case ageHours <= lo:
			w = 0
		case ageHours >= hi:
			w = cfg.MaxWeight
		default:
			w = cfg.MaxWeight * (ageHours - lo) / (hi - lo)
		}
	case models.CurveExponential:
		w = cfg.MaxWeight * (1 - math.Exp(-ageHours/cfg.CenterHours))
	case models.CurveSigmoid:
		w = cfg.MaxWeight / (1 + math.Exp(-(ageHours-cfg.CenterHours)/cfg.SteepnessHours))
	default:
		// Unknown curves are rejected by TenantConfig.Validate; treat a value
		// that slipped through as sigmoid rather than guessing zero.
		w = cfg.MaxWeight / (1 + math.Exp(-(ageHours-cfg.CenterHours)/cfg.SteepnessHours))
	}

	return clamp01(w)
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
