package blending

import "github.com/adpilot/budgetd/internal/models"

// Scores carries the blended score together with the sub-scores and weight
// that produced it, for the decision's reason trail.
type Scores struct {
	Weight       float64
	ClickScore   float64
	RevenueScore float64
	Blended      float64
}

// BlendedScore computes weight*revenueScore + (1-weight)*clickScore for the
// ad. Each sub-score is normalized against the tenant's target and clamped to
// [0,1] independently before blending, so a huge ROAS cannot drown a poorly
// scaled click metric.
//
// Zero spend or zero impressions never error: the score falls back to the
// other signal. When no revenue has been observed at all the weight is forced
// to 0 regardless of age: there is nothing on the revenue side to trust yet.
func BlendedScore(ad *models.AdState, tenant *models.TenantConfig, ageHours float64) Scores {
	clickScore := clamp01(ad.CTR() / tenant.TargetCTR)
	revenueScore := clamp01(ad.RealizedROAS() / tenant.TargetROAS)

	w := Weight(ageHours, tenant.Blending)
	if ad.Revenue == 0 || ad.Spend == 0 {
		w = 0
	}

	return Scores{
		Weight:       w,
		ClickScore:   clickScore,
		RevenueScore: revenueScore,
		Blended:      w*revenueScore + (1-w)*clickScore,
	}
}
