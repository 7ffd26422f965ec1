package blending

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adpilot/budgetd/internal/models"
)

func sigmoidConfig() models.BlendingConfig {
	return models.BlendingConfig{
		Curve:          models.CurveSigmoid,
		CenterHours:    24,
		SteepnessHours: 6,
		MaxWeight:      0.95,
	}
}

func TestWeight_SigmoidShape(t *testing.T) {
	cfg := sigmoidConfig()

	// Near zero at birth, half max at center, near max late.
	assert.InDelta(t, 0, Weight(0, cfg), 0.02)
	assert.InDelta(t, cfg.MaxWeight/2, Weight(24, cfg), 0.001)
	assert.InDelta(t, cfg.MaxWeight, Weight(120, cfg), 0.001)
}

func TestWeight_SigmoidMonotonicAndBounded(t *testing.T) {
	cfg := sigmoidConfig()

	prev := -1.0
	for age := 0.0; age <= 24*14; age += 0.5 {
		w := Weight(age, cfg)
		assert.GreaterOrEqual(t, w, 0.0)
		assert.LessOrEqual(t, w, cfg.MaxWeight)
		assert.GreaterOrEqual(t, w, prev, "weight must not decrease with age")
		prev = w
	}
}

func TestWeight_NeverReachesOne(t *testing.T) {
	cfg := sigmoidConfig()
	assert.Less(t, Weight(1e6, cfg), 1.0, "click signal keeps a residual say")
}

func TestWeight_StepCurve(t *testing.T) {
	cfg := models.BlendingConfig{Curve: models.CurveStep, CenterHours: 24, SteepnessHours: 6, MaxWeight: 0.9}

	assert.Equal(t, 0.0, Weight(23.9, cfg))
	assert.Equal(t, 0.9, Weight(24, cfg))
}

func TestWeight_LinearCurve(t *testing.T) {
	cfg := models.BlendingConfig{Curve: models.CurveLinear, CenterHours: 24, SteepnessHours: 6, MaxWeight: 0.8}

	assert.Equal(t, 0.0, Weight(18, cfg))
	assert.InDelta(t, 0.4, Weight(24, cfg), 1e-9)
	assert.Equal(t, 0.8, Weight(30, cfg))
}

func TestWeight_ExponentialCurve(t *testing.T) {
	cfg := models.BlendingConfig{Curve: models.CurveExponential, CenterHours: 24, SteepnessHours: 6, MaxWeight: 0.9}

	assert.Equal(t, 0.0, Weight(0, cfg))
	// 1 - exp(-1) at the center
	assert.InDelta(t, 0.9*0.6321, Weight(24, cfg), 0.001)
	assert.InDelta(t, 0.9, Weight(500, cfg), 0.001)
}

func TestWeight_NegativeAgeTreatedAsZero(t *testing.T) {
	cfg := sigmoidConfig()
	assert.Equal(t, Weight(0, cfg), Weight(-5, cfg))
}
