package blending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/adpilot/budgetd/internal/models"
)

func blendTenant() *models.TenantConfig {
	return &models.TenantConfig{
		Name:       "acme",
		Blending:   sigmoidConfig(),
		TargetROAS: 4.0,
		TargetCTR:  0.02,
	}
}

func TestBlendedScore_YoungAdLeansOnClicks(t *testing.T) {
	tenant := blendTenant()
	ad := &models.AdState{
		ID:          "ad-1",
		CreatedAt:   time.Now(),
		Impressions: 10000,
		Clicks:      200, // CTR 0.02 == target
		Spend:       50,
		Revenue:     10,
	}

	s := BlendedScore(ad, tenant, 2)
	assert.InDelta(t, 1.0, s.ClickScore, 1e-9)
	assert.Less(t, s.Weight, 0.05, "2h old ad should barely trust revenue")
	assert.Greater(t, s.Blended, 0.9)
}

func TestBlendedScore_OldAdLeansOnRevenue(t *testing.T) {
	tenant := blendTenant()
	ad := &models.AdState{
		ID:          "ad-1",
		CreatedAt:   time.Now().Add(-72 * time.Hour),
		Impressions: 100000,
		Clicks:      500, // CTR 0.005, weak
		Spend:       300,
		Revenue:     2250, // ROAS 7.5, above target
	}

	s := BlendedScore(ad, tenant, 72)
	assert.Greater(t, s.Weight, 0.9)
	assert.InDelta(t, 1.0, s.RevenueScore, 1e-9) // clamped at target
	assert.Greater(t, s.Blended, 0.9, "strong revenue must dominate weak CTR at 72h")
}

func TestBlendedScore_NoRevenueForcesWeightZero(t *testing.T) {
	tenant := blendTenant()
	ad := &models.AdState{
		ID:          "ad-1",
		CreatedAt:   time.Now().Add(-200 * time.Hour),
		Impressions: 50000,
		Clicks:      750, // CTR 0.015
		Spend:       400,
		Revenue:     0,
	}

	s := BlendedScore(ad, tenant, 200)
	assert.Equal(t, 0.0, s.Weight, "no revenue observed yet, nothing to trust")
	assert.InDelta(t, 0.75, s.Blended, 1e-9, "score rides on clicks alone")
}

func TestBlendedScore_ZeroSpendFallsBackToClicks(t *testing.T) {
	tenant := blendTenant()
	ad := &models.AdState{
		ID:          "ad-1",
		CreatedAt:   time.Now().Add(-100 * time.Hour),
		Impressions: 1000,
		Clicks:      10,
		Spend:       0,
		Revenue:     500, // organic attribution before spend registered
	}

	s := BlendedScore(ad, tenant, 100)
	assert.Equal(t, 0.0, s.Weight)
	assert.InDelta(t, 0.5, s.Blended, 1e-9)
}

func TestBlendedScore_SubScoresClampIndependently(t *testing.T) {
	tenant := blendTenant()
	ad := &models.AdState{
		ID:          "ad-1",
		CreatedAt:   time.Now().Add(-72 * time.Hour),
		Impressions: 1000,
		Clicks:      900,  // absurd CTR, clamps to 1
		Spend:       10,
		Revenue:     1000, // absurd ROAS, clamps to 1
	}

	s := BlendedScore(ad, tenant, 72)
	assert.Equal(t, 1.0, s.ClickScore)
	assert.Equal(t, 1.0, s.RevenueScore)
	assert.LessOrEqual(t, s.Blended, 1.0)
}
