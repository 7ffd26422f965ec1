package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpilot/budgetd/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8788", cfg.Port)
	assert.Equal(t, "budgetd", cfg.ServiceName)
	assert.Equal(t, 30*time.Second, cfg.ReloadInterval)
	assert.Equal(t, 0.25, cfg.DefaultKillThreshold)
	assert.Equal(t, 0.65, cfg.DefaultScaleThreshold)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("KILL_THRESHOLD", "0.15")
	t.Setenv("RELOAD_INTERVAL", "45")
	t.Setenv("TRACING_ENABLED", "true")

	cfg := Load()
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 0.15, cfg.DefaultKillThreshold)
	assert.Equal(t, 45*time.Second, cfg.ReloadInterval, "bare integers parse as seconds")
	assert.True(t, cfg.TracingEnabled)
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv("KILL_THRESHOLD", "not-a-number")
	t.Setenv("RELOAD_INTERVAL", "soon")

	cfg := Load()
	assert.Equal(t, 0.25, cfg.DefaultKillThreshold)
	assert.Equal(t, 30*time.Second, cfg.ReloadInterval)
}

func TestDefaultTenant_ValidatesWithStages(t *testing.T) {
	cfg := Load()

	tenant := cfg.DefaultTenant(7, "acme")
	tenant.Stages = map[string]models.StageValue{
		"lead_created": {Value: decimal.NewFromInt(50)},
	}

	require.NoError(t, tenant.Validate())
	assert.Equal(t, 7, tenant.ID)
	assert.Equal(t, "acme", tenant.Name)
	assert.Equal(t, models.CurveSigmoid, tenant.Blending.Curve)
	assert.Less(t, tenant.KillThreshold, tenant.ScaleThreshold)
}
