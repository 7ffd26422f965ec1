package fatigue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/adpilot/budgetd/internal/models"
)

func testFatigueConfig() models.FatigueConfig {
	return models.FatigueConfig{
		BaselineWindow:          3,
		RecentWindow:            3,
		CTRDropWarn:             0.20,
		CTRDropSevere:           0.40,
		FrequencyWarn:           3.5,
		FrequencySevere:         8.0,
		CPIRiseWarn:             0.30,
		CPIRiseSevere:           0.50,
		MaxCriticalHorizonHours: 14 * 24,
	}
}

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func snap(hour int, imps, clicks int64, spend, cpi, freq float64) models.MetricSnapshot {
	return models.MetricSnapshot{
		Timestamp:   t0.Add(time.Duration(hour) * time.Hour),
		Impressions: imps,
		Clicks:      clicks,
		Spend:       spend,
		CPI:         cpi,
		Frequency:   freq,
	}
}

func TestAnalyze_InsufficientHistory(t *testing.T) {
	a := NewAnalyzer(testFatigueConfig(), zap.NewNop())

	res := a.Analyze("ad-1", []models.MetricSnapshot{
		snap(0, 1000, 20, 10, 0.01, 1.2),
		snap(1, 1000, 21, 10, 0.01, 1.2),
	})

	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, 0.0, res.Confidence, "two points cannot support any verdict")
	assert.Equal(t, "insufficient_history", res.Reason)
}

func TestAnalyze_HealthyHistory(t *testing.T) {
	a := NewAnalyzer(testFatigueConfig(), zap.NewNop())

	var history []models.MetricSnapshot
	for i := 0; i < 6; i++ {
		// Steady CTR, growing reach, stable frequency and CPI.
		history = append(history, snap(i, int64(10000+i*1500), int64(200+i*30), 100, 0.01, 1.8))
	}

	res := a.Analyze("ad-1", history)
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, "no_fatigue_detected", res.Reason)
	assert.InDelta(t, 0.6, res.Confidence, 1e-9, "confidence grows with history length")
}

func TestAnalyze_SevereCTRDeclineIsSaturated(t *testing.T) {
	a := NewAnalyzer(testFatigueConfig(), zap.NewNop())

	history := []models.MetricSnapshot{
		snap(0, 10000, 200, 100, 0.010, 2.0),
		snap(1, 10000, 200, 100, 0.010, 2.0),
		snap(2, 10000, 200, 100, 0.010, 2.0),
		// 45% CTR drop while reach still grows and frequency stays sane.
		snap(3, 13000, 143, 110, 0.011, 2.5),
		snap(4, 13000, 143, 110, 0.011, 2.5),
		snap(5, 13000, 143, 110, 0.011, 2.5),
	}

	res := a.Analyze("ad-1", history)
	assert.Equal(t, StatusSaturated, res.Status)
	assert.Contains(t, res.Reason, "ctr_decline")
	assert.Greater(t, res.Confidence, 0.9)
}

func TestAnalyze_ModerateCTRDeclineIsFatiguing(t *testing.T) {
	a := NewAnalyzer(testFatigueConfig(), zap.NewNop())

	history := []models.MetricSnapshot{
		snap(0, 10000, 200, 100, 0.010, 2.0),
		snap(1, 10000, 200, 100, 0.010, 2.0),
		snap(2, 10000, 200, 100, 0.010, 2.0),
		// 25% drop: past warn, below severe.
		snap(3, 12000, 180, 105, 0.010, 2.2),
		snap(4, 12000, 180, 105, 0.010, 2.2),
		snap(5, 12000, 180, 105, 0.010, 2.2),
	}

	res := a.Analyze("ad-1", history)
	assert.Equal(t, StatusFatiguing, res.Status)
	assert.Contains(t, res.Reason, "ctr_decline")
}

func TestAnalyze_FrequencyAndCTRCollapseIsExhausted(t *testing.T) {
	a := NewAnalyzer(testFatigueConfig(), zap.NewNop())

	history := []models.MetricSnapshot{
		snap(0, 10000, 200, 100, 0.010, 2.0),
		snap(1, 10000, 200, 100, 0.010, 2.0),
		snap(2, 10000, 200, 100, 0.010, 2.0),
		// Frequency 9.2 with CTR collapsed: same people, no one clicking.
		snap(3, 13000, 65, 110, 0.011, 9.2),
		snap(4, 13000, 65, 110, 0.011, 9.2),
		snap(5, 13000, 65, 110, 0.011, 9.2),
	}

	res := a.Analyze("ad-1", history)
	assert.Equal(t, StatusExhausted, res.Status)
	assert.Equal(t, "frequency_and_ctr_collapse", res.Reason)
	assert.Greater(t, res.Confidence, 0.9)
}

func TestAnalyze_HighFrequencyAloneIsSaturated(t *testing.T) {
	a := NewAnalyzer(testFatigueConfig(), zap.NewNop())

	history := []models.MetricSnapshot{
		snap(0, 10000, 200, 100, 0.010, 2.0),
		snap(1, 10000, 200, 100, 0.010, 2.0),
		snap(2, 10000, 200, 100, 0.010, 2.0),
		// Frequency over the severe line but CTR holding: saturated, not
		// exhausted, because the audience is still responding.
		snap(3, 13000, 260, 110, 0.010, 9.0),
		snap(4, 13000, 260, 110, 0.010, 9.0),
		snap(5, 13000, 260, 110, 0.010, 9.0),
	}

	res := a.Analyze("ad-1", history)
	assert.Equal(t, StatusSaturated, res.Status)
	assert.Contains(t, res.Reason, "frequency")
}

func TestAnalyze_CPISpikeWarnsAtModerateRise(t *testing.T) {
	a := NewAnalyzer(testFatigueConfig(), zap.NewNop())

	history := []models.MetricSnapshot{
		snap(0, 10000, 200, 100, 0.0100, 2.0),
		snap(1, 10000, 200, 100, 0.0100, 2.0),
		snap(2, 10000, 200, 100, 0.0100, 2.0),
		// CPI up 35% with CTR only slightly down.
		snap(3, 12000, 228, 160, 0.0135, 2.2),
		snap(4, 12000, 228, 160, 0.0135, 2.2),
		snap(5, 12000, 228, 160, 0.0135, 2.2),
	}

	res := a.Analyze("ad-1", history)
	assert.Equal(t, StatusFatiguing, res.Status)
	assert.Contains(t, res.Reason, "cpi_spike")
}

func TestAnalyze_GrowthStallUnderStableSpendIsExhausted(t *testing.T) {
	a := NewAnalyzer(testFatigueConfig(), zap.NewNop())

	var history []models.MetricSnapshot
	for i := 0; i < 6; i++ {
		// Identical reach each period at identical spend: budget is buying
		// repeat impressions only.
		history = append(history, snap(i, 10000, 200, 100, 0.010, 2.0))
	}

	res := a.Analyze("ad-1", history)
	assert.Equal(t, StatusExhausted, res.Status)
	assert.Contains(t, res.Reason, "impression_growth_stalled")
	assert.GreaterOrEqual(t, res.Confidence, 0.6)
}

func TestAnalyze_GrowthStallExplainedByBudgetCut(t *testing.T) {
	a := NewAnalyzer(testFatigueConfig(), zap.NewNop())

	history := []models.MetricSnapshot{
		snap(0, 10000, 200, 100, 0.010, 2.0),
		snap(1, 10000, 200, 100, 0.010, 2.0),
		snap(2, 10000, 200, 100, 0.010, 2.0),
		// Reach flat but spend halved: the budget explains it.
		snap(3, 10000, 200, 50, 0.005, 2.0),
		snap(4, 10000, 200, 50, 0.005, 2.0),
		snap(5, 10000, 200, 50, 0.005, 2.0),
	}

	res := a.Analyze("ad-1", history)
	assert.Equal(t, StatusHealthy, res.Status)
}

func TestAnalyze_EstHoursClampedToHorizon(t *testing.T) {
	cfg := testFatigueConfig()
	cfg.MaxCriticalHorizonHours = 48
	a := NewAnalyzer(cfg, zap.NewNop())

	history := []models.MetricSnapshot{
		snap(0, 10000, 200, 100, 0.010, 2.0),
		snap(1, 10000, 200, 100, 0.010, 2.0),
		snap(2, 10000, 200, 100, 0.010, 2.0),
		// Frequency just over warn and creeping up very slowly.
		snap(3, 13000, 260, 110, 0.010, 3.6),
		snap(4, 13000, 260, 110, 0.010, 3.61),
		snap(5, 13000, 260, 110, 0.010, 3.62),
	}

	res := a.Analyze("ad-1", history)
	assert.Equal(t, StatusFatiguing, res.Status)
	assert.LessOrEqual(t, res.EstHoursUntilCritical, 48.0)
}
