package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adpilot/budgetd/internal/config"
	"github.com/adpilot/budgetd/internal/engine"
	"github.com/adpilot/budgetd/internal/models"
)

func testTenant() *models.TenantConfig {
	return &models.TenantConfig{
		ID:   1,
		Name: "acme",
		Stages: map[string]models.StageValue{
			"lead_created": {Value: decimal.NewFromInt(50)},
		},
		Blending: models.BlendingConfig{
			Curve:          models.CurveSigmoid,
			CenterHours:    24,
			SteepnessHours: 6,
			MaxWeight:      0.95,
		},
		MinObservationHours: 24,
		MinObservationSpend: 100,
		KillThreshold:       0.25,
		ScaleThreshold:      0.65,
		TargetROAS:          4.0,
		TargetCTR:           0.02,
		Fatigue: models.FatigueConfig{
			BaselineWindow: 3, RecentWindow: 3,
			CTRDropWarn: 0.20, CTRDropSevere: 0.40,
			FrequencyWarn: 3.5, FrequencySevere: 8.0,
			CPIRiseWarn: 0.30, CPIRiseSevere: 0.50,
		},
		WinnerStreak: 3,
		WinnerScore:  0.8,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	winners := engine.NewMemoryWinnerSink(10)
	eng := engine.New(nil, nil, zap.NewNop(), winners)
	s := NewServer(zap.NewNop(), eng, nil, nil, nil, winners, nil, config.Config{})
	s.SetTenant(testTenant())
	return s
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestEvaluateHandler_Scale(t *testing.T) {
	s := newTestServer(t)

	req := EvaluateRequest{
		Tenant: "acme",
		Ad: models.AdState{
			ID:          "ad-1",
			CreatedAt:   time.Now().Add(-72 * time.Hour),
			Impressions: 100000,
			Clicks:      500,
			Spend:       300,
			Revenue:     2250,
		},
	}

	w := postJSON(t, s.EvaluateHandler, req)
	require.Equal(t, http.StatusOK, w.Code)

	var d models.Decision
	require.NoError(t, json.NewDecoder(w.Body).Decode(&d))
	assert.Equal(t, models.ActionScale, d.Action)
	assert.Equal(t, "ad-1", d.AdID)
	assert.NotEmpty(t, d.ID)
	assert.Greater(t, d.Confidence, 0.7)
}

func TestEvaluateHandler_ObservationWindow(t *testing.T) {
	s := newTestServer(t)

	req := EvaluateRequest{
		Tenant: "acme",
		Ad: models.AdState{
			ID:          "ad-1",
			CreatedAt:   time.Now().Add(-3 * time.Hour),
			Impressions: 5000,
			Clicks:      1,
			Spend:       40,
		},
	}

	w := postJSON(t, s.EvaluateHandler, req)
	require.Equal(t, http.StatusOK, w.Code)

	var d models.Decision
	require.NoError(t, json.NewDecoder(w.Body).Decode(&d))
	assert.Equal(t, models.ActionObserve, d.Action)
	assert.True(t, d.Breakdown.InIgnoranceZone)
}

func TestEvaluateHandler_UnknownTenant(t *testing.T) {
	s := newTestServer(t)

	req := EvaluateRequest{Tenant: "nobody", Ad: models.AdState{ID: "ad-1", CreatedAt: time.Now()}}
	w := postJSON(t, s.EvaluateHandler, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEvaluateHandler_BadBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	s.EvaluateHandler(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvaluateHandler_MalformedAd(t *testing.T) {
	s := newTestServer(t)

	req := EvaluateRequest{
		Tenant: "acme",
		Ad: models.AdState{
			ID:          "ad-1",
			CreatedAt:   time.Now().Add(-72 * time.Hour),
			Impressions: 10,
			Clicks:      20, // clicks exceed impressions
			Spend:       200,
		},
	}

	w := postJSON(t, s.EvaluateHandler, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestEvaluateHandler_RegressedCountersRejected(t *testing.T) {
	s := newTestServer(t)
	metrics := &countingMetrics{}
	s.Metrics = metrics

	ad := models.AdState{
		ID:          "ad-1",
		CreatedAt:   time.Now().Add(-72 * time.Hour),
		Impressions: 100000,
		Clicks:      500,
		Spend:       300,
		Revenue:     2250,
	}
	w := postJSON(t, s.EvaluateHandler, EvaluateRequest{Tenant: "acme", Ad: ad})
	require.Equal(t, http.StatusOK, w.Code)

	// Counters below the accepted state: rejected, stored state stands.
	regressed := ad
	regressed.Impressions = 50000
	w = postJSON(t, s.EvaluateHandler, EvaluateRequest{Tenant: "acme", Ad: regressed})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 1, metrics.integrityErrors)

	stored := s.States("acme").Get("ad-1")
	require.NotNil(t, stored)
	assert.Equal(t, int64(100000), stored.Impressions)

	// An unchanged snapshot is monotone and evaluates normally again.
	w = postJSON(t, s.EvaluateHandler, EvaluateRequest{Tenant: "acme", Ad: ad})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCycleHandler_PicksOneScaleTarget(t *testing.T) {
	s := newTestServer(t)

	mk := func(id string, revenue float64) engine.CycleInput {
		return engine.CycleInput{Ad: models.AdState{
			ID:          id,
			CreatedAt:   time.Now().Add(-72 * time.Hour),
			Impressions: 100000,
			Clicks:      500,
			Spend:       300,
			Revenue:     revenue,
		}}
	}

	req := CycleRequest{
		Tenant: "acme",
		Inputs: []engine.CycleInput{mk("ad-a", 2250), mk("ad-b", 900)},
	}

	w := postJSON(t, s.CycleHandler, req)
	require.Equal(t, http.StatusOK, w.Code)

	var res engine.CycleResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	require.Len(t, res.Decisions, 2)
	assert.Equal(t, "ad-a", res.ScaleTarget)
}

func TestWinnersHandler_EmptyByDefault(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/winners", nil)
	w := httptest.NewRecorder()
	s.WinnersHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var events []engine.WinnerEvent
	require.NoError(t, json.NewDecoder(w.Body).Decode(&events))
	assert.Empty(t, events)
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.HealthHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","tenants":1}`, w.Body.String())
}

func TestReloadHandler_NoPostgres(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	w := httptest.NewRecorder()
	s.ReloadHandler(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
