package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpilot/budgetd/internal/engine"
	"github.com/adpilot/budgetd/internal/history"
	"github.com/adpilot/budgetd/internal/models"
	"github.com/adpilot/budgetd/internal/observability"
)

func TestCycleHandler_LoadsInputsFromCollector(t *testing.T) {
	s := newTestServer(t)

	mock := history.NewMockHistory()
	mock.States["acme"] = []models.AdState{
		{
			ID:          "ad-a",
			CreatedAt:   time.Now().Add(-72 * time.Hour),
			Impressions: 100000,
			Clicks:      500,
			Spend:       300,
			Revenue:     2250,
		},
		{
			ID:          "ad-b",
			CreatedAt:   time.Now().Add(-3 * time.Hour),
			Impressions: 2000,
			Clicks:      10,
			Spend:       20,
		},
	}
	s.History = mock

	w := postJSON(t, s.CycleHandler, CycleRequest{Tenant: "acme"})
	require.Equal(t, http.StatusOK, w.Code)

	var res engine.CycleResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	require.Len(t, res.Decisions, 2)
	assert.Equal(t, models.ActionScale, res.Decisions[0].Action)
	assert.Equal(t, models.ActionObserve, res.Decisions[1].Action)
	assert.Equal(t, "ad-a", res.ScaleTarget)
}

// countingMetrics records integrity rejections on top of the no-op registry.
type countingMetrics struct {
	observability.NoOpRegistry
	integrityErrors int
}

func (m *countingMetrics) IncrementIntegrityErrors() { m.integrityErrors++ }

func TestCycleHandler_RegressedSnapshotKeepsPriorState(t *testing.T) {
	s := newTestServer(t)
	metrics := &countingMetrics{}
	s.Metrics = metrics

	good := models.AdState{
		ID:          "ad-a",
		CreatedAt:   time.Now().Add(-72 * time.Hour),
		Impressions: 100000,
		Clicks:      500,
		Spend:       300,
		Revenue:     2250,
	}
	mock := history.NewMockHistory()
	mock.States["acme"] = []models.AdState{good}
	s.History = mock

	w := postJSON(t, s.CycleHandler, CycleRequest{Tenant: "acme"})
	require.Equal(t, http.StatusOK, w.Code)

	// The collector now reports counters below what was already accepted.
	regressed := good
	regressed.Impressions = 40000
	regressed.Revenue = 0
	mock.States["acme"] = []models.AdState{regressed}

	w = postJSON(t, s.CycleHandler, CycleRequest{Tenant: "acme"})
	require.Equal(t, http.StatusOK, w.Code)

	var res engine.CycleResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	require.Len(t, res.Decisions, 1)
	assert.Equal(t, models.ActionScale, res.Decisions[0].Action,
		"the prior good state is evaluated, not the regressed snapshot")
	assert.Equal(t, 1, metrics.integrityErrors)

	// Stored state untouched by the bad snapshot.
	stored := s.States("acme").Get("ad-a")
	require.NotNil(t, stored)
	assert.Equal(t, int64(100000), stored.Impressions)
	assert.Equal(t, 2250.0, stored.Revenue)
}

func TestCycleHandler_BadFirstSightingFailsCycle(t *testing.T) {
	s := newTestServer(t)

	bad := models.AdState{
		ID:          "ad-a",
		CreatedAt:   time.Now().Add(-72 * time.Hour),
		Impressions: 10,
		Clicks:      20, // clicks exceed impressions, no prior state to keep
		Spend:       200,
	}
	w := postJSON(t, s.CycleHandler, CycleRequest{
		Tenant: "acme",
		Inputs: []engine.CycleInput{{Ad: bad}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCycleHandler_CollectorDown(t *testing.T) {
	s := newTestServer(t)

	mock := history.NewMockHistory()
	mock.Err = errors.New("connection refused")
	s.History = mock

	w := postJSON(t, s.CycleHandler, CycleRequest{Tenant: "acme"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestCycleHandler_UnknownTenant(t *testing.T) {
	s := newTestServer(t)

	w := postJSON(t, s.CycleHandler, CycleRequest{Tenant: "nobody"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
