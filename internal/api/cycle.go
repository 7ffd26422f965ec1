package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/adpilot/budgetd/internal/engine"
	"github.com/adpilot/budgetd/internal/middleware"
	"github.com/adpilot/budgetd/internal/models"
)

// historyLookback bounds how far back the collector is queried when a cycle
// request does not carry its own snapshots.
const historyLookback = 14 * 24 * time.Hour

// CycleRequest is the body of POST /cycle. Inputs may be supplied inline;
// when omitted the server loads the tenant's ad states and per-ad history
// from the metrics collector.
type CycleRequest struct {
	Tenant string              `json:"tenant"`
	Inputs []engine.CycleInput `json:"inputs,omitempty"`
}

// CycleHandler handles POST /cycle requests: evaluate all of a tenant's ads
// together and pick at most one SCALE target.
func (s *Server) CycleHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "CycleHandler",
		trace.WithAttributes(
			attribute.String("http.method", "POST"),
			attribute.String("http.route", "/cycle"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "cycle"
	const method = "POST"

	var req CycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("decode cycle request", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tenant := s.Tenant(req.Tenant)
	if tenant == nil {
		logger.Warn("unknown tenant", zap.String("tenant", req.Tenant))
		s.Metrics.IncrementRequests(endpoint, method, "404")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "unknown tenant", http.StatusNotFound)
		return
	}
	span.SetAttributes(attribute.String("tenant", tenant.Name))

	inputs := req.Inputs
	if len(inputs) == 0 && s.History != nil {
		loaded, err := s.loadCycleInputs(r, tenant.Name)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "load cycle inputs")
			logger.Error("load cycle inputs", zap.Error(err))
			s.Metrics.IncrementRequests(endpoint, method, "502")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "history store unavailable", http.StatusBadGateway)
			return
		}
		inputs = loaded
	}

	inputs, err := s.applySnapshots(tenant.Name, inputs, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply snapshots")
		status := evaluateErrorStatus(err)
		logger.Warn("cycle snapshots", zap.String("tenant", tenant.Name), zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, status)
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, err.Error(), statusCode(status))
		return
	}

	res, err := s.Engine.EvaluateCycle(ctx, tenant, inputs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cycle failed")
		status := evaluateErrorStatus(err)
		logger.Warn("cycle", zap.String("tenant", tenant.Name), zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, status)
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, err.Error(), statusCode(status))
		return
	}

	if s.Store != nil {
		if n, err := s.Store.MarkCycle(tenant.Name); err != nil {
			logger.Warn("mark cycle", zap.Error(err))
		} else {
			span.SetAttributes(attribute.Int64("cycles_today", n))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		logger.Error("encode cycle result", zap.Error(err))
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

// applySnapshots runs every collector snapshot through the tenant's state
// store before evaluation. A snapshot whose counters moved backwards is
// rejected; the prior good state is evaluated in its place. A bad first
// sighting has no prior state to fall back on and fails the cycle.
func (s *Server) applySnapshots(tenant string, inputs []engine.CycleInput, logger *zap.Logger) ([]engine.CycleInput, error) {
	store := s.States(tenant)
	for i := range inputs {
		err := store.ApplySnapshot(inputs[i].Ad)
		if err == nil {
			inputs[i].Ad = *store.Get(inputs[i].Ad.ID)
			continue
		}
		var integrityErr *models.DataIntegrityError
		if !errors.As(err, &integrityErr) {
			return nil, err
		}
		s.Metrics.IncrementIntegrityErrors()
		prior := store.Get(inputs[i].Ad.ID)
		if prior == nil {
			return nil, err
		}
		logger.Warn("snapshot rejected, evaluating prior state",
			zap.String("ad_id", inputs[i].Ad.ID), zap.Error(err))
		inputs[i].Ad = *prior
	}
	return inputs, nil
}

// loadCycleInputs pulls every active ad state for the tenant from the
// collector, plus each ad's hourly history for fatigue analysis.
func (s *Server) loadCycleInputs(r *http.Request, tenant string) ([]engine.CycleInput, error) {
	ctx := r.Context()
	states, err := s.History.LoadAdStates(ctx, tenant, historyLookback)
	if err != nil {
		return nil, err
	}
	inputs := make([]engine.CycleInput, 0, len(states))
	for _, st := range states {
		hist, err := s.History.LoadHistory(ctx, tenant, st.ID, historyLookback)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, engine.CycleInput{Ad: st, History: hist})
	}
	return inputs, nil
}
