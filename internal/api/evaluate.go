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

	"github.com/adpilot/budgetd/internal/middleware"
	"github.com/adpilot/budgetd/internal/models"
)

// EvaluateRequest is the body of POST /evaluate: one ad snapshot plus its
// recent metric history, evaluated under the named tenant's policy.
type EvaluateRequest struct {
	Tenant  string                  `json:"tenant"`
	Ad      models.AdState          `json:"ad"`
	History []models.MetricSnapshot `json:"history,omitempty"`
}

// EvaluateHandler handles POST /evaluate requests.
func (s *Server) EvaluateHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "EvaluateHandler",
		trace.WithAttributes(
			attribute.String("http.method", "POST"),
			attribute.String("http.route", "/evaluate"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "evaluate"
	const method = "POST"

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("decode evaluate request", zap.Error(err))
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
	span.SetAttributes(
		attribute.String("tenant", tenant.Name),
		attribute.String("ad_id", req.Ad.ID),
	)

	// The snapshot goes through the tenant's state store first: a regressing
	// or impossible snapshot is rejected and the stored state stands.
	states := s.States(tenant.Name)
	if err := states.ApplySnapshot(req.Ad); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot rejected")
		status := evaluateErrorStatus(err)
		if status == "422" {
			s.Metrics.IncrementIntegrityErrors()
		}
		logger.Warn("snapshot rejected", zap.String("ad_id", req.Ad.ID), zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, status)
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, err.Error(), statusCode(status))
		return
	}

	decision, err := s.Engine.Evaluate(ctx, states.Get(req.Ad.ID), req.History, tenant)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluate failed")
		status := evaluateErrorStatus(err)
		if status == "422" {
			s.Metrics.IncrementIntegrityErrors()
		}
		logger.Warn("evaluate", zap.String("ad_id", req.Ad.ID), zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, status)
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, err.Error(), statusCode(status))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(decision); err != nil {
		logger.Error("encode decision", zap.Error(err))
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

// evaluateErrorStatus maps engine errors onto HTTP status classes. Malformed
// input and bad policy are client errors; everything else is a 500.
func evaluateErrorStatus(err error) string {
	var cfgErr *models.ConfigurationError
	var integrityErr *models.DataIntegrityError
	switch {
	case errors.As(err, &integrityErr):
		return "422"
	case errors.As(err, &cfgErr):
		return "400"
	default:
		return "500"
	}
}

func statusCode(status string) int {
	switch status {
	case "400":
		return http.StatusBadRequest
	case "404":
		return http.StatusNotFound
	case "422":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
