package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/adpilot/budgetd/internal/engine"
)

// WinnersHandler handles GET /winners: the recent candidate-winner events
// emitted when an ad sustains a high blended score across consecutive
// evaluations.
func (s *Server) WinnersHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "winners"
	const method = "GET"

	events := []engine.WinnerEvent{}
	if s.Winners != nil {
		events = s.Winners.Recent()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(events); err != nil {
		s.Logger.Error("encode winners", zap.Error(err))
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
