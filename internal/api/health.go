package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthHandler reports liveness plus how many tenant policies are loaded. A
// zero tenant count means reload has not succeeded yet and every decision
// request will 404.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"
	const method = "GET"

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"tenants": len(s.Tenants()),
	})

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
