package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Components take the interface rather than touching the global Prometheus
// collectors so tests can swap in the no-op implementation.
type MetricsRegistry interface {
	// HTTP request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Decision metrics
	IncrementDecisions(action string)
	RecordEvaluateLatency(duration time.Duration)
	RecordBlendWeight(weight float64)

	// Fatigue metrics
	IncrementFatigueVerdicts(status string)

	// Bandit metrics
	IncrementBanditOps(op string)

	// Data quality metrics
	IncrementIntegrityErrors()

	// Pattern memory metrics
	IncrementWinnerEvents()

	// Config metrics
	IncrementConfigReloads(outcome string)
}

// PrometheusRegistry implements MetricsRegistry over the package collectors.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry.
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementDecisions(action string) {
	DecisionCount.WithLabelValues(action).Inc()
}

func (r *PrometheusRegistry) RecordEvaluateLatency(duration time.Duration) {
	EvaluateLatency.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) RecordBlendWeight(weight float64) {
	BlendWeight.Observe(weight)
}

func (r *PrometheusRegistry) IncrementFatigueVerdicts(status string) {
	FatigueVerdicts.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) IncrementBanditOps(op string) {
	BanditOps.WithLabelValues(op).Inc()
}

func (r *PrometheusRegistry) IncrementIntegrityErrors() {
	IntegrityErrors.Inc()
}

func (r *PrometheusRegistry) IncrementWinnerEvents() {
	WinnerEvents.Inc()
}

func (r *PrometheusRegistry) IncrementConfigReloads(outcome string) {
	ConfigReloads.WithLabelValues(outcome).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing.
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry.
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementDecisions(action string)                                     {}
func (r *NoOpRegistry) RecordEvaluateLatency(duration time.Duration)                         {}
func (r *NoOpRegistry) RecordBlendWeight(weight float64)                                     {}
func (r *NoOpRegistry) IncrementFatigueVerdicts(status string)                               {}
func (r *NoOpRegistry) IncrementBanditOps(op string)                                         {}
func (r *NoOpRegistry) IncrementIntegrityErrors()                                            {}
func (r *NoOpRegistry) IncrementWinnerEvents()                                               {}
func (r *NoOpRegistry) IncrementConfigReloads(outcome string)                                {}
