package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budgetd_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "budgetd_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// decisions emitted, labelled by action
	DecisionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budgetd_decisions_total",
			Help: "Total decisions emitted per action",
		},
		[]string{"action"},
	)

	// end-to-end evaluation latency per ad
	EvaluateLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "budgetd_evaluate_duration_seconds",
			Help:    "Duration of single-ad evaluations",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)

	// distribution of blend weights used in decisions
	BlendWeight = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "budgetd_blend_weight",
			Help:    "Histogram of revenue-trust blend weights",
			Buckets: prometheus.LinearBuckets(0, 0.05, 21),
		},
	)

	// fatigue verdicts, labelled by status
	FatigueVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budgetd_fatigue_verdicts_total",
			Help: "Total fatigue analyzer verdicts per status",
		},
		[]string{"status"},
	)

	// bandit selections and updates, labelled by operation
	BanditOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budgetd_bandit_operations_total",
			Help: "Total bandit selector operations",
		},
		[]string{"op"},
	)

	// snapshots rejected for counter regressions
	IntegrityErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "budgetd_integrity_errors_total",
			Help: "Total rejected metric snapshots",
		},
	)

	// candidate-winner events emitted to the pattern memory store
	WinnerEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "budgetd_winner_events_total",
			Help: "Total candidate-winner events emitted",
		},
	)

	// tenant config reloads, labelled by outcome
	ConfigReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budgetd_config_reloads_total",
			Help: "Total tenant configuration reloads",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		DecisionCount,
		EvaluateLatency,
		BlendWeight,
		FatigueVerdicts,
		BanditOps,
		IntegrityErrors,
		WinnerEvents,
		ConfigReloads,
	)
}
