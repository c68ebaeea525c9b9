// Package metrics exposes Prometheus collectors for the governance pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for governance operations.
type Metrics struct {
	ActionsExecuted  *prometheus.CounterVec
	PolicyFailures   *prometheus.CounterVec
	RuleViolations   *prometheus.CounterVec
	SLABreaches      *prometheus.CounterVec
	LedgerAppends    prometheus.Counter
	ExecuteLatency   *prometheus.HistogramVec
	SweepLatency     prometheus.Histogram
	SweepCandidates  prometheus.Histogram
}

// New registers and returns governance metrics collectors.
func New() *Metrics {
	return &Metrics{
		ActionsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fingov_actions_executed_total",
			Help: "Total governed actions executed, labeled by action type and outcome status",
		}, []string{"action_type", "status"}),
		PolicyFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fingov_policy_failures_total",
			Help: "Total policy evaluations that failed, labeled by action type and max severity",
		}, []string{"action_type", "severity"}),
		RuleViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fingov_rule_violations_total",
			Help: "Total rule violations raised, labeled by rule id",
		}, []string{"rule_id"}),
		SLABreaches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fingov_sla_breaches_total",
			Help: "Total SLA breaches processed, labeled by breach action",
		}, []string{"action"}),
		LedgerAppends: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fingov_ledger_appends_total",
			Help: "Total audit ledger entries written by the orchestrator",
		}),
		ExecuteLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fingov_execute_latency_seconds",
			Help:    "Latency of orchestrated governance calls in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"action_type"}),
		SweepLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fingov_sla_sweep_latency_seconds",
			Help:    "Latency of SLA breach sweeps in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		SweepCandidates: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fingov_sla_sweep_candidates",
			Help:    "Distribution of candidate counts per SLA sweep",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}),
	}
}
