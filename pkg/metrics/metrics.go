// Package metrics holds the Prometheus collectors of the market maker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SettlementsTotal counts settlement requests by kind (deposit, withdraw) and outcome.
	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amm_settlements_total",
			Help: "Settlement requests by kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: settled, duplicate, rejected, submission_failed, error
	)

	// SharesOutstanding tracks the share supply of each market.
	SharesOutstanding = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "amm_shares_outstanding",
			Help: "Outstanding pool shares per market as of the last settlement",
		},
		[]string{"market"},
	)

	// LedgerSubmissions counts BuildAndSubmit attempts by result class.
	LedgerSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amm_ledger_submissions_total",
			Help: "Ledger transaction submissions by result",
		},
		[]string{"result"}, // ok, stale, transport, rejected, landed
	)

	// SubmissionFailures counts persisted charges whose submission did not succeed. Any increase needs an operator.
	SubmissionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amm_submission_failures_total",
			Help: "Persisted charges whose ledger submission failed",
		},
		[]string{"class"}, // fatal, transient
	)

	// SchedulerDecisions counts rebalance enqueue decisions.
	SchedulerDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amm_scheduler_decisions_total",
			Help: "Rebalance enqueue decisions",
		},
		[]string{"market", "decision"},
	)

	// RebalanceRuns counts rebalance job executions.
	RebalanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amm_rebalance_runs_total",
			Help: "Rebalance job executions by outcome",
		},
		[]string{"market", "outcome"}, // applied, noop, failed, dropped
	)

	// RebalanceDuration observes rebalance job latency.
	RebalanceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "amm_rebalance_duration_seconds",
			Help:    "Rebalance job duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"market"},
	)

	// ReconciledCharges counts charges replayed by the reconciler.
	ReconciledCharges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amm_reconciled_charges_total",
			Help: "Pending charges replayed by the reconciler",
		},
		[]string{"outcome"},
	)

	// HTTPRequests observes HTTP handler latency.
	HTTPRequests = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "amm_http_request_duration_seconds",
			Help:    "HTTP request duration by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

// ObserveSince records the time elapsed since start on h.
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}
