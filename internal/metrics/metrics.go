// Package metrics holds the domain counters exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LedgerOperations counts ledger operations by kind (transfer, add_funds, admin_adjust, deposit_credit)
	// and result (ok or the error class).
	LedgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_ledger_operations_total",
			Help: "Ledger operations by kind and result",
		},
		[]string{"operation", "result"},
	)

	// Reconciliations counts reconcile calls by trigger (callback, poll) and what they did.
	Reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_reconciliations_total",
			Help: "Reconcile attempts by trigger and action",
		},
		[]string{"trigger", "action"},
	)

	GatewayCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_gateway_calls_total",
			Help: "Calls to the payment gateway by operation and result",
		},
		[]string{"gateway", "operation", "result"},
	)

	GatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wallet_gateway_call_duration_seconds",
			Help:    "Latency of payment gateway calls",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"gateway", "operation"},
	)

	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_outbox_published_total",
			Help: "Outbox rows relayed to kafka by result",
		},
		[]string{"result"},
	)
)

// Result labels a call outcome as "ok" or "error".
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
