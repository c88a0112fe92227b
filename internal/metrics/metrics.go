// Package metrics holds the Prometheus collectors for the settlement service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "settlement"

var (
	// Registry is the process registry served on /metrics.
	Registry = prometheus.NewRegistry()

	OrdersCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_created_total",
		Help:      "Orders persisted in PENDING state.",
	})

	Settlements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_completions_total",
		Help:      "CompleteOrder outcomes by result (settled, duplicate, rejected).",
	}, []string{"result"})

	SettlementFaults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlement_faults_total",
		Help:      "Settlement steps that failed after the order was marked paid.",
	}, []string{"step"})

	Verifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_verifications_total",
		Help:      "Provider verification results.",
	}, []string{"provider", "status"})

	WithdrawalRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "withdrawal_requests_total",
		Help:      "Withdrawal requests by result and rejection code.",
	}, []string{"result", "code"})

	WithdrawalTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "withdrawal_transitions_total",
		Help:      "Applied withdrawal status transitions.",
	}, []string{"from", "to"})

	SweeperCancellations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweeper_cancelled_orders_total",
		Help:      "Pending orders cancelled by the sweeper per policy.",
	}, []string{"policy"})

	Reconciliations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlement_reconciliations_total",
		Help:      "Reconciliation attempts for paid orders missing a platform earning.",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		OrdersCreated,
		Settlements,
		SettlementFaults,
		Verifications,
		WithdrawalRequests,
		WithdrawalTransitions,
		SweeperCancellations,
		Reconciliations,
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
