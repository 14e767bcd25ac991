package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dadaal_payments_total",
			Help: "Payment attempts by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	CreditsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dadaal_credits_total",
			Help: "Ledger credits applied.",
		},
	)

	CreditedAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dadaal_credited_amount_total",
			Help: "Total amount credited to user balances.",
		},
	)

	ReconcileRepairs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dadaal_reconcile_repairs_total",
			Help: "Cached balances repaired by the reconciler.",
		},
	)
)
