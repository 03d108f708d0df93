package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Consumptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bom",
		Name:      "consumptions_total",
		Help:      "Order consumption attempts by final state.",
	}, []string{"state"})

	Deductions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bom",
		Name:      "deductions_total",
		Help:      "Component deductions executed.",
	})

	RolledBack = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bom",
		Name:      "rolled_back_entries_total",
		Help:      "Ledger entries compensated, by cause.",
	}, []string{"cause"})

	Reversals = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bom",
		Name:      "reversed_entries_total",
		Help:      "Ledger entries reversed after cancellation or refund.",
	})

	CascadeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bom",
		Name:      "cascade_failures_total",
		Help:      "Cascade sync runs that finished with at least one failed parent.",
	})

	PlatformRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bom",
		Name:      "platform_retries_total",
		Help:      "Retried commerce platform calls.",
	})
)
