package metrics

import (
	prom "github.com/prometheus/client_golang/prometheus"
)

var (
	QueuedRequests = prom.NewGauge(prom.GaugeOpts{
		Namespace: "connector",
		Name:      "queued_requests",
		Help:      "Number of dApp requests waiting in the request queue.",
	})
	WatchedTransactions = prom.NewGauge(prom.GaugeOpts{
		Namespace: "wallet",
		Name:      "watched_transactions",
		Help:      "Number of pending or cancelling transactions being polled.",
	})
	TransactionOutcomes = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "wallet",
		Name:      "transaction_outcomes_total",
		Help:      "Terminal statuses written to tracked transactions.",
	}, []string{"status"})
	TransientErrors = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "wallet",
		Name:      "transient_errors_total",
		Help:      "Transient fetch errors absorbed by pollers.",
	}, []string{"component"})
)

func init() {
	prom.MustRegister(QueuedRequests, WatchedTransactions, TransactionOutcomes, TransientErrors)
}
