package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EscrowReleases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_escrow_releases_total",
		Help: "Escrow holdings released, by trigger.",
	}, []string{"trigger"})

	EscrowRefunds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_escrow_refunds_total",
		Help: "Escrow holdings refunded.",
	})

	Withdrawals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_withdrawals_total",
		Help: "Credit withdrawals, by terminal status.",
	}, []string{"status"})

	Deposits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_deposits_total",
		Help: "On-chain deposits credited.",
	})

	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_broadcast_failures_total",
		Help: "On-chain sends rejected by the blockchain API.",
	})
)
