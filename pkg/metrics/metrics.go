package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BlocksScanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zeropay",
		Name:      "blocks_scanned_total",
		Help:      "Total number of blocks scanned per chain.",
	}, []string{"chain"})

	DepositsObserved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zeropay",
		Name:      "deposits_observed_total",
		Help:      "Total number of confirmed deposits observed.",
	}, []string{"chain", "token"})

	DepositsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zeropay",
		Name:      "deposits_settled_total",
		Help:      "Total number of deposits forwarded to merchants.",
	}, []string{"chain", "status"}) // status: ok/failed/zero

	SettleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zeropay",
		Name:      "settle_duration_seconds",
		Help:      "Settlement latency from pickup to final confirmation.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s ~ 2048s (约 34 分钟)
	}, []string{"chain"})

	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zeropay",
		Name:      "webhook_deliveries_total",
		Help:      "Webhook delivery attempts.",
	}, []string{"event", "status"}) // status: ok/retry/dropped

	X402Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zeropay",
		Name:      "x402_settlements_total",
		Help:      "x402 settle attempts.",
	}, []string{"network", "status"})

	RpcErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zeropay",
		Name:      "rpc_errors_total",
		Help:      "Chain RPC errors.",
	}, []string{"chain", "method"})
)
