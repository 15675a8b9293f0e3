package utils

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SagaTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_saga_transitions_total",
		Help: "Order status transitions applied by the saga.",
	}, []string{"from", "to"})

	WebhookOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_total",
		Help: "Webhook deliveries by gateway and outcome.",
	}, []string{"gateway", "outcome"})

	PayoutRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_payout_requests_total",
		Help: "Payout requests by result.",
	}, []string{"result"})

	OutboxPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "saga_outbox_published_total",
		Help: "Saga log entries relayed to the event stream.",
	})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// RegisterMetrics adds the service collectors to reg. Registering twice is a no-op.
func RegisterMetrics(reg prometheus.Registerer) {
	for _, c := range []prometheus.Collector{SagaTransitions, WebhookOutcomes, PayoutRequests, OutboxPublished, HTTPDuration} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				GetLogger().Sugar().Warnf("metrics: register failed: %v", err)
			}
		}
	}
}
