// Package metrics holds the Prometheus collectors for the session server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "confluence"

var (
	// Session metrics
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "The current number of live sessions.",
	})
	TotalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "The total number of sessions opened.",
	})
	EvictedSessions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_evicted_total",
		Help:      "The total number of sessions closed by the heartbeat monitor.",
	})

	// Message metrics
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_received_total",
		Help:      "The total number of frames received from clients, by message type.",
	}, []string{"type"})
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "The total number of frames sent to clients, by message type.",
	}, []string{"type"})
	MessageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "message_errors_total",
		Help:      "The total number of inbound frames answered with an error.",
	}, []string{"reason"})

	// Evaluation metrics
	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "evaluation_duration_seconds",
		Help:      "Time spent in the evaluator per chart update.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
)

// Handler returns the HTTP handler that exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
