// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "matchrelay"

var (
	QueueWaiting = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_waiting",
			Help:      "Tickets currently waiting per lane",
		},
		[]string{"lane"},
	)

	QueueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_operations_total",
			Help:      "Queue operations by outcome",
		},
		[]string{"operation", "status"},
	)

	PairingsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairings_created_total",
			Help:      "Pairings formed by the matcher",
		},
	)

	MatchSkips = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_skips_total",
			Help:      "Candidates skipped for incompatible filters",
		},
	)

	TicketWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ticket_wait_seconds",
			Help:      "Time from enqueue to pairing",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)

	SignalOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signal_operations_total",
			Help:      "Session description publishes and fetches",
		},
		[]string{"operation", "role", "status"},
	)

	RateLimitDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_denied_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"route"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Backing store failures surfaced to callers",
		},
		[]string{"component"},
	)

	MaintenanceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "maintenance_duration_seconds",
			Help:      "Duration of maintenance tasks",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"task"},
	)
)

func ObserveQueueOp(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	QueueOperations.WithLabelValues(operation, status).Inc()
}

func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func Handler() http.Handler {
	return promhttp.Handler()
}
