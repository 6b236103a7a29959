// Package metrics holds the Prometheus collectors of the gateway. They are
// registered once with the default registry and served by promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prefix = "recordgate_"

// Queue kinds used as the "queue" label of MessagesPublished.
const (
	QueueRequests   = "requests"
	QueueValidation = "validation"
)

// Cleanup outcomes.
const (
	CleanupRemoved = "removed"
	CleanupKept    = "kept"
	CleanupFailed  = "failed"
)

var (
	messagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "messages_published_total",
		Help: "Number of records published to the broker grouped by queue kind",
	}, []string{"queue"})

	pollIterations = promauto.NewCounter(prometheus.CounterOpts{
		Name: prefix + "poll_iterations_total",
		Help: "Number of queue item reads performed by the priority poll loop",
	})

	terminalOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "prio_outcomes_total",
		Help: "Number of priority jobs grouped by the terminal state they reached",
	}, []string{"state"})

	cleanups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "cleanup_total",
		Help: "Number of priority queue item cleanups grouped by result",
	}, []string{"result"})

	prioWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    prefix + "prio_wait_seconds",
		Help:    "Time a priority request waited for a terminal state",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "http_requests_total",
		Help: "Number of HTTP requests grouped by method and status code",
	}, []string{"method", "code"})
)

func RecordPublished(queue string, n int) {
	messagesPublished.WithLabelValues(queue).Add(float64(n))
}

func RecordPoll() {
	pollIterations.Inc()
}

func RecordOutcome(state string) {
	terminalOutcomes.WithLabelValues(state).Inc()
}

func RecordCleanup(result string) {
	cleanups.WithLabelValues(result).Inc()
}

func ObservePrioWait(seconds float64) {
	prioWait.Observe(seconds)
}

func RecordHTTPRequest(method, code string) {
	httpRequests.WithLabelValues(method, code).Inc()
}
