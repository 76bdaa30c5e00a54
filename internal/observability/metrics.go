// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Item outcomes recorded per polled call.
const (
	OutcomePriced      = "priced"
	OutcomeExpired     = "expired"
	OutcomeFetchFailed = "fetch_failed"
	OutcomeNoEntry     = "no_entry"
	OutcomeConflict    = "conflict"
	OutcomeStoreError  = "store_error"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Scheduler metrics
	TicksTotal     prometheus.Counter
	TickDuration   prometheus.Histogram
	DueSelected    prometheus.Gauge
	ItemsProcessed *prometheus.CounterVec

	// Alert metrics
	MilestonesFired *prometheus.CounterVec
	DumpsFired      prometheus.Counter
	NotifySent      *prometheus.CounterVec

	// Oracle metrics
	OracleRequests *prometheus.CounterVec
	OracleLatency  *prometheus.HistogramVec

	// Submission metrics
	CallsSubmitted *prometheus.CounterVec

	// Health metrics
	LastSuccessfulTick prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "callwatch"
	}

	return &Metrics{
		TicksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Total number of polling ticks",
		}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Polling tick duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		DueSelected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "due_selected",
			Help:      "Number of due calls selected by the last tick",
		}),
		ItemsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "items_processed_total",
			Help:      "Total number of polled calls by outcome",
		}, []string{"outcome"}),

		MilestonesFired: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "milestones_total",
			Help:      "Total number of milestone alerts by threshold",
		}, []string{"threshold"}),
		DumpsFired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "dumps_total",
			Help:      "Total number of drawdown alerts",
		}),
		NotifySent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "notifications_total",
			Help:      "Total number of notifier sends by status",
		}, []string{"status"}),

		OracleRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "requests_total",
			Help:      "Total number of price source requests by source and result",
		}, []string{"source", "result"}),
		OracleLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "request_latency_seconds",
			Help:      "Price source request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),

		CallsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "calls_total",
			Help:      "Total number of call submissions by result",
		}, []string{"result"}),

		LastSuccessfulTick: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_tick_timestamp",
			Help:      "Unix timestamp of last completed polling tick",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTick records a completed polling tick.
func RecordTick(selected int, durationSeconds float64, finishedUnix int64) {
	DefaultMetrics.TicksTotal.Inc()
	DefaultMetrics.TickDuration.Observe(durationSeconds)
	DefaultMetrics.DueSelected.Set(float64(selected))
	DefaultMetrics.LastSuccessfulTick.Set(float64(finishedUnix))
}

// RecordItem records the outcome of one polled call.
func RecordItem(outcome string) {
	DefaultMetrics.ItemsProcessed.WithLabelValues(outcome).Inc()
}

// RecordMilestone records a milestone alert.
func RecordMilestone(threshold float64) {
	DefaultMetrics.MilestonesFired.WithLabelValues(strconv.FormatFloat(threshold, 'g', -1, 64)).Inc()
}

// RecordDump records a drawdown alert.
func RecordDump() {
	DefaultMetrics.DumpsFired.Inc()
}

// RecordNotify records a notifier send.
func RecordNotify(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.NotifySent.WithLabelValues(status).Inc()
}

// RecordOracleRequest records a price source request.
func RecordOracleRequest(source, result string, seconds float64) {
	DefaultMetrics.OracleRequests.WithLabelValues(source, result).Inc()
	DefaultMetrics.OracleLatency.WithLabelValues(source).Observe(seconds)
}

// RecordSubmission records a call submission result.
func RecordSubmission(result string) {
	DefaultMetrics.CallsSubmitted.WithLabelValues(result).Inc()
}
