package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	ServersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zkfleet_servers_total",
			Help: "Number of managed servers by state",
		},
		[]string{"state"},
	)

	// Scheduler metrics
	OffersReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zkfleet_offers_received_total",
			Help: "Total number of resource offers received",
		},
	)

	OffersDeclined = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zkfleet_offers_declined_total",
			Help: "Total number of resource offers left unconsumed",
		},
	)

	TasksLaunched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zkfleet_tasks_launched_total",
			Help: "Total number of tasks launched",
		},
	)

	TaskFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zkfleet_task_failures_total",
			Help: "Total number of terminal task failures",
		},
	)

	OfferEvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zkfleet_offer_evaluation_seconds",
			Help:    "Time taken to evaluate one resource offer",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Storage metrics
	SnapshotSaveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zkfleet_snapshot_save_seconds",
			Help:    "Time taken to persist the cluster snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkfleet_api_requests_total",
			Help: "Total number of admin API requests by route and status",
		},
		[]string{"route", "status"},
	)
)

func init() {
	prometheus.MustRegister(ServersTotal)
	prometheus.MustRegister(OffersReceived)
	prometheus.MustRegister(OffersDeclined)
	prometheus.MustRegister(TasksLaunched)
	prometheus.MustRegister(TaskFailures)
	prometheus.MustRegister(OfferEvaluationDuration)
	prometheus.MustRegister(SnapshotSaveDuration)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures a duration for histogram observation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in the given histogram
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(t.Duration().Seconds())
}
