package metricsx

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	eventsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_events_processed_total",
			Help: "Total events completed with a generated insight.",
		},
	)
	eventsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_events_skipped_total",
			Help: "Total events skipped, by reason.",
		},
		[]string{"reason"},
	)
	eventsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_events_failed_total",
			Help: "Total events finalized as failed.",
		},
	)
	duplicatesAvoided = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_duplicates_avoided_total",
			Help: "Total events skipped because their fingerprint was already completed.",
		},
	)
	generateFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "insight_generate_failures_total",
			Help: "Total insight generation failures.",
		},
	)
	generateSuccess = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "insight_generate_success_total",
			Help: "Total insight generation successes.",
		},
	)
	generateLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "insight_generate_latency_seconds",
			Help:    "Insight generation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_cycle_duration_seconds",
			Help:    "Batch cycle duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	cycleFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_cycle_failures_total",
			Help: "Total batch cycles that failed at the cycle level.",
		},
	)
	workersInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_workers_in_flight",
			Help: "Event processors currently running.",
		},
	)
)

func Register() {
	prometheus.MustRegister(
		eventsProcessed, eventsSkipped, eventsFailed, duplicatesAvoided,
		generateFailures, generateSuccess, generateLatency,
		cycleDuration, cycleFailures, workersInFlight,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func IncEventProcessed() {
	eventsProcessed.Inc()
}

func IncEventSkipped(reason string) {
	eventsSkipped.WithLabelValues(reason).Inc()
}

func IncEventFailed() {
	eventsFailed.Inc()
}

func IncDuplicateAvoided() {
	duplicatesAvoided.Inc()
}

func IncGenerateFailure() {
	generateFailures.Inc()
}

func IncGenerateSuccess() {
	generateSuccess.Inc()
}

func ObserveGenerateLatency(d time.Duration) {
	generateLatency.Observe(d.Seconds())
}

func ObserveCycleDuration(d time.Duration) {
	cycleDuration.Observe(d.Seconds())
}

func IncCycleFailure() {
	cycleFailures.Inc()
}

func IncWorkersInFlight() {
	workersInFlight.Inc()
}

func DecWorkersInFlight() {
	workersInFlight.Dec()
}
