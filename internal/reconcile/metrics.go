package reconcile

import "github.com/prometheus/client_golang/prometheus"

var (
	passesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "points_service",
		Subsystem: "reconcile",
		Name:      "passes_total",
		Help:      "Number of reconciliation passes started.",
	})

	passFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "points_service",
		Subsystem: "reconcile",
		Name:      "pass_failures_total",
		Help:      "Number of reconciliation passes that ended in a transport or store error.",
	})

	activitiesPushed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "points_service",
		Subsystem: "reconcile",
		Name:      "activities_pushed_total",
		Help:      "Number of local activities inserted into the remote store.",
	})

	dedupSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "points_service",
		Subsystem: "reconcile",
		Name:      "dedup_skipped_total",
		Help:      "Number of local activities skipped because their fingerprint already exists remotely.",
	})

	cacheRetired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "points_service",
		Subsystem: "reconcile",
		Name:      "cache_retired_total",
		Help:      "Number of times the local cache slot was cleared after remote confirmation.",
	})

	passDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "points_service",
		Subsystem: "reconcile",
		Name:      "pass_duration_seconds",
		Help:      "Time spent listing, pushing, and verifying per pass.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	lastPassGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "points_service",
		Subsystem: "reconcile",
		Name:      "last_pass_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful reconciliation pass.",
	})
)

func init() {
	prometheus.MustRegister(passesTotal, passFailures, activitiesPushed, dedupSkipped, cacheRetired, passDuration, lastPassGauge)
}
