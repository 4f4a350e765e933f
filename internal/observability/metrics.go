package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	activitiesRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "points_service",
		Subsystem: "ledger",
		Name:      "activities_recorded_total",
		Help:      "Number of activities accepted into the in-memory ledger, by kind.",
	}, []string{"kind"})

	sessionTotalGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "points_service",
		Subsystem: "ledger",
		Name:      "session_total_points",
		Help:      "Total points of the current session's ledger.",
	})

	checkinRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "points_service",
		Subsystem: "ledger",
		Name:      "checkins_rejected_total",
		Help:      "Number of daily check-ins rejected by the cap enforcer.",
	})
)

func init() {
	prometheus.MustRegister(activitiesRecorded, sessionTotalGauge, checkinRejected)
}

// RecordActivityRecorded bumps the per-kind counter and the session total.
func RecordActivityRecorded(kind string, total int) {
	activitiesRecorded.WithLabelValues(kind).Inc()
	sessionTotalGauge.Set(float64(total))
}

// RecordCheckinRejected counts a cap rejection.
func RecordCheckinRejected() {
	checkinRejected.Inc()
}
