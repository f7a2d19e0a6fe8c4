package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_scans_total",
			Help: "Scan and manual check-in attempts by verdict and rejection reason",
		},
		[]string{"verdict", "reason"},
	)

	storeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkin_store_duration_seconds",
			Help:    "Latency of ticket store calls",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"op", "result"},
	)

	commitConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkin_commit_conflicts_total",
			Help: "Conditional check-in updates that lost the race",
		},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkin_active_sessions",
			Help: "Open scanning sessions",
		},
	)
)

func ObserveScan(verdict, reason string) {
	if reason == "" {
		reason = "none"
	}
	scansTotal.WithLabelValues(verdict, reason).Inc()
}

func ObserveStore(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

func CommitConflict() {
	commitConflicts.Inc()
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

func Handler() http.Handler {
	return promhttp.Handler()
}
