package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_deliveries_total",
			Help: "Delivery lifecycle counter by stage",
		},
		[]string{"stage"}, // queued|success|retry|failed
	)

	AttemptDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hookline_attempt_duration_seconds",
			Help:    "Wall time of one delivery attempt including the HTTP call",
			Buckets: prometheus.DefBuckets,
		},
	)

	AttemptErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookline_attempt_errors_total",
			Help: "Attempts the dispatcher could not run (storage failures)",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		DeliveriesTotal,
		AttemptDuration,
		AttemptErrors,
	)
}
