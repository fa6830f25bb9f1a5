package tracking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_sessions_opened_total",
		Help: "Tracking sessions opened by check-in",
	})

	sessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_sessions_closed_total",
		Help: "Tracking sessions closed, by how they were closed",
	}, []string{"reason"})

	samplesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_samples_total",
		Help: "Coordinate readings received, by outcome",
	}, []string{"outcome"})

	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracking_batch_size",
		Help:    "Readings per ingested coordinate batch",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	recalculatedSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_recalculated_sessions_total",
		Help: "Sessions visited by batch recalculation, by outcome",
	}, []string{"outcome"})
)
