// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pmsf"

var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Login attempts by outcome.",
	}, []string{"status"})

	VisitsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "visits_submitted_total",
		Help:      "Visits created.",
	})

	VisitsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "visits_updated_total",
		Help:      "Visits edited inside the edit window.",
	})

	ChecklistSyncs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checklist_syncs_total",
		Help:      "Successful checklist reconciliations.",
	})

	MediaUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "media_uploads_total",
		Help:      "Stored media files by kind.",
	}, []string{"kind"})

	QuizAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quiz_attempts_total",
		Help:      "Recorded quiz attempts by result.",
	}, []string{"result"})
)
