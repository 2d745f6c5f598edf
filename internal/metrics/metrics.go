// Package metrics provides Prometheus metrics for the frame-picker
// service. No session or request ids appear in labels.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsCreatedTotal counts created sessions by tier.
	SessionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framepicker_sessions_created_total",
		Help: "Total number of created processing sessions, by tier.",
	}, []string{"tier"})

	// UploadsTotal counts upload attempts by tier and outcome.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framepicker_uploads_total",
		Help: "Total number of video uploads, by tier and result (accepted/rejected).",
	}, []string{"tier", "result"})

	// UploadBytes observes accepted upload sizes.
	UploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "framepicker_upload_bytes",
		Help:    "Size distribution of accepted uploads in bytes.",
		Buckets: prometheus.ExponentialBuckets(1<<20, 2, 10),
	})

	// JobsTotal counts finished processing jobs by tier and result.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framepicker_jobs_total",
		Help: "Total number of finished processing jobs, by tier and result (completed/failed).",
	}, []string{"tier", "result"})

	// JobDuration observes end-to-end processing duration.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "framepicker_job_duration_seconds",
		Help:    "Processing job duration in seconds, by tier.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"tier"})

	// FramesSelected observes how many frames each completed job produced.
	FramesSelected = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "framepicker_frames_selected",
		Help:    "Number of frames selected per completed job.",
		Buckets: []float64{1, 2, 3, 5, 10},
	})

	// QuotaRejectionsTotal counts requests rejected by the usage quota.
	QuotaRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framepicker_quota_rejections_total",
		Help: "Total number of process requests rejected by the tier quota, by tier.",
	}, []string{"tier"})

	// HTTPRequestsTotal counts HTTP requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framepicker_http_requests_total",
		Help: "Total number of HTTP requests, by method, route pattern and status code.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration observes request latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "framepicker_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds, by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)
