// Package metrics defines the Prometheus instrumentation for the audio
// ingestion service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the ingestion service.
// Each instance carries its own registry so tests can construct as many
// as they need without collisions.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion pipeline metrics
	RequestsReceived  prometheus.Counter
	RequestsProcessed prometheus.Counter
	RequestsRejected  prometheus.Counter
	PayloadBytes      prometheus.Histogram
	ArtifactDuration  prometheus.Histogram

	// Emotion analysis metrics
	AnalysisRequests    prometheus.Counter
	AnalysisUnavailable prometheus.Counter
	AnalysisDuration    prometheus.Histogram

	// Archive upload metrics
	ArchiveUploads  prometheus.Counter
	ArchiveSkips    prometheus.Counter
	ArchiveDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		RequestsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_requests_received_total",
			Help: "Total number of audio ingestion requests received",
		}),
		RequestsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_requests_processed_total",
			Help: "Total number of ingestion requests processed successfully",
		}),
		RequestsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_requests_rejected_total",
			Help: "Total number of ingestion requests rejected by validation",
		}),
		PayloadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_payload_bytes",
			Help:    "Size of uploaded raw PCM payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB to ~256MiB
		}),
		ArtifactDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_artifact_duration_seconds",
			Help:    "Audio duration of framed artifacts in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17 minutes
		}),

		AnalysisRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_analysis_requests_total",
			Help: "Total number of emotion analysis calls issued",
		}),
		AnalysisUnavailable: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_analysis_unavailable_total",
			Help: "Total number of emotion analysis calls that degraded to unavailable",
		}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_analysis_duration_seconds",
			Help:    "Wall time of emotion analysis calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~3.5 minutes
		}),

		ArchiveUploads: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_archive_uploads_total",
			Help: "Total number of artifacts durably archived",
		}),
		ArchiveSkips: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_archive_skips_total",
			Help: "Total number of archival attempts skipped or failed",
		}),
		ArchiveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_archive_duration_seconds",
			Help:    "Wall time of archive upload calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_http_requests_total",
			Help: "Total number of HTTP requests by method, endpoint, and status",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_http_request_duration_seconds",
			Help:    "HTTP request duration by method and endpoint",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_http_errors_total",
			Help: "Total number of HTTP error responses by method, endpoint, and type",
		}, []string{"method", "endpoint", "type"}),
	}
}

// Registry exposes the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, status string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records one HTTP error response.
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
