// Package metrics exposes Prometheus collectors for downloads, archives and
// HTTP traffic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vodbatch"

// Download and archive outcomes used as label values.
const (
	ResultCompleted = "completed"
	ResultFailed    = "failed"
	ResultCancelled = "cancelled"
	ResultRejected  = "rejected"
	ResultMissing   = "missing"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	downloadsTotal    *prometheus.CounterVec
	downloadDuration  *prometheus.HistogramVec
	downloadBytes     prometheus.Histogram
	downloadsInFlight prometheus.Gauge

	archivesTotal   *prometheus.CounterVec
	archiveDuration prometheus.Histogram
	archiveBytes    prometheus.Histogram

	cleanupFailures prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var sizeBuckets = prometheus.ExponentialBuckets(1<<20, 4, 10) // 1MiB .. 256GiB

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.downloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "downloads_total",
		Help:      "Download jobs by outcome.",
	}, []string{"result"})

	m.downloadDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "download_duration_seconds",
		Help:      "Wall time of download jobs from admission to exit.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{"result"})

	m.downloadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "download_size_bytes",
		Help:      "Size of verified media files.",
		Buckets:   sizeBuckets,
	})

	m.downloadsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "downloads_in_progress",
		Help:      "Download processes currently running.",
	})

	m.archivesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archives_total",
		Help:      "Archive builds by outcome.",
	}, []string{"result"})

	m.archiveDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "archive_duration_seconds",
		Help:      "Time spent writing archives.",
		Buckets:   prometheus.DefBuckets,
	})

	m.archiveBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "archive_size_bytes",
		Help:      "Size of finished archives.",
		Buckets:   sizeBuckets,
	})

	m.cleanupFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cleanup_failures_total",
		Help:      "Transient files that could not be removed.",
	})

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"method", "route", "code"})

	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency. Streams are measured until they end.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.downloadsTotal,
		m.downloadDuration,
		m.downloadBytes,
		m.downloadsInFlight,
		m.archivesTotal,
		m.archiveDuration,
		m.archiveBytes,
		m.cleanupFailures,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// DownloadStarted marks a process as running. Pair with DownloadFinished.
func (m *Metrics) DownloadStarted() {
	m.downloadsInFlight.Inc()
}

// DownloadFinished records the outcome of a job that called DownloadStarted.
func (m *Metrics) DownloadFinished(result string, d time.Duration, size int64) {
	m.downloadsInFlight.Dec()
	m.downloadsTotal.WithLabelValues(result).Inc()
	m.downloadDuration.WithLabelValues(result).Observe(d.Seconds())
	if size > 0 {
		m.downloadBytes.Observe(float64(size))
	}
}

// DownloadRejected counts a request turned away before it ran.
func (m *Metrics) DownloadRejected() {
	m.downloadsTotal.WithLabelValues(ResultRejected).Inc()
}

func (m *Metrics) ArchiveBuilt(d time.Duration, size int64) {
	m.archivesTotal.WithLabelValues(ResultCompleted).Inc()
	m.archiveDuration.Observe(d.Seconds())
	m.archiveBytes.Observe(float64(size))
}

func (m *Metrics) ArchiveFailed(result string) {
	m.archivesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) CleanupFailed(n int) {
	m.cleanupFailures.Add(float64(n))
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route, code string, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, code).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
