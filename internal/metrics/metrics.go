// Package metrics holds the prometheus collectors for scrapes, upstream calls
// and the HTTP surface. Collectors live on a Metrics value with its own
// registry, so independent instances never collide.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reelscout/reelscout/internal/indexer/types"
)

const namespace = "reelscout"

// Metrics implements scrape.Observer and trakt.Observer.
type Metrics struct {
	registry *prometheus.Registry

	ScrapeResultsTotal   *prometheus.CounterVec
	ScrapeRequestsTotal  *prometheus.CounterVec
	ScrapeDuration       *prometheus.HistogramVec
	UpstreamRequests     *prometheus.CounterVec
	UpstreamDuration     *prometheus.HistogramVec
	MetadataLookupsTotal *prometheus.CounterVec
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ScrapeResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_results_total",
			Help:      "Raw results returned per indexer instance.",
		}, []string{"instance", "backend"}),

		ScrapeRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_requests_total",
			Help:      "Indexer calls by instance and outcome (ok, timed_out, failed, cancelled).",
		}, []string{"instance", "backend", "outcome"}),

		ScrapeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrape_duration_seconds",
			Help:      "Indexer call duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"instance"}),

		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Metadata provider requests by method and status code.",
		}, []string{"method", "status"}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Metadata provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
		}, []string{"method"}),

		MetadataLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_lookups_total",
			Help:      "Metadata cache lookups by media type and source (cache, upstream, stale).",
		}, []string{"type", "source"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path and status code.",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		m.ScrapeResultsTotal,
		m.ScrapeRequestsTotal,
		m.ScrapeDuration,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.MetadataLookupsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveScrape records one indexer call. An empty label means success.
func (m *Metrics) ObserveScrape(instance string, backend types.BackendType, results int, label string, elapsed time.Duration) {
	m.ScrapeRequestsTotal.WithLabelValues(instance, string(backend), outcome(label)).Inc()
	m.ScrapeResultsTotal.WithLabelValues(instance, string(backend)).Add(float64(results))
	if elapsed > 0 {
		m.ScrapeDuration.WithLabelValues(instance).Observe(elapsed.Seconds())
	}
}

// ObserveUpstream records one metadata provider exchange. Status zero marks a
// transport failure.
func (m *Metrics) ObserveUpstream(method string, status int, elapsed time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.UpstreamRequests.WithLabelValues(method, code).Inc()
	m.UpstreamDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveMetadata records where a metadata lookup was answered from.
func (m *Metrics) ObserveMetadata(mediaType, source string) {
	m.MetadataLookupsTotal.WithLabelValues(mediaType, source).Inc()
}

// ObserveHTTP records one served API request.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func outcome(label string) string {
	switch label {
	case "":
		return "ok"
	case "Timed Out":
		return "timed_out"
	case "Cancelled":
		return "cancelled"
	default:
		return "failed"
	}
}
