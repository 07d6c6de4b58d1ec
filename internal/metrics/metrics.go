// Package metrics exposes the service's Prometheus instrumentation:
// HTTP traffic, solver activity, overlay cache behavior, catalog
// state, and SSE streaming.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umbrago_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "umbrago_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	solvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umbrago_solves_total",
			Help: "Circumstance solves by resulting local classification.",
		},
		[]string{"kind"},
	)

	solveDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "umbrago_solve_duration_seconds",
			Help:    "Contact solver duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
		},
	)

	overlayBuildDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "umbrago_overlay_build_duration_seconds",
			Help:    "Per-eclipse overlay trace duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	overlayBuildEmptyTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "umbrago_overlay_build_empty_total",
			Help: "Overlay builds that produced no polygons.",
		},
	)

	overlayCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "umbrago_overlay_cache_entries",
			Help: "Number of eclipses with cached overlays.",
		},
	)

	overlayCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "umbrago_overlay_cache_hits_total",
			Help: "Overlay cache hits.",
		},
	)

	overlayCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "umbrago_overlay_cache_misses_total",
			Help: "Overlay cache misses.",
		},
	)

	overlayCutoverActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "umbrago_overlay_cutover_active",
			Help: "1 while the overlay cache is rebuilding after a catalog change.",
		},
	)

	catalogRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "umbrago_catalog_records",
			Help: "Records in the current eclipse catalog.",
		},
	)

	catalogAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "umbrago_catalog_age_seconds",
			Help: "Age of the current eclipse catalog in seconds.",
		},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umbrago_stream_connections_total",
			Help: "SSE stream connect/disconnect events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "umbrago_streams_active",
			Help: "Currently connected SSE streams.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "umbrago_stream_messages_total",
			Help: "SSE data messages sent.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "umbrago_stream_bytes_total",
			Help: "SSE bytes sent, including keepalives.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umbrago_stream_errors_total",
			Help: "SSE stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		solvesTotal,
		solveDurationSeconds,
		overlayBuildDurationSeconds,
		overlayBuildEmptyTotal,
		overlayCacheEntries,
		overlayCacheHitsTotal,
		overlayCacheMissesTotal,
		overlayCutoverActive,
		catalogRecords,
		catalogAgeSeconds,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSolve records one solver run and its local classification.
func RecordSolve(kind string, d time.Duration) {
	solvesTotal.WithLabelValues(kind).Inc()
	solveDurationSeconds.Observe(d.Seconds())
}

// ObserveOverlayBuildDuration records one per-eclipse overlay trace.
func ObserveOverlayBuildDuration(d time.Duration) {
	overlayBuildDurationSeconds.Observe(d.Seconds())
}

// IncOverlayBuildEmpty counts a build that produced no polygons.
func IncOverlayBuildEmpty() { overlayBuildEmptyTotal.Inc() }

// SetOverlayCacheEntries publishes the overlay cache size.
func SetOverlayCacheEntries(n int) { overlayCacheEntries.Set(float64(n)) }

// IncOverlayCacheHits counts an overlay cache hit.
func IncOverlayCacheHits() { overlayCacheHitsTotal.Inc() }

// IncOverlayCacheMisses counts an overlay cache miss.
func IncOverlayCacheMisses() { overlayCacheMissesTotal.Inc() }

// SetOverlayCutoverActive flags an in-progress overlay rebuild.
func SetOverlayCutoverActive(active bool) {
	if active {
		overlayCutoverActive.Set(1)
	} else {
		overlayCutoverActive.Set(0)
	}
}

// SetCatalogRecords publishes the current catalog size.
func SetCatalogRecords(n int) { catalogRecords.Set(float64(n)) }

// SetCatalogAge publishes the current catalog age.
func SetCatalogAge(seconds float64) { catalogAgeSeconds.Set(seconds) }

// IncStreamConnections counts a stream "connect" or "disconnect".
func IncStreamConnections(event string) { streamConnectionsTotal.WithLabelValues(event).Inc() }

// IncStreamsActive increments the live SSE connection gauge.
func IncStreamsActive() { streamsActive.Inc() }

// DecStreamsActive decrements the live SSE connection gauge.
func DecStreamsActive() { streamsActive.Dec() }

// IncStreamMessages counts one SSE data message.
func IncStreamMessages() { streamMessagesTotal.Inc() }

// AddStreamBytes counts bytes written to SSE connections.
func AddStreamBytes(n int64) { streamBytesTotal.Add(float64(n)) }

// IncStreamErrors counts a stream error by reason.
func IncStreamErrors(reason string) { streamErrorsTotal.WithLabelValues(reason).Inc() }

// knownRoutes are the exact paths the service serves; anything else is
// collapsed to "other" to bound label cardinality against bot traffic.
var knownRoutes = map[string]bool{
	"/":                        true,
	"/healthz":                 true,
	"/readyz":                  true,
	"/metrics":                 true,
	"/api/v1/eclipses":         true,
	"/api/v1/circumstances":    true,
	"/api/v1/catalog/metadata": true,
	"/api/v1/catalog/fetch":    true,
	"/api/v1/cache/stats":      true,
	"/api/v1/stream/shadow":    true,
}

// normalizeRoute maps a request path to a bounded metric label.
// Per-eclipse paths collapse to one label per route shape.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}

	if rest, ok := strings.CutPrefix(path, "/api/v1/eclipses/"); ok {
		switch {
		case strings.HasSuffix(rest, "/circumstances") && !strings.Contains(strings.TrimSuffix(rest, "/circumstances"), "/"):
			return "/api/v1/eclipses/{id}/circumstances"
		case strings.HasSuffix(rest, "/overlays") && !strings.Contains(strings.TrimSuffix(rest, "/overlays"), "/"):
			return "/api/v1/eclipses/{id}/overlays"
		case rest != "" && !strings.Contains(rest, "/"):
			return "/api/v1/eclipses/{id}"
		}
	}

	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
