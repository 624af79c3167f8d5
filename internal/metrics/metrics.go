// Package metrics provides Prometheus instrumentation for the line engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MergesTotal counts merge operations applied to the aggregate store,
	// partitioned by target map.
	MergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "line_engine_merges_total",
		Help: "Total merge operations applied to the aggregate store",
	}, []string{"map"})

	// OpRejectionsTotal counts rejected collateral operations by kind.
	OpRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "line_engine_op_rejections_total",
		Help: "Collateral operations that resolved as rejected",
	}, []string{"op"})

	// SelectorCacheHits counts memoized selector results served.
	SelectorCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "line_engine_selector_cache_hits_total",
		Help: "Selector invocations served from the memo cache",
	}, []string{"selector"})

	// SelectorCacheMisses counts selector recomputations.
	SelectorCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "line_engine_selector_cache_misses_total",
		Help: "Selector invocations that recomputed the projection",
	}, []string{"selector"})

	// LinesTracked gauges the number of lines held in the store.
	LinesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "line_engine_lines_tracked",
		Help: "Number of secured lines in the aggregate store",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "line_engine_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "line_engine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "line_engine_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small enough
		// that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
