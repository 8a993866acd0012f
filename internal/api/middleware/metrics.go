// metrics.go exposes Prometheus HTTP metrics for the check-in module:
// cm_http_requests_total and cm_http_request_duration_seconds.
// Paths are normalized so identifiers and sector names do not blow up
// label cardinality.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cm_http_requests_total",
			Help: "Total HTTP requests served by the check-in module",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cm_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware returns middleware recording request count and
// duration per endpoint. apiPrefix is the mount point of the API routes
// and may be empty.
func MetricsMiddleware(apiPrefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(apiPrefix, r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the original ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// dynamicRoutes maps a route prefix to its label.
var dynamicRoutes = []struct {
	prefix string
	label  string
}{
	{"/worker/", "/worker/{identifier}"},
	{"/check-registration/", "/check-registration/{identifier}"},
	{"/functions/", "/functions/{sector}"},
}

// normalizePath replaces path parameters with placeholders:
//
//	/api/worker/12345678901 -> /worker/{identifier}
//	/functions/Bar          -> /functions/{sector}
//
// Unknown paths collapse into "other".
func normalizePath(apiPrefix, path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics":
		return path
	}

	p := path
	if apiPrefix != "" && apiPrefix != "/" {
		trimmed, ok := strings.CutPrefix(p, strings.TrimSuffix(apiPrefix, "/"))
		if !ok {
			return "other"
		}
		p = trimmed
	}

	switch p {
	case "/register", "/registrations", "/functions":
		return p
	}
	for _, route := range dynamicRoutes {
		if len(p) > len(route.prefix) && strings.HasPrefix(p, route.prefix) {
			return route.label
		}
	}
	return "other"
}
