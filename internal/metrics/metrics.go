// Package metrics provides Prometheus metrics for the document connector.
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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docconnector_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docconnector_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Backend functions
	functionCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docconnector_function_calls_total",
			Help: "Total backend function invocations",
		},
		[]string{"function", "result"},
	)

	afasRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docconnector_afas_request_duration_seconds",
			Help:    "AFAS REST request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	afasRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docconnector_afas_requests_total",
			Help: "Total AFAS REST requests",
		},
		[]string{"endpoint", "status"},
	)

	webhookPostsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docconnector_webhook_posts_total",
			Help: "Total download notification webhook posts",
		},
		[]string{"status"},
	)

	// Session side
	resolveOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docconnector_resolve_outcomes_total",
			Help: "Resource name resolutions by selector and outcome",
		},
		[]string{"selector", "outcome"},
	)

	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docconnector_downloads_total",
			Help: "File downloads by outcome",
		},
		[]string{"outcome"},
	)

	downloadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docconnector_download_bytes_total",
			Help: "Total decoded bytes handed to the save target",
		},
	)

	filesListed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docconnector_files_listed",
			Help: "Number of files in the last published listing",
		},
	)

	// Save targets
	s3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docconnector_s3_operation_duration_seconds",
			Help:    "S3 operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	s3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docconnector_s3_operations_total",
			Help: "Total S3 operations",
		},
		[]string{"operation", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordFunctionCall records a backend function invocation. result is
// "ok", "error_result" or "unknown".
func RecordFunctionCall(function, result string) {
	functionCallsTotal.WithLabelValues(function, result).Inc()
}

// RecordAFASRequest records one call to the AFAS REST API.
func RecordAFASRequest(endpoint string, duration time.Duration, success bool) {
	afasRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	afasRequestsTotal.WithLabelValues(endpoint, status(success)).Inc()
}

// RecordWebhookPost records a download notification post.
func RecordWebhookPost(success bool) {
	webhookPostsTotal.WithLabelValues(status(success)).Inc()
}

// RecordResolve records a resource name resolution outcome.
func RecordResolve(selector, outcome string) {
	resolveOutcomesTotal.WithLabelValues(selector, outcome).Inc()
}

// RecordDownload records a download outcome and the bytes saved.
func RecordDownload(outcome string, bytes int) {
	downloadsTotal.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		downloadBytes.Add(float64(bytes))
	}
}

// SetFilesListed sets the size of the last published file listing.
func SetFilesListed(n int) {
	filesListed.Set(float64(n))
}

// RecordS3Operation records an S3 operation.
func RecordS3Operation(operation string, duration time.Duration, success bool) {
	s3OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	s3OperationsTotal.WithLabelValues(operation, status(success)).Inc()
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// UnmatchedRoute labels requests no route pattern matched.
const UnmatchedRoute = "unmatched"

// Middleware returns HTTP middleware that records request metrics. Series
// are labelled with route(r), which should return a route pattern so that
// arbitrary request paths cannot grow the label set. A nil route labels
// every request UnmatchedRoute.
func Middleware(next http.Handler, route func(*http.Request) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		label := UnmatchedRoute
		if route != nil {
			if p := route(r); p != "" {
				label = p
			}
		}
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, label, rw.statusCode, time.Since(start))
	})
}

// MuxRoute returns a route func reporting the first pattern any of muxes
// matches for a request.
func MuxRoute(muxes ...*http.ServeMux) func(*http.Request) string {
	return func(r *http.Request) string {
		for _, mux := range muxes {
			if _, pattern := mux.Handler(r); pattern != "" {
				return pattern
			}
		}
		return ""
	}
}
