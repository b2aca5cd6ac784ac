// metrics.go - Prometheus HTTP метрики админки.
// Регистрирует метрики: ca_http_requests_total, ca_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal - общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ca_http_requests_total",
			Help: "Общее количество HTTP-запросов к админке",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration - гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ca_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к админке в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// unmatchedPath - метка для запросов, не попавших ни в один маршрут.
const unmatchedPath = "unmatched"

// RequestRecorder принимает замеры запросов (реализуется perf.Monitor).
type RequestRecorder interface {
	RecordRequest(method, path string, status int, d time.Duration)
}

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Путь в метках - шаблон маршрута chi (/api/contests/{id}), что
// ограничивает кардинальность. recorder может быть nil.
func MetricsMiddleware(recorder RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			path := routePattern(r)

			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration.Seconds())
			if recorder != nil && !isProbe(r.URL.Path) {
				recorder.RecordRequest(r.Method, path, wrapped.statusCode, duration)
			}
		})
	}
}

// routePattern возвращает шаблон маршрута после обработки запроса.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedPath
	}
	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	return unmatchedPath
}

// metricsResponseWriter - обёртка для перехвата статус-кода.
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

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
