package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce sync.Once

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crewdock_http_requests_in_flight",
		Help: "Number of HTTP requests currently being served.",
	})
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crewdock_http_requests_total",
		Help: "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})
	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crewdock_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	authOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crewdock_auth_operations_total",
		Help: "Authentication operations by operation and result.",
	}, []string{"op", "result"})
	sweepRemoved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crewdock_sweep_removed_total",
		Help: "Rows removed by the expiry sweeper, by kind.",
	}, []string{"kind"})
)

// InitMetrics registers the collectors exactly once.
func InitMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequests, httpDuration,
			authOps, sweepRemoved,
		)
	})
}

// MetricsHandler serves the prometheus exposition endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// AuthOp counts one authentication operation outcome, e.g.
// ("redeem", "ok") or ("redeem", "token_expired").
func AuthOp(op, result string) {
	authOps.WithLabelValues(op, result).Inc()
}

// SweepRemoved adds the rows a sweep pass deleted, by kind
// ("magic_links" or "sessions").
func SweepRemoved(kind string, n int64) {
	if n > 0 {
		sweepRemoved.WithLabelValues(kind).Add(float64(n))
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps next with in-flight, count and latency metrics under
// the given route label.
func Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		elapsed := time.Since(start).Seconds()

		httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Inc()
		httpDuration.WithLabelValues(route).Observe(elapsed)
	})
}
