package httpx

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics holds the request collectors for one service.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewHTTPMetrics registers collectors on reg. A nil reg means the default
// registry.
func NewHTTPMetrics(service string, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": service}
	return &HTTPMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "barberflow_http_requests_total",
			Help:        "HTTP requests by method, route and status code.",
			ConstLabels: labels,
		}, []string{"method", "route", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "barberflow_http_request_duration_seconds",
			Help:        "HTTP request latency.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "route"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "barberflow_http_in_flight_requests",
			Help:        "Requests currently being served.",
			ConstLabels: labels,
		}),
	}
}

// Middleware labels requests by route. The route func keeps cardinality
// bounded; nil uses the raw path.
func (m *HTTPMetrics) Middleware(route func(*http.Request) string) Middleware {
	if route == nil {
		route = func(r *http.Request) string { return r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.inFlight.Inc()
			defer m.inFlight.Dec()

			sw := &statusCapturingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			name := route(r)
			m.requests.WithLabelValues(r.Method, name, strconv.Itoa(status)).Inc()
			m.duration.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
		})
	}
}

// KnownRoutes labels requests by exact path and folds everything else into
// "other".
func KnownRoutes(paths ...string) func(*http.Request) string {
	known := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		known[p] = struct{}{}
	}
	return func(r *http.Request) string {
		if _, ok := known[r.URL.Path]; ok {
			return r.URL.Path
		}
		return "other"
	}
}

// PrefixRoutes labels a request by the longest prefix owning its path, so
// proxied subtrees share one label. "/" only matches itself.
func PrefixRoutes(prefixes ...string) func(*http.Request) string {
	sorted := append([]string(nil), prefixes...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	return func(r *http.Request) string {
		path := r.URL.Path
		for _, p := range sorted {
			if path == p {
				return p
			}
			if p != "/" && strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
				return p
			}
		}
		return "other"
	}
}
