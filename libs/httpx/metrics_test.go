package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func prometheusRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	return prometheus.NewRegistry()
}

func TestMetricsCounterIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics("gateway", reg)
	m.requests.WithLabelValues("GET", "/a", "200").Inc()
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/a", "200")); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
}

func TestPrefixRoutesPicksLongestPrefix(t *testing.T) {
	route := PrefixRoutes("/", "/api/v1/admin", "/api/v1/admin/appointments", "/api/v1/public")
	cases := map[string]string{
		"/":                                 "/",
		"/api/v1/admin/services":            "/api/v1/admin",
		"/api/v1/admin/appointments/status": "/api/v1/admin/appointments",
		"/api/v1/admin/appointments":        "/api/v1/admin/appointments",
		"/api/v1/public/slots":              "/api/v1/public",
		"/api/v1/publicity":                 "other",
		"/favicon.ico":                      "other",
	}
	for path, want := range cases {
		if got := route(httptest.NewRequest(http.MethodGet, path, nil)); got != want {
			t.Fatalf("%s: route = %q, want %q", path, got, want)
		}
	}
}

func TestKnownRoutesFoldsUnknownPaths(t *testing.T) {
	route := KnownRoutes("/api/v1/public/slots")
	if got := route(httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?date=x", nil)); got != "/api/v1/public/slots" {
		t.Fatalf("route = %q", got)
	}
	if got := route(httptest.NewRequest(http.MethodGet, "/random/123", nil)); got != "other" {
		t.Fatalf("route = %q", got)
	}
}
