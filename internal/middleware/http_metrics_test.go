package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/api/events", "/api/events"},
		{"/api/events/abc-123", "/api/events/{id}"},
		{"/api/events/abc-123/rsvp", "/api/events/{id}/rsvp"},
		{"/api/events/abc-123/attendance", "/api/events/{id}/attendance"},
		{"/api/users", "/api/users"},
		{"/api/set-leader", "/api/set-leader"},
		{"/api/session/login", "/api/session/login"},
		{"/api/session/refresh", "/api/session/refresh"},
		{"/api/profiles/uid-1", "/api/profiles/{uid}"},
		{"/api/profiles/uid-1/avatar", "/api/profiles/{uid}/avatar"},
		{"/api/calendar/ws", "/api/calendar/ws"},
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/unknown/route", "/unknown/route"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestHTTPMetricsRecordsRequests(t *testing.T) {
	metrics := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			t.Fatal(err)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/events/some-id", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	expected := `
		# HELP http_requests_total Total number of HTTP requests
		# TYPE http_requests_total counter
		http_requests_total{method="GET",path="/api/events/{id}",status="200"} 1
	`
	if err := testutil.CollectAndCompare(metrics.httpRequestsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestHTTPMetricsSkipsHealthEndpoints(t *testing.T) {
	metrics := NewMetrics()

	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/ready"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if count := testutil.CollectAndCount(metrics.httpRequestsTotal); count != 0 {
		t.Errorf("health endpoints recorded %d series, want 0", count)
	}
}
