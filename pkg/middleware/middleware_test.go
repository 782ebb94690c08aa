package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// resetMetrics clears the metrics singleton so tests can install their own
// registry.
func resetMetrics() {
	globalMetricsMu.Lock()
	globalMetrics = nil
	globalMetricsMu.Unlock()
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

// TestRequestLogger verifies that one structured line is emitted per request
// with method, path, and status fields.
func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := RequestLogger(logger)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/abc", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	line := buf.String()
	for _, want := range []string{
		"component=http",
		"method=GET",
		"path=/api/sessions/abc",
		"status=200",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %q: %s", want, line)
		}
	}
}

// TestRequestLoggerStatus verifies that an explicit status code survives the
// recorder wrapper.
func TestRequestLoggerStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/missing", nil))

	if !strings.Contains(buf.String(), "status=404") {
		t.Errorf("expected status=404 in log line: %s", buf.String())
	}
}

// TestPrometheusMiddleware verifies that requests are counted with method,
// route, and status labels.
func TestPrometheusMiddleware(t *testing.T) {
	resetMetrics()
	t.Cleanup(resetMetrics)

	registry := prometheus.NewRegistry()
	handler := Prometheus(WithRegistry(registry))(okHandler())

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	}

	count := counterValue(t, registry, "shiftboard_requests_total", map[string]string{
		"method": "GET",
		"route":  "/healthz",
		"status": "200",
	})
	if count != 3 {
		t.Errorf("requests_total = %v, want 3", count)
	}
}

// TestPrometheusInFlightReturnsToZero verifies the in-flight gauge is
// decremented once the handler returns.
func TestPrometheusInFlightReturnsToZero(t *testing.T) {
	resetMetrics()
	t.Cleanup(resetMetrics)

	registry := prometheus.NewRegistry()
	handler := Prometheus(WithRegistry(registry))(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if v := gaugeValue(t, registry, "shiftboard_requests_in_flight"); v != 0 {
		t.Errorf("requests_in_flight = %v, want 0", v)
	}
}

// TestSessionGaugeHelpers verifies the create/destroy/evict helpers move the
// session gauge and counter.
func TestSessionGaugeHelpers(t *testing.T) {
	resetMetrics()
	t.Cleanup(resetMetrics)

	registry := prometheus.NewRegistry()
	Prometheus(WithRegistry(registry))

	RecordSessionCreate()
	RecordSessionCreate()
	RecordSessionDestroy()
	RecordSessionEvicted()

	if v := gaugeValue(t, registry, "shiftboard_active_sessions"); v != 1 {
		t.Errorf("active_sessions = %v, want 1", v)
	}
	if v := counterValue(t, registry, "shiftboard_sessions_evicted_total", nil); v != 1 {
		t.Errorf("sessions_evicted_total = %v, want 1", v)
	}
}

// TestOpenTelemetryMiddleware verifies the middleware passes the request
// through and does not clobber the handler response. Span export is covered
// by whatever provider main() installs; here the global no-op provider is in
// effect.
func TestOpenTelemetryMiddleware(t *testing.T) {
	handler := OpenTelemetry(WithTracerName("test"))(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rr.Body.String(), "ok")
	}
}

// TestOpenTelemetryFilter verifies filtered requests still reach the handler.
func TestOpenTelemetryFilter(t *testing.T) {
	handler := OpenTelemetry(WithRequestFilter(func(r *http.Request) bool {
		return !strings.HasPrefix(r.URL.Path, "/healthz")
	}))(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

// TestRoutePatternFallback verifies the raw path is used when no router
// context is present.
func TestRoutePatternFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/raw", nil)
	if got := routePattern(req); got != "/api/raw" {
		t.Errorf("routePattern = %q, want /api/raw", got)
	}
}

func gatherMetric(t *testing.T, registry *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mf := gatherMetric(t, registry, name)
	if mf == nil {
		t.Fatalf("metric %s not found", name)
	}
	for _, m := range mf.GetMetric() {
		if matchLabels(m, labels) {
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func gaugeValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()
	mf := gatherMetric(t, registry, name)
	if mf == nil {
		t.Fatalf("metric %s not found", name)
	}
	return mf.GetMetric()[0].GetGauge().GetValue()
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	for key, want := range labels {
		found := false
		for _, pair := range m.GetLabel() {
			if pair.GetName() == key && pair.GetValue() == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
