package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/jkaninda/sanduku/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// counterValue gathers the registry and returns the counter value for the
// metric with the given fully qualified name and label values.
func counterValue(t *testing.T, m *MetricsCollector, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gathering registry: %v", err)
	}

	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	metric:
		for _, metric := range fam.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metric
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func gaugeValue(t *testing.T, m *MetricsCollector, name string) float64 {
	t.Helper()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gathering registry: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() == name && fam.GetType() == dto.MetricType_GAUGE {
			return fam.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return 0
}

func TestNewDisabled(t *testing.T) {
	obs, err := New(nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if obs != nil {
		t.Error("New(nil) should return nil facade")
	}

	// The nil facade is safe everywhere.
	obs.Shutdown(context.Background())
	if obs.MetricsOrNil() != nil || obs.TracerOrNil() != nil || obs.HealthOrNil() != nil {
		t.Error("nil facade leaked a component")
	}
}

func TestNewMetricsOnly(t *testing.T) {
	obs, err := New(&config.ObservabilityConfig{
		Metrics: &config.MetricsConfig{Enabled: true},
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if obs.Metrics == nil {
		t.Fatal("metrics not created")
	}
	if obs.Tracer != nil {
		t.Error("tracer created without config")
	}
	if obs.Health == nil {
		t.Error("health checker should always exist on an enabled facade")
	}
}

func TestRecorders(t *testing.T) {
	m := NewMetricsCollector()

	m.RecordToolExecution("code_execution", true, 120*time.Millisecond)
	m.RecordToolExecution("code_execution", false, 10*time.Millisecond)
	m.RecordSandboxLaunch("code", true, 90*time.Millisecond)
	m.RecordSecurityScreen(false)
	m.RecordStorageOperation("set", true)
	m.SetActiveSessions(3)

	if got := counterValue(t, m, "sanduku_tool_executions_total",
		map[string]string{"tool": "code_execution", "status": "success"}); got != 1 {
		t.Errorf("tool success count = %v, want 1", got)
	}
	if got := counterValue(t, m, "sanduku_tool_executions_total",
		map[string]string{"tool": "code_execution", "status": "failure"}); got != 1 {
		t.Errorf("tool failure count = %v, want 1", got)
	}
	if got := counterValue(t, m, "sanduku_sandbox_launches_total",
		map[string]string{"kind": "code", "status": "success"}); got != 1 {
		t.Errorf("sandbox launch count = %v, want 1", got)
	}
	if got := counterValue(t, m, "sanduku_security_screens_total",
		map[string]string{"verdict": "blocked"}); got != 1 {
		t.Errorf("screen blocked count = %v, want 1", got)
	}
	if got := counterValue(t, m, "sanduku_storage_operations_total",
		map[string]string{"operation": "set", "status": "success"}); got != 1 {
		t.Errorf("storage op count = %v, want 1", got)
	}
	if got := gaugeValue(t, m, "sanduku_storage_active_sessions"); got != 3 {
		t.Errorf("active sessions gauge = %v, want 3", got)
	}
}

func TestRecordersNilSafe(t *testing.T) {
	var m *MetricsCollector

	// None of these may panic.
	m.RecordToolExecution("t", true, time.Second)
	m.RecordSandboxLaunch("code", false, time.Second)
	m.RecordSecurityScreen(true)
	m.RecordStorageOperation("get", false)
	m.SetActiveSessions(1)
}

func TestHealthChecker(t *testing.T) {
	h := NewHealthChecker(testLogger())

	// Liveness is unconditional.
	if got := h.CheckHealth(); got.Status != "ok" {
		t.Errorf("CheckHealth = %q", got.Status)
	}

	// No checks registered: ready.
	if got := h.CheckReady(context.Background()); got.Status != "ok" {
		t.Errorf("CheckReady (no checks) = %q", got.Status)
	}

	h.AddCheck("always-ok", func(context.Context) error { return nil })
	h.AddCheck("broken", func(context.Context) error { return fmt.Errorf("down") })

	status := h.CheckReady(context.Background())
	if status.Status != "degraded" {
		t.Errorf("CheckReady = %q, want degraded", status.Status)
	}
	if status.Checks["always-ok"].Status != "ok" {
		t.Errorf("always-ok = %+v", status.Checks["always-ok"])
	}
	if status.Checks["broken"].Status != "fail" || status.Checks["broken"].Message != "down" {
		t.Errorf("broken = %+v", status.Checks["broken"])
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetricsCollector()

	handler := HTTPMetricsMiddleware(m, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := counterValue(t, m, "sanduku_http_requests_total",
		map[string]string{"method": "GET", "path": "/test", "status_code": "200"}); got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
}

func TestHTTPMetricsMiddlewareNilMetrics(t *testing.T) {
	// Must not panic without a collector.
	handler := HTTPMetricsMiddleware(nil, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestTracerNilSafe(t *testing.T) {
	var ts *TracerSetup
	if ts.Tracer() == nil {
		t.Error("nil TracerSetup must return a noop tracer, not nil")
	}
	if err := ts.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on nil = %v", err)
	}
}
