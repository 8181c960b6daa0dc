package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics: status=%d", rec.Code)
	}
	return rec.Body.String()
}

func TestSetupServesRuntimeMetrics(t *testing.T) {
	ctx := context.Background()
	exp, err := Setup(ctx, "test-service", "v0.0.1")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer func() { _ = exp.Shutdown(ctx) }()
	body := scrape(t, exp.Handler)
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("runtime collector missing:\n%.400s", body)
	}
}

func TestSetupDefaultServiceName(t *testing.T) {
	exp, err := Setup(context.Background(), "", "")
	if err != nil || exp.Handler == nil {
		t.Fatalf("Setup: %v", err)
	}
	if Meter() == nil {
		t.Fatal("Meter() returned nil")
	}
}

func TestShutdownNil(t *testing.T) {
	var e *Exporter
	if err := e.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}
