package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInitMetrics_RecordStateChange(t *testing.T) {
	ctx := context.Background()
	exp, err := Setup(ctx, "metrics-test", "")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := InitMetrics(ctx); err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	RecordStateChange(ctx, "activity", "command")
	RecordStateChange(ctx, "review", "")
	RecordReviewEvent(ctx, "created")
	RecordStreamMessage(ctx, "activity")
	RecordStreamEviction(ctx)

	rec := httptest.NewRecorder()
	exp.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestStreamConnectionGauge(t *testing.T) {
	AddStreamConnection("ws")
	AddStreamConnection("ws")
	RemoveStreamConnection("ws")
	if got := StreamConnections("ws"); got != 1 {
		t.Fatalf("ws connections = %d, want 1", got)
	}
	RemoveStreamConnection("ws")
	RemoveStreamConnection("ws") // should not go negative
	if got := StreamConnections("ws"); got != 0 {
		t.Fatalf("ws connections = %d, want 0", got)
	}
}

func TestInitMetricsWithFleetCount(t *testing.T) {
	ctx := context.Background()
	_, _ = Setup(ctx, "fleetcount-test", "")
	err := InitMetricsWithFleetCount(ctx, func(context.Context) (int64, map[string]int64, error) {
		return 2, map[string]int64{"active": 1, "idle": 3}, nil
	})
	if err != nil {
		t.Fatalf("InitMetricsWithFleetCount: %v", err)
	}
}

func TestInitMetricsWithFleetCount_nilFunc(t *testing.T) {
	ctx := context.Background()
	_, _ = Setup(ctx, "fleetcount-nil-test", "")
	if err := InitMetricsWithFleetCount(ctx, nil); err != nil {
		t.Fatalf("InitMetricsWithFleetCount(nil): %v", err)
	}
}
