package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestParseHeaders(t *testing.T) {
	got := parseHeaders("Authorization=Basic abc, x-team = tabs ,broken,=empty")
	if len(got) != 2 {
		t.Fatalf("expected 2 headers, got %v", got)
	}
	if got["Authorization"] != "Basic abc" {
		t.Errorf("Authorization = %q", got["Authorization"])
	}
	if got["x-team"] != "tabs" {
		t.Errorf("x-team = %q", got["x-team"])
	}
}

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	tel, err := Init(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer tel.Shutdown(context.Background())

	if tel.Tracer == nil || tel.Metrics == nil {
		t.Fatalf("expected tracer and metrics to be set")
	}
	tel.Metrics.RecordRequest(context.Background(), "addTab", "ok", time.Millisecond)
	tel.Metrics.GroupCreated(context.Background())
	tel.Metrics.GroupDissolved(context.Background())
}

func TestNilMetricsRecordsNothing(t *testing.T) {
	var m *Metrics
	m.RecordRequest(context.Background(), "x", "ok", 0)
	m.RecordEject(context.Background(), "moved")
	m.RecordDragTimeout(context.Background())
}

func TestInitRejectsBadEndpoint(t *testing.T) {
	if _, err := Init(context.Background(), Config{Endpoint: "://bad"}); err == nil {
		t.Fatalf("expected error for malformed endpoint")
	}
}
