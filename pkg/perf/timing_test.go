package perf

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestTrackMeasuresElapsed(t *testing.T) {
	elapsed := Track("sleep", func() { time.Sleep(5 * time.Millisecond) })
	if elapsed < 5*time.Millisecond {
		t.Fatalf("elapsed = %v, want at least 5ms", elapsed)
	}
}

func TestDisabledByDefault(t *testing.T) {
	if IsEnabled() {
		t.Skip("TABGROUPS_PERF set in the test environment")
	}
	if d := Start("noop").Done("ok"); d < 0 {
		t.Fatalf("negative duration %v", d)
	}
}

func TestRecorderWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	rec := newRecorder(&buf, 0)
	timer := &Timer{name: "dispatch.getTabs", start: time.Now(), rec: rec}
	timer.Done("not_found")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not a json line: %q: %v", buf.String(), err)
	}
	if entry["op"] != "dispatch.getTabs" || entry["outcome"] != "not_found" {
		t.Errorf("unexpected entry %v", entry)
	}
	if _, ok := entry["elapsed"]; !ok {
		t.Errorf("missing elapsed in %v", entry)
	}
}

func TestRecorderSkipsFastOperations(t *testing.T) {
	var buf bytes.Buffer
	rec := newRecorder(&buf, time.Hour)
	rec.record("fast", "ok", time.Millisecond)
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below the threshold, got %q", buf.String())
	}
	rec.record("slow", "", 2*time.Hour)
	if !bytes.Contains(buf.Bytes(), []byte(`"op":"slow"`)) {
		t.Fatalf("expected slow entry, got %q", buf.String())
	}
}
