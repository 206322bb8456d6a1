package stats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestWindowSnapshotPercentiles(t *testing.T) {
	stats := NewWindow(time.Hour)
	stats.Record(100)
	stats.Record(200)
	stats.Record(300)
	stats.Record(400)
	stats.Record(500)

	snap := stats.Snapshot()
	if snap.Count != 5 {
		t.Fatalf("expected count=5, got %d", snap.Count)
	}
	if snap.MinMs != 100 {
		t.Fatalf("expected min=100, got %d", snap.MinMs)
	}
	if snap.MaxMs != 500 {
		t.Fatalf("expected max=500, got %d", snap.MaxMs)
	}
	if snap.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgMs)
	}
	if snap.P50Ms != 300 {
		t.Fatalf("expected p50=300, got %f", snap.P50Ms)
	}
	if snap.P95Ms != 480 {
		t.Fatalf("expected p95=480, got %f", snap.P95Ms)
	}
	if snap.P99Ms != 496 {
		t.Fatalf("expected p99=496, got %f", snap.P99Ms)
	}
}

func TestWindowPrunesExpiredSamples(t *testing.T) {
	stats := NewWindow(10 * time.Millisecond)
	stats.Record(100)
	time.Sleep(25 * time.Millisecond)

	snap := stats.Snapshot()
	if snap.Count != 0 {
		t.Fatalf("expected count=0 after prune, got %d", snap.Count)
	}

	stats.Record(200)
	snap = stats.Snapshot()
	if snap.Count != 1 {
		t.Fatalf("expected count=1 for fresh sample, got %d", snap.Count)
	}
	if snap.MinMs != 200 || snap.MaxMs != 200 {
		t.Fatalf("expected min=max=200, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
}

func TestWindowRecordClampsNegativeDuration(t *testing.T) {
	stats := NewWindow(time.Hour)
	stats.Record(-10)
	snap := stats.Snapshot()
	if snap.Count != 1 {
		t.Fatalf("expected count=1, got %d", snap.Count)
	}
	if snap.MinMs != 0 || snap.MaxMs != 0 {
		t.Fatalf("expected clamped duration=0, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
}

func TestWindowNilIsSafe(t *testing.T) {
	var w *Window
	w.Record(10)
	w.Since(time.Now())
	if snap := w.Snapshot(); snap.Count != 0 {
		t.Fatalf("expected empty snapshot from nil window, got %+v", snap)
	}
}

func TestWindowSince(t *testing.T) {
	w := NewWindow(time.Hour)
	w.Since(time.Now().Add(-50 * time.Millisecond))
	snap := w.Snapshot()
	if snap.Count != 1 || snap.MinMs < 50 {
		t.Fatalf("expected one sample of at least 50ms, got %+v", snap)
	}
}

func TestWindowCountsOutcomes(t *testing.T) {
	w := NewWindow(time.Hour)
	w.Record(10)
	w.RecordOutcome(20, OutcomeFailed)
	w.RecordOutcome(30, OutcomeFailed)
	w.RecordOutcome(40, "")

	snap := w.Snapshot()
	if snap.Count != 4 || snap.MaxMs != 40 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Outcomes[OutcomeOK] != 2 || snap.Outcomes[OutcomeFailed] != 2 {
		t.Fatalf("unexpected outcome counts %v", snap.Outcomes)
	}

	// Snapshots must not share the outcome map.
	snap.Outcomes[OutcomeOK] = 100
	if w.Snapshot().Outcomes[OutcomeOK] != 2 {
		t.Fatal("snapshot aliases window state")
	}
}

func TestWindowCapsSamples(t *testing.T) {
	w := NewWindow(time.Hour)
	for i := range MaxSamples + 10 {
		w.Record(int64(i))
	}
	snap := w.Snapshot()
	if snap.Count != MaxSamples {
		t.Fatalf("expected count=%d, got %d", MaxSamples, snap.Count)
	}
	if snap.MinMs != 10 {
		t.Fatalf("expected oldest samples dropped, min=%d", snap.MinMs)
	}
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{context.DeadlineExceeded, OutcomeTimeout},
		{fmt.Errorf("send: %w", context.Canceled), OutcomeCanceled},
		{errors.New("boom"), OutcomeFailed},
	}
	for _, tt := range tests {
		if got := OutcomeOf(tt.err); got != tt.want {
			t.Errorf("OutcomeOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
