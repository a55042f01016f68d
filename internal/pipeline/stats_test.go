package pipeline

import (
	"math"
	"testing"
	"time"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestExtractStatsSnapshotPercentiles(t *testing.T) {
	stats := NewExtractStats(time.Hour)
	for _, ms := range []int{100, 200, 300, 400, 500} {
		stats.Record(time.Duration(ms)*time.Millisecond, true)
	}

	snap := stats.Snapshot()
	if snap.Count != 5 {
		t.Fatalf("expected count=5, got %d", snap.Count)
	}
	if snap.Failed != 0 {
		t.Errorf("expected no failures, got %d", snap.Failed)
	}
	checks := []struct {
		name      string
		got, want float64
	}{
		{"min", snap.MinMs, 100},
		{"max", snap.MaxMs, 500},
		{"avg", snap.AvgMs, 300},
		{"p50", snap.P50Ms, 300},
		{"p95", snap.P95Ms, 480},
		{"p99", snap.P99Ms, 496},
	}
	for _, c := range checks {
		if !approx(c.got, c.want) {
			t.Errorf("expected %s=%v, got %v", c.name, c.want, c.got)
		}
	}
}

func TestExtractStatsCountsFailures(t *testing.T) {
	stats := NewExtractStats(time.Hour)
	stats.Record(time.Millisecond, true)
	stats.Record(2*time.Millisecond, false)

	snap := stats.Snapshot()
	if snap.Count != 2 || snap.Failed != 1 {
		t.Errorf("expected count=2 failed=1, got count=%d failed=%d", snap.Count, snap.Failed)
	}
}

func TestExtractStatsPrunesExpiredSamples(t *testing.T) {
	stats := NewExtractStats(10 * time.Millisecond)
	stats.Record(100*time.Millisecond, true)
	time.Sleep(25 * time.Millisecond)

	if snap := stats.Snapshot(); snap.Count != 0 {
		t.Fatalf("expected count=0 after prune, got %d", snap.Count)
	}

	stats.Record(200*time.Millisecond, true)
	snap := stats.Snapshot()
	if snap.Count != 1 {
		t.Fatalf("expected count=1 for fresh sample, got %d", snap.Count)
	}
	if !approx(snap.MinMs, 200) || !approx(snap.MaxMs, 200) {
		t.Fatalf("expected min=max=200, got min=%v max=%v", snap.MinMs, snap.MaxMs)
	}
}

func TestExtractStatsRecordClampsNegativeDuration(t *testing.T) {
	stats := NewExtractStats(time.Hour)
	stats.Record(-10*time.Millisecond, true)
	snap := stats.Snapshot()
	if snap.Count != 1 || snap.MinMs != 0 {
		t.Fatalf("expected one clamped sample, got %+v", snap)
	}
}
