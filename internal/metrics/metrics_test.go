package metrics

import (
	"testing"
	"time"

	"github.com/starford/leaf/internal/cache"
)

func TestTracker_CountsAndLatency(t *testing.T) {
	tracker := NewTracker(0.01)

	for _, d := range []time.Duration{1, 5, 10, 50, 100} {
		tracker.Observe(cache.Event{Path: "page.md", Kind: cache.EventRefreshed, Duration: d * time.Millisecond})
	}
	tracker.Observe(cache.Event{Path: "page.md", Kind: cache.EventHit})
	tracker.Observe(cache.Event{Path: "page.md", Kind: cache.EventHit})
	tracker.Observe(cache.Event{Path: "gone.md", Kind: cache.EventReadFailed, Duration: 0})

	if n := tracker.Count(cache.EventRefreshed); n != 5 {
		t.Errorf("refreshed = %d, want 5", n)
	}
	if n := tracker.Count(cache.EventHit); n != 2 {
		t.Errorf("hits = %d, want 2", n)
	}

	snap := tracker.Snapshot()
	if len(snap.Latency) != 2 {
		t.Fatalf("latency kinds = %d, want 2 (hits are not timed)", len(snap.Latency))
	}
	if snap.Latency[0].Kind != "read_failed" || snap.Latency[1].Kind != "refreshed" {
		t.Errorf("latency order = %v", snap.Latency)
	}

	refreshed := snap.Latency[1]
	if refreshed.Count != 5 {
		t.Errorf("count = %d, want 5", refreshed.Count)
	}
	if refreshed.Min < 0.9 || refreshed.Min > 1.1 {
		t.Errorf("min = %.2fms, want ~1ms", refreshed.Min)
	}
	if refreshed.Max < 99 || refreshed.Max > 101 {
		t.Errorf("max = %.2fms, want ~100ms", refreshed.Max)
	}
	if refreshed.P50 < 5 || refreshed.P50 > 15 {
		t.Errorf("p50 = %.2fms, want ~10ms", refreshed.P50)
	}

	if rate := snap.HitRate(); rate < 0.24 || rate > 0.26 {
		t.Errorf("hit rate = %.2f, want 0.25", rate)
	}
}

func TestSnapshot_Empty(t *testing.T) {
	snap := NewTracker(0.01).Snapshot()
	if len(snap.Counts) != 0 || len(snap.Latency) != 0 {
		t.Errorf("snapshot = %+v, want empty", snap)
	}
	if snap.HitRate() != 0 {
		t.Error("hit rate should be 0 with no loads")
	}
}

func TestNewTracker_InvalidAccuracyFallsBack(t *testing.T) {
	for _, acc := range []float64{0, -1, 1, 2} {
		tracker := NewTracker(acc)
		if tracker.relativeAccuracy != DefaultRelativeAccuracy {
			t.Errorf("NewTracker(%v) accuracy = %v, want default", acc, tracker.relativeAccuracy)
		}
		tracker.Observe(cache.Event{Path: "page.md", Kind: cache.EventRefreshed, Duration: time.Millisecond})
		if n := tracker.Count(cache.EventRefreshed); n != 1 {
			t.Errorf("NewTracker(%v): count = %d, want 1", acc, n)
		}
		if len(tracker.Snapshot().Latency) != 1 {
			t.Errorf("NewTracker(%v): latency not recorded", acc)
		}
	}
}
