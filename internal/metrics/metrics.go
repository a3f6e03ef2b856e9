// Package metrics records cache refresh outcomes and their latency
// quantiles using DDSketch.
package metrics

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/starford/leaf/internal/cache"
)

var _ cache.Observer = (*Tracker)(nil)

// Tracker counts cache events per kind and tracks check/recompute latency
// per kind. It is safe for concurrent use.
type Tracker struct {
	mu               sync.Mutex
	counts           map[cache.EventKind]int64
	sketches         map[cache.EventKind]*ddsketch.DDSketch
	relativeAccuracy float64
}

// DefaultRelativeAccuracy is used when NewTracker gets an accuracy outside (0, 1).
const DefaultRelativeAccuracy = 0.01

// NewTracker creates a Tracker whose quantiles are accurate to within
// relativeAccuracy (e.g. 0.01 for 1%).
func NewTracker(relativeAccuracy float64) *Tracker {
	if !(relativeAccuracy > 0 && relativeAccuracy < 1) {
		relativeAccuracy = DefaultRelativeAccuracy
	}
	return &Tracker{
		counts:           make(map[cache.EventKind]int64),
		sketches:         make(map[cache.EventKind]*ddsketch.DDSketch),
		relativeAccuracy: relativeAccuracy,
	}
}

// Observe implements cache.Observer. Hits are only counted; every other
// outcome also records its duration.
func (t *Tracker) Observe(e cache.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts[e.Kind]++
	if e.Kind == cache.EventHit {
		return
	}

	sketch, ok := t.sketches[e.Kind]
	if !ok {
		var err error
		sketch, err = ddsketch.LogUnboundedDenseDDSketch(t.relativeAccuracy)
		if err != nil {
			return
		}
		t.sketches[e.Kind] = sketch
	}
	// Milliseconds; DDSketch needs a positive value to place in a bucket.
	ms := float64(e.Duration.Microseconds()) / 1000.0
	if ms <= 0 {
		ms = 0.001
	}
	_ = sketch.Add(ms)
}

// Count returns how many events of kind were observed.
func (t *Tracker) Count(kind cache.EventKind) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[kind]
}

// Stats summarises the latency of one event kind, in milliseconds.
type Stats struct {
	Kind  string  `json:"kind"`
	Count int64   `json:"count"`
	Min   float64 `json:"min_ms"`
	P50   float64 `json:"p50_ms"`
	P90   float64 `json:"p90_ms"`
	P99   float64 `json:"p99_ms"`
	Max   float64 `json:"max_ms"`
}

func (s Stats) String() string {
	if s.Count == 0 {
		return fmt.Sprintf("%s: no data", s.Kind)
	}
	return fmt.Sprintf("%s (n=%d): min=%.2fms p50=%.2fms p90=%.2fms p99=%.2fms max=%.2fms",
		s.Kind, s.Count, s.Min, s.P50, s.P90, s.P99, s.Max)
}

// Snapshot is a point-in-time copy of the tracker state.
type Snapshot struct {
	Counts  map[string]int64 `json:"counts"`
	Latency []Stats          `json:"latency"`
	TakenAt time.Time        `json:"taken_at"`
}

// HitRate returns hits as a fraction of all loads, or 0 with no loads.
func (s Snapshot) HitRate() float64 {
	var total int64
	for _, n := range s.Counts {
		total += n
	}
	if total == 0 {
		return 0
	}
	return float64(s.Counts[cache.EventHit.String()]) / float64(total)
}

// Snapshot returns counts for every kind seen and latency stats sorted by kind.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		Counts:  make(map[string]int64, len(t.counts)),
		Latency: make([]Stats, 0, len(t.sketches)),
		TakenAt: time.Now(),
	}
	for kind, n := range t.counts {
		snap.Counts[kind.String()] = n
	}
	for kind, sketch := range t.sketches {
		snap.Latency = append(snap.Latency, statsOf(kind, sketch))
	}
	slices.SortFunc(snap.Latency, func(a, b Stats) int {
		switch {
		case a.Kind < b.Kind:
			return -1
		case a.Kind > b.Kind:
			return 1
		}
		return 0
	})
	return snap
}

func statsOf(kind cache.EventKind, sketch *ddsketch.DDSketch) Stats {
	s := Stats{Kind: kind.String(), Count: int64(sketch.GetCount())}
	if s.Count == 0 {
		return s
	}
	s.Min, _ = sketch.GetMinValue()
	s.P50, _ = sketch.GetValueAtQuantile(0.50)
	s.P90, _ = sketch.GetValueAtQuantile(0.90)
	s.P99, _ = sketch.GetValueAtQuantile(0.99)
	s.Max, _ = sketch.GetMaxValue()
	return s
}
