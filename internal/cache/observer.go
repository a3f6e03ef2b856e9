package cache

import "time"

// EventKind classifies the outcome of a Load call.
type EventKind int

const (
	// EventHit means the debounce gate returned the cached value without checking.
	EventHit EventKind = iota
	// EventUnchanged means the source was checked and its content had not changed.
	EventUnchanged
	// EventRefreshed means new content was recomputed and installed.
	EventRefreshed
	// EventReadFailed means the source could not be read.
	EventReadFailed
	// EventComputeFailed means the recomputation function rejected new content.
	EventComputeFailed
)

func (k EventKind) String() string {
	switch k {
	case EventHit:
		return "hit"
	case EventUnchanged:
		return "unchanged"
	case EventRefreshed:
		return "refreshed"
	case EventReadFailed:
		return "read_failed"
	case EventComputeFailed:
		return "compute_failed"
	default:
		return "unknown"
	}
}

// Event describes one Load outcome. Duration covers the check and, when it
// ran, the recomputation; it is zero for hits.
type Event struct {
	Path     string
	Kind     EventKind
	Duration time.Duration
}

// Observer receives Load outcomes. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }
