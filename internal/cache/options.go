package cache

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultInterval is the minimum time between two filesystem checks of the
// same source.
const DefaultInterval = 2 * time.Second

// Option configures a Cache or a Map.
type Option func(*options)

type options struct {
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	observer Observer
}

func newOptions(opts []Option) options {
	o := options{
		interval: DefaultInterval,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// WithInterval sets the debounce interval. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithClock sets the clock used for the debounce gate.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger used for reload messages.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver registers an observer notified of every Load outcome.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}
