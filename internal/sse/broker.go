// Package sse implements the live-reload Server-Sent Events broker.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Event types sent to clients.
const (
	TypePageChanged = "page.changed"
	TypeSiteReload  = "site.reload"
)

// DefaultReloadThrottle bounds how often site.reload is sent.
const DefaultReloadThrottle = 500 * time.Millisecond

// reconnectDelay is the retry hint, in milliseconds, sent to new clients.
const reconnectDelay = 1000

// Event is one message on the stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ChangeData is the payload of a page.changed event.
type ChangeData struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

// Option configures a Broker.
type Option func(*Broker)

// WithClock sets the clock used to throttle site.reload events.
func WithClock(c clockwork.Clock) Option {
	return func(b *Broker) { b.clock = c }
}

// Broker fans file changes out to connected browsers.
//
// Every change is forwarded as page.changed. site.reload follows at most once
// per throttle window; changes inside a window schedule one trailing reload
// so the last edit is always picked up.
type Broker struct {
	throttle time.Duration
	clock    clockwork.Clock

	join    chan chan []byte
	leave   chan chan []byte
	events  chan Event
	changes chan ChangeData
	count   chan chan int

	done      chan struct{} // closed by Close
	exited    chan struct{} // closed when the loop returns
	closeOnce sync.Once
}

// NewBroker starts a broker. A non-positive reloadThrottle uses
// DefaultReloadThrottle.
func NewBroker(reloadThrottle time.Duration, opts ...Option) *Broker {
	if reloadThrottle <= 0 {
		reloadThrottle = DefaultReloadThrottle
	}

	b := &Broker{
		throttle: reloadThrottle,
		clock:    clockwork.NewRealClock(),
		join:     make(chan chan []byte),
		leave:    make(chan chan []byte),
		events:   make(chan Event, 256),
		changes:  make(chan ChangeData, 256),
		count:    make(chan chan int),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.loop()
	return b
}

// clients is the set of connected streams. It is owned by the loop goroutine.
type clients map[chan []byte]struct{}

func (c clients) send(e Event) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return
	}
	frame := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, payload))
	for ch := range c {
		select {
		case ch <- frame:
		default:
			// A slow browser misses this frame; the next reload resyncs it.
		}
	}
}

func (c clients) drop(ch chan []byte) {
	if _, ok := c[ch]; ok {
		delete(c, ch)
		close(ch)
	}
}

func (b *Broker) loop() {
	defer close(b.exited)

	conns := clients{}
	reload := Event{Type: TypeSiteReload, Data: struct{}{}}
	var (
		lastReload time.Time
		trailing   clockwork.Timer
		fire       <-chan time.Time
	)

	for {
		select {
		case <-b.done:
			if trailing != nil {
				trailing.Stop()
			}
			for ch := range conns {
				close(ch)
			}
			return

		case ch := <-b.join:
			conns[ch] = struct{}{}

		case ch := <-b.leave:
			conns.drop(ch)

		case e := <-b.events:
			conns.send(e)

		case change := <-b.changes:
			conns.send(Event{Type: TypePageChanged, Data: change})
			if fire != nil {
				continue
			}
			now := b.clock.Now()
			if wait := b.throttle - now.Sub(lastReload); lastReload.IsZero() || wait <= 0 {
				lastReload = now
				conns.send(reload)
			} else {
				trailing = b.clock.NewTimer(wait)
				fire = trailing.Chan()
			}

		case <-fire:
			trailing, fire = nil, nil
			lastReload = b.clock.Now()
			conns.send(reload)

		case resp := <-b.count:
			resp <- len(conns)
		}
	}
}

// deliver hands v to the loop, or reports false once the loop has exited.
func deliver[T any](b *Broker, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-b.exited:
		return false
	}
}

// Close stops the loop and closes every client stream. It is idempotent.
func (b *Broker) Close() {
	b.closeOnce.Do(func() { close(b.done) })
	<-b.exited
}

// Subscribe registers a new stream. After Close the returned channel is
// already closed.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if !deliver(b, b.join, ch) {
		close(ch)
	}
	return ch
}

// Unsubscribe removes a stream and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	deliver(b, b.leave, ch)
}

// ClientCount returns the number of connected streams.
func (b *Broker) ClientCount() int {
	resp := make(chan int, 1)
	if !deliver(b, b.count, resp) {
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.exited:
		return 0
	}
}

// Publish sends an event to every stream as is.
func (b *Broker) Publish(event Event) {
	deliver(b, b.events, event)
}

// PublishChange reports a changed source. Its signature matches
// watch.EventCallback.
func (b *Broker) PublishChange(kind, path string) {
	deliver(b, b.changes, ChangeData{Kind: kind, Path: path})
}

// ServeHTTP streams events to one browser (GET /_live).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", reconnectDelay)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}
