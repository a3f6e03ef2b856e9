// Package cache keeps a value derived from a file and re-derives it only when
// the file's content actually changes.
//
// A Cache answers every Load with a usable value: the freshly computed one,
// the last good one, or the seed it was constructed with. Refresh failures are
// returned next to that value for the caller to log; they never replace it.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/leaf/internal/digest"
)

var (
	// ErrRead marks a Load whose source could not be read.
	ErrRead = errors.New("cache: cannot read source")
	// ErrCompute marks a Load whose source content was rejected by the
	// recomputation function.
	ErrCompute = errors.New("cache: cannot process source")
)

// Func turns raw source text into the cached value.
type Func[T any] func(ctx context.Context, src string) (T, error)

// Cache holds the current value for a single source file.
type Cache[T any] struct {
	fsys fs.FS
	path string
	fn   Func[T]
	opts options

	flight singleflight.Group

	mu        sync.Mutex
	lastCheck time.Time      // zero until the first check
	digest    *digest.Digest // nil until the first successful read
	value     T
	computed  bool   // value came from fn rather than the seed
	gen       uint64 // bumped by Expire
	installed uint64 // gen of the refresh that last installed digest and value
}

// New returns a Cache for path in fsys that starts out holding seed.
// Nothing is read until the first Load.
func New[T any](fsys fs.FS, path string, seed T, fn Func[T], opts ...Option) *Cache[T] {
	return newCache(fsys, path, seed, fn, newOptions(opts))
}

func newCache[T any](fsys fs.FS, path string, seed T, fn Func[T], o options) *Cache[T] {
	return &Cache[T]{
		fsys:  fsys,
		path:  path,
		fn:    fn,
		opts:  o,
		value: seed,
	}
}

// Path returns the source path the cache was built for.
func (c *Cache[T]) Path() string {
	return c.path
}

// Load returns the current value, refreshing it from the source first when
// the debounce interval has elapsed since the last check.
//
// The returned value is always usable. A non-nil error wraps ErrRead or
// ErrCompute and means the value is stale (or still the seed). If ctx ends
// while a refresh is in flight, Load returns the current value with ctx.Err();
// the refresh itself runs to completion.
func (c *Cache[T]) Load(ctx context.Context) (T, error) {
	v, gen, ok := c.fresh()
	if ok {
		c.observe(EventHit, 0)
		return v, nil
	}

	// One flight per generation: a Load after Expire never joins a refresh
	// that started before it.
	ch := c.flight.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx), gen)
	})

	select {
	case r := <-ch:
		v, _ := r.Val.(T)
		return v, r.Err
	case <-ctx.Done():
		return c.Peek(), ctx.Err()
	}
}

// Peek returns the current value without checking the source.
func (c *Cache[T]) Peek() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Loaded reports whether the source has been read successfully at least once.
// The value may still be the seed if every recomputation so far failed.
func (c *Cache[T]) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.digest != nil
}

// Computed reports whether the value was produced by the recomputation
// function at least once, as opposed to still being the seed.
func (c *Cache[T]) Computed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.computed
}

// Expire forgets the time of the last check so the next Load checks the
// source immediately, even if a refresh is in flight. The digest and value
// are kept.
func (c *Cache[T]) Expire() {
	c.mu.Lock()
	c.lastCheck = time.Time{}
	c.gen++
	c.mu.Unlock()
}

// fresh returns the cached value, the current generation and whether the
// last check is within the interval.
func (c *Cache[T]) fresh() (T, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.gen, c.withinIntervalLocked()
}

func (c *Cache[T]) withinIntervalLocked() bool {
	if c.lastCheck.IsZero() {
		return false
	}
	return c.opts.clock.Now().Sub(c.lastCheck) < c.opts.interval
}

// settleLocked records the outcome of a check started in generation gen.
// A check that raced with Expire does not mark the entry fresh, and one that
// a newer check already overtook installs nothing.
func (c *Cache[T]) settleLocked(gen uint64, d *digest.Digest, value T, computed bool) {
	if gen == c.gen {
		c.lastCheck = c.opts.clock.Now()
	}
	if d == nil || gen < c.installed {
		return
	}
	c.installed = gen
	c.digest = d
	if computed {
		c.value = value
		c.computed = true
	}
}

func (c *Cache[T]) refresh(ctx context.Context, gen uint64) (T, error) {
	c.mu.Lock()
	// A flight that finished just before this one may already have checked.
	if gen == c.gen && c.withinIntervalLocked() {
		v := c.value
		c.mu.Unlock()
		c.observe(EventHit, 0)
		return v, nil
	}
	var prev *digest.Digest
	if c.digest != nil {
		d := *c.digest
		prev = &d
	}
	value := c.value
	c.mu.Unlock()

	var zero T
	start := c.opts.clock.Now()
	res, err := digest.Compute(c.fsys, c.path, prev)
	if err != nil {
		c.mu.Lock()
		c.settleLocked(gen, nil, zero, false)
		c.mu.Unlock()
		c.observe(EventReadFailed, c.since(start))
		return value, fmt.Errorf("%w %s: %w", ErrRead, c.path, err)
	}

	if !res.Changed {
		c.mu.Lock()
		c.settleLocked(gen, &res.Digest, zero, false)
		c.mu.Unlock()
		c.observe(EventUnchanged, c.since(start))
		return value, nil
	}

	c.opts.logger.Debug("cache: reloading", slog.String("path", c.path))

	next, err := c.compute(ctx, res.Content)
	if err != nil {
		c.mu.Lock()
		c.settleLocked(gen, &res.Digest, zero, false)
		c.mu.Unlock()
		c.observe(EventComputeFailed, c.since(start))
		return value, fmt.Errorf("%w %s: %w", ErrCompute, c.path, err)
	}

	c.mu.Lock()
	c.settleLocked(gen, &res.Digest, next, true)
	c.mu.Unlock()
	c.observe(EventRefreshed, c.since(start))
	c.opts.logger.Debug("cache: reloaded",
		slog.String("path", c.path),
		slog.String("digest", res.Digest.String()))
	return next, nil
}

// compute runs fn and turns a panic into an error.
func (c *Cache[T]) compute(ctx context.Context, src string) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.opts.logger.Error("cache: recompute panicked",
				slog.String("path", c.path),
				slog.String("panic", fmt.Sprint(r)))
			err = fmt.Errorf("recompute panicked: %v", r)
		}
	}()
	return c.fn(ctx, src)
}

func (c *Cache[T]) since(t time.Time) time.Duration {
	return c.opts.clock.Now().Sub(t)
}

func (c *Cache[T]) observe(kind EventKind, d time.Duration) {
	if c.opts.observer != nil {
		c.opts.observer.Observe(Event{Path: c.path, Kind: kind, Duration: d})
	}
}
