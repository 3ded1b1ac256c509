// Package debounce collapses bursts of raw watcher events for one path into a
// single summarised change, emitted after a trailing quiet window.
package debounce

import (
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/docwatch/internal/watcher"
)

// DefaultWindow is the quiet window used when none is configured.
const DefaultWindow = 300 * time.Millisecond

// Change summarises a burst of raw events for one path.
type Change struct {
	// FirstSeen is when the first event of the burst arrived.
	FirstSeen time.Time

	// ObservedAt is when the last event of the burst arrived.
	ObservedAt time.Time

	Path string

	// Count is the number of raw events folded into this change.
	Count int

	// Kind is the most consequential kind seen in the burst.
	Kind watcher.EventKind

	// Terminal is set when the watch itself ended. Kind is then Deleted.
	Terminal bool
}

// Coalescer debounces events for a single path. There is at most one live
// timer per Coalescer.
type Coalescer struct {
	logger  *slog.Logger
	emit    func(Change)
	timer   *time.Timer
	pending *Change
	path    string
	window  time.Duration
	gen     uint64
	mu      sync.Mutex
	stopped bool
}

// New creates a Coalescer that calls emit once per burst. emit runs on the
// timer goroutine, or on the caller's goroutine for Terminate.
func New(path string, window time.Duration, emit func(Change), logger *slog.Logger) *Coalescer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Coalescer{
		logger: logger,
		emit:   emit,
		path:   path,
		window: window,
	}
}

// Window returns the quiet window.
func (c *Coalescer) Window() time.Duration {
	return c.window
}

// Add folds ev into the pending burst and restarts the quiet window.
// It never blocks on emission. A SelfDeleted event terminates the burst
// immediately.
func (c *Coalescer) Add(ev watcher.Event) {
	if ev.Kind == watcher.EventSelfDeleted {
		c.Terminate()
		return
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	if c.pending == nil {
		c.pending = &Change{
			Path:       c.path,
			Kind:       ev.Kind,
			FirstSeen:  at,
			ObservedAt: at,
			Count:      1,
		}
	} else {
		c.pending.Count++
		c.pending.ObservedAt = at
		if ev.Kind.Priority() > c.pending.Kind.Priority() {
			c.pending.Kind = ev.Kind
		}
	}

	c.gen++
	gen := c.gen
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.window, func() { c.fire(gen) })
}

// fire emits the pending burst if no event arrived since gen was scheduled.
func (c *Coalescer) fire(gen uint64) {
	c.mu.Lock()
	if c.stopped || gen != c.gen || c.pending == nil {
		c.mu.Unlock()
		return
	}
	change := *c.pending
	c.pending = nil
	c.timer = nil
	c.mu.Unlock()

	c.logger.Debug("burst settled",
		"path", change.Path,
		"kind", change.Kind.String(),
		"events", change.Count,
	)
	c.emit(change)
}

// Terminate flushes immediately with Kind forced to Deleted and Terminal set,
// whether or not anything is pending. Later events are ignored.
func (c *Coalescer) Terminate() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}

	now := time.Now()
	change := Change{
		Path:       c.path,
		FirstSeen:  now,
		ObservedAt: now,
	}
	if c.pending != nil {
		change = *c.pending
		change.ObservedAt = now
	}
	change.Count++
	change.Kind = watcher.EventDeleted
	change.Terminal = true

	c.cancelLocked()
	c.stopped = true
	c.mu.Unlock()

	c.logger.Debug("watch terminated", "path", c.path)
	c.emit(change)
}

// Stop cancels the live timer and discards any pending burst. No burst is
// emitted once Stop returns, except one whose emit had already begun: Stop
// does not wait for it, because emit may be blocked on the caller.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()
	c.stopped = true
}

// Pending reports whether a burst is waiting for its quiet window.
func (c *Coalescer) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

func (c *Coalescer) cancelLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = nil
}
