// Package selfwrite tells the application's own saves apart from external
// writes. A save registers a pending self-write before it touches the disk;
// the first settled change for that path afterwards is attributed to it.
package selfwrite

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/listenupapp/docwatch/internal/debounce"
	"github.com/listenupapp/docwatch/internal/fingerprint"
)

// DefaultTimeout bounds how long a pending self-write can suppress changes.
const DefaultTimeout = 2 * time.Second

// PendingWrite is an in-flight or just-finished save for one path.
type PendingWrite struct {
	StartedAt time.Time

	// EndedAt is zero while the write is still in progress.
	EndedAt time.Time

	Path string

	// Expected is the fingerprint of the bytes being written.
	Expected fingerprint.Fingerprint
}

// Ended reports whether EndSelfWrite was called.
func (p PendingWrite) Ended() bool {
	return !p.EndedAt.IsZero()
}

// anchor is the instant the suppression timeout is measured from.
func (p PendingWrite) anchor() time.Time {
	if p.EndedAt.After(p.StartedAt) {
		return p.EndedAt
	}
	return p.StartedAt
}

// Suppressor tracks pending self-writes for all paths. It is safe for
// concurrent use.
type Suppressor struct {
	logger  *slog.Logger
	now     func() time.Time
	pending map[string]PendingWrite
	timeout time.Duration
	mu      sync.Mutex
}

// Option configures a Suppressor.
type Option func(*Suppressor)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Suppressor) {
		s.now = now
	}
}

// New creates a Suppressor. A non-positive timeout selects DefaultTimeout.
func New(timeout time.Duration, logger *slog.Logger, opts ...Option) *Suppressor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	s := &Suppressor{
		logger:  logger,
		now:     time.Now,
		pending: make(map[string]PendingWrite),
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timeout returns the suppression timeout.
func (s *Suppressor) Timeout() time.Duration {
	return s.timeout
}

// BeginSelfWrite records that a save of path is about to start. A second
// begin for the same path replaces the first.
func (s *Suppressor) BeginSelfWrite(path string, expected fingerprint.Fingerprint) {
	path = filepath.Clean(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[path] = PendingWrite{
		Path:      path,
		StartedAt: s.now(),
		Expected:  expected,
	}
}

// EndSelfWrite records that the save of path finished, successfully or not.
// It is a no-op when nothing is pending.
func (s *Suppressor) EndSelfWrite(path string) {
	path = filepath.Clean(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[path]
	if !ok {
		return
	}
	p.EndedAt = s.now()
	s.pending[path] = p
}

// Track begins a self-write and returns the matching end, for use with defer.
func (s *Suppressor) Track(path string, expected fingerprint.Fingerprint) (end func()) {
	s.BeginSelfWrite(path, expected)
	return func() { s.EndSelfWrite(path) }
}

// Filter decides whether change was caused by a pending self-write. It
// returns the matched write and true when the change must be dropped.
//
// A change that began before the write started is external and leaves the
// entry in place. Otherwise the entry is consumed whether or not it matches,
// so one save suppresses at most one settled change.
func (s *Suppressor) Filter(change debounce.Change) (PendingWrite, bool) {
	path := filepath.Clean(change.Path)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[path]
	if !ok {
		return PendingWrite{}, false
	}

	age := s.now().Sub(p.anchor())
	if age >= s.timeout {
		delete(s.pending, path)
		s.logger.Debug("self-write expired", "path", path, "age", age)
		return PendingWrite{}, false
	}

	if !change.FirstSeen.IsZero() && change.FirstSeen.Before(p.StartedAt) {
		return PendingWrite{}, false
	}

	delete(s.pending, path)
	if change.Terminal {
		// Losing the watch is never the save's doing.
		return PendingWrite{}, false
	}
	s.logger.Debug("suppressed self-write", "path", path, "kind", change.Kind.String())
	return p, true
}

// Pending returns the pending write for path, if any.
func (s *Suppressor) Pending(path string) (PendingWrite, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[filepath.Clean(path)]
	return p, ok
}

// Discard drops the pending write for path and reports whether one existed.
func (s *Suppressor) Discard(path string) bool {
	path = filepath.Clean(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.pending[path]
	delete(s.pending, path)
	return ok
}

// DiscardEnded drops the pending write for path if its save has finished,
// and reports whether one was dropped. A save still running is kept.
func (s *Suppressor) DiscardEnded(path string) bool {
	path = filepath.Clean(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[path]
	if !ok || !p.Ended() {
		return false
	}
	delete(s.pending, path)
	return true
}

// Len returns the number of pending writes.
func (s *Suppressor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
