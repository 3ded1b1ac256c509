package watcher

import (
	"sync"
	"time"
)

// MemorySource is an in-memory Source for tests and embedders that produce
// their own events. Events are injected with MemorySubscription.Emit.
type MemorySource struct {
	subs     map[string]*MemorySubscription
	failures map[string]error
	mu       sync.Mutex
	live     int
	opened   int
}

// NewMemorySource creates an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		subs:     make(map[string]*MemorySubscription),
		failures: make(map[string]error),
	}
}

// Open implements Source.
func (m *MemorySource) Open(path string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures[path]; err != nil {
		return nil, err
	}

	sub := &MemorySubscription{
		source: m,
		path:   path,
		events: make(chan Event, 64),
		errors: make(chan error, 4),
		done:   make(chan struct{}),
	}
	m.subs[path] = sub
	m.live++
	m.opened++
	return sub, nil
}

// FailOpen makes subsequent Open calls for path fail with err.
// A nil err clears the failure.
func (m *MemorySource) FailOpen(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.failures, path)
		return
	}
	m.failures[path] = err
}

// Subscription returns the most recently opened, still open subscription for path.
func (m *MemorySource) Subscription(path string) (*MemorySubscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[path]
	return sub, ok
}

// Live returns the number of open subscriptions.
func (m *MemorySource) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// Opened returns the number of subscriptions ever opened.
func (m *MemorySource) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

func (m *MemorySource) release(sub *MemorySubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.live--
	if m.subs[sub.path] == sub {
		delete(m.subs, sub.path)
	}
}

// MemorySubscription is a Subscription fed by the test.
type MemorySubscription struct {
	source *MemorySource
	events chan Event
	errors chan error
	done   chan struct{}
	path   string
	mu     sync.Mutex
	once   sync.Once
	closed bool
	inert  bool
}

// Path implements Subscription.
func (s *MemorySubscription) Path() string { return s.path }

// Events implements Subscription.
func (s *MemorySubscription) Events() <-chan Event { return s.events }

// Errors implements Subscription.
func (s *MemorySubscription) Errors() <-chan error { return s.errors }

// Emit delivers an event of the given kind. It reports false once the
// subscription is closed or inert.
func (s *MemorySubscription) Emit(kind EventKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.inert {
		return false
	}
	if kind == EventSelfDeleted {
		s.inert = true
	}

	select {
	case s.events <- Event{Kind: kind, Path: s.path, At: time.Now()}:
		return true
	case <-s.done:
		return false
	}
}

// Fail delivers an observation error.
func (s *MemorySubscription) Fail(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.errors <- err:
		return true
	case <-s.done:
		return false
	}
}

// Closed reports whether Close was called.
func (s *MemorySubscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close implements Subscription.
func (s *MemorySubscription) Close() error {
	s.once.Do(func() {
		close(s.done)

		s.mu.Lock()
		s.closed = true
		close(s.events)
		close(s.errors)
		s.mu.Unlock()

		s.source.release(s)
	})
	return nil
}
