// Package watcher adapts platform file notifications into a per-path event
// stream. Each subscription owns exactly one OS watch resource, released by
// Close on every exit path.
package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/listenupapp/docwatch/internal/errors"
)

// Source opens subscriptions for single paths.
type Source interface {
	Open(path string) (Subscription, error)
}

// Subscription is a lazy, non-restartable stream of events for one path.
// Delivery is best-effort: events may be coalesced, dropped, or reordered by
// the platform. After an EventSelfDeleted the subscription is inert.
type Subscription interface {
	// Path returns the watched path.
	Path() string

	// Events returns the channel of raw events. Closed by Close.
	Events() <-chan Event

	// Errors returns the channel of observation errors. Closed by Close.
	Errors() <-chan error

	// Close releases the watch resource. Safe to call more than once.
	Close() error
}

// Watcher is the platform Source.
// The watcher automatically selects the best backend for the current platform:
// - Linux: a dedicated inotify instance on the parent directory.
// - Others: a dedicated fsnotify watcher on the parent directory.
type Watcher struct {
	logger *slog.Logger
	opts   Options
	live   atomic.Int64
}

// New creates a new file watcher source.
func New(logger *slog.Logger, opts Options) (*Watcher, error) {
	opts.setDefaults()

	if _, err := ParseBackend(string(opts.Backend)); err != nil {
		return nil, err
	}
	if opts.Backend == BackendInotify && runtime.GOOS != "linux" {
		return nil, fmt.Errorf("inotify backend not available on %s", runtime.GOOS)
	}

	logger.Info("file watcher ready", "backend", opts.resolvedBackend(), "platform", runtime.GOOS)

	return &Watcher{
		logger: logger,
		opts:   opts,
	}, nil
}

// resolvedBackend returns the concrete backend for BackendAuto.
func (o Options) resolvedBackend() BackendKind {
	if o.Backend != BackendAuto {
		return o.Backend
	}
	if runtime.GOOS == "linux" {
		return BackendInotify
	}
	return BackendFSNotify
}

// Open starts watching path. The file itself may be absent, but its
// directory must exist.
func (w *Watcher) Open(path string) (Subscription, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.WatchTargetUnavailable(path, err)
	}
	if !info.IsDir() {
		return nil, errors.WatchTargetUnavailable(path, fmt.Errorf("%s is not a directory", dir))
	}

	var backend Backend
	switch w.opts.resolvedBackend() {
	case BackendInotify:
		backend, err = newInotifyBackend(w.logger, path, w.opts)
	default:
		backend, err = newFSNotifyBackend(w.logger, path, w.opts)
	}
	if err != nil {
		return nil, errors.WatchTargetUnavailable(path, err)
	}

	w.live.Add(1)
	w.logger.Debug("subscription opened", "path", path, "live", w.live.Load())

	return &subscription{
		path:    path,
		backend: backend,
		release: func() { w.live.Add(-1) },
	}, nil
}

// Live returns the number of open subscriptions.
func (w *Watcher) Live() int {
	return int(w.live.Load())
}

// subscription binds a backend to its path.
type subscription struct {
	backend  Backend
	release  func()
	closeErr error
	path     string
	once     sync.Once
}

func (s *subscription) Path() string { return s.path }

func (s *subscription) Events() <-chan Event { return s.backend.Events() }

func (s *subscription) Errors() <-chan error { return s.backend.Errors() }

// Close stops the backend exactly once.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.closeErr = s.backend.Stop()
		s.release()
	})
	return s.closeErr
}
