package watcher

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/listenupapp/docwatch/internal/errors"
)

// fsnotifyBackend implements Backend using a dedicated fsnotify watcher on
// the parent directory of the watched file.
type fsnotifyBackend struct {
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	events   chan Event
	errors   chan error
	done     chan struct{}
	path     string
	dir      string
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// newFSNotifyBackend creates and starts an fsnotify backend for path.
func newFSNotifyBackend(logger *slog.Logger, path string, opts Options) (Backend, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	b := &fsnotifyBackend{
		logger:  logger,
		watcher: watcher,
		path:    path,
		dir:     dir,
		events:  make(chan Event, opts.BufferSize),
		errors:  make(chan error, 4),
		done:    make(chan struct{}),
	}

	b.logger.Debug("added watch", "dir", dir)

	b.wg.Add(1)
	go b.processEvents()

	return b, nil
}

// processEvents processes fsnotify events until Stop or a terminal event.
func (b *fsnotifyBackend) processEvents() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if terminal := b.handleFsnotifyEvent(event); terminal {
				return
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				err = errors.TransientObservation(err)
			}
			b.sendError(err)
		}
	}
}

// handleFsnotifyEvent translates one fsnotify event. It returns true once
// the watched directory is gone.
func (b *fsnotifyBackend) handleFsnotifyEvent(event fsnotify.Event) bool {
	name := filepath.Clean(event.Name)

	if name == b.dir {
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			b.logger.Debug("watched directory gone", "path", b.path, "op", event.Op.String())
			b.emit(EventSelfDeleted)
			return true
		}
		return false
	}

	if name != b.path {
		return false
	}

	switch {
	case event.Has(fsnotify.Remove):
		b.emit(EventDeleted)
	case event.Has(fsnotify.Rename):
		b.emit(EventMovedFrom)
	case event.Has(fsnotify.Create):
		b.emit(EventCreated)
	case event.Has(fsnotify.Write):
		b.emit(EventModified)
	}
	return false
}

// emit sends an event to the events channel.
func (b *fsnotifyBackend) emit(kind EventKind) {
	select {
	case b.events <- Event{Kind: kind, Path: b.path, At: time.Now()}:
	case <-b.done:
	}
}

// sendError sends an error without blocking shutdown.
func (b *fsnotifyBackend) sendError(err error) {
	select {
	case b.errors <- err:
	case <-b.done:
	default:
		b.logger.Warn("dropped watcher error", "path", b.path, "error", err)
	}
}

// Events returns the events channel.
func (b *fsnotifyBackend) Events() <-chan Event {
	return b.events
}

// Errors returns the errors channel.
func (b *fsnotifyBackend) Errors() <-chan error {
	return b.errors
}

// Stop closes the fsnotify watcher and waits for the event loop.
func (b *fsnotifyBackend) Stop() error {
	var closeErr error
	b.stopOnce.Do(func() {
		close(b.done)
		closeErr = b.watcher.Close()
		b.wg.Wait()

		close(b.events)
		close(b.errors)
		b.logger.Debug("removed watch", "path", b.path)
	})
	return closeErr
}
