//go:build linux

package watcher

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/listenupapp/docwatch/internal/errors"
)

// inotifyMask covers content writes, creation, removal, renames in both
// directions, and the directory itself going away.
const inotifyMask = unix.IN_CREATE | unix.IN_MODIFY | unix.IN_CLOSE_WRITE |
	unix.IN_DELETE | unix.IN_MOVED_FROM | unix.IN_MOVED_TO |
	unix.IN_DELETE_SELF | unix.IN_MOVE_SELF | unix.IN_UNMOUNT

// maxNameLen is NAME_MAX on Linux.
const maxNameLen = 255

// pollInterval bounds how long Stop waits for the reader to notice shutdown.
const pollInterval = 100 * time.Millisecond

// inotifyBackend implements Backend using a dedicated inotify instance on
// the parent directory of the watched file.
type inotifyBackend struct {
	logger   *slog.Logger
	events   chan Event
	errors   chan error
	done     chan struct{}
	path     string
	name     string
	wg       sync.WaitGroup
	stopOnce sync.Once
	fd       int
	wd       int
}

// newInotifyBackend creates and starts an inotify backend for path.
func newInotifyBackend(logger *slog.Logger, path string, opts Options) (Backend, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize inotify: %w", err)
	}

	dir := filepath.Dir(path)
	wd, err := unix.InotifyAddWatch(fd, dir, inotifyMask)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("inotify_add_watch failed: %w", err)
	}

	b := &inotifyBackend{
		logger: logger,
		path:   path,
		name:   filepath.Base(path),
		fd:     fd,
		wd:     wd,
		events: make(chan Event, opts.BufferSize),
		errors: make(chan error, 4),
		done:   make(chan struct{}),
	}

	b.logger.Debug("added watch", "dir", dir, "wd", wd)

	b.wg.Add(1)
	go b.readEvents()

	return b, nil
}

// readEvents reads events from inotify until Stop or a terminal event.
func (b *inotifyBackend) readEvents() {
	defer b.wg.Done()

	buf := make([]byte, (unix.SizeofInotifyEvent+maxNameLen+1)*16)
	fds := []unix.PollFd{{Fd: int32(b.fd), Events: unix.POLLIN}} //nolint:gosec // fd is a small non-negative int

	for {
		select {
		case <-b.done:
			return
		default:
		}

		n, err := unix.Poll(fds, int(pollInterval/time.Millisecond))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			b.sendError(fmt.Errorf("failed to poll inotify: %w", err))
			return
		}
		if n == 0 {
			continue
		}

		n, err = unix.Read(b.fd, buf)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			b.sendError(fmt.Errorf("failed to read inotify events: %w", err))
			return
		}

		if n < unix.SizeofInotifyEvent {
			continue
		}

		if terminal := b.parseEvents(buf[:n]); terminal {
			return
		}
	}
}

// parseEvents parses raw inotify events. It returns true once the watched
// directory is gone.
func (b *inotifyBackend) parseEvents(buf []byte) bool {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		//nolint:gosec // G103: Legitimate use of unsafe for syscall interface with inotify
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		offset += unix.SizeofInotifyEvent + int(raw.Len)
		if offset > len(buf) {
			break
		}

		if raw.Mask&unix.IN_Q_OVERFLOW != 0 {
			b.sendError(errors.TransientObservation(unix.EOVERFLOW))
			continue
		}

		name := ""
		if raw.Len > 0 {
			nameBytes := buf[offset-int(raw.Len) : offset]
			name = string(nameBytes[:clen(nameBytes)])
		}

		if name == "" {
			// Event about the directory itself.
			if raw.Mask&(unix.IN_DELETE_SELF|unix.IN_MOVE_SELF|unix.IN_UNMOUNT|unix.IN_IGNORED) != 0 {
				b.logger.Debug("watched directory gone", "path", b.path, "mask", raw.Mask)
				b.emit(EventSelfDeleted)
				return true
			}
			continue
		}

		if name != b.name {
			continue
		}

		if kind, ok := kindFromMask(raw.Mask); ok {
			b.emit(kind)
		}
	}
	return false
}

// kindFromMask maps an inotify mask for the watched file to an EventKind.
func kindFromMask(mask uint32) (EventKind, bool) {
	switch {
	case mask&unix.IN_DELETE != 0:
		return EventDeleted, true
	case mask&unix.IN_MOVED_FROM != 0:
		return EventMovedFrom, true
	case mask&unix.IN_MOVED_TO != 0:
		return EventMovedTo, true
	case mask&unix.IN_CREATE != 0:
		return EventCreated, true
	case mask&(unix.IN_MODIFY|unix.IN_CLOSE_WRITE) != 0:
		return EventModified, true
	default:
		return 0, false
	}
}

// emit sends an event to the events channel.
func (b *inotifyBackend) emit(kind EventKind) {
	select {
	case b.events <- Event{Kind: kind, Path: b.path, At: time.Now()}:
	case <-b.done:
	}
}

// sendError sends an error without blocking shutdown.
func (b *inotifyBackend) sendError(err error) {
	select {
	case b.errors <- err:
	case <-b.done:
	default:
		b.logger.Warn("dropped watcher error", "path", b.path, "error", err)
	}
}

// Events returns the events channel.
func (b *inotifyBackend) Events() <-chan Event {
	return b.events
}

// Errors returns the errors channel.
func (b *inotifyBackend) Errors() <-chan error {
	return b.errors
}

// Stop stops the reader and closes the inotify instance.
func (b *inotifyBackend) Stop() error {
	var closeErr error
	b.stopOnce.Do(func() {
		close(b.done)
		b.wg.Wait()

		//nolint:gosec // G115: wd is always a small non-negative int from inotify
		_, _ = unix.InotifyRmWatch(b.fd, uint32(b.wd))
		closeErr = unix.Close(b.fd)

		close(b.events)
		close(b.errors)
		b.logger.Debug("removed watch", "path", b.path)
	})
	return closeErr
}

// clen returns the length of a null-terminated byte slice.
func clen(n []byte) int {
	for i := 0; i < len(n); i++ {
		if n[i] == 0 {
			return i
		}
	}
	return len(n)
}
