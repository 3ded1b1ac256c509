// Package session owns the watch lifecycle of open documents. For each
// document it runs one pipeline: watcher subscription, debounce coalescer,
// self-write suppressor, reconciliation machine.
//
// Every subscription opened by the Manager is closed by it: on document
// close, on path change, when the watch ends on its own, and on Close.
package session

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/listenupapp/docwatch/internal/debounce"
	"github.com/listenupapp/docwatch/internal/errors"
	"github.com/listenupapp/docwatch/internal/fingerprint"
	"github.com/listenupapp/docwatch/internal/id"
	"github.com/listenupapp/docwatch/internal/ratelimit"
	"github.com/listenupapp/docwatch/internal/reconcile"
	"github.com/listenupapp/docwatch/internal/selfwrite"
	"github.com/listenupapp/docwatch/internal/watcher"
)

// Manager tracks the watch sessions of all open documents.
type Manager struct {
	source     watcher.Source
	reader     fingerprint.Reader
	suppressor *selfwrite.Suppressor
	shell      Shell
	limiter    *ratelimit.KeyedRateLimiter
	logger     *slog.Logger
	sessions   *SyncMap[string, *Session]
	opts       Options

	// mu serializes lifecycle operations.
	mu     sync.Mutex
	live   atomic.Int64
	closed bool
}

// NewManager creates a Manager.
func NewManager(
	source watcher.Source,
	reader fingerprint.Reader,
	suppressor *selfwrite.Suppressor,
	shell Shell,
	logger *slog.Logger,
	opts Options,
) *Manager {
	opts.setDefaults()

	return &Manager{
		source:     source,
		reader:     reader,
		suppressor: suppressor,
		shell:      shell,
		limiter:    ratelimit.New(opts.ResyncPerSecond, 1),
		logger:     logger,
		sessions:   NewSyncMap[string, *Session](),
		opts:       opts,
	}
}

func cleanPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Validationf("invalid path %q", path).WithCause(err)
	}
	return abs, nil
}

// OnDocumentOpened starts watching path for buf. The open-time disk
// fingerprint becomes the machine's last known fingerprint.
//
// If the directory cannot be watched the document still opens: the shell is
// advised and the session keeps retrying.
func (m *Manager) OnDocumentOpened(ctx context.Context, path string, buf reconcile.Buffer) (*Session, error) {
	path, err := cleanPath(path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.Internalf("session manager is closed")
	}
	if _, exists := m.sessions.Load(path); exists {
		return nil, errors.AlreadyExistsf("document already open: %s", path)
	}

	s, sub, err := m.newSession(ctx, path, buf)
	if err != nil {
		return nil, err
	}

	m.sessions.Store(path, s)
	s.start(sub)

	m.logger.Info("document opened",
		"path", path,
		"session", s.id,
		"state", s.State().String(),
		"watching", sub != nil,
	)
	return s, nil
}

// newSession opens the subscription and machine for path. A nil
// subscription with a nil error means the watch target is unavailable.
func (m *Manager) newSession(ctx context.Context, path string, buf reconcile.Buffer) (*Session, watcher.Subscription, error) {
	sub, err := m.source.Open(path)
	if err != nil {
		if !errors.Is(err, errors.ErrWatchTargetUnavailable) {
			return nil, nil, err
		}
		m.logger.Warn("cannot watch document", "path", path, "error", err)
		m.shell.Advise(path, err)
		sub = nil
	}

	logger := m.logger.With("path", path)
	machine, err := reconcile.New(path, &dispatchedBuffer{buf: buf, dispatch: m.opts.Dispatcher}, m.reader, logger)
	if err != nil {
		if sub != nil {
			_ = sub.Close()
		}
		return nil, nil, err
	}

	// The open-time fingerprint already covers a save that finished before
	// it was taken, e.g. save-as. A late event from that save compares equal.
	if m.suppressor.DiscardEnded(path) {
		logger.Debug("dropped self-write that finished before the watch")
	}

	sessionID, err := id.Generate(id.PrefixSession)
	if err != nil {
		if sub != nil {
			_ = sub.Close()
		}
		return nil, nil, errors.Internalf("generate session id").WithCause(err)
	}

	m.checkJournal(ctx, path, buf, machine.Known())

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		mgr:       m,
		buf:       buf,
		machine:   machine,
		logger:    logger.With("session", sessionID),
		ctx:       sctx,
		cancel:    cancel,
		changes:   make(chan debounce.Change, 8),
		resync:    make(chan struct{}, 1),
		decisions: make(chan decision, 1),
		done:      make(chan struct{}),
		id:        sessionID,
		path:      path,
	}
	return s, sub, nil
}

// checkJournal advises when the file changed since the last session and
// records the new open.
func (m *Manager) checkJournal(ctx context.Context, path string, buf reconcile.Buffer, current fingerprint.Fingerprint) {
	journal := m.opts.Journal

	last, err := journal.Last(ctx, path)
	switch {
	case err == nil:
		if last.Fingerprint.Exists && current.Exists && !last.Fingerprint.Equal(current) {
			m.shell.Advise(path, errors.Conflictf("%s changed since last session", filepath.Base(path)))
		}
	case !errors.Is(err, errors.ErrNotFound):
		m.logger.Warn("failed to read journal", "path", path, "error", err)
	}

	var docID string
	if d, ok := buf.(interface{ ID() string }); ok {
		docID = d.ID()
	} else {
		docID = id.MustGenerate(id.PrefixDocument)
	}
	if err := journal.RecordOpen(ctx, path, docID, current); err != nil {
		m.logger.Warn("failed to journal open", "path", path, "error", err)
	}
}

// OnDocumentPathChanged moves the watch from oldPath to newPath, e.g. after
// save-as. The new subscription is opened before the old one is closed, so
// there is no unwatched gap; events still queued for the old path are
// discarded.
func (m *Manager) OnDocumentPathChanged(ctx context.Context, oldPath, newPath string) (*Session, error) {
	oldPath, err := cleanPath(oldPath)
	if err != nil {
		return nil, err
	}
	newPath, err = cleanPath(newPath)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.sessions.Load(oldPath)
	if !ok {
		return nil, errors.NotFoundf("document not open: %s", oldPath)
	}
	if oldPath == newPath {
		return old, nil
	}
	if _, taken := m.sessions.Load(newPath); taken {
		return nil, errors.AlreadyExistsf("document already open: %s", newPath)
	}

	s, sub, err := m.newSession(ctx, newPath, old.buf)
	if err != nil {
		return nil, err
	}

	m.sessions.Swap(oldPath, newPath, s)
	s.start(sub)
	m.release(old)

	m.logger.Info("document path changed", "from", oldPath, "to", newPath, "session", s.id)
	return s, nil
}

// OnDocumentClosed stops watching path. An outstanding prompt is withdrawn
// and a pending self-write is dropped.
func (m *Manager) OnDocumentClosed(path string) error {
	path, err := cleanPath(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions.LoadAndDelete(path)
	if !ok {
		return errors.NotFoundf("document not open: %s", path)
	}
	m.release(s)

	m.logger.Info("document closed", "path", path, "session", s.id)
	return nil
}

// release tears down s and its per-path state.
func (m *Manager) release(s *Session) {
	s.close()

	if m.suppressor.Discard(s.path) {
		m.logger.Debug("discarded pending self-write", "path", s.path, "code", errors.CodeSelfWriteRace)
	}
	m.limiter.Forget(s.path)
}

// BeginSelfWrite records that the application is about to write path.
// path need not be watched yet.
func (m *Manager) BeginSelfWrite(path string, expected fingerprint.Fingerprint) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	m.suppressor.BeginSelfWrite(path, expected)
}

// EndSelfWrite records that the write of path finished.
func (m *Manager) EndSelfWrite(path string) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	m.suppressor.EndSelfWrite(path)
}

// Live returns the number of open subscriptions.
func (m *Manager) Live() int {
	return int(m.live.Load())
}

// Session returns the session for path.
func (m *Manager) Session(path string) (*Session, error) {
	path, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	s, ok := m.sessions.Load(path)
	if !ok {
		return nil, errors.NotFoundf("document not open: %s", path)
	}
	return s, nil
}

// Resync asks the session for path to compare the buffer with the disk now,
// as after lost events. The request is rate limited like any other resync.
func (m *Manager) Resync(path string) error {
	s, err := m.Session(path)
	if err != nil {
		return err
	}
	s.requestResync()
	return nil
}

// State returns the reconciliation state of the document at path.
func (m *Manager) State(path string) (reconcile.State, error) {
	s, err := m.Session(path)
	if err != nil {
		return reconcile.StateClean, err
	}
	return s.State(), nil
}

// Paths returns the watched paths in order.
func (m *Manager) Paths() []string {
	return sortedKeys(m.sessions)
}

// Close closes every session. The Manager cannot be used afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	for _, s := range m.sessions.Values() {
		m.sessions.LoadAndDelete(s.path)
		m.release(s)
	}

	m.logger.Info("session manager closed")
	return nil
}

// Wait blocks until the loops of the given sessions have exited, or ctx is
// done.
func Wait(ctx context.Context, sessions ...*Session) error {
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
