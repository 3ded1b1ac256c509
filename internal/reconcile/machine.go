// Package reconcile decides what an external change to an open document
// means: a silent reload, a conflict prompt, a deletion flag, or nothing.
//
// Content change is decided by fingerprint comparison only, never by event
// kind or timestamp alone. Event kinds only select which comparison to run.
package reconcile

import (
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/docwatch/internal/debounce"
	"github.com/listenupapp/docwatch/internal/errors"
	"github.com/listenupapp/docwatch/internal/fingerprint"
	"github.com/listenupapp/docwatch/internal/watcher"
)

// Result reports what Handle, Resolve or Resync did.
type Result struct {
	// Known is the last known disk fingerprint before the change.
	Known fingerprint.Fingerprint

	// Disk is the fingerprint observed while handling the change.
	Disk fingerprint.Fingerprint

	Outcome Outcome
}

// Machine reconciles one document with its file. There is no terminal state:
// a Machine lives as long as its document is open.
type Machine struct {
	buf    Buffer
	disk   fingerprint.Reader
	logger *slog.Logger
	path   string

	// known is the fingerprint of the disk content the buffer was last
	// reconciled with.
	known fingerprint.Fingerprint

	// latest is the most recent disk fingerprint seen while a conflict is
	// pending.
	latest fingerprint.Fingerprint

	mu         sync.Mutex
	conflicted bool
	deleted    bool
}

// New creates a Machine for path. The open-time disk fingerprint becomes the
// last known fingerprint; a missing file starts the machine in StateDeleted.
func New(path string, buf Buffer, disk fingerprint.Reader, logger *slog.Logger) (*Machine, error) {
	fp, err := disk.Fingerprint(path)
	if err != nil {
		return nil, errors.FingerprintRead(path, err)
	}

	return &Machine{
		buf:     buf,
		disk:    disk,
		logger:  logger.With("path", path),
		path:    path,
		known:   fp,
		deleted: !fp.Exists,
	}, nil
}

// Path returns the document path.
func (m *Machine) Path() string {
	return m.path
}

// State returns the current state. Clean and Dirty are derived from the
// buffer.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Machine) stateLocked() State {
	switch {
	case m.conflicted:
		return StateConflictPending
	case m.deleted:
		return StateDeleted
	case m.buf.IsDirty():
		return StateDirty
	default:
		return StateClean
	}
}

// Known returns the last known disk fingerprint.
func (m *Machine) Known() fingerprint.Fingerprint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.known
}

// Latest returns the disk fingerprint that raised the pending conflict, or
// the most recent one absorbed while it was pending.
func (m *Machine) Latest() fingerprint.Fingerprint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

// Handle reconciles one settled change. On error the state and the buffer
// are unchanged.
func (m *Machine) Handle(change debounce.Change) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.stateLocked()
	res, err := m.handleLocked(from, change.Kind)
	if err != nil {
		m.logger.Warn("reconcile failed", "kind", change.Kind.String(), "state", from.String(), "error", err)
		return res, err
	}

	m.logger.Info("reconciled",
		"kind", change.Kind.String(),
		"from", from.String(),
		"state", m.stateLocked().String(),
		"outcome", res.Outcome.String(),
	)
	return res, nil
}

// Resync recovers from lost events with a full fingerprint comparison, as if
// the file had been modified.
func (m *Machine) Resync() (Result, error) {
	return m.Handle(debounce.Change{Path: m.path, Kind: watcher.EventModified})
}

func (m *Machine) handleLocked(from State, kind watcher.EventKind) (Result, error) {
	disk, err := m.fingerprint()
	if err != nil {
		return Result{Known: m.known}, err
	}
	res := Result{Known: m.known, Disk: disk}

	switch from {
	case StateConflictPending:
		m.latest = disk
		res.Outcome = OutcomeAbsorbed
		return res, nil

	case StateDeleted:
		if kind.IsDeletion() || !disk.Exists {
			res.Outcome = OutcomeIgnored
			return res, nil
		}
		if m.buf.IsDirty() {
			m.buf.MarkRecreated()
			m.deleted = false
			return m.conflictLocked(res), nil
		}
		res, err = m.reloadLocked(res)
		if err != nil {
			return res, err
		}
		if res.Outcome != OutcomeMarkedDeleted {
			m.buf.MarkRecreated()
			m.deleted = false
		}
		return res, nil

	case StateDirty:
		if disk.Equal(m.known) {
			res.Outcome = OutcomeIgnored
			return res, nil
		}
		return m.conflictLocked(res), nil

	default:
		if !disk.Exists {
			if m.known.Exists {
				return m.markDeletedLocked(res), nil
			}
			res.Outcome = OutcomeIgnored
			return res, nil
		}
		// A deletion kind with the file present is a delete and recreate
		// inside one window: compare content like any modification.
		return m.reloadLocked(res)
	}
}

// reloadLocked loads the disk content into the buffer if it differs from the
// last known content.
func (m *Machine) reloadLocked(res Result) (Result, error) {
	if res.Disk.Equal(m.known) {
		res.Outcome = OutcomeIgnored
		return res, nil
	}

	content, fp, err := m.disk.Load(m.path)
	if err != nil {
		return res, errors.FingerprintRead(m.path, err)
	}
	res.Disk = fp
	if !fp.Exists {
		return m.markDeletedLocked(res), nil
	}

	if err := m.buf.Reload(content); err != nil {
		return res, errors.Wrapf(err, errors.CodeInternal, "reload %s", m.path)
	}
	m.known = fp
	res.Outcome = OutcomeReloaded
	return res, nil
}

func (m *Machine) conflictLocked(res Result) Result {
	reason := "file changed on disk while you had unsaved edits"
	if !res.Disk.Exists {
		reason = "file was deleted on disk while you had unsaved edits"
	}
	m.buf.MarkConflicted(reason)
	m.conflicted = true
	m.latest = res.Disk
	res.Outcome = OutcomeConflict
	return res
}

func (m *Machine) markDeletedLocked(res Result) Result {
	m.buf.MarkDeleted()
	m.deleted = true
	m.known = fingerprint.Missing
	res.Outcome = OutcomeMarkedDeleted
	return res
}

// Resolve applies the user's decision to the pending conflict.
func (m *Machine) Resolve(decision Decision) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.conflicted {
		return Result{Known: m.known}, errors.Conflictf("no conflict pending for %s", m.path)
	}

	var (
		res Result
		err error
	)
	switch decision {
	case ReloadTheirs:
		res, err = m.reloadTheirsLocked()
	case KeepMine, MergeManually:
		res, err = m.keepLocked(decision)
	default:
		return Result{Known: m.known}, errors.Validationf("unknown decision %d", decision)
	}
	if err != nil {
		m.logger.Warn("resolve failed", "decision", decision.String(), "error", err)
		return res, err
	}

	m.logger.Info("conflict resolved",
		"decision", decision.String(),
		"state", m.stateLocked().String(),
		"outcome", res.Outcome.String(),
	)
	return res, nil
}

func (m *Machine) reloadTheirsLocked() (Result, error) {
	content, fp, err := m.disk.Load(m.path)
	if err != nil {
		return Result{Known: m.known}, errors.FingerprintRead(m.path, err)
	}
	res := Result{Known: m.known, Disk: fp}

	if !fp.Exists {
		m.conflicted = false
		return m.markDeletedLocked(res), nil
	}
	if err := m.buf.Reload(content); err != nil {
		return res, errors.Wrapf(err, errors.CodeInternal, "reload %s", m.path)
	}
	m.conflicted = false
	m.deleted = false
	m.known = fp
	res.Outcome = OutcomeReloaded
	return res, nil
}

func (m *Machine) keepLocked(decision Decision) (Result, error) {
	disk, err := m.fingerprint()
	if err != nil {
		return Result{Known: m.known}, err
	}
	res := Result{Known: m.known, Disk: disk, Outcome: OutcomeResolved}

	m.conflicted = false
	m.known = disk
	if !disk.Exists {
		m.buf.MarkDeleted()
		m.deleted = true
	}
	if decision == KeepMine {
		if c, ok := m.buf.(ConflictClearer); ok {
			c.ClearConflict()
		}
	}
	return res, nil
}

// AcknowledgeSelfWrite accepts a suppressed change as the result of the
// application's own save of expected content, finished at endedAt (zero while
// the save is still running). The disk fingerprint becomes the last known
// one, and a deleted document is recreated.
//
// It reports false when the disk content provably differs from what was
// saved, meaning an external write interleaved with the save. The caller
// then handles the change normally.
func (m *Machine) AcknowledgeSelfWrite(expected fingerprint.Fingerprint, endedAt time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	disk, err := m.fingerprint()
	if err != nil {
		m.logger.Debug("self-write fingerprint failed", "error", err)
		return false
	}
	if !writtenBySelf(expected, disk, endedAt) {
		m.logger.Info("external write interleaved with save", "expected", expected.String(), "disk", disk.String())
		return false
	}

	m.known = disk
	if m.deleted && disk.Exists {
		m.buf.MarkRecreated()
		m.deleted = false
	}
	m.logger.Debug("self-write acknowledged", "disk", disk.String(), "state", m.stateLocked().String())
	return true
}

// mtimeSlack absorbs the lag between the filesystem clock and time.Now.
const mtimeSlack = 100 * time.Millisecond

// writtenBySelf reports whether disk can be the result of writing expected.
// Without comparable hashes the size must match and the file must not have
// been modified after the save ended.
func writtenBySelf(expected, disk fingerprint.Fingerprint, endedAt time.Time) bool {
	if !expected.Exists || !disk.Exists {
		return true
	}
	if expected.Comparable(disk) {
		return expected.Equal(disk)
	}
	if expected.Size != disk.Size {
		return false
	}
	if endedAt.IsZero() || disk.ModTime.IsZero() {
		return true
	}
	return !disk.ModTime.After(endedAt.Add(mtimeSlack))
}

func (m *Machine) fingerprint() (fingerprint.Fingerprint, error) {
	fp, err := m.disk.Fingerprint(m.path)
	if err != nil {
		return fingerprint.Missing, errors.FingerprintRead(m.path, err)
	}
	return fp, nil
}
