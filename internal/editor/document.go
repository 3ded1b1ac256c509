// Package editor provides a file-backed text document: the in-memory buffer
// the reconciliation machine commands, and the save operation that brackets
// every write with self-write tracking.
package editor

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/listenupapp/docwatch/internal/fingerprint"
	"github.com/listenupapp/docwatch/internal/id"
)

// SelfWriteTracker is told about the document's own writes.
type SelfWriteTracker interface {
	BeginSelfWrite(path string, expected fingerprint.Fingerprint)
	EndSelfWrite(path string)
}

// Status is a snapshot of a document's flags.
type Status struct {
	ID         string
	Path       string
	Reason     string
	Size       int
	Dirty      bool
	Conflicted bool
	Deleted    bool
}

// Document is an open text document. It is safe for concurrent use.
type Document struct {
	id         string
	path       string
	reason     string
	content    []byte
	perm       fs.FileMode
	mu         sync.RWMutex
	dirty      bool
	conflicted bool
	deleted    bool
}

// Open loads path into a new Document. A missing file opens as an empty,
// deleted document that the first save creates.
func Open(path string) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		id:   id.MustGenerate(id.PrefixDocument),
		path: abs,
		perm: 0o644,
	}

	content, err := os.ReadFile(abs) //#nosec G304 -- path is the document the user opened
	switch {
	case errors.Is(err, fs.ErrNotExist):
		doc.deleted = true
	case err != nil:
		return nil, err
	default:
		doc.content = content
		if info, statErr := os.Stat(abs); statErr == nil {
			doc.perm = info.Mode().Perm()
		}
	}
	return doc, nil
}

// New creates a Document with the given content that has not been read
// from disk.
func New(path string, content []byte) *Document {
	return &Document{
		id:      id.MustGenerate(id.PrefixDocument),
		path:    filepath.Clean(path),
		content: append([]byte(nil), content...),
		perm:    0o644,
	}
}

// ID returns the document's identifier.
func (d *Document) ID() string {
	return d.id
}

// Path returns the document's current path.
func (d *Document) Path() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.path
}

// Content returns a copy of the buffer.
func (d *Document) Content() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]byte(nil), d.content...)
}

// Status returns a snapshot of the document's flags.
func (d *Document) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Status{
		ID:         d.id,
		Path:       d.path,
		Reason:     d.reason,
		Size:       len(d.content),
		Dirty:      d.dirty,
		Conflicted: d.conflicted,
		Deleted:    d.deleted,
	}
}

// Set replaces the buffer's content as a user edit.
func (d *Document) Set(content []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content = append([]byte(nil), content...)
	d.dirty = true
}

// Append adds text to the end of the buffer as a user edit.
func (d *Document) Append(text []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content = append(d.content, text...)
	d.dirty = true
}

// CurrentFingerprint returns the content fingerprint of the buffer.
func (d *Document) CurrentFingerprint() fingerprint.Fingerprint {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return fingerprint.Of(d.content)
}

// IsDirty reports whether the buffer has unsaved edits.
func (d *Document) IsDirty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dirty
}

// Reload replaces the buffer with content read from disk.
func (d *Document) Reload(content []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content = append([]byte(nil), content...)
	d.dirty = false
	d.conflicted = false
	d.reason = ""
	return nil
}

// MarkConflicted flags the buffer as conflicting with the disk.
func (d *Document) MarkConflicted(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conflicted = true
	d.reason = reason
}

// ClearConflict drops the conflict flag.
func (d *Document) ClearConflict() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conflicted = false
	d.reason = ""
}

// MarkDeleted flags the file as gone.
func (d *Document) MarkDeleted() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted = true
}

// MarkRecreated clears the deleted flag.
func (d *Document) MarkRecreated() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted = false
}

// Save writes the buffer to its path. The write is registered with tracker
// before it starts and released when it returns, including on failure.
func (d *Document) Save(tracker SelfWriteTracker) error {
	return d.SaveTo(tracker, d.Path())
}

// SaveTo writes the buffer to path and makes path the document's path.
// The caller is responsible for moving the watch to the new path.
func (d *Document) SaveTo(tracker SelfWriteTracker, path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	d.mu.RLock()
	content := append([]byte(nil), d.content...)
	perm := d.perm
	d.mu.RUnlock()

	tracker.BeginSelfWrite(path, fingerprint.Of(content))
	defer tracker.EndSelfWrite(path)

	if err := os.WriteFile(path, content, perm); err != nil { //#nosec G306 -- keeps the file's existing mode
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.path = path
	// Edits made while the write ran are still unsaved.
	if bytes.Equal(d.content, content) {
		d.dirty = false
	}
	return nil
}
