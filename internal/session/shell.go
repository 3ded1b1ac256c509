package session

import (
	"context"

	"github.com/listenupapp/docwatch/internal/fingerprint"
	"github.com/listenupapp/docwatch/internal/reconcile"
)

// Shell is the user-facing side of the editor.
//
// Shell methods are called from session goroutines and must not call back
// into the Manager synchronously.
type Shell interface {
	// PromptConflict asks the user how to settle a conflict between unsaved
	// edits and a changed file. ctx is cancelled if the document closes
	// first; the prompt should then be withdrawn.
	PromptConflict(ctx context.Context, path string, known, disk fingerprint.Fingerprint) (reconcile.Decision, error)

	// Advise shows a non-blocking notice, e.g. that the watch was lost.
	Advise(path string, err error)

	// ReportError shows an error the user has to acknowledge.
	ReportError(path string, err error)
}

// Dispatcher runs fn in the context that owns the buffers, e.g. a UI
// thread, and returns after fn has run.
type Dispatcher func(fn func())

// Inline runs fn on the calling goroutine.
func Inline(fn func()) {
	fn()
}

// dispatchedBuffer routes buffer mutations through a Dispatcher. Reads go
// straight to the buffer.
type dispatchedBuffer struct {
	buf      reconcile.Buffer
	dispatch Dispatcher
}

var (
	_ reconcile.Buffer          = (*dispatchedBuffer)(nil)
	_ reconcile.ConflictClearer = (*dispatchedBuffer)(nil)
)

func (d *dispatchedBuffer) CurrentFingerprint() fingerprint.Fingerprint {
	return d.buf.CurrentFingerprint()
}

func (d *dispatchedBuffer) IsDirty() bool {
	return d.buf.IsDirty()
}

func (d *dispatchedBuffer) Reload(content []byte) error {
	var err error
	d.dispatch(func() { err = d.buf.Reload(content) })
	return err
}

func (d *dispatchedBuffer) MarkConflicted(reason string) {
	d.dispatch(func() { d.buf.MarkConflicted(reason) })
}

func (d *dispatchedBuffer) MarkDeleted() {
	d.dispatch(d.buf.MarkDeleted)
}

func (d *dispatchedBuffer) MarkRecreated() {
	d.dispatch(d.buf.MarkRecreated)
}

func (d *dispatchedBuffer) ClearConflict() {
	if c, ok := d.buf.(reconcile.ConflictClearer); ok {
		d.dispatch(c.ClearConflict)
	}
}
