package reconcile

import "github.com/listenupapp/docwatch/internal/fingerprint"

// Buffer is the editor's in-memory document. The machine reads its state and
// issues commands; it never owns it.
type Buffer interface {
	// CurrentFingerprint returns the fingerprint of the buffer's content.
	CurrentFingerprint() fingerprint.Fingerprint

	// IsDirty reports whether the buffer has unsaved edits.
	IsDirty() bool

	// Reload replaces the buffer's content and clears its dirty flag.
	Reload(content []byte) error

	// MarkConflicted flags the buffer as conflicting with the disk.
	MarkConflicted(reason string)

	// MarkDeleted flags the buffer's file as gone.
	MarkDeleted()

	// MarkRecreated clears the deleted flag.
	MarkRecreated()
}

// ConflictClearer is implemented by buffers that can drop their conflict
// flag once the user keeps their version.
type ConflictClearer interface {
	ClearConflict()
}
