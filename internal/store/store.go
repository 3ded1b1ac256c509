// Package store defines the document journal: what docwatch remembers about
// each document between sessions.
package store

import (
	"context"
	"time"

	"github.com/listenupapp/docwatch/internal/fingerprint"
)

// Entry is the journal record for one path.
type Entry struct {
	OpenedAt    time.Time
	UpdatedAt   time.Time
	Path        string
	DocumentID  string
	State       string
	Outcome     string
	Fingerprint fingerprint.Fingerprint
}

// Journal persists per-document reconciliation history.
type Journal interface {
	// RecordOpen stores the open-time fingerprint for path.
	RecordOpen(ctx context.Context, path, documentID string, fp fingerprint.Fingerprint) error

	// RecordOutcome stores the fingerprint, state and outcome after a
	// reconciliation.
	RecordOutcome(ctx context.Context, path string, fp fingerprint.Fingerprint, state, outcome string) error

	// Last returns the entry for path, or an error matching
	// errors.ErrNotFound.
	Last(ctx context.Context, path string) (*Entry, error)

	// Forget removes the entry for path.
	Forget(ctx context.Context, path string) error

	// Recent lists entries by most recent open, newest first.
	Recent(ctx context.Context, limit int) ([]*Entry, error)

	Close() error
}

// NoopJournal discards everything. It is used when the journal is disabled.
type NoopJournal struct{}

// NewNoopJournal creates a journal that records nothing.
func NewNoopJournal() Journal {
	return NoopJournal{}
}

// RecordOpen is a no-op.
func (NoopJournal) RecordOpen(context.Context, string, string, fingerprint.Fingerprint) error {
	return nil
}

// RecordOutcome is a no-op.
func (NoopJournal) RecordOutcome(context.Context, string, fingerprint.Fingerprint, string, string) error {
	return nil
}

// Last always reports not found.
func (NoopJournal) Last(_ context.Context, path string) (*Entry, error) {
	return nil, NotJournaled(path)
}

// Forget is a no-op.
func (NoopJournal) Forget(context.Context, string) error { return nil }

// Recent returns nothing.
func (NoopJournal) Recent(context.Context, int) ([]*Entry, error) { return nil, nil }

// Close is a no-op.
func (NoopJournal) Close() error { return nil }
