package store

import "github.com/listenupapp/docwatch/internal/errors"

// ErrNotFound matches the error returned when a path has no journal entry.
var ErrNotFound = errors.ErrNotFound

// NotJournaled returns the error for a path without an entry.
func NotJournaled(path string) error {
	return errors.NotFoundf("no journal entry for %s", path)
}
