//go:build !linux

package watcher

import (
	"fmt"
	"log/slog"
	"runtime"
)

// newInotifyBackend is a stub that should never be called on non-Linux platforms.
// New rejects BackendInotify there, and BackendAuto resolves to fsnotify.
func newInotifyBackend(_ *slog.Logger, _ string, _ Options) (Backend, error) {
	return nil, fmt.Errorf("inotify backend not available on %s", runtime.GOOS)
}
