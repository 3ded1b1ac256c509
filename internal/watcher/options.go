package watcher

import (
	"fmt"
	"strings"
)

// BackendKind selects the platform notification primitive.
type BackendKind string

const (
	// BackendAuto uses inotify on Linux and fsnotify elsewhere.
	BackendAuto BackendKind = "auto"
	// BackendInotify uses a dedicated inotify instance per subscription (Linux only).
	BackendInotify BackendKind = "inotify"
	// BackendFSNotify uses a dedicated fsnotify watcher per subscription.
	BackendFSNotify BackendKind = "fsnotify"
)

// ParseBackend converts a configuration string to a BackendKind.
func ParseBackend(s string) (BackendKind, error) {
	switch BackendKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackendAuto:
		return BackendAuto, nil
	case BackendInotify:
		return BackendInotify, nil
	case BackendFSNotify:
		return BackendFSNotify, nil
	default:
		return "", fmt.Errorf("unknown watcher backend %q (must be auto, inotify, or fsnotify)", s)
	}
}

// Options configures the file watcher behavior.
type Options struct {
	Backend    BackendKind
	BufferSize int
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.Backend == "" {
		o.Backend = BackendAuto
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 64
	}
}
