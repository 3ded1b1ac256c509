package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/docwatch/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// backendsForPlatform returns the backends that can run on this machine.
func backendsForPlatform() []BackendKind {
	if runtime.GOOS == "linux" {
		return []BackendKind{BackendInotify, BackendFSNotify}
	}
	return []BackendKind{BackendFSNotify}
}

// waitForKind reads events until one of kinds arrives.
func waitForKind(t *testing.T, sub Subscription, kinds ...EventKind) Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			require.True(t, ok, "events channel closed early")
			for _, k := range kinds {
				if ev.Kind == k {
					return ev
				}
			}
		case err := <-sub.Errors():
			t.Fatalf("unexpected error: %v", err)
		case <-deadline:
			t.Fatalf("timeout waiting for %v", kinds)
		}
	}
}

func TestNew(t *testing.T) {
	w, err := New(testLogger(), Options{})
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 0, w.Live())
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(testLogger(), Options{Backend: "kqueue"})
	assert.Error(t, err)
}

func TestWatcher_OpenMissingDirectory(t *testing.T) {
	w, err := New(testLogger(), Options{})
	require.NoError(t, err)

	_, err = w.Open(filepath.Join(t.TempDir(), "nope", "file.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrWatchTargetUnavailable))
	assert.Equal(t, 0, w.Live())
}

func TestWatcher_Backends(t *testing.T) {
	for _, backend := range backendsForPlatform() {
		t.Run(string(backend), func(t *testing.T) {
			w, err := New(testLogger(), Options{Backend: backend})
			require.NoError(t, err)

			tmpDir := t.TempDir()
			path := filepath.Join(tmpDir, "notes.md")
			other := filepath.Join(tmpDir, "other.md")
			require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

			sub, err := w.Open(path)
			require.NoError(t, err)
			defer sub.Close()
			assert.Equal(t, 1, w.Live())
			assert.Equal(t, path, sub.Path())

			// Events for siblings are filtered out.
			require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))

			require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
			ev := waitForKind(t, sub, EventModified)
			assert.Equal(t, path, ev.Path)

			require.NoError(t, os.Remove(path))
			waitForKind(t, sub, EventDeleted)

			require.NoError(t, os.WriteFile(path, []byte("v3"), 0o644))
			waitForKind(t, sub, EventCreated)

			require.NoError(t, sub.Close())
			assert.Equal(t, 0, w.Live())
		})
	}
}

func TestWatcher_RenameAway(t *testing.T) {
	for _, backend := range backendsForPlatform() {
		t.Run(string(backend), func(t *testing.T) {
			w, err := New(testLogger(), Options{Backend: backend})
			require.NoError(t, err)

			tmpDir := t.TempDir()
			path := filepath.Join(tmpDir, "notes.md")
			require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

			sub, err := w.Open(path)
			require.NoError(t, err)
			defer sub.Close()

			require.NoError(t, os.Rename(path, filepath.Join(tmpDir, "renamed.md")))
			waitForKind(t, sub, EventMovedFrom)
		})
	}
}

func TestWatcher_DirectoryRemovedIsTerminal(t *testing.T) {
	for _, backend := range backendsForPlatform() {
		t.Run(string(backend), func(t *testing.T) {
			w, err := New(testLogger(), Options{Backend: backend})
			require.NoError(t, err)

			dir := filepath.Join(t.TempDir(), "project")
			require.NoError(t, os.Mkdir(dir, 0o755))
			path := filepath.Join(dir, "notes.md")
			require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

			sub, err := w.Open(path)
			require.NoError(t, err)
			defer sub.Close()

			require.NoError(t, os.RemoveAll(dir))
			waitForKind(t, sub, EventSelfDeleted)

			require.NoError(t, sub.Close())
			assert.Equal(t, 0, w.Live())
		})
	}
}

func TestWatcher_CloseClosesChannels(t *testing.T) {
	w, err := New(testLogger(), Options{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "notes.md")
	sub, err := w.Open(path)
	require.NoError(t, err, "a missing file in an existing directory can be watched")

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, open := <-sub.Events()
	assert.False(t, open)
	_, open = <-sub.Errors()
	assert.False(t, open)
}
