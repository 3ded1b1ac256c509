package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/docwatch/internal/editor"
	"github.com/listenupapp/docwatch/internal/errors"
	"github.com/listenupapp/docwatch/internal/fingerprint"
	"github.com/listenupapp/docwatch/internal/id"
	"github.com/listenupapp/docwatch/internal/reconcile"
	"github.com/listenupapp/docwatch/internal/watcher"
)

func TestManager_OpenAndClose(t *testing.T) {
	h := newHarness(t)

	_, s := h.open("a.md", "hello")
	assert.True(t, id.HasPrefix(s.ID(), id.PrefixSession))
	assert.Equal(t, h.path("a.md"), s.Path())
	assert.True(t, s.Watching())
	assert.Equal(t, 1, h.mgr.Live())
	assert.Equal(t, []string{h.path("a.md")}, h.mgr.Paths())

	st, err := h.mgr.State(h.path("a.md"))
	require.NoError(t, err)
	assert.Equal(t, reconcile.StateClean, st)

	mem, _ := h.source.Subscription(h.path("a.md"))

	require.NoError(t, h.mgr.OnDocumentClosed(h.path("a.md")))
	assert.Equal(t, 0, h.mgr.Live())
	assert.Equal(t, 0, h.source.Live())
	assert.True(t, mem.Closed())
	assert.Empty(t, h.mgr.Paths())

	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("session loop did not exit")
	}

	err = h.mgr.OnDocumentClosed(h.path("a.md"))
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestManager_OpenTwiceIsRejected(t *testing.T) {
	h := newHarness(t)
	doc, _ := h.open("a.md", "x")

	_, err := h.mgr.OnDocumentOpened(context.Background(), doc.Path(), doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))
	assert.Equal(t, 1, h.mgr.Live(), "a rejected open must not leak a subscription")
	assert.Equal(t, 1, h.source.Opened())
}

func TestManager_LifecycleContainment(t *testing.T) {
	h := newHarness(t)

	names := []string{"a.md", "b.md", "c.md"}
	for _, n := range names {
		h.open(n, n)
		assert.LessOrEqual(t, h.mgr.Live(), len(h.mgr.Paths()))
	}
	assert.Equal(t, 3, h.mgr.Live())

	require.NoError(t, h.mgr.OnDocumentClosed(h.path("b.md")))
	assert.Equal(t, 2, h.mgr.Live())

	require.NoError(t, h.mgr.Close())
	assert.Equal(t, 0, h.mgr.Live())
	assert.Equal(t, 0, h.source.Live())

	_, err := h.mgr.OnDocumentOpened(context.Background(), h.path("d.md"), editor.New(h.path("d.md"), nil))
	assert.Error(t, err, "a closed manager opens nothing")
}

func TestManager_ExternalChangeReloadsCleanBuffer(t *testing.T) {
	h := newHarness(t)
	doc, _ := h.open("a.md", "v1")

	h.write("a.md", "v2")
	h.emit("a.md", watcher.EventModified)

	require.Eventually(t, func() bool { return string(doc.Content()) == "v2" }, waitFor, pollEvery)
	assert.False(t, doc.IsDirty())
	assert.Empty(t, h.shell.promptCalls())
}

func TestManager_DebounceCollapsesBurst(t *testing.T) {
	h := newHarness(t)
	doc, _ := h.open("a.md", "v1")

	h.write("a.md", "v2")
	for i := 0; i < 10; i++ {
		h.emit("a.md", watcher.EventModified)
	}

	require.Eventually(t, func() bool { return string(doc.Content()) == "v2" }, waitFor, pollEvery)
	assert.Never(t, func() bool { return len(h.journal.outcomeList()) > 1 }, quietPeriod, pollEvery)
	assert.Equal(t, []string{"reloaded"}, h.journal.outcomeList())
}

func TestManager_SelfWriteSuppression(t *testing.T) {
	h := newHarness(t)
	doc, _ := h.open("a.md", "v1")

	doc.Set([]byte("mine"))
	require.NoError(t, doc.Save(h.mgr))
	h.emit("a.md", watcher.EventModified)
	h.emit("a.md", watcher.EventModified)

	require.Eventually(t, func() bool { return len(h.journal.outcomeList()) == 1 }, waitFor, pollEvery)
	assert.Equal(t, "ignored", h.journal.outcomeList()[0])
	assert.Empty(t, h.shell.promptCalls())
	assert.Equal(t, "mine", string(doc.Content()))
	h.waitState("a.md", reconcile.StateClean)

	s, err := h.mgr.Session(h.path("a.md"))
	require.NoError(t, err)
	assert.True(t, s.machine.Known().Equal(fingerprint.Of([]byte("mine"))))
}

func TestManager_SelfWriteWithDirtyEditsAfterSave(t *testing.T) {
	h := newHarness(t)
	doc, _ := h.open("a.md", "v1")

	doc.Set([]byte("saved"))
	require.NoError(t, doc.Save(h.mgr))
	doc.Append([]byte(" and more"))
	h.emit("a.md", watcher.EventModified)

	// The save's own notification must not escalate the new edits to a conflict.
	assert.Never(t, func() bool { return len(h.shell.promptCalls()) > 0 }, quietPeriod, pollEvery)
	h.waitState("a.md", reconcile.StateDirty)
}

func TestManager_ConflictScenario(t *testing.T) {
	h := newHarness(t)
	doc, _ := h.open("a.md", "F0")
	f0 := fingerprint.Of([]byte("F0"))
	f1 := fingerprint.Of([]byte("F1"))

	doc.Append([]byte(" edited"))
	h.waitState("a.md", reconcile.StateDirty)

	h.write("a.md", "F1")
	h.emit("a.md", watcher.EventModified)

	require.Eventually(t, func() bool { return len(h.shell.promptCalls()) == 1 }, waitFor, pollEvery)
	call := h.shell.promptCalls()[0]
	assert.Equal(t, h.path("a.md"), call.path)
	assert.True(t, call.known.Equal(f0))
	assert.True(t, call.disk.Equal(f1))
	h.waitState("a.md", reconcile.StateConflictPending)
	assert.True(t, doc.Status().Conflicted)
	assert.Equal(t, "F0 edited", string(doc.Content()))

	h.shell.answers <- reconcile.ReloadTheirs

	h.waitState("a.md", reconcile.StateClean)
	assert.Equal(t, "F1", string(doc.Content()))
	assert.False(t, doc.Status().Conflicted)

	s, err := h.mgr.Session(h.path("a.md"))
	require.NoError(t, err)
	assert.True(t, s.machine.Known().Equal(f1))
}

func TestManager_ConflictAbsorbsFurtherChanges(t *testing.T) {
	h := newHarness(t)
	doc, _ := h.open("a.md", "F0")
	doc.Append([]byte("!"))

	h.write("a.md", "F1")
	h.emit("a.md", watcher.EventModified)
	require.Eventually(t, func() bool { return len(h.shell.promptCalls()) == 1 }, waitFor, pollEvery)

	h.write("a.md", "F2")
	h.emit("a.md", watcher.EventModified)
	require.Eventually(t, func() bool {
		out := h.journal.outcomeList()
		return len(out) == 2 && out[1] == "absorbed"
	}, waitFor, pollEvery)
	assert.Len(t, h.shell.promptCalls(), 1, "no re-prompt while one is outstanding")

	h.shell.answers <- reconcile.KeepMine
	h.waitState("a.md", reconcile.StateDirty)
	assert.Equal(t, "F0!", string(doc.Content()))
	assert.False(t, doc.Status().Conflicted)
}

func TestManager_CloseWithdrawsPrompt(t *testing.T) {
	h := newHarness(t)
	doc, _ := h.open("a.md", "F0")
	doc.Append([]byte("!"))

	h.write("a.md", "F1")
	h.emit("a.md", watcher.EventModified)
	require.Eventually(t, func() bool { return len(h.shell.promptCalls()) == 1 }, waitFor, pollEvery)

	require.NoError(t, h.mgr.OnDocumentClosed(h.path("a.md")))

	ctx := h.shell.promptCalls()[0].ctx
	select {
	case <-ctx.Done():
	case <-time.After(waitFor):
		t.Fatal("prompt was not withdrawn on close")
	}
}

func TestManager_DeletionRoundTrip(t *testing.T) {
	h := newHarness(t)
	doc, _ := h.open("a.md", "v1")

	require.NoError(t, os.Remove(h.path("a.md")))
	h.emit("a.md", watcher.EventDeleted)

	h.waitState("a.md", reconcile.StateDeleted)
	assert.True(t, doc.Status().Deleted)

	h.write("a.md", "v2")
	h.emit("a.md", watcher.EventCreated)

	h.waitState("a.md", reconcile.StateClean)
	assert.False(t, doc.Status().Deleted)
	assert.Equal(t, "v2", string(doc.Content()))
}

func TestManager_SaveRecreatesDeletedFile(t *testing.T) {
	h := newHarness(t)
	doc, _ := h.open("a.md", "v1")

	require.NoError(t, os.Remove(h.path("a.md")))
	h.emit("a.md", watcher.EventDeleted)
	h.waitState("a.md", reconcile.StateDeleted)

	require.NoError(t, doc.Save(h.mgr))
	h.emit("a.md", watcher.EventCreated)

	h.waitState("a.md", reconcile.StateClean)
	assert.False(t, doc.Status().Deleted)
	assert.Empty(t, h.shell.promptCalls())
}

func TestManager_TerminalEventAndReattach(t *testing.T) {
	h := newHarness(t)
	doc, _ := h.open("a.md", "v1")
	path := h.path("a.md")

	// The directory goes away: the watch ends and re-opening fails for now.
	h.source.FailOpen(path, errors.WatchTargetUnavailable(path, os.ErrNotExist))
	require.NoError(t, os.Remove(path))
	h.emit("a.md", watcher.EventSelfDeleted)

	h.waitState("a.md", reconcile.StateDeleted)
	require.Eventually(t, func() bool { return h.shell.advised(errors.ErrWatchTargetUnavailable) }, waitFor, pollEvery)
	require.Eventually(t, func() bool { return h.mgr.Live() == 0 }, waitFor, pollEvery)
	assert.True(t, doc.Status().Deleted)

	// The directory is back: the session re-attaches and re-validates.
	h.write("a.md", "v2")
	h.source.FailOpen(path, nil)

	require.Eventually(t, func() bool { return h.mgr.Live() == 1 }, waitFor, pollEvery)
	h.waitState("a.md", reconcile.StateClean)
	assert.Equal(t, "v2", string(doc.Content()))
	assert.Equal(t, 1, h.source.Live())
}

func TestManager_TerminalEventWithUnreadablePath(t *testing.T) {
	h := newHarness(t)
	_, s := h.open("a.md", "v1")
	path := h.path("a.md")

	h.source.FailOpen(path, errors.WatchTargetUnavailable(path, os.ErrNotExist))
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))
	h.emit("a.md", watcher.EventSelfDeleted)

	require.Eventually(t, func() bool { return len(h.shell.reportedErrors()) > 0 }, waitFor, pollEvery)
	assert.True(t, errors.Is(h.shell.reportedErrors()[0], errors.ErrFingerprintRead))
	require.Eventually(t, func() bool { return h.shell.advised(errors.ErrWatchTargetUnavailable) }, waitFor, pollEvery)
	require.Eventually(t, func() bool { return h.mgr.Live() == 0 }, waitFor, pollEvery)
	assert.False(t, s.Watching())
	assert.Equal(t, 0, h.source.Live())

	// The session keeps trying and re-attaches once the path can be watched.
	h.source.FailOpen(path, nil)
	require.Eventually(t, func() bool { return h.mgr.Live() == 1 }, waitFor, pollEvery)
	assert.True(t, s.Watching())
}

func TestManager_OpenWithUnavailableDirectory(t *testing.T) {
	h := newHarness(t)
	path := h.path("a.md")
	h.source.FailOpen(path, errors.WatchTargetUnavailable(path, os.ErrNotExist))

	doc := editor.New(path, []byte("draft"))
	s, err := h.mgr.OnDocumentOpened(context.Background(), path, doc)
	require.NoError(t, err)
	assert.False(t, s.Watching())
	assert.Equal(t, 0, h.mgr.Live())
	assert.True(t, h.shell.advised(errors.ErrWatchTargetUnavailable))
	assert.Equal(t, reconcile.StateDeleted, s.State())

	h.source.FailOpen(path, nil)
	require.Eventually(t, s.Watching, waitFor, pollEvery)
	assert.Equal(t, 1, h.mgr.Live())
}

func TestManager_OpenFailsOnOtherErrors(t *testing.T) {
	h := newHarness(t)
	path := h.path("a.md")
	h.source.FailOpen(path, errors.New("too many open files"))

	_, err := h.mgr.OnDocumentOpened(context.Background(), path, editor.New(path, nil))
	require.Error(t, err)
	assert.Empty(t, h.mgr.Paths())
}

func TestManager_OverflowResync(t *testing.T) {
	h := newHarness(t)
	doc, _ := h.open("a.md", "v1")

	// The change itself was lost; only the overflow is reported.
	h.write("a.md", "v2")
	mem, ok := h.source.Subscription(h.path("a.md"))
	require.True(t, ok)
	require.True(t, mem.Fail(errors.TransientObservation(errors.New("queue overflow"))))

	require.Eventually(t, func() bool { return string(doc.Content()) == "v2" }, waitFor, pollEvery)
	assert.Empty(t, h.shell.reportedErrors())
}

func TestManager_ResyncOnRequest(t *testing.T) {
	h := newHarness(t)
	doc, _ := h.open("a.md", "v1")

	// No event at all: the user asks for a check.
	h.write("a.md", "v2")
	require.NoError(t, h.mgr.Resync(h.path("a.md")))

	require.Eventually(t, func() bool { return string(doc.Content()) == "v2" }, waitFor, pollEvery)

	err := h.mgr.Resync(h.path("other.md"))
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestManager_FingerprintReadFailureIsReported(t *testing.T) {
	h := newHarness(t)
	doc, _ := h.open("a.md", "v1")

	// Replace the file with a directory so it cannot be fingerprinted.
	require.NoError(t, os.Remove(h.path("a.md")))
	require.NoError(t, os.Mkdir(h.path("a.md"), 0o755))
	h.emit("a.md", watcher.EventModified)

	require.Eventually(t, func() bool { return len(h.shell.reportedErrors()) == 1 }, waitFor, pollEvery)
	assert.True(t, errors.Is(h.shell.reportedErrors()[0], errors.ErrFingerprintRead))
	assert.Equal(t, "v1", string(doc.Content()))
	h.waitState("a.md", reconcile.StateClean)
}

func TestManager_PathChanged(t *testing.T) {
	h := newHarness(t)
	doc, old := h.open("a.md", "content")

	require.NoError(t, doc.SaveTo(h.mgr, h.path("b.md")))
	oldSub, _ := h.source.Subscription(h.path("a.md"))

	s, err := h.mgr.OnDocumentPathChanged(context.Background(), h.path("a.md"), h.path("b.md"))
	require.NoError(t, err)

	assert.Equal(t, h.path("b.md"), s.Path())
	assert.Equal(t, []string{h.path("b.md")}, h.mgr.Paths())
	assert.Equal(t, 1, h.mgr.Live())
	assert.Equal(t, 2, h.source.Opened())
	assert.True(t, oldSub.Closed())
	select {
	case <-old.Done():
	case <-time.After(waitFor):
		t.Fatal("old session loop did not exit")
	}

	// Changes to the new path are reconciled.
	h.write("b.md", "external")
	h.emit("b.md", watcher.EventModified)
	require.Eventually(t, func() bool { return string(doc.Content()) == "external" }, waitFor, pollEvery)
}

func TestManager_SaveAsThenExternalEditInStatMode(t *testing.T) {
	h := newHarnessWith(t, newFakeJournal(), fingerprint.ModeStat)
	doc, _ := h.open("a.md", "content")

	require.NoError(t, doc.SaveTo(h.mgr, h.path("b.md")))
	_, err := h.mgr.OnDocumentPathChanged(context.Background(), h.path("a.md"), h.path("b.md"))
	require.NoError(t, err)

	_, pending := h.mgr.suppressor.Pending(h.path("b.md"))
	assert.False(t, pending, "the finished save-as must not suppress later changes")

	h.write("b.md", "external edit, longer")
	h.emit("b.md", watcher.EventModified)

	require.Eventually(t, func() bool { return string(doc.Content()) == "external edit, longer" }, waitFor, pollEvery)
	assert.False(t, doc.Status().Dirty)
	h.waitState("b.md", reconcile.StateClean)
}

func TestManager_PathChangedErrors(t *testing.T) {
	h := newHarness(t)
	h.open("a.md", "a")
	h.open("b.md", "b")

	_, err := h.mgr.OnDocumentPathChanged(context.Background(), h.path("a.md"), h.path("b.md"))
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))

	_, err = h.mgr.OnDocumentPathChanged(context.Background(), h.path("zz.md"), h.path("c.md"))
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	// A failed open of the new path leaves the old watch in place.
	h.source.FailOpen(h.path("c.md"), errors.New("boom"))
	_, err = h.mgr.OnDocumentPathChanged(context.Background(), h.path("a.md"), h.path("c.md"))
	require.Error(t, err)
	assert.Equal(t, []string{h.path("a.md"), h.path("b.md")}, h.mgr.Paths())
	assert.Equal(t, 2, h.mgr.Live())
}

func TestManager_ChangedSinceLastSession(t *testing.T) {
	journal := newFakeJournal()
	h := newHarnessWithJournal(t, journal)

	require.NoError(t, journal.RecordOpen(context.Background(), h.path("a.md"), "doc-old", fingerprint.Of([]byte("yesterday"))))

	doc, _ := h.open("a.md", "today")
	assert.True(t, h.shell.advised(errors.ErrConflict))

	entry, err := journal.Last(context.Background(), h.path("a.md"))
	require.NoError(t, err)
	assert.Equal(t, doc.ID(), entry.DocumentID)
	assert.True(t, entry.Fingerprint.Equal(fingerprint.Of([]byte("today"))))
}

func TestManager_DispatcherRunsMutations(t *testing.T) {
	h := newHarness(t)
	calls := make(chan struct{}, 16)
	h.mgr.opts.Dispatcher = func(fn func()) {
		calls <- struct{}{}
		fn()
	}

	doc, _ := h.open("a.md", "v1")
	h.write("a.md", "v2")
	h.emit("a.md", watcher.EventModified)

	require.Eventually(t, func() bool { return string(doc.Content()) == "v2" }, waitFor, pollEvery)
	assert.NotEmpty(t, calls)
}
