package session

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/listenupapp/docwatch/internal/editor"
	"github.com/listenupapp/docwatch/internal/errors"
	"github.com/listenupapp/docwatch/internal/fingerprint"
	"github.com/listenupapp/docwatch/internal/reconcile"
	"github.com/listenupapp/docwatch/internal/selfwrite"
	"github.com/listenupapp/docwatch/internal/store"
	"github.com/listenupapp/docwatch/internal/watcher"
)

const (
	testWindow  = 20 * time.Millisecond
	waitFor     = 2 * time.Second
	pollEvery   = 5 * time.Millisecond
	quietPeriod = 10 * testWindow
)

type promptCall struct {
	ctx   context.Context
	path  string
	known fingerprint.Fingerprint
	disk  fingerprint.Fingerprint
}

// fakeShell answers prompts from a channel.
type fakeShell struct {
	answers  chan reconcile.Decision
	mu       sync.Mutex
	prompts  []promptCall
	advice   []error
	reported []error
}

func newFakeShell() *fakeShell {
	return &fakeShell{answers: make(chan reconcile.Decision, 4)}
}

func (f *fakeShell) PromptConflict(ctx context.Context, path string, known, disk fingerprint.Fingerprint) (reconcile.Decision, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, promptCall{ctx: ctx, path: path, known: known, disk: disk})
	f.mu.Unlock()

	select {
	case d := <-f.answers:
		return d, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (f *fakeShell) Advise(_ string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advice = append(f.advice, err)
}

func (f *fakeShell) ReportError(_ string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reported = append(f.reported, err)
}

func (f *fakeShell) promptCalls() []promptCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]promptCall(nil), f.prompts...)
}

func (f *fakeShell) advised(target error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, err := range f.advice {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (f *fakeShell) reportedErrors() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.reported...)
}

// fakeJournal is an in-memory store.Journal.
type fakeJournal struct {
	entries  map[string]*store.Entry
	outcomes []string
	mu       sync.Mutex
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{entries: make(map[string]*store.Entry)}
}

func (j *fakeJournal) RecordOpen(_ context.Context, path, documentID string, fp fingerprint.Fingerprint) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[path] = &store.Entry{Path: path, DocumentID: documentID, Fingerprint: fp, OpenedAt: time.Now()}
	return nil
}

func (j *fakeJournal) RecordOutcome(_ context.Context, path string, fp fingerprint.Fingerprint, state, outcome string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.entries[path]
	if !ok {
		return store.NotJournaled(path)
	}
	e.Fingerprint, e.State, e.Outcome = fp, state, outcome
	j.outcomes = append(j.outcomes, outcome)
	return nil
}

func (j *fakeJournal) Last(_ context.Context, path string) (*store.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.entries[path]
	if !ok {
		return nil, store.NotJournaled(path)
	}
	cp := *e
	return &cp, nil
}

func (j *fakeJournal) Forget(_ context.Context, path string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.entries, path)
	return nil
}

func (j *fakeJournal) Recent(context.Context, int) ([]*store.Entry, error) { return nil, nil }

func (j *fakeJournal) Close() error { return nil }

func (j *fakeJournal) outcomeList() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.outcomes...)
}

type harness struct {
	t       *testing.T
	mgr     *Manager
	source  *watcher.MemorySource
	shell   *fakeShell
	journal *fakeJournal
	dir     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithJournal(t, newFakeJournal())
}

func newHarnessWithJournal(t *testing.T, journal *fakeJournal) *harness {
	t.Helper()
	return newHarnessWith(t, journal, fingerprint.ModeContent)
}

func newHarnessWith(t *testing.T, journal *fakeJournal, mode fingerprint.Mode) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		t:       t,
		source:  watcher.NewMemorySource(),
		shell:   newFakeShell(),
		journal: journal,
		dir:     t.TempDir(),
	}
	h.mgr = NewManager(
		h.source,
		fingerprint.NewFileReader(mode),
		selfwrite.New(time.Second, logger),
		h.shell,
		logger,
		Options{
			Journal:          journal,
			DebounceWindow:   testWindow,
			ReattachInterval: testWindow,
			ResyncPerSecond:  100,
		},
	)
	t.Cleanup(func() { _ = h.mgr.Close() })
	return h
}

func (h *harness) path(name string) string {
	return filepath.Join(h.dir, name)
}

func (h *harness) write(name, content string) {
	h.t.Helper()
	require.NoError(h.t, os.WriteFile(h.path(name), []byte(content), 0o644))
}

// open writes name with content and opens it as a document.
func (h *harness) open(name, content string) (*editor.Document, *Session) {
	h.t.Helper()
	h.write(name, content)

	doc, err := editor.Open(h.path(name))
	require.NoError(h.t, err)
	s, err := h.mgr.OnDocumentOpened(context.Background(), doc.Path(), doc)
	require.NoError(h.t, err)
	return doc, s
}

// emit delivers a raw event on the subscription for name.
func (h *harness) emit(name string, kind watcher.EventKind) {
	h.t.Helper()
	sub, ok := h.source.Subscription(h.path(name))
	require.True(h.t, ok, "no subscription for %s", name)
	require.True(h.t, sub.Emit(kind))
}

func (h *harness) waitState(name string, want reconcile.State) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		st, err := h.mgr.State(h.path(name))
		return err == nil && st == want
	}, waitFor, pollEvery, "state never became %s", want)
}
