package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/listenupapp/docwatch/internal/fingerprint"
	"github.com/listenupapp/docwatch/internal/reconcile"
	"github.com/listenupapp/docwatch/internal/session"
)

// terminal is the session.Shell of the command line editor. Prompts are
// handed to the REPL, which owns stdin; notices are printed directly.
type terminal struct {
	out     io.Writer
	prompts chan *prompt
	mu      sync.Mutex
}

var _ session.Shell = (*terminal)(nil)

// prompt is one pending conflict question.
type prompt struct {
	ctx   context.Context
	reply chan reconcile.Decision
	path  string
	known fingerprint.Fingerprint
	disk  fingerprint.Fingerprint
}

func newTerminal(out io.Writer) *terminal {
	return &terminal{
		out:     out,
		prompts: make(chan *prompt),
	}
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// PromptConflict queues the question for the REPL and waits for the answer.
func (t *terminal) PromptConflict(ctx context.Context, path string, known, disk fingerprint.Fingerprint) (reconcile.Decision, error) {
	p := &prompt{
		ctx:   ctx,
		reply: make(chan reconcile.Decision, 1),
		path:  path,
		known: known,
		disk:  disk,
	}

	select {
	case t.prompts <- p:
	case <-ctx.Done():
		return reconcile.MergeManually, ctx.Err()
	}

	select {
	case d := <-p.reply:
		return d, nil
	case <-ctx.Done():
		t.printf("prompt for %s withdrawn\n", path)
		return reconcile.MergeManually, ctx.Err()
	}
}

// Advise prints a notice.
func (t *terminal) Advise(path string, err error) {
	t.printf("note: %s: %v\n", path, err)
}

// ReportError prints an error.
func (t *terminal) ReportError(path string, err error) {
	t.printf("error: %s: %v\n", path, err)
}

func (p *prompt) question() string {
	what := "changed on disk"
	if !p.disk.Exists {
		what = "was deleted on disk"
	}
	return fmt.Sprintf("conflict: %s %s while you have unsaved edits (known %s, disk %s)\n"+
		"  [k]eep mine, [r]eload theirs, [m]erge manually? ", p.path, what, p.known, p.disk)
}
