package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/listenupapp/docwatch/internal/editor"
	"github.com/listenupapp/docwatch/internal/reconcile"
	"github.com/listenupapp/docwatch/internal/session"
	"github.com/listenupapp/docwatch/internal/store"
)

// defaultRecent is how many entries recent lists without an argument.
const defaultRecent = 10

const usage = `commands:
  open <path>     open a file (it may not exist yet)
  use <path>      switch to an open file
  list            list open files
  show            print the buffer
  set <text>      replace the buffer with one line of text
  append <text>   add a line of text
  save            write the buffer to its file
  saveas <path>   write the buffer to a new file and follow it
  reload          compare with the disk now
  status          show buffer flags and reconciliation state
  close           close the current file
  recent [n]      list recently opened files
  forget <path>   drop a closed file from the journal
  help            show this help
  quit            exit
`

// repl reads commands and conflict answers from one line stream. While a
// prompt is pending every line is taken as its answer.
type repl struct {
	term    *terminal
	mgr     *session.Manager
	journal store.Journal
	docs    map[string]*editor.Document
	current *editor.Document
	queue   []*prompt
}

func newREPL(term *terminal, mgr *session.Manager, journal store.Journal) *repl {
	return &repl{
		term:    term,
		mgr:     mgr,
		journal: journal,
		docs:    make(map[string]*editor.Document),
	}
}

func (r *repl) help() {
	r.term.printf("%s", usage)
}

// run serves lines until quit, EOF or ctx is done.
func (r *repl) run(ctx context.Context, lines <-chan string) error {
	for {
		r.dropWithdrawn()

		var withdrawn <-chan struct{}
		if len(r.queue) > 0 {
			withdrawn = r.queue[0].ctx.Done()
		}

		select {
		case <-ctx.Done():
			return nil

		case p := <-r.term.prompts:
			r.queue = append(r.queue, p)
			if len(r.queue) == 1 {
				r.term.printf("%s", p.question())
			}

		case <-withdrawn:
			r.next()

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if len(r.queue) > 0 {
				r.answer(strings.TrimSpace(line))
				continue
			}
			if quit := r.exec(ctx, line); quit {
				return nil
			}
		}
	}
}

// dropWithdrawn removes prompts whose documents went away.
func (r *repl) dropWithdrawn() {
	for len(r.queue) > 0 && r.queue[0].ctx.Err() != nil {
		r.next()
	}
}

// next pops the head prompt and asks the following one, if any.
func (r *repl) next() {
	r.queue = r.queue[1:]
	if len(r.queue) > 0 && r.queue[0].ctx.Err() == nil {
		r.term.printf("%s", r.queue[0].question())
	}
}

func (r *repl) answer(line string) {
	d, ok := reconcile.ParseDecision(strings.ToLower(line))
	if !ok {
		r.term.printf("answer k, r or m: ")
		return
	}
	r.queue[0].reply <- d
	r.next()
}

func (r *repl) exec(ctx context.Context, line string) (quit bool) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "":
	case "help":
		r.help()
	case "quit", "exit":
		return true
	case "open":
		r.open(ctx, arg)
	case "use":
		r.use(arg)
	case "list":
		r.list()
	case "recent":
		r.recent(ctx, arg)
	case "forget":
		r.forget(ctx, arg)
	default:
		doc := r.current
		if doc == nil {
			r.term.printf("no file open; try: open <path>\n")
			return false
		}
		r.docCommand(ctx, doc, cmd, arg)
	}
	return false
}

func (r *repl) docCommand(ctx context.Context, doc *editor.Document, cmd, arg string) {
	switch cmd {
	case "show":
		r.term.printf("%s", doc.Content())
		if c := doc.Content(); len(c) > 0 && c[len(c)-1] != '\n' {
			r.term.printf("\n")
		}
	case "set":
		doc.Set([]byte(arg + "\n"))
	case "append":
		doc.Append([]byte(arg + "\n"))
	case "save":
		if err := doc.Save(r.mgr); err != nil {
			r.term.ReportError(doc.Path(), err)
			return
		}
		r.term.printf("saved %s\n", doc.Path())
	case "saveas":
		r.saveAs(ctx, doc, arg)
	case "reload":
		if err := r.mgr.Resync(doc.Path()); err != nil {
			r.term.ReportError(doc.Path(), err)
		}
	case "status":
		r.status(doc)
	case "close":
		r.close(doc)
	default:
		r.term.printf("unknown command %q; try: help\n", cmd)
	}
}

func (r *repl) open(ctx context.Context, path string) {
	if path == "" {
		r.term.printf("usage: open <path>\n")
		return
	}
	doc, err := editor.Open(path)
	if err != nil {
		r.term.ReportError(path, err)
		return
	}
	if existing, ok := r.docs[doc.Path()]; ok {
		r.current = existing
		return
	}
	if _, err := r.mgr.OnDocumentOpened(ctx, doc.Path(), doc); err != nil {
		r.term.ReportError(doc.Path(), err)
		return
	}
	r.docs[doc.Path()] = doc
	r.current = doc

	st := doc.Status()
	if st.Deleted {
		r.term.printf("opened %s (new file)\n", st.Path)
		return
	}
	r.term.printf("opened %s (%d bytes)\n", st.Path, st.Size)
}

func (r *repl) use(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		r.term.printf("usage: use <path>\n")
		return
	}
	doc, ok := r.docs[abs]
	if !ok {
		r.term.printf("%s is not open\n", abs)
		return
	}
	r.current = doc
}

func (r *repl) list() {
	paths := make([]string, 0, len(r.docs))
	for p := range r.docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		mark := " "
		if r.current != nil && r.current.Path() == p {
			mark = "*"
		}
		state, err := r.mgr.State(p)
		if err != nil {
			r.term.printf("%s %s (%v)\n", mark, p, err)
			continue
		}
		r.term.printf("%s %s [%s]\n", mark, p, state)
	}
}

func (r *repl) saveAs(ctx context.Context, doc *editor.Document, path string) {
	if path == "" {
		r.term.printf("usage: saveas <path>\n")
		return
	}
	target, err := filepath.Abs(path)
	if err != nil {
		r.term.ReportError(path, err)
		return
	}
	oldPath := doc.Path()
	if target == oldPath {
		r.docCommand(ctx, doc, "save", "")
		return
	}
	if _, open := r.docs[target]; open {
		r.term.printf("%s is already open\n", target)
		return
	}

	if err := doc.SaveTo(r.mgr, target); err != nil {
		r.term.ReportError(target, err)
		return
	}
	if _, err := r.mgr.OnDocumentPathChanged(ctx, oldPath, target); err != nil {
		r.term.ReportError(target, err)
	}
	delete(r.docs, oldPath)
	r.docs[target] = doc
	r.term.printf("saved %s\n", target)
}

func (r *repl) status(doc *editor.Document) {
	st := doc.Status()
	state, err := r.mgr.State(st.Path)
	if err != nil {
		r.term.ReportError(st.Path, err)
		return
	}
	r.term.printf("%s %s: %d bytes, state %s, dirty %t, conflicted %t, deleted %t\n",
		st.ID, st.Path, st.Size, state, st.Dirty, st.Conflicted, st.Deleted)
	if st.Reason != "" {
		r.term.printf("  %s\n", st.Reason)
	}
}

func (r *repl) close(doc *editor.Document) {
	path := doc.Path()
	if err := r.mgr.OnDocumentClosed(path); err != nil {
		r.term.ReportError(path, err)
	}
	delete(r.docs, path)

	r.current = nil
	for _, other := range r.docs {
		r.current = other
		break
	}
	r.term.printf("closed %s\n", path)
}

func (r *repl) recent(ctx context.Context, arg string) {
	limit := defaultRecent
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			r.term.printf("usage: recent [n]\n")
			return
		}
		limit = n
	}

	entries, err := r.journal.Recent(ctx, limit)
	if err != nil {
		r.term.ReportError("journal", err)
		return
	}
	if len(entries) == 0 {
		r.term.printf("no recent files\n")
		return
	}
	for _, e := range entries {
		line := fmt.Sprintf("  %s  %s", e.OpenedAt.Local().Format(time.DateTime), e.Path)
		if e.Outcome != "" {
			line += fmt.Sprintf(" [%s, %s]", e.State, e.Outcome)
		}
		r.term.printf("%s\n", line)
	}
}

func (r *repl) forget(ctx context.Context, path string) {
	if path == "" {
		r.term.printf("usage: forget <path>\n")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		r.term.ReportError(path, err)
		return
	}
	if _, open := r.docs[abs]; open {
		r.term.printf("%s is open; close it first\n", abs)
		return
	}
	if err := r.journal.Forget(ctx, abs); err != nil {
		r.term.ReportError(abs, err)
		return
	}
	r.term.printf("forgot %s\n", abs)
}
