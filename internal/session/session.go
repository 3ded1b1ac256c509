package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/docwatch/internal/debounce"
	"github.com/listenupapp/docwatch/internal/errors"
	"github.com/listenupapp/docwatch/internal/reconcile"
	"github.com/listenupapp/docwatch/internal/watcher"
)

// journalTimeout bounds each journal write from a session loop.
const journalTimeout = 2 * time.Second

// errWatchLost is the cause reported when a watch ends on its own.
var errWatchLost = errors.New("the watched directory was deleted, moved or unmounted")

type decision struct {
	err      error
	decision reconcile.Decision
	prompt   uint64
}

// Session watches one open document. All machine transitions happen on its
// loop goroutine.
type Session struct {
	mgr     *Manager
	buf     reconcile.Buffer
	machine *reconcile.Machine
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	changes   chan debounce.Change
	resync    chan struct{}
	decisions chan decision
	done      chan struct{}

	id   string
	path string

	// Guarded by mu: the watch can be replaced by the loop (re-attach) while
	// Close runs on another goroutine.
	mu        sync.Mutex
	sub       watcher.Subscription
	coalescer *debounce.Coalescer
	closed    bool

	// Loop-owned.
	reattach     *time.Ticker
	resyncRetry  *time.Timer
	promptCancel context.CancelFunc
	prompt       uint64

	pumps     sync.WaitGroup
	closeOnce sync.Once
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Path returns the watched path.
func (s *Session) Path() string {
	return s.path
}

// State returns the reconciliation state of the document.
func (s *Session) State() reconcile.State {
	return s.machine.State()
}

// Watching reports whether the session holds a live subscription.
func (s *Session) Watching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub != nil
}

// Done is closed when the session loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// start launches the loop. sub may be nil when the watch could not be
// established; the loop then retries on the re-attach interval.
func (s *Session) start(sub watcher.Subscription) {
	if sub != nil {
		s.attach(sub)
	} else {
		s.reattach = time.NewTicker(s.mgr.opts.ReattachInterval)
	}
	go s.run()
}

// attach wires sub into a fresh coalescer and pump.
func (s *Session) attach(sub watcher.Subscription) {
	co := debounce.New(s.path, s.mgr.opts.DebounceWindow, s.enqueue, s.logger)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		_ = sub.Close()
		return
	}
	s.sub = sub
	s.coalescer = co
	s.mgr.live.Add(1)
	s.pumps.Add(1)
	go s.pump(sub, co)
}

// detach stops the coalescer and releases the subscription, if any. A
// final detach also prevents later attaches.
func (s *Session) detach(final bool) {
	s.mu.Lock()
	sub, co := s.sub, s.coalescer
	s.sub, s.coalescer = nil, nil
	if final {
		s.closed = true
	}
	s.mu.Unlock()

	if co != nil {
		co.Stop()
	}
	if sub != nil {
		if err := sub.Close(); err != nil {
			s.logger.Warn("failed to close subscription", "error", err)
		}
		s.mgr.live.Add(-1)
	}
}

// enqueue hands a settled change to the loop.
func (s *Session) enqueue(c debounce.Change) {
	select {
	case s.changes <- c:
	case <-s.ctx.Done():
	}
}

// requestResync asks the loop for a full comparison. Requests coalesce.
func (s *Session) requestResync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

// pump forwards raw events to the coalescer until sub is closed.
func (s *Session) pump(sub watcher.Subscription, co *debounce.Coalescer) {
	defer s.pumps.Done()

	events, errs := sub.Events(), sub.Errors()
	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			co.Add(ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.observeError(err)
		}
	}
}

func (s *Session) observeError(err error) {
	if errors.Is(err, errors.ErrTransientObservation) {
		s.logger.Warn("file events dropped, resynchronizing", "error", err)
		s.requestResync()
		return
	}
	s.logger.Error("watch error", "error", err)
	s.mgr.shell.Advise(s.path, err)
}

// run is the session loop.
func (s *Session) run() {
	defer close(s.done)
	defer s.stopTimers()

	for {
		var reattach <-chan time.Time
		if s.reattach != nil {
			reattach = s.reattach.C
		}

		select {
		case <-s.ctx.Done():
			return
		case c := <-s.changes:
			s.handleChange(c)
		case <-s.resync:
			s.handleResync()
		case d := <-s.decisions:
			s.handleDecision(d)
		case <-reattach:
			s.tryReattach()
		}
	}
}

func (s *Session) handleChange(c debounce.Change) {
	if s.ctx.Err() != nil {
		return
	}

	if pw, ok := s.mgr.suppressor.Filter(c); ok {
		if s.machine.AcknowledgeSelfWrite(pw.Expected, pw.EndedAt) {
			s.record(reconcile.OutcomeIgnored)
			return
		}
	}

	res, err := s.machine.Handle(c)
	if c.Terminal {
		// The subscription is dead whether or not the disk could be read.
		s.lost()
	}
	if err != nil {
		s.mgr.shell.ReportError(s.path, err)
		return
	}

	if res.Outcome == reconcile.OutcomeConflict {
		s.askUser(res)
	}
	s.record(res.Outcome)
}

// lost tears down a watch that ended on its own and starts re-attaching.
func (s *Session) lost() {
	s.detach(false)
	s.mgr.shell.Advise(s.path, errors.WatchTargetUnavailable(s.path, errWatchLost))
	if s.reattach == nil {
		s.reattach = time.NewTicker(s.mgr.opts.ReattachInterval)
	}
}

func (s *Session) tryReattach() {
	sub, err := s.mgr.source.Open(s.path)
	if err != nil {
		s.logger.Debug("re-attach failed", "error", err)
		return
	}

	s.reattach.Stop()
	s.reattach = nil
	s.attach(sub)
	s.logger.Info("watch re-attached")

	// Whatever happened while unwatched is re-validated as a creation.
	now := time.Now()
	s.handleChange(debounce.Change{
		Path:       s.path,
		Kind:       watcher.EventCreated,
		FirstSeen:  now,
		ObservedAt: now,
	})
}

func (s *Session) handleResync() {
	if !s.mgr.limiter.Allow(s.path) {
		if s.resyncRetry == nil {
			s.logger.Debug("resync throttled")
			s.resyncRetry = time.AfterFunc(time.Duration(float64(time.Second)/s.mgr.opts.ResyncPerSecond), func() {
				s.requestResync()
			})
		}
		return
	}
	if s.resyncRetry != nil {
		s.resyncRetry.Stop()
		s.resyncRetry = nil
	}

	// Through the suppressor: the lost events may have been our own save.
	now := time.Now()
	s.handleChange(debounce.Change{
		Path:       s.path,
		Kind:       watcher.EventModified,
		FirstSeen:  now,
		ObservedAt: now,
	})
}

// askUser raises the conflict prompt without blocking the loop. Changes
// arriving meanwhile are absorbed by the machine.
func (s *Session) askUser(res reconcile.Result) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.prompt++
	s.promptCancel = cancel
	prompt := s.prompt

	go func() {
		d, err := s.mgr.shell.PromptConflict(ctx, s.path, res.Known, res.Disk)
		select {
		case s.decisions <- decision{decision: d, err: err, prompt: prompt}:
		case <-ctx.Done():
		}
	}()
}

func (s *Session) handleDecision(d decision) {
	if d.prompt != s.prompt {
		return
	}
	if s.promptCancel != nil {
		s.promptCancel()
		s.promptCancel = nil
	}

	choice := d.decision
	if d.err != nil {
		// Never lose the user's edits to a failed prompt.
		s.logger.Warn("conflict prompt failed, keeping buffer flagged", "error", d.err)
		choice = reconcile.MergeManually
	}

	res, err := s.machine.Resolve(choice)
	if err != nil {
		s.mgr.shell.ReportError(s.path, err)
		return
	}
	s.record(res.Outcome)
}

// record journals the outcome of a transition.
func (s *Session) record(outcome reconcile.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	err := s.mgr.opts.Journal.RecordOutcome(ctx, s.path, s.machine.Known(), s.machine.State().String(), outcome.String())
	if err != nil {
		s.logger.Warn("failed to journal outcome", "outcome", outcome.String(), "error", err)
	}
}

func (s *Session) stopTimers() {
	if s.reattach != nil {
		s.reattach.Stop()
		s.reattach = nil
	}
	if s.resyncRetry != nil {
		s.resyncRetry.Stop()
		s.resyncRetry = nil
	}
	if s.promptCancel != nil {
		s.promptCancel()
		s.promptCancel = nil
	}
}

// close stops the loop, releases the watch and withdraws any prompt. It does
// not wait for the loop, which may be inside a Shell call.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.detach(true)
		s.pumps.Wait()
	})
}
