package session

import (
	"time"

	"github.com/listenupapp/docwatch/internal/debounce"
	"github.com/listenupapp/docwatch/internal/store"
)

// Options configures a Manager.
type Options struct {
	// Dispatcher runs buffer mutations. Defaults to Inline.
	Dispatcher Dispatcher

	// Journal records open fingerprints and outcomes. Defaults to a no-op.
	Journal store.Journal

	// DebounceWindow is the quiet window of each coalescer.
	DebounceWindow time.Duration

	// ReattachInterval is how often a session whose watch was lost retries.
	ReattachInterval time.Duration

	// ResyncPerSecond limits lost-event recoveries per document.
	ResyncPerSecond float64
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.Dispatcher == nil {
		o.Dispatcher = Inline
	}
	if o.Journal == nil {
		o.Journal = store.NewNoopJournal()
	}
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = debounce.DefaultWindow
	}
	if o.ReattachInterval <= 0 {
		o.ReattachInterval = 2 * time.Second
	}
	if o.ResyncPerSecond <= 0 {
		o.ResyncPerSecond = 2
	}
}
