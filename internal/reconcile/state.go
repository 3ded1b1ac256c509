package reconcile

// State is the reconciliation state of one open document.
type State int

const (
	// StateClean means the buffer matches the last known disk content.
	StateClean State = iota
	// StateDirty means the buffer has unsaved edits.
	StateDirty
	// StateConflictPending means an external change collided with unsaved
	// edits and the user has not decided yet.
	StateConflictPending
	// StateDeleted means the file is gone from disk.
	StateDeleted
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateConflictPending:
		return "conflict_pending"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Outcome is what handling one change did.
type Outcome int

const (
	// OutcomeIgnored means nothing changed: the disk content matched, or the
	// change needed no action.
	OutcomeIgnored Outcome = iota
	// OutcomeReloaded means the buffer was silently reloaded from disk.
	OutcomeReloaded
	// OutcomeConflict means the user must be prompted.
	OutcomeConflict
	// OutcomeAbsorbed means a prompt is already outstanding.
	OutcomeAbsorbed
	// OutcomeMarkedDeleted means the buffer was flagged deleted.
	OutcomeMarkedDeleted
	// OutcomeResolved means a conflict was settled in favour of the buffer.
	OutcomeResolved
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeReloaded:
		return "reloaded"
	case OutcomeConflict:
		return "conflict"
	case OutcomeAbsorbed:
		return "absorbed"
	case OutcomeMarkedDeleted:
		return "marked_deleted"
	case OutcomeResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Decision is the user's answer to a conflict prompt.
type Decision int

const (
	// KeepMine keeps the buffer and accepts the disk version as seen.
	KeepMine Decision = iota
	// ReloadTheirs discards the buffer's edits and loads the disk version.
	ReloadTheirs
	// MergeManually keeps the buffer, still flagged conflicted, for the user
	// to merge by hand.
	MergeManually
)

// String returns the string representation of the decision.
func (d Decision) String() string {
	switch d {
	case KeepMine:
		return "keep_mine"
	case ReloadTheirs:
		return "reload_theirs"
	case MergeManually:
		return "merge_manually"
	default:
		return "unknown"
	}
}

// ParseDecision converts a prompt answer into a Decision.
func ParseDecision(s string) (Decision, bool) {
	switch s {
	case "k", "keep", "keep_mine":
		return KeepMine, true
	case "r", "reload", "reload_theirs":
		return ReloadTheirs, true
	case "m", "merge", "merge_manually":
		return MergeManually, true
	default:
		return 0, false
	}
}
