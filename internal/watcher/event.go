package watcher

import "time"

// EventKind represents the type of raw file system event for a watched path.
type EventKind int

const (
	// EventModified is emitted when the file's content was written.
	EventModified EventKind = iota
	// EventCreated is emitted when the file appears at the watched path.
	EventCreated
	// EventMovedTo is emitted when another file is renamed onto the watched path.
	EventMovedTo
	// EventMovedFrom is emitted when the file is renamed away from the watched path.
	EventMovedFrom
	// EventDeleted is emitted when the file is removed.
	EventDeleted
	// EventSelfDeleted is emitted once when the watched location itself goes
	// away and watching becomes impossible. It is always the last event.
	EventSelfDeleted
)

// String returns the string representation of the event kind
func (k EventKind) String() string {
	switch k {
	case EventModified:
		return "modified"
	case EventCreated:
		return "created"
	case EventMovedTo:
		return "moved_to"
	case EventMovedFrom:
		return "moved_from"
	case EventDeleted:
		return "deleted"
	case EventSelfDeleted:
		return "self_deleted"
	default:
		return "unknown"
	}
}

// Priority ranks kinds by how consequential they are. A deletion anywhere in
// a burst dominates the burst.
func (k EventKind) Priority() int {
	switch k {
	case EventSelfDeleted:
		return 4
	case EventDeleted:
		return 3
	case EventMovedFrom:
		return 2
	case EventCreated, EventMovedTo:
		return 1
	default:
		return 0
	}
}

// IsDeletion reports whether the kind means the file is no longer at its path.
func (k EventKind) IsDeletion() bool {
	return k == EventDeleted || k == EventMovedFrom || k == EventSelfDeleted
}

// Event represents a raw file system event for one watched path.
type Event struct {
	// At is when the event was received from the platform.
	At time.Time

	// Path is the watched path the event refers to.
	Path string

	// Kind is the kind of event.
	Kind EventKind
}
