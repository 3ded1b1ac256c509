package watcher

// Backend is one platform watch resource observing a single path.
// Backends start delivering as soon as they are created.
type Backend interface {
	// Events returns the channel for receiving events. It is closed by Stop.
	Events() <-chan Event

	// Errors returns the channel for receiving errors. It is closed by Stop.
	Errors() <-chan error

	// Stop releases the OS resource and closes both channels.
	// Calling Stop more than once is safe.
	Stop() error
}
