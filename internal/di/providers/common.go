package providers

import "time"

const (
	// shutdownTimeout is the maximum time to wait for session loops to exit.
	shutdownTimeout = 5 * time.Second
)
