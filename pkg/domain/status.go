package domain

// Status is the lifecycle status reported by a snapshot.
type Status string

const (
	StatusActive  Status = "active"  // Accepting events
	StatusDone    Status = "done"    // Reached a final configuration or produced output
	StatusError   Status = "error"   // Failed while processing
	StatusStopped Status = "stopped" // Stopped explicitly before completion
)

// IsTerminal reports whether no further events will be processed.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusError || s == StatusStopped
}
