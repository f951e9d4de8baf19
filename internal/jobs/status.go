package jobs

// State represents the lifecycle state of a job. The string values are
// what clients see in status responses.
type State string

const (
	StateStarting    State = "starting"
	StateDownloading State = "downloading"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// IsActive reports whether the job has not yet finished.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateDownloading
}

// canTransition encodes Starting -> Downloading -> {Completed|Failed}.
// Downloading -> Downloading carries progress updates. A job may also fail
// straight out of Starting when the engine is never reached.
func canTransition(from, to State) bool {
	switch from {
	case StateStarting:
		return to == StateDownloading || to == StateFailed
	case StateDownloading:
		return to == StateDownloading || to == StateCompleted || to == StateFailed
	default:
		return false
	}
}
