package fanout

// RunResult summarizes one collector run, successful or not.
type RunResult struct {
	Limit int

	// Emitted is the number of results handed to emit, always a prefix of 1..Limit.
	Emitted int

	// Started is the number of task bodies that began running.
	Started int

	// PeakInFlight is the highest number of task bodies observed running at once.
	PeakInFlight int

	// FinalState is the lifecycle state of each task by index.
	FinalState ExecutionState
}
