package fanout

// TaskState is the runtime lifecycle state of a single task.
//
//	PENDING, RUNNING, COMPLETED, FAILED, EMITTED
type TaskState string

const (
	TaskPending   TaskState = "PENDING"
	TaskRunning   TaskState = "RUNNING"
	TaskCompleted TaskState = "COMPLETED"
	TaskFailed    TaskState = "FAILED"
	TaskEmitted   TaskState = "EMITTED"
)

// ExecutionState maps a 1-based task index to its current TaskState.
type ExecutionState map[int]TaskState

// Counts tallies the tasks in each state.
func (s ExecutionState) Counts() map[TaskState]int {
	out := make(map[TaskState]int, 5)
	for _, st := range s {
		out[st]++
	}
	return out
}
