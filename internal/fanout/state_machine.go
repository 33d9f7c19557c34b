package fanout

import "fmt"

// IsTerminal reports whether the task will not change state again.
func IsTerminal(s TaskState) bool {
	switch s {
	case TaskFailed, TaskEmitted:
		return true
	default:
		return false
	}
}

// Transition performs a validated transition for a single task.
//
// The caller supplies the expected prior state (from) to make races observable.
// state is mutated if and only if the transition is valid.
func Transition(state ExecutionState, index int, from, to TaskState) error {
	cur, ok := state[index]
	if !ok {
		return fmt.Errorf("unknown task in state: %d", index)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for task %d: expected %s, got %s", index, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for task %d: %s -> %s", index, from, to)
	}
	state[index] = to
	return nil
}

func isAllowedTransition(from, to TaskState) bool {
	switch from {
	case TaskPending:
		// PENDING -> FAILED happens when admission is cancelled before the body runs.
		return to == TaskRunning || to == TaskFailed
	case TaskRunning:
		return to == TaskCompleted || to == TaskFailed
	case TaskCompleted:
		return to == TaskEmitted
	default:
		return false
	}
}
