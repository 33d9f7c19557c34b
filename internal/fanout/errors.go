package fanout

import (
	"context"
	"errors"
	"fmt"

	"fanout/internal/trace"
)

var (
	ErrTaskFailed     = errors.New("task failed")
	ErrTaskPanicked   = errors.New("task panicked")
	ErrHandleConsumed = errors.New("task handle already consumed")
)

// TaskError reports the first task, in index order, whose handle yielded an error.
type TaskError struct {
	Index int
	Err   error
}

func (e *TaskError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: task %d", ErrTaskFailed, e.Index)
	}
	return fmt.Sprintf("%s: task %d: %v", ErrTaskFailed, e.Index, e.Err)
}

// Is lets errors.Is(err, ErrTaskFailed) match any TaskError.
func (e *TaskError) Is(target error) bool { return target == ErrTaskFailed }

func (e *TaskError) Unwrap() error { return e.Err }

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return trace.ReasonCancelled
	case errors.Is(err, ErrTaskPanicked):
		return trace.ReasonPanic
	default:
		return trace.ReasonError
	}
}
