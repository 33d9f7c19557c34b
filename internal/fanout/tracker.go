package fanout

import (
	"log/slog"
	"sync"

	"fanout/internal/trace"
)

// tracker owns the per-index lifecycle state of one run and mirrors every
// accepted transition into the trace sink.
type tracker struct {
	sink   trace.Sink
	logger *slog.Logger

	mu      sync.Mutex
	state   ExecutionState
	started int
	running int
	peak    int
}

func (t *tracker) reset(limit int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = make(ExecutionState, limit)
	for i := 1; i <= limit; i++ {
		t.state[i] = TaskPending
	}
	t.started = 0
	t.running = 0
	t.peak = 0
}

func (t *tracker) snapshot() ExecutionState {
	t.mu.Lock()
	defer t.mu.Unlock()

	cp := make(ExecutionState, len(t.state))
	for k, v := range t.state {
		cp[k] = v
	}
	return cp
}

func (t *tracker) begin(index int) {
	t.mu.Lock()
	t.started++
	t.running++
	if t.running > t.peak {
		t.peak = t.running
	}
	t.transitionLocked(index, TaskPending, TaskRunning)
	t.mu.Unlock()

	trace.SafeRecord(t.sink, trace.TraceEvent{Kind: trace.EventTaskStarted, Index: index})
}

// finish settles a task. entered is false when the body never began.
func (t *tracker) finish(index int, entered bool, result string, err error) {
	from := TaskPending
	t.mu.Lock()
	if entered {
		from = TaskRunning
		t.running--
	}
	if err != nil {
		t.transitionLocked(index, from, TaskFailed)
	} else {
		t.transitionLocked(index, from, TaskCompleted)
	}
	t.mu.Unlock()

	if err != nil {
		trace.SafeRecord(t.sink, trace.TraceEvent{Kind: trace.EventTaskFailed, Index: index, Reason: failureReason(err)})
		return
	}
	trace.SafeRecord(t.sink, trace.TraceEvent{Kind: trace.EventTaskCompleted, Index: index, Result: result})
}

func (t *tracker) emitted(index int, result string) {
	t.mu.Lock()
	t.transitionLocked(index, TaskCompleted, TaskEmitted)
	t.mu.Unlock()

	trace.SafeRecord(t.sink, trace.TraceEvent{Kind: trace.EventTaskEmitted, Index: index, Result: result})
}

// abandon fails every task that is still pending or running with cause.
// Completed tasks that were never emitted keep their state.
func (t *tracker) abandon(cause error) {
	var failed []int
	t.mu.Lock()
	for index, st := range t.state {
		if IsTerminal(st) || st == TaskCompleted {
			continue
		}
		if st == TaskRunning {
			t.running--
		}
		t.transitionLocked(index, st, TaskFailed)
		failed = append(failed, index)
	}
	t.mu.Unlock()

	reason := failureReason(cause)
	for _, index := range failed {
		trace.SafeRecord(t.sink, trace.TraceEvent{Kind: trace.EventTaskFailed, Index: index, Reason: reason})
	}
}

// transitionLocked logs rejected transitions; lifecycle state never changes a result.
func (t *tracker) transitionLocked(index int, from, to TaskState) {
	if err := Transition(t.state, index, from, to); err != nil {
		t.logger.Warn("lifecycle transition rejected", slog.Int("index", index), slog.Any("error", err))
	}
}

func (t *tracker) result(limit, emitted int) *RunResult {
	t.mu.Lock()
	started, peak := t.started, t.peak
	t.mu.Unlock()

	return &RunResult{
		Limit:        limit,
		Emitted:      emitted,
		Started:      started,
		PeakInFlight: peak,
		FinalState:   t.snapshot(),
	}
}
