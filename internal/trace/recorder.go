package trace

import (
	"sync"

	"github.com/google/uuid"
)

// Sink receives task lifecycle events from a Collector or Chain.
//
// Events arrive from many task goroutines at once. A sink cannot fail a run,
// so Record returns nothing.
type Sink interface {
	Record(event TraceEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(TraceEvent) {}

// SafeRecord hands event to s. A panicking sink loses the event, not the run.
func SafeRecord(s Sink, event TraceEvent) {
	if s == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.Record(event)
}

// Recorder keeps every lifecycle event of one run in memory.
//
// Events for different indices interleave in whatever order the scheduler ran
// the tasks. Each index emits at most one event of each kind, so the canonical
// (index, kind) sort in Trace recovers the same sequence for every timing.
type Recorder struct {
	runID  string
	mu     sync.Mutex
	events []TraceEvent
}

// NewRecorder returns a Recorder tagged with a fresh random run ID.
func NewRecorder() *Recorder { return &Recorder{runID: uuid.NewString()} }

// RunID returns the identifier stamped on traces built by this recorder.
func (r *Recorder) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

// Record appends event. It is safe to call from task goroutines.
func (r *Recorder) Record(event TraceEvent) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Snapshot copies the events recorded so far, in arrival order.
func (r *Recorder) Snapshot() []TraceEvent {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Trace builds the canonical trace of a run over indices 1..limit.
func (r *Recorder) Trace(limit int) ExecutionTrace {
	tr := ExecutionTrace{RunID: r.RunID(), Limit: limit}
	tr.Events = r.Snapshot()
	tr.Canonicalize()
	return tr
}
