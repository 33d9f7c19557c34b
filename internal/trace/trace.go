package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ExecutionTrace is the canonical record of one fan-out run.
//
// Invariants:
//   - Events describe logical lifecycle facts, never timing.
//   - Canonical ordering is by (Index, kind order), independent of completion order.
//   - RunID identifies the attempt; it is excluded from CanonicalJSON and Hash so
//     two runs over the same range hash identically.
type ExecutionTrace struct {
	RunID  string
	Limit  int
	Events []TraceEvent
}

// TraceEventKind is the stable discriminator for TraceEvent.
// The string values are part of the canonical bytes; do not rename.
type TraceEventKind string

const (
	EventTaskStarted   TraceEventKind = "TaskStarted"
	EventTaskCompleted TraceEventKind = "TaskCompleted"
	EventTaskFailed    TraceEventKind = "TaskFailed"
	EventTaskEmitted   TraceEventKind = "TaskEmitted"
)

// Stable failure reason codes.
const (
	ReasonCancelled = "Cancelled"
	ReasonPanic     = "Panic"
	ReasonError     = "Error"
)

// TraceEvent is a single lifecycle transition of one task.
//
// Determinism constraints:
//   - No timestamps.
//   - No error strings; failures carry a stable Reason code.
type TraceEvent struct {
	Kind TraceEventKind

	// Index is the 1-based task index. Required.
	Index int

	// Result is set for TaskCompleted and TaskEmitted.
	Result string

	// Reason is set for TaskFailed.
	Reason string
}

// Validate checks basic invariants and returns a descriptive error.
func (t *ExecutionTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.Limit < 0 {
		return fmt.Errorf("limit must be >= 0 (got %d)", t.Limit)
	}
	for i, e := range t.Events {
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if kindOrder(e.Kind) == unknownKindOrder {
			return fmt.Errorf("events[%d].kind %q is unknown", i, e.Kind)
		}
		if e.Index < 1 || e.Index > t.Limit {
			return fmt.Errorf("events[%d].index %d out of range [1, %d]", i, e.Index, t.Limit)
		}
		if e.Kind == EventTaskFailed && e.Reason == "" {
			return fmt.Errorf("events[%d].reason is required for kind %q", i, e.Kind)
		}
	}
	return nil
}

// Canonicalize stably sorts the events into canonical order.
func (t *ExecutionTrace) Canonicalize() {
	if t == nil {
		return
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a := t.Events[i]
		b := t.Events[j]

		if a.Index != b.Index {
			return a.Index < b.Index
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Result != b.Result {
			return a.Result < b.Result
		}
		return a.Reason < b.Reason
	})
}

const unknownKindOrder = 1000

func kindOrder(k TraceEventKind) int {
	switch k {
	case EventTaskStarted:
		return 10
	case EventTaskCompleted:
		return 20
	case EventTaskFailed:
		return 30
	case EventTaskEmitted:
		return 40
	default:
		return unknownKindOrder
	}
}

// CanonicalJSON returns the canonical JSON encoding of the trace without its RunID.
// It canonicalizes a copy to avoid mutating the caller's slice.
func (t ExecutionTrace) CanonicalJSON() ([]byte, error) {
	copyTrace := ExecutionTrace{Limit: t.Limit}
	copyTrace.Events = make([]TraceEvent, len(t.Events))
	copy(copyTrace.Events, t.Events)
	copyTrace.Canonicalize()
	if err := copyTrace.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&copyTrace)
}

// Hash returns the sha256 hex of the canonical JSON bytes.
func (t ExecutionTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}

// MarshalJSON fixes field order and omits the RunID when empty.
func (t ExecutionTrace) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	if t.RunID != "" {
		buf.WriteString("\"runId\":")
		rb, _ := json.Marshal(t.RunID)
		buf.Write(rb)
		buf.WriteByte(',')
	}

	fmt.Fprintf(&buf, "\"limit\":%d,", t.Limit)

	buf.WriteString("\"events\":[")
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteByte(']')

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON fixes field order and omits empty optional fields.
func (e TraceEvent) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}

	var buf bytes.Buffer
	buf.WriteByte('{')

	buf.WriteString("\"kind\":")
	kb, _ := json.Marshal(string(e.Kind))
	buf.Write(kb)

	fmt.Fprintf(&buf, ",\"index\":%d", e.Index)

	if e.Result != "" {
		buf.WriteString(",\"result\":")
		rb, _ := json.Marshal(e.Result)
		buf.Write(rb)
	}

	if e.Reason != "" {
		buf.WriteString(",\"reason\":")
		rb, _ := json.Marshal(e.Reason)
		buf.Write(rb)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
