package fanout

import (
	"context"
	"errors"
	"math/rand/v2"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fanout/internal/core"
	"fanout/internal/delay"
	"fanout/internal/trace"
)

func randomDelayer(maxMillis int) Delayer {
	return Sleeping(delay.NewSleeper(time.Duration(maxMillis) * time.Millisecond))
}

var noDelay = DelayerFunc(func(ctx context.Context, _ int) error { return ctx.Err() })

type collected struct {
	mu      sync.Mutex
	indices []int
	results []string
}

func (c *collected) emit(index int, result string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indices = append(c.indices, index)
	c.results = append(c.results, result)
	return nil
}

func expectedResults(limit int) []string {
	out := make([]string, 0, limit)
	for i := 1; i <= limit; i++ {
		out = append(out, core.Classify(i))
	}
	return out
}

func TestCollector_EmitsInIndexOrder_1To15(t *testing.T) {
	c, err := NewCollector(randomDelayer(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got collected
	res, err := c.Run(context.Background(), 15, got.emit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"1", "2", "Fizz", "4", "Buzz", "Fizz", "Bazz", "8", "Fizz", "Buzz", "11", "Fizz", "13", "Bazz", "FizzBuzz"}
	if !reflect.DeepEqual(got.results, want) {
		t.Fatalf("results mismatch\n got=%v\nwant=%v", got.results, want)
	}
	for i, idx := range got.indices {
		if idx != i+1 {
			t.Fatalf("emit order mismatch at %d: got index %d", i, idx)
		}
	}
	if res.Emitted != 15 || res.Started != 15 {
		t.Fatalf("unexpected result summary: %+v", res)
	}
	for i := 1; i <= 15; i++ {
		if res.FinalState[i] != TaskEmitted {
			t.Fatalf("task %d final state %s, want %s", i, res.FinalState[i], TaskEmitted)
		}
	}
}

func TestCollector_StableOrderAcrossRuns_20(t *testing.T) {
	want := expectedResults(30)
	for run := 0; run < 20; run++ {
		c, err := NewCollector(randomDelayer(3))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got collected
		if _, err := c.Run(context.Background(), 30, got.emit); err != nil {
			t.Fatalf("run %d unexpected error: %v", run, err)
		}
		if !reflect.DeepEqual(got.results, want) {
			t.Fatalf("run %d order mismatch\n got=%v\nwant=%v", run, got.results, want)
		}
	}
}

// barrierDelayer blocks every task until all n tasks have reached their delay.
// A collector that awaited before spawning everything would never release it.
type barrierDelayer struct {
	n       int32
	arrived atomic.Int32
	once    sync.Once
	all     chan struct{}
}

func newBarrierDelayer(n int) *barrierDelayer {
	return &barrierDelayer{n: int32(n), all: make(chan struct{})}
}

func (b *barrierDelayer) Delay(ctx context.Context, _ int) error {
	if b.arrived.Add(1) == b.n {
		b.once.Do(func() { close(b.all) })
	}
	select {
	case <-b.all:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestCollector_AllTasksStartedBeforeFirstAwait(t *testing.T) {
	const limit = 100
	b := newBarrierDelayer(limit)
	c, err := NewCollector(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	firstEmitSawAllStarted := false
	emit := func(index int, _ string) error {
		if index == 1 {
			firstEmitSawAllStarted = b.arrived.Load() == limit
		}
		return nil
	}

	res, err := c.Run(ctx, limit, emit)
	if err != nil {
		t.Fatalf("unexpected error (fan-out serialized behind await?): %v", err)
	}
	if !firstEmitSawAllStarted {
		t.Fatalf("first result was emitted before every task started")
	}
	if res.PeakInFlight != limit {
		t.Fatalf("expected all %d tasks in flight at once, peak was %d", limit, res.PeakInFlight)
	}
}

func TestCollector_FailFastAtAwaitPointInIndexOrder(t *testing.T) {
	boom := errors.New("interrupted sleep")
	d := DelayerFunc(func(ctx context.Context, index int) error {
		switch index {
		case 2:
			// Slow but successful: its result must still be emitted before 5's failure surfaces.
			time.Sleep(20 * time.Millisecond)
			return nil
		case 5:
			return boom
		case 7:
			return errors.New("later failure")
		default:
			return nil
		}
	})
	c, err := NewCollector(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got collected
	res, err := c.Run(context.Background(), 10, got.emit)
	if err == nil {
		t.Fatalf("expected error")
	}

	var taskErr *TaskError
	if !errors.As(err, &taskErr) {
		t.Fatalf("expected *TaskError, got %T: %v", err, err)
	}
	if taskErr.Index != 5 {
		t.Fatalf("expected failure at index 5, got %d", taskErr.Index)
	}
	if !errors.Is(err, boom) || !errors.Is(err, ErrTaskFailed) {
		t.Fatalf("expected error chain to contain cause and ErrTaskFailed: %v", err)
	}
	if !reflect.DeepEqual(got.indices, []int{1, 2, 3, 4}) {
		t.Fatalf("expected prefix 1..4 emitted, got %v", got.indices)
	}
	if res.Emitted != 4 {
		t.Fatalf("expected 4 emitted, got %d", res.Emitted)
	}
	if res.FinalState[5] != TaskFailed {
		t.Fatalf("expected task 5 FAILED, got %s", res.FinalState[5])
	}
	for i := 6; i <= 10; i++ {
		if res.FinalState[i] == TaskEmitted {
			t.Fatalf("task %d emitted after failure", i)
		}
	}
}

func TestCollector_PanicSurfacesAsTaskError(t *testing.T) {
	d := DelayerFunc(func(_ context.Context, index int) error {
		if index == 3 {
			panic("delay source exploded")
		}
		return nil
	})
	c, err := NewCollector(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got collected
	res, err := c.Run(context.Background(), 5, got.emit)
	if !errors.Is(err, ErrTaskPanicked) {
		t.Fatalf("expected ErrTaskPanicked, got %v", err)
	}
	if len(got.results) != 2 {
		t.Fatalf("expected 2 results before panic, got %v", got.results)
	}
	if res.FinalState[3] != TaskFailed {
		t.Fatalf("expected task 3 FAILED, got %s", res.FinalState[3])
	}
}

func TestCollector_EmitErrorAbortsRun(t *testing.T) {
	stop := errors.New("stdout closed")
	c, err := NewCollector(noDelay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := 0
	res, err := c.Run(context.Background(), 10, func(index int, _ string) error {
		calls++
		if index == 3 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected emit error, got %v", err)
	}
	if calls != 3 || res.Emitted != 2 {
		t.Fatalf("expected 3 emit calls and 2 emitted, got calls=%d emitted=%d", calls, res.Emitted)
	}
}

func TestCollector_ParentContextCancelled(t *testing.T) {
	c, err := NewCollector(Sleeping(delay.Sleeper{Source: delay.FixedSource(10_000), UpperBound: time.Minute}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Run(ctx, 3, func(int, string) error { return nil })
	var taskErr *TaskError
	if !errors.As(err, &taskErr) || taskErr.Index != 1 {
		t.Fatalf("expected TaskError at index 1, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
}

func TestCollector_BoundedFanOutRespectsLimitAndOrder(t *testing.T) {
	const maxInFlight = 4
	var cur, peak atomic.Int32
	d := DelayerFunc(func(ctx context.Context, _ int) error {
		n := cur.Add(1)
		defer cur.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Duration(rand.IntN(3)) * time.Millisecond)
		return nil
	})

	c, err := NewCollector(d, WithMaxInFlight(maxInFlight))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got collected
	res, err := c.Run(context.Background(), 40, got.emit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got.results, expectedResults(40)) {
		t.Fatalf("order mismatch: %v", got.results)
	}
	if peak.Load() > maxInFlight || res.PeakInFlight > maxInFlight {
		t.Fatalf("in-flight bound exceeded: observed=%d reported=%d", peak.Load(), res.PeakInFlight)
	}
	if res.Started != 40 {
		t.Fatalf("expected 40 started, got %d", res.Started)
	}
}

func TestCollector_CustomRules(t *testing.T) {
	c, err := NewCollector(noDelay, WithRules([]core.Rule{{Divisor: 2, Token: "Even"}}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got collected
	if _, err := c.Run(context.Background(), 4, got.emit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"1", "Even", "3", "Even"}
	if !reflect.DeepEqual(got.results, want) {
		t.Fatalf("got %v want %v", got.results, want)
	}
}

func TestNewCollector_RejectsInvalidInput(t *testing.T) {
	if _, err := NewCollector(nil); err == nil {
		t.Fatalf("expected error for nil delayer")
	}
	if _, err := NewCollector(noDelay, WithRules([]core.Rule{{Divisor: 0, Token: "X"}})); err == nil {
		t.Fatalf("expected error for invalid rules")
	}
	c, _ := NewCollector(noDelay)
	if _, err := c.Run(context.Background(), -1, func(int, string) error { return nil }); err == nil {
		t.Fatalf("expected error for negative limit")
	}
	if _, err := c.Run(context.Background(), 1, nil); err == nil {
		t.Fatalf("expected error for nil emit")
	}
}

func TestCollector_ZeroLimit(t *testing.T) {
	c, _ := NewCollector(noDelay)
	res, err := c.Run(context.Background(), 0, func(int, string) error {
		t.Fatalf("emit must not be called")
		return nil
	})
	if err != nil || res.Emitted != 0 || len(res.FinalState) != 0 {
		t.Fatalf("unexpected result: %+v err=%v", res, err)
	}
}

func TestCollector_TraceIsStableAcrossTimings(t *testing.T) {
	hashes := make([]string, 0, 5)
	for run := 0; run < 5; run++ {
		rec := trace.NewRecorder()
		c, err := NewCollector(randomDelayer(3), WithSink(rec))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := c.Run(context.Background(), 10, func(int, string) error { return nil }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		tr := rec.Trace(10)
		if len(tr.Events) != 30 {
			t.Fatalf("expected 30 events (started/completed/emitted x10), got %d", len(tr.Events))
		}
		h, err := tr.Hash()
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		hashes = append(hashes, h)
	}
	for i := 1; i < len(hashes); i++ {
		if hashes[i] != hashes[0] {
			t.Fatalf("run %d trace hash mismatch: %s vs %s", i, hashes[i], hashes[0])
		}
	}
}

func TestCollector_ReusableAcrossRuns(t *testing.T) {
	c, _ := NewCollector(noDelay)
	for run := 0; run < 3; run++ {
		var got collected
		res, err := c.Run(context.Background(), 7, got.emit)
		if err != nil {
			t.Fatalf("run %d unexpected error: %v", run, err)
		}
		if res.Started != 7 || res.Emitted != 7 {
			t.Fatalf("run %d counters not reset: %+v", run, res)
		}
	}
}
