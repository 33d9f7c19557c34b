package fanout

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"fanout/internal/core"
)

// Delayer injects the simulated latency of task index. A non-nil error fails the task.
type Delayer interface {
	Delay(ctx context.Context, index int) error
}

// DelayerFunc adapts a function to Delayer.
type DelayerFunc func(ctx context.Context, index int) error

func (f DelayerFunc) Delay(ctx context.Context, index int) error { return f(ctx, index) }

// Sleeping adapts an index-agnostic sleeper, such as delay.Sleeper, to Delayer.
func Sleeping(s interface{ Sleep(ctx context.Context) error }) Delayer {
	return DelayerFunc(func(ctx context.Context, _ int) error { return s.Sleep(ctx) })
}

// EmitFunc receives each result in index order. Returning an error aborts the run.
type EmitFunc func(index int, result string) error

// Collector fans out one task per index and fans the results back in index order.
//
// A Collector may be reused for several runs, but not concurrently.
type Collector struct {
	delay Delayer
	settings
	tracker tracker
}

// NewCollector creates a collector whose tasks sleep via delay.
func NewCollector(delay Delayer, opts ...Option) (*Collector, error) {
	if delay == nil {
		return nil, fmt.Errorf("nil delayer")
	}
	s := newSettings(opts)
	if err := core.ValidateRules(s.rules); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	return &Collector{
		delay:    delay,
		settings: s,
		tracker:  tracker{sink: s.sink, logger: s.logger},
	}, nil
}

// StateSnapshot returns a copy of the current execution state.
func (c *Collector) StateSnapshot() ExecutionState {
	return c.tracker.snapshot()
}

// Run processes indices 1..limit.
//
// Every task is spawned before the first one is awaited. Handles are then
// awaited in index order and each result is passed to emit. The first failed
// handle (in index order) ends the run with a *TaskError; results emitted
// before it stay emitted. Tasks still in flight are cancelled and drained
// before Run returns.
func (c *Collector) Run(ctx context.Context, limit int, emit EmitFunc) (*RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if limit < 0 {
		return nil, fmt.Errorf("limit must be >= 0 (got %d)", limit)
	}
	if emit == nil {
		return nil, fmt.Errorf("nil emit func")
	}

	c.tracker.reset(limit)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if c.observer != nil {
		stop := c.observer.Start(func() string { return FormatSummary(c.StateSnapshot()) })
		defer stop()
	}

	var sem *semaphore.Weighted
	if c.maxInFlight > 0 {
		sem = semaphore.NewWeighted(int64(c.maxInFlight))
	}

	// Spawn phase.
	c.logger.Debug("spawning tasks", slog.Int("limit", limit), slog.Int("maxInFlight", c.maxInFlight))
	handles := make([]*Handle[string], 0, limit)
	for i := 1; i <= limit; i++ {
		handles = append(handles, Spawn(runCtx, c.taskFunc(i, sem)))
	}

	// Collect phase: strictly in creation order.
	c.logger.Debug("collecting results", slog.Int("handles", len(handles)))
	emitted := 0
	for pos, h := range handles {
		index := pos + 1
		result, err := h.Await(ctx)
		if err != nil {
			cancel()
			drain(handles[pos:])
			c.logger.Error("task failed", slog.Int("index", index), slog.Any("error", err))
			return c.tracker.result(limit, emitted), &TaskError{Index: index, Err: err}
		}
		if err := emit(index, result); err != nil {
			cancel()
			drain(handles[pos+1:])
			return c.tracker.result(limit, emitted), fmt.Errorf("emitting result %d: %w", index, err)
		}
		emitted++
		c.tracker.emitted(index, result)
	}

	c.logger.Debug("run finished", slog.Int("emitted", emitted))
	return c.tracker.result(limit, emitted), nil
}

func (c *Collector) taskFunc(index int, sem *semaphore.Weighted) func(context.Context) (string, error) {
	return func(ctx context.Context) (result string, err error) {
		entered := false
		defer func() {
			if p := recover(); p != nil {
				result, err = "", fmt.Errorf("%w: %v", ErrTaskPanicked, p)
			}
			c.tracker.finish(index, entered, result, err)
		}()

		if sem != nil {
			if err := sem.Acquire(ctx, 1); err != nil {
				return "", err
			}
			defer sem.Release(1)
		}

		c.tracker.begin(index)
		entered = true

		result = core.ClassifyWith(index, c.rules)
		if err := c.delay.Delay(ctx, index); err != nil {
			return "", err
		}
		return result, nil
	}
}

func drain(handles []*Handle[string]) {
	for _, h := range handles {
		<-h.Done()
	}
}
