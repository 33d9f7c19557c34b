package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"fanout/internal/core"
)

// Stage transforms one number on its way through a Chain.
type Stage struct {
	Name  string
	Apply func(core.Number) core.Number
}

// CheckStage appends r.Token to numbers divisible by r.Divisor.
func CheckStage(r core.Rule) Stage {
	return Stage{
		Name:  r.Token,
		Apply: func(n core.Number) core.Number { return n.Check(r.Divisor, r.Token) },
	}
}

// FinalizeStage replaces a blank annotation with the decimal index.
func FinalizeStage() Stage {
	return Stage{
		Name:  "finalize",
		Apply: func(n core.Number) core.Number { return n.Replace(n.Finalize()) },
	}
}

// Chain classifies indices in a pipeline: one goroutine per rule plus a
// finalize stage, linked by buffered channels of core.Number.
//
// Each stage handles one number at a time and preserves arrival order, so
// results leave the chain in index order without reordering. Every stage
// applies the Delayer to each number it handles.
//
// A Chain may be reused for several runs, but not concurrently.
type Chain struct {
	delay Delayer
	settings
	stages  []Stage
	tracker tracker

	mu       sync.Mutex
	channels []chan core.Number
}

// NewChain builds a chain with a check stage per configured rule, in rule order,
// followed by FinalizeStage.
func NewChain(delay Delayer, opts ...Option) (*Chain, error) {
	if delay == nil {
		return nil, fmt.Errorf("nil delayer")
	}
	s := newSettings(opts)
	if err := core.ValidateRules(s.rules); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}

	stages := make([]Stage, 0, len(s.rules)+1)
	for _, r := range s.rules {
		stages = append(stages, CheckStage(r))
	}
	stages = append(stages, FinalizeStage())

	return &Chain{
		delay:    delay,
		settings: s,
		stages:   stages,
		tracker:  tracker{sink: s.sink, logger: s.logger},
	}, nil
}

// Stages returns the stage names in processing order.
func (c *Chain) Stages() []string {
	names := make([]string, len(c.stages))
	for i, st := range c.stages {
		names[i] = st.Name
	}
	return names
}

// StateSnapshot returns a copy of the current execution state.
func (c *Chain) StateSnapshot() ExecutionState {
	return c.tracker.snapshot()
}

// Depths reports how many numbers are buffered in each channel of the
// current or most recent run: the input channel, then the output of every stage.
func (c *Chain) Depths() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]int, len(c.channels))
	for i, ch := range c.channels {
		out[i] = len(ch)
	}
	return out
}

// Run feeds indices 1..limit through the chain and passes each result to emit
// in index order.
//
// The first stage error ends the run with a *TaskError for the number that
// failed; results emitted before it stay emitted and nothing is emitted after.
// All stage goroutines have exited when Run returns.
func (c *Chain) Run(ctx context.Context, limit int, emit EmitFunc) (*RunResult, error) {
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

	channels := make([]chan core.Number, len(c.stages)+1)
	for i := range channels {
		channels[i] = make(chan core.Number, c.buffer)
	}
	c.mu.Lock()
	c.channels = channels
	c.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if c.observer != nil {
		stop := c.observer.Start(func() string { return FormatDepths(c.Depths()) })
		defer stop()
	}

	g, gctx := errgroup.WithContext(runCtx)

	c.logger.Debug("starting chain", slog.Int("limit", limit), slog.Any("stages", c.Stages()))
	g.Go(func() error {
		defer close(channels[0])
		for i := 1; i <= limit; i++ {
			select {
			case channels[0] <- core.NewNumber(i):
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	last := len(c.stages) - 1
	for k, st := range c.stages {
		in, out := channels[k], channels[k+1]
		first, final := k == 0, k == last
		g.Go(func() error {
			return c.runStage(gctx, st, first, final, in, out)
		})
	}

	emitted := 0
	var emitErr error
	for n := range channels[len(channels)-1] {
		if emitErr != nil || gctx.Err() != nil {
			continue
		}
		index, result := n.Value(), n.Annotation()
		if err := emit(index, result); err != nil {
			emitErr = fmt.Errorf("emitting result %d: %w", index, err)
			cancel()
			continue
		}
		emitted++
		c.tracker.emitted(index, result)
	}

	err := g.Wait()
	if emitErr != nil {
		c.tracker.abandon(context.Canceled)
		return c.tracker.result(limit, emitted), emitErr
	}
	if err != nil {
		c.tracker.abandon(context.Canceled)
		var taskErr *TaskError
		if !errors.As(err, &taskErr) {
			taskErr = &TaskError{Index: emitted + 1, Err: err}
		}
		c.logger.Error("task failed", slog.Int("index", taskErr.Index), slog.Any("error", taskErr.Err))
		return c.tracker.result(limit, emitted), taskErr
	}

	c.logger.Debug("chain finished", slog.Int("emitted", emitted))
	return c.tracker.result(limit, emitted), nil
}

// runStage processes numbers until in is closed or ctx is done, and always closes out.
func (c *Chain) runStage(ctx context.Context, st Stage, first, final bool, in <-chan core.Number, out chan<- core.Number) error {
	defer close(out)
	for n := range in {
		if err := ctx.Err(); err != nil {
			return err
		}
		index := n.Value()
		if first {
			c.tracker.begin(index)
		}
		next, err := c.process(ctx, st, n)
		if err != nil {
			c.tracker.finish(index, true, "", err)
			return &TaskError{Index: index, Err: err}
		}
		if final {
			c.tracker.finish(index, true, next.Annotation(), nil)
		}
		select {
		case out <- next:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *Chain) process(ctx context.Context, st Stage, n core.Number) (next core.Number, err error) {
	defer func() {
		if p := recover(); p != nil {
			next, err = n, fmt.Errorf("%w: %v", ErrTaskPanicked, p)
		}
	}()
	if err := c.delay.Delay(ctx, n.Value()); err != nil {
		return n, err
	}
	return st.Apply(n), nil
}
