package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fatih/color"

	"fanout/internal/config"
	"fanout/internal/delay"
	"fanout/internal/fanout"
	"fanout/internal/logging"
	"fanout/internal/trace"
)

type CLIResult struct {
	ExitCode  int
	RunResult *fanout.RunResult
	TraceHash string
}

// runner is implemented by fanout.Collector and fanout.Chain.
type runner interface {
	Run(ctx context.Context, limit int, emit fanout.EmitFunc) (*fanout.RunResult, error)
}

// Execute runs inv with the random delay source configured by inv.Config.
// In pipeline mode the delay applies to every stage a number passes through.
func Execute(ctx context.Context, inv Invocation, stdout, stderr io.Writer) (CLIResult, error) {
	bound := inv.Config.DelayUpperBound()
	if inv.Config.Mode == config.ModePipeline {
		bound = inv.Config.StageDelayUpperBound()
	}
	d := fanout.Sleeping(delay.NewSleeper(bound))
	return ExecuteWithDelayer(ctx, inv, stdout, stderr, d)
}

// ExecuteWithDelayer maps an Invocation to a collector or chain run.
//
// Responsibilities:
//   - Write one result line per index to stdout, in index order.
//   - Open the trace output before the run and finalize it afterwards,
//     even on task failure.
//   - Translate outcomes to semantic exit codes; a panic maps to ExitInternalError.
func ExecuteWithDelayer(ctx context.Context, inv Invocation, stdout, stderr io.Writer, d fanout.Delayer) (res CLIResult, execErr error) {
	res.ExitCode = ExitInternalError
	if stdout == nil {
		return res, fmt.Errorf("nil stdout")
	}
	if stderr == nil {
		stderr = io.Discard
	}
	// The logger, the observer and the failure banner share stderr.
	stderr = &lockedWriter{w: stderr}

	defer func() {
		if p := recover(); p != nil {
			res.ExitCode = ExitInternalError
			execErr = fmt.Errorf("internal error: %v", p)
		}
	}()

	cfg := inv.Config
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}
	logger := logging.New(stderr, level)

	var rec *trace.Recorder
	var tw *traceWriter
	if inv.Trace.Enabled {
		tw, err = newTraceWriter(inv.Trace.Path)
		if err != nil {
			res.ExitCode = ExitConfigError
			return res, err
		}
		rec = trace.NewRecorder()
		defer func() {
			hash, ferr := tw.Finalize(rec.Trace(cfg.Limit))
			if ferr != nil {
				logger.Error("writing trace", slog.String("path", inv.Trace.Path), slog.Any("error", ferr))
				if execErr == nil {
					res.ExitCode = ExitConfigError
					execErr = ferr
				}
				return
			}
			res.TraceHash = hash
		}()
	}

	opts := []fanout.Option{
		fanout.WithRules(cfg.EffectiveRules()),
		fanout.WithMaxInFlight(cfg.MaxInFlight),
		fanout.WithLogger(logger),
	}
	if rec != nil {
		opts = append(opts, fanout.WithSink(rec))
	}
	if cfg.ObserveInterval > 0 {
		opts = append(opts, fanout.WithObserver(fanout.NewObserver(stderr, cfg.ObserveInterval)))
	}

	var r runner
	if cfg.Mode == config.ModePipeline {
		r, err = fanout.NewChain(d, opts...)
	} else {
		r, err = fanout.NewCollector(d, opts...)
	}
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}

	logger.Info("starting run",
		slog.String("mode", cfg.Mode),
		slog.Int("limit", cfg.Limit),
		slog.Int("delayUpperBoundMillis", cfg.DelayUpperBoundMillis),
		slog.Int("maxInFlight", cfg.MaxInFlight),
	)

	runRes, err := r.Run(ctx, cfg.Limit, func(_ int, result string) error {
		_, werr := fmt.Fprintln(stdout, result)
		return werr
	})
	res.RunResult = runRes
	if err != nil {
		var taskErr *fanout.TaskError
		if errors.As(err, &taskErr) {
			fmt.Fprintln(stderr, color.RedString("task %d failed after %d results", taskErr.Index, runRes.Emitted))
			res.ExitCode = ExitTaskFailure
			return res, err
		}
		res.ExitCode = ExitInternalError
		return res, err
	}

	logger.Info("run complete", slog.Int("emitted", runRes.Emitted), slog.Int("peakInFlight", runRes.PeakInFlight))
	res.ExitCode = ExitSuccess
	return res, nil
}

// lockedWriter serializes writes from concurrent producers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// traceWriter owns the trace output file for one run.
type traceWriter struct {
	path string
}

// newTraceWriter verifies up front that the trace path is writable.
func newTraceWriter(path string) (*traceWriter, error) {
	clean := filepath.Clean(path)
	if dir := filepath.Dir(clean); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating trace directory: %w", err)
		}
	}
	f, err := os.OpenFile(clean, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening trace output: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("opening trace output: %w", err)
	}
	return &traceWriter{path: clean}, nil
}

// Finalize writes tr to disk and returns its canonical hash.
func (w *traceWriter) Finalize(tr trace.ExecutionTrace) (string, error) {
	hash, err := tr.Hash()
	if err != nil {
		return "", fmt.Errorf("hashing trace: %w", err)
	}
	b, err := json.Marshal(tr)
	if err != nil {
		return "", fmt.Errorf("encoding trace: %w", err)
	}
	b = append(b, '\n')
	if err := os.WriteFile(w.path, b, 0o644); err != nil {
		return "", fmt.Errorf("writing trace: %w", err)
	}
	return hash, nil
}
