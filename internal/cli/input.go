package cli

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"fanout/internal/config"
)

const (
	ExitSuccess           = 0
	ExitTaskFailure       = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

type TraceConfig struct {
	Enabled bool
	Path    string
}

// Invocation is the fully resolved description of a run.
//
// Precedence: built-in defaults, then the optional config file, then flags
// that were explicitly set on the command line.
type Invocation struct {
	ConfigPath string
	Config     config.Config
	Trace      TraceConfig
}

type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

func configErrorf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitConfigError, Message: fmt.Sprintf(format, args...)}
}

// ParseInvocation parses CLI flags into an Invocation.
//
// With no arguments the result is config.Default(): 100 indices, 500ms delay bound.
func ParseInvocation(args []string) (Invocation, error) {
	fs := flag.NewFlagSet("fanout", flag.ContinueOnError)
	fs.SetOutput(io.Discard) // parsing errors are returned, not printed

	var (
		configPath  string
		mode        string
		limit       int
		delayBound  int
		stageBound  int
		maxInFlight int
		observe     time.Duration
		logLevel    string
		tracePath   string
	)

	defaults := config.Default()
	fs.StringVar(&configPath, "config", "", "YAML config file (optional).")
	fs.StringVar(&mode, "mode", defaults.Mode, "Execution mode: fanout|pipeline")
	fs.IntVar(&limit, "limit", defaults.Limit, "Number of indices to process (1..limit).")
	fs.IntVar(&delayBound, "delay-bound-ms", defaults.DelayUpperBoundMillis, "Exclusive upper bound of the simulated per-task delay in milliseconds; 0 disables it.")
	fs.IntVar(&stageBound, "stage-delay-bound-ms", defaults.StageDelayUpperBoundMillis, "Pipeline mode: exclusive upper bound of each stage's per-number delay in milliseconds; 0 disables it.")
	fs.IntVar(&maxInFlight, "max-in-flight", defaults.MaxInFlight, "Maximum concurrently running tasks; 0 means unbounded.")
	fs.DurationVar(&observe, "observe", defaults.ObserveInterval, "Progress summary interval on stderr (e.g. 100ms); 0 disables it.")
	fs.StringVar(&logLevel, "log-level", defaults.LogLevel, "Log level: debug|info|warn|error")
	fs.StringVar(&tracePath, "trace", "", "Trace output path (optional).")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Invocation{}, invalidInvocationf("%s", usage(fs))
		}
		return Invocation{}, invalidInvocationf("%v", err)
	}
	if fs.NArg() != 0 {
		return Invocation{}, invalidInvocationf("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}

	cfg := defaults
	if strings.TrimSpace(configPath) != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return Invocation{}, configErrorf("%v", err)
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Mode = mode
		case "limit":
			cfg.Limit = limit
		case "delay-bound-ms":
			cfg.DelayUpperBoundMillis = delayBound
		case "stage-delay-bound-ms":
			cfg.StageDelayUpperBoundMillis = stageBound
		case "max-in-flight":
			cfg.MaxInFlight = maxInFlight
		case "observe":
			cfg.ObserveInterval = observe
		case "log-level":
			cfg.LogLevel = logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return Invocation{}, configErrorf("%v", err)
	}

	inv := Invocation{ConfigPath: configPath, Config: cfg}
	if strings.TrimSpace(tracePath) != "" {
		inv.Trace = TraceConfig{Enabled: true, Path: tracePath}
	}
	return inv, nil
}

func usage(fs *flag.FlagSet) string {
	var buf bytes.Buffer
	buf.WriteString("Usage of fanout:\n")
	fs.SetOutput(&buf)
	fs.PrintDefaults()
	fs.SetOutput(io.Discard)
	return strings.TrimRight(buf.String(), "\n")
}

// ExitCode extracts a semantic exit code from a ParseInvocation error.
// If the error is not a known invocation error, it returns ExitInternalError.
func ExitCode(err error) int {
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	if err == nil {
		return ExitSuccess
	}
	return ExitInternalError
}
