package fanout

import (
	"log/slog"

	"fanout/internal/core"
	"fanout/internal/logging"
	"fanout/internal/trace"
)

// DefaultStageBuffer is the capacity of each channel between chain stages.
const DefaultStageBuffer = 50

// Option configures a Collector or a Chain.
type Option func(*settings)

type settings struct {
	rules       []core.Rule
	maxInFlight int
	buffer      int
	sink        trace.Sink
	logger      *slog.Logger
	observer    *Observer
}

func newSettings(opts []Option) settings {
	s := settings{
		rules:  core.DefaultRules,
		buffer: DefaultStageBuffer,
		sink:   trace.NopSink{},
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithRules replaces the default Fizz/Buzz/Bazz rule set.
func WithRules(rules []core.Rule) Option {
	return func(s *settings) {
		if len(rules) > 0 {
			s.rules = append([]core.Rule(nil), rules...)
		}
	}
}

// WithMaxInFlight bounds how many task bodies may run at once. Zero means unbounded.
// A Chain ignores it: each of its stages already processes one number at a time.
func WithMaxInFlight(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxInFlight = n
		}
	}
}

// WithStageBuffer sets the channel capacity between chain stages.
func WithStageBuffer(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// WithSink records lifecycle events into s.
func WithSink(sink trace.Sink) Option {
	return func(s *settings) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithLogger sets the structured logger. Defaults to discarding all output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver attaches a periodic progress observer for the duration of each run.
func WithObserver(o *Observer) Option {
	return func(s *settings) {
		s.observer = o
	}
}
