package fanout

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Observer periodically writes a one-line progress summary while a run is in
// progress. A Collector reports task states:
//
//	------ pending=3 running=12 completed=40 failed=0 emitted=45
//
// A Chain reports the depth of each stage channel, input first:
//
//	------ 12 3 0 1 0
type Observer struct {
	Interval time.Duration
	Out      io.Writer
}

// NewObserver returns an observer writing to out every interval.
func NewObserver(out io.Writer, interval time.Duration) *Observer {
	return &Observer{Interval: interval, Out: out}
}

// Start begins ticking and returns a stop func that blocks until the ticker
// goroutine has exited. A final summary line is written on stop.
func (o *Observer) Start(summary func() string) (stop func()) {
	if o == nil || o.Out == nil || o.Interval <= 0 || summary == nil {
		return func() {}
	}

	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(o.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				fmt.Fprintln(o.Out, summary())
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			wg.Wait()
			fmt.Fprintln(o.Out, summary())
		})
	}
}

// FormatSummary renders the per-state counts of state.
func FormatSummary(state ExecutionState) string {
	n := state.Counts()
	return fmt.Sprintf("%s pending=%s running=%s completed=%s failed=%s emitted=%s",
		color.HiBlackString("------"),
		color.YellowString("%d", n[TaskPending]),
		color.CyanString("%d", n[TaskRunning]),
		color.BlueString("%d", n[TaskCompleted]),
		color.RedString("%d", n[TaskFailed]),
		color.GreenString("%d", n[TaskEmitted]),
	)
}

// FormatDepths renders the number of buffered values in each stage channel.
func FormatDepths(depths []int) string {
	var b strings.Builder
	b.WriteString(color.HiBlackString("------"))
	for _, d := range depths {
		b.WriteByte(' ')
		if d == 0 {
			b.WriteString(color.HiBlackString("%d", d))
			continue
		}
		b.WriteString(color.YellowString("%d", d))
	}
	return b.String()
}
