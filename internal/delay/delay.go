// Package delay provides the simulated variable latency each fan-out task incurs.
package delay

import (
	"context"
	"math/rand/v2"
	"time"
)

// Source yields a non-negative pseudo-random int strictly less than bound.
//
// bound is always > 0 when called by Sleeper.
type Source interface {
	Intn(bound int) int
}

// RandSource is the default Source backed by the runtime-seeded math/rand/v2 generator.
// It is safe for concurrent use.
type RandSource struct{}

func (RandSource) Intn(bound int) int { return rand.IntN(bound) }

// FixedSource always returns the same value, clamped into [0, bound).
type FixedSource int

func (f FixedSource) Intn(bound int) int {
	v := int(f)
	if v < 0 {
		return 0
	}
	if v >= bound {
		return bound - 1
	}
	return v
}

// FuncSource adapts a function to Source.
type FuncSource func(bound int) int

func (f FuncSource) Intn(bound int) int { return f(bound) }

// Sleeper suspends the caller for a random whole number of milliseconds in [0, UpperBound).
type Sleeper struct {
	Source     Source
	UpperBound time.Duration
}

// NewSleeper returns a Sleeper drawing from RandSource.
func NewSleeper(upperBound time.Duration) Sleeper {
	return Sleeper{Source: RandSource{}, UpperBound: upperBound}
}

// Next draws the next delay without sleeping. A non-positive UpperBound
// (or one below a millisecond) yields zero.
func (s Sleeper) Next() time.Duration {
	bound := int(s.UpperBound / time.Millisecond)
	if bound <= 0 {
		return 0
	}
	src := s.Source
	if src == nil {
		src = RandSource{}
	}
	ms := src.Intn(bound)
	if ms < 0 {
		ms = 0
	}
	if ms >= bound {
		ms = bound - 1
	}
	return time.Duration(ms) * time.Millisecond
}

// Sleep waits for Next() or until ctx is done, in which case ctx.Err() is returned.
func (s Sleeper) Sleep(ctx context.Context) error {
	d := s.Next()
	if d == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
