// Package poll evaluates "eventually true" conditions against a live system.
//
// Until invokes a probe, sleeps a fixed interval, and repeats until the probe
// reports done or the wall-clock budget is spent. Running out of time is not an
// error: the caller gets the last observed value and decides pass or fail.
// A probe error is fatal and returned at once.
//
// Timeouts are only checked between attempts. A probe that blocks for longer
// than the remaining budget still runs to completion, so a poll may overrun its
// nominal timeout by up to one probe duration plus one wait.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Probe produces a value and reports whether the condition is satisfied.
type Probe[T any] func(ctx context.Context) (value T, done bool, err error)

// Outcome is the result of a poll. Succeeded is true only when the probe
// itself reported done.
type Outcome[T any] struct {
	Value     T
	Succeeded bool
	Attempts  int
	Elapsed   time.Duration
}

// Clock abstracts wall-clock reads and sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Options bounds a poll.
type Options struct {
	Wait    time.Duration
	Timeout time.Duration
	Clock   Clock
}

// ErrInvalidWait is returned when Options.Wait is not positive.
var ErrInvalidWait = errors.New("poll wait interval must be positive")

// Until runs probe until it reports done or opts.Timeout elapses. seed is the
// value returned if the very first probe call fails before producing one.
func Until[T any](ctx context.Context, opts Options, seed T, probe Probe[T]) (Outcome[T], error) {
	if opts.Wait <= 0 {
		return Outcome[T]{Value: seed}, ErrInvalidWait
	}
	clock := opts.Clock
	if clock == nil {
		clock = RealClock{}
	}

	out := Outcome[T]{Value: seed}
	start := clock.Now()
	for {
		value, done, err := probe(ctx)
		out.Attempts++
		if err != nil {
			out.Elapsed = clock.Now().Sub(start)
			return out, err
		}
		out.Value = value
		if done {
			out.Succeeded = true
			out.Elapsed = clock.Now().Sub(start)
			return out, nil
		}

		if err := clock.Sleep(ctx, opts.Wait); err != nil {
			out.Elapsed = clock.Now().Sub(start)
			return out, fmt.Errorf("poll interrupted after %d attempts: %w", out.Attempts, err)
		}
		out.Elapsed = clock.Now().Sub(start)
		if out.Elapsed >= opts.Timeout {
			return out, nil
		}
	}
}
