package poll_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pktharness/internal/poll"
	"pktharness/internal/poll/polltest"
)

// trueOnCall returns a probe that reports done exactly on call n.
func trueOnCall(n int) (poll.Probe[int], *int) {
	calls := 0
	return func(context.Context) (int, bool, error) {
		calls++
		return calls, calls >= n, nil
	}, &calls
}

func TestUntilSucceedsWhenBudgetCoversAttempts(t *testing.T) {
	const wait = 100 * time.Millisecond
	tests := []struct {
		n       int
		timeout time.Duration
	}{
		{n: 1, timeout: 100 * time.Millisecond},
		{n: 3, timeout: 300 * time.Millisecond},
		{n: 5, timeout: time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d", tt.n), func(t *testing.T) {
			probe, calls := trueOnCall(tt.n)
			clock := polltest.NewClock()

			out, err := poll.Until(context.Background(), poll.Options{Wait: wait, Timeout: tt.timeout, Clock: clock}, 0, probe)
			if err != nil {
				t.Fatalf("Until: %v", err)
			}
			if !out.Succeeded {
				t.Fatalf("Succeeded = false after %d calls", *calls)
			}
			if out.Value != tt.n {
				t.Fatalf("Value = %d, want %d", out.Value, tt.n)
			}
			// No sleep after the satisfying attempt.
			if len(clock.Sleeps) != tt.n-1 {
				t.Fatalf("sleeps = %d, want %d", len(clock.Sleeps), tt.n-1)
			}
		})
	}
}

func TestUntilTimesOutWithinOneWait(t *testing.T) {
	const (
		wait    = 100 * time.Millisecond
		timeout = 350 * time.Millisecond
	)
	probe, calls := trueOnCall(10)
	clock := polltest.NewClock()

	out, err := poll.Until(context.Background(), poll.Options{Wait: wait, Timeout: timeout, Clock: clock}, -1, probe)
	if err != nil {
		t.Fatalf("Until: %v", err)
	}
	if out.Succeeded {
		t.Fatal("Succeeded = true, want false")
	}
	if out.Value != *calls {
		t.Fatalf("Value = %d, want last probe value %d", out.Value, *calls)
	}
	if out.Elapsed < timeout || out.Elapsed-timeout > wait {
		t.Fatalf("Elapsed = %v, want within %v of %v", out.Elapsed, wait, timeout)
	}
}

func TestUntilCountsSlowProbesTowardBudget(t *testing.T) {
	probe, calls := trueOnCall(100)
	clock := polltest.NewClock()
	clock.Step = 200 * time.Millisecond // every clock read costs time

	out, err := poll.Until(context.Background(), poll.Options{Wait: 100 * time.Millisecond, Timeout: time.Second, Clock: clock}, 0, probe)
	if err != nil {
		t.Fatalf("Until: %v", err)
	}
	if out.Succeeded {
		t.Fatal("Succeeded = true, want false")
	}
	if *calls >= 10 {
		t.Fatalf("calls = %d, slow probes should have exhausted the budget sooner", *calls)
	}
}

func TestUntilInvokesProbeAtLeastOnce(t *testing.T) {
	probe, calls := trueOnCall(2)
	clock := polltest.NewClock()

	out, err := poll.Until(context.Background(), poll.Options{Wait: time.Second, Timeout: 0, Clock: clock}, 0, probe)
	if err != nil {
		t.Fatalf("Until: %v", err)
	}
	if *calls != 1 {
		t.Fatalf("calls = %d, want 1", *calls)
	}
	if out.Succeeded {
		t.Fatal("Succeeded = true on a zero budget")
	}
}

func TestUntilPropagatesProbeErrorWithoutRetry(t *testing.T) {
	boom := errors.New("inspect failed")
	calls := 0
	probe := func(context.Context) (string, bool, error) {
		calls++
		return "", false, boom
	}

	out, err := poll.Until(context.Background(), poll.Options{Wait: time.Millisecond, Timeout: time.Hour, Clock: polltest.NewClock()}, "seed", probe)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if out.Value != "seed" {
		t.Fatalf("Value = %q, want seed", out.Value)
	}
}

func TestUntilRejectsNonPositiveWait(t *testing.T) {
	probe, calls := trueOnCall(1)
	_, err := poll.Until(context.Background(), poll.Options{Wait: 0, Timeout: time.Second}, 0, probe)
	if !errors.Is(err, poll.ErrInvalidWait) {
		t.Fatalf("err = %v, want ErrInvalidWait", err)
	}
	if *calls != 0 {
		t.Fatalf("probe called %d times", *calls)
	}
}

func TestUntilStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	probe := func(context.Context) (int, bool, error) {
		calls++
		cancel()
		return calls, false, nil
	}

	out, err := poll.Until(ctx, poll.Options{Wait: time.Second, Timeout: time.Hour, Clock: polltest.NewClock()}, 0, probe)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if out.Value != 1 || out.Succeeded {
		t.Fatalf("out = %+v", out)
	}
}

func TestWithPolicyFailOnMismatch(t *testing.T) {
	probe, calls := trueOnCall(3)
	strict := poll.WithPolicy(poll.FailOnMismatch, func(v int) string { return fmt.Sprintf("call %d", v) }, probe)

	_, err := poll.Until(context.Background(), poll.Options{Wait: time.Millisecond, Timeout: time.Hour, Clock: polltest.NewClock()}, 0, strict)
	var mismatch *poll.MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want MismatchError", err)
	}
	if mismatch.Detail != "call 1" {
		t.Fatalf("Detail = %q", mismatch.Detail)
	}
	if *calls != 1 {
		t.Fatalf("calls = %d, want 1", *calls)
	}
}

func TestWithPolicyRetryIsPassthrough(t *testing.T) {
	probe, _ := trueOnCall(3)
	lenient := poll.WithPolicy(poll.RetryOnMismatch, nil, probe)

	out, err := poll.Until(context.Background(), poll.Options{Wait: time.Millisecond, Timeout: time.Hour, Clock: polltest.NewClock()}, 0, lenient)
	if err != nil {
		t.Fatalf("Until: %v", err)
	}
	if !out.Succeeded || out.Value != 3 {
		t.Fatalf("out = %+v", out)
	}
}
