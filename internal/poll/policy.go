package poll

import (
	"context"
	"fmt"
)

// MismatchPolicy tells a call site what an unsatisfied probe means.
type MismatchPolicy int

const (
	// RetryOnMismatch keeps polling until the budget is spent.
	RetryOnMismatch MismatchPolicy = iota
	// FailOnMismatch aborts the poll on the first unsatisfied attempt.
	FailOnMismatch
)

func (p MismatchPolicy) String() string {
	switch p {
	case RetryOnMismatch:
		return "retry"
	case FailOnMismatch:
		return "fail"
	default:
		return fmt.Sprintf("MismatchPolicy(%d)", int(p))
	}
}

// MismatchError is returned by probes wrapped with FailOnMismatch.
type MismatchError struct {
	Detail string
}

func (e *MismatchError) Error() string {
	return "condition not met: " + e.Detail
}

// WithPolicy adapts probe to policy. Under FailOnMismatch an unsatisfied
// attempt becomes a *MismatchError carrying describe(value).
func WithPolicy[T any](policy MismatchPolicy, describe func(T) string, probe Probe[T]) Probe[T] {
	if policy != FailOnMismatch {
		return probe
	}
	return func(ctx context.Context) (T, bool, error) {
		value, done, err := probe(ctx)
		if err != nil || done {
			return value, done, err
		}
		detail := "probe reported not done"
		if describe != nil {
			detail = describe(value)
		}
		return value, false, &MismatchError{Detail: detail}
	}
}
