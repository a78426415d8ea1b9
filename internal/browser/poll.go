package browser

import (
	"context"
	"time"
)

// Poll calls fn up to attempts times, interval apart, until it reports done.
// It returns the last result and whether fn succeeded. Cancellation ends the
// poll early with ok=false.
func Poll[T any](ctx context.Context, attempts int, interval time.Duration, fn func(ctx context.Context) (T, bool)) (T, bool) {
	var last T

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return last, false
		}

		result, done := fn(ctx)
		last = result

		if done {
			return last, true
		}

		if attempt < attempts {
			if err := sleep(ctx, interval); err != nil {
				return last, false
			}
		}
	}

	return last, false
}

// boundedContext derives a context from parent that also ends when caller
// ends and, for a positive timeout, after timeout.
func boundedContext(parent, caller context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(caller, cancel)

	if timeout <= 0 {
		return ctx, func() {
			stop()
			cancel()
		}
	}

	timed, cancelTimed := context.WithTimeout(ctx, timeout)

	return timed, func() {
		cancelTimed()
		stop()
		cancel()
	}
}

// pollCondition re-evaluates a boolean condition every interval until it
// holds or timeout elapses. A failed evaluation counts as not holding.
func pollCondition(ctx context.Context, timeout, interval time.Duration, evaluate func(ctx context.Context, holds *bool) error) (bool, error) {
	attempts := int(timeout/interval) + 1

	_, ok := Poll(ctx, attempts, interval, func(ctx context.Context) (bool, bool) {
		var holds bool
		if err := evaluate(ctx, &holds); err != nil {
			return false, false
		}

		return holds, holds
	})

	if err := ctx.Err(); err != nil {
		return false, err
	}

	return ok, nil
}
