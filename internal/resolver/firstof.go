package resolver

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by FirstOf when the timer wins the race.
var ErrTimeout = errors.New("timed out")

// FirstOf races op against a timer and returns whichever settles first.
// The context passed to op is cancelled once FirstOf returns, so a losing
// op is told to stop rather than left running.
func FirstOf[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(ctx)
		done <- result{value: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case r := <-done:
		return r.value, r.err
	case <-timer.C:
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
