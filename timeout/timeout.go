// Package timeout races awaited channel results against a deadline.
package timeout

import (
	"context"
	"errors"
	"time"
)

// ErrElapsed reports that the awaited value did not arrive inside the window.
// It is distinct from any protocol or transport failure.
var ErrElapsed = errors.New("timeout elapsed")

// Await blocks until a value arrives on ch or d passes, whichever happens
// first. The channel stays untouched after ErrElapsed, a late value is the
// sender's problem.
func Await[T any](d time.Duration, ch <-chan T) (T, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case v := <-ch:
		return v, nil
	case <-timer.C:
		var zero T
		return zero, ErrElapsed
	}
}

// AwaitContext is Await that also honors caller cancellation. A non-positive
// d disables the deadline and leaves ctx as the only bound.
func AwaitContext[T any](ctx context.Context, d time.Duration, ch <-chan T) (T, error) {
	var zero T
	if d <= 0 {
		select {
		case v := <-ch:
			return v, nil
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case v := <-ch:
		return v, nil
	case <-timer.C:
		return zero, ErrElapsed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
