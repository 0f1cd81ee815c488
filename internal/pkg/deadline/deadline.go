// Package deadline bounds an operation with a hard wall-clock limit.
//
// A timed-out operation keeps running in its own goroutine; there is no
// side-channel abort. Callers must treat a timeout as "outcome unknown" and
// start a fresh call instead of retrying the in-flight one.
package deadline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutError marks an operation that exceeded its wall-clock limit.
type TimeoutError struct {
	Label string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Label, e.Limit)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

type outcome[T any] struct {
	val T
	err error
}

// Run races fn against limit; whichever settles first wins. The parent ctx is
// passed through unchanged so the losing call is not cancelled.
func Run[T any](ctx context.Context, limit time.Duration, label string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if limit <= 0 {
		return fn(ctx)
	}

	ch := make(chan outcome[T], 1)
	go func() {
		v, err := fn(ctx)
		ch <- outcome[T]{val: v, err: err}
	}()

	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.val, out.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, &TimeoutError{Label: label, Limit: limit}
	}
}
