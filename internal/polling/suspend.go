package polling

import (
	"context"
	"time"
)

// Suspender pauses between polls. Implementations return early with the
// context error when ctx is done.
type Suspender interface {
	Suspend(ctx context.Context, d time.Duration) error
}

// SuspenderFunc adapts a function to Suspender.
type SuspenderFunc func(ctx context.Context, d time.Duration) error

func (f SuspenderFunc) Suspend(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// TimerSuspender sleeps on a timer.
var TimerSuspender Suspender = SuspenderFunc(func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
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
})
