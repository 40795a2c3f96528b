package execution

import (
	"context"
	"fmt"

	"animate3d/internal/polling"
)

// Scheduler runs engines in the background. done is called exactly once per
// engine with nil after terminal delivery or the error that stopped it.
type Scheduler interface {
	Start(ctx context.Context, engine *polling.Engine, done func(error))
	Close()
}

// GoroutineScheduler runs every engine on its own goroutine.
type GoroutineScheduler struct {
	Suspender polling.Suspender
}

// Start launches engine.Run on a new goroutine.
func (s GoroutineScheduler) Start(ctx context.Context, engine *polling.Engine, done func(error)) {
	suspender := s.Suspender
	if suspender == nil {
		suspender = polling.TimerSuspender
	}
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job %s: callback panic: %v", engine.RID(), r)
			}
			done(err)
		}()
		err = engine.Run(ctx, suspender)
	}()
}

// Close is a no-op; goroutines end with their contexts.
func (GoroutineScheduler) Close() {}
