package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"animate3d/internal/execution"
	"animate3d/internal/jobs"
	"animate3d/internal/logging"
	"animate3d/internal/notifications"
	"animate3d/internal/services"
)

const notifyTimeout = 15 * time.Second

// notifyingExecutor publishes terminal outcomes after the caller's callback
// returns. Publishing runs on its own goroutine so schedulers never wait on
// ntfy.
// Background runs without a result callback are left alone so they still
// start no polling.
type notifyingExecutor struct {
	controller *execution.Controller
	notifier   notifications.Service
	logger     *slog.Logger

	pending sync.WaitGroup
}

func (e *notifyingExecutor) Execute(ctx context.Context, rid string, reg execution.Registration) (*execution.Handle, error) {
	if reg.Blocking || reg.OnResult != nil {
		userResult := reg.OnResult
		reg.OnResult = func(outcome jobs.Outcome) {
			if userResult != nil {
				userResult(outcome)
			}
			e.publishOutcome(ctx, outcome)
		}
	}
	h, err := e.controller.Execute(ctx, rid, reg)
	var timeout *services.TimeoutError
	if reg.Blocking && errors.As(err, &timeout) {
		e.publish(ctx, notifications.EventJobTimedOut, notifications.Payload{
			"rid":   rid,
			"after": timeout.After.String(),
		})
	}
	return h, err
}

// flush waits for notifications still being published, or until ctx is
// done.
func (e *notifyingExecutor) flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *notifyingExecutor) publishOutcome(ctx context.Context, outcome jobs.Outcome) {
	switch {
	case outcome.Succeeded():
		payload := notifications.Payload{"rid": outcome.RID}
		if outcome.Result != nil && outcome.Result.Link != nil {
			payload["name"] = outcome.Result.Link.Name
		}
		e.publish(ctx, notifications.EventJobCompleted, payload)
	case outcome.Error != nil && outcome.Error.Code == jobs.TimeoutCode:
		e.publish(ctx, notifications.EventJobTimedOut, notifications.Payload{"rid": outcome.RID})
	case outcome.Error != nil:
		e.publish(ctx, notifications.EventJobFailed, notifications.Payload{
			"rid":   outcome.RID,
			"error": outcome.Error.String(),
		})
	}
}

// publish sends event in the background. flush waits for it.
func (e *notifyingExecutor) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if e.notifier == nil {
		return
	}
	e.pending.Go(func() { e.send(ctx, event, payload) })
}

func (e *notifyingExecutor) send(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := e.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(e.logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "job outcome was not pushed"),
		)
	}
}
