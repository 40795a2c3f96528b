package execution

import (
	"errors"
	"time"

	"animate3d/internal/polling"
	"animate3d/internal/services"
)

// ErrorFunc receives errors raised while a job runs in the background.
type ErrorFunc func(error)

// Registration holds the per-job callbacks and polling settings.
type Registration struct {
	OnProgress   polling.ProgressFunc
	OnResult     polling.ResultFunc
	OnError      ErrorFunc
	PollInterval time.Duration
	// Timeout bounds the wait for a terminal status. Zero means no limit.
	Timeout  time.Duration
	Blocking bool
}

// Validate rejects negative durations.
func (r Registration) Validate() error {
	var problems []error
	if r.PollInterval < 0 {
		problems = append(problems, errors.New("poll interval must not be negative"))
	}
	if r.Timeout < 0 {
		problems = append(problems, errors.New("timeout must not be negative"))
	}
	if len(problems) == 0 {
		return nil
	}
	return services.Wrap(services.ErrValidation, "execution", "register", "", errors.Join(problems...))
}

// HasCallbacks reports whether anything could observe a background run.
func (r Registration) HasCallbacks() bool {
	return r.OnProgress != nil || r.OnResult != nil || r.OnError != nil
}
