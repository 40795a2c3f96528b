package execution

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"animate3d/internal/jobs"
	"animate3d/internal/logging"
	"animate3d/internal/polling"
	"animate3d/internal/services"
)

// Option customises Controller construction.
type Option func(*Controller)

// WithScheduler selects the background scheduler. The default is a
// GoroutineScheduler.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) {
		if s != nil {
			c.scheduler = s
		}
	}
}

// WithSuspender overrides the pause used by blocking runs.
func WithSuspender(s polling.Suspender) Option {
	return func(c *Controller) {
		if s != nil {
			c.suspender = s
		}
	}
}

// WithClock overrides time.Now for engine timeouts.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithDefaults sets the poll interval and timeout used when a Registration
// leaves them zero.
func WithDefaults(interval, timeout time.Duration) Option {
	return func(c *Controller) {
		c.defaultInterval = interval
		c.defaultTimeout = timeout
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.base = logger
		c.logger = logging.NewComponentLogger(logger, "execution")
	}
}

// Controller executes jobs in blocking or background mode on top of one
// polling algorithm.
type Controller struct {
	source          polling.Source
	scheduler       Scheduler
	suspender       polling.Suspender
	now             func() time.Time
	base            *slog.Logger
	logger          *slog.Logger
	defaultInterval time.Duration
	defaultTimeout  time.Duration

	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
}

// NewController builds a Controller reading job state from source.
func NewController(source polling.Source, opts ...Option) *Controller {
	c := &Controller{
		source:    source,
		scheduler: GoroutineScheduler{},
		suspender: polling.TimerSuspender,
		logger:    logging.NewNop(),
		handles:   make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute polls rid according to reg. In blocking mode it returns after
// terminal delivery, or with the error that stopped polling. In background
// mode it returns at once; a background run is only started when reg has a
// callback to observe it.
func (c *Controller) Execute(ctx context.Context, rid string, reg Registration) (*Handle, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, services.Wrap(services.ErrCancelled, "execution", "execute", "controller shut down", nil)
	}

	ctx = services.WithRID(ctx, rid)
	logger := logging.WithContext(ctx, c.logger)

	if reg.Blocking {
		engine := c.newEngine(rid, reg)
		h := newHandle(rid, engine, nil)
		c.track(h)
		err := engine.Run(ctx, c.suspender)
		if err != nil && ctx.Err() != nil {
			engine.Cancel()
		}
		c.untrack(h)
		h.resolve(err)
		return h, err
	}

	if !reg.HasCallbacks() {
		h := newHandle(rid, nil, nil)
		h.resolve(nil)
		logger.Debug("background job has no callbacks; not polling")
		return h, nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	engine := c.newEngine(rid, reg)
	h := newHandle(rid, engine, cancel)
	c.track(h)
	c.scheduler.Start(runCtx, engine, func(err error) {
		c.finish(logger, h, reg, err)
	})
	return h, nil
}

// Handle returns the handle of a job this controller is still polling.
// Handles are released once they resolve.
func (c *Controller) Handle(rid string) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[rid]
	return h, ok
}

// Cancel stops the background polling of rid.
func (c *Controller) Cancel(rid string) bool {
	h, ok := c.Handle(rid)
	if !ok {
		return false
	}
	h.Cancel()
	return true
}

// Active returns the handles that have not resolved yet.
func (c *Controller) Active() []*Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Handle
	for _, h := range c.handles {
		select {
		case <-h.Done():
		default:
			out = append(out, h)
		}
	}
	return out
}

// Shutdown stops accepting jobs, waits for running jobs until ctx is done,
// then cancels the rest. Cancelled jobs get no further callbacks and their
// handles resolve with ErrCancelled. It returns ctx.Err() when jobs had to
// be cancelled.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	var drainErr error
	for _, h := range c.Active() {
		if err := h.Wait(ctx); err != nil && ctx.Err() != nil {
			drainErr = ctx.Err()
			break
		}
	}
	pending := c.Active()
	for _, h := range pending {
		h.Cancel()
	}
	c.scheduler.Close()
	for _, h := range pending {
		<-h.Done()
	}
	if len(pending) > 0 {
		c.logger.Warn("cancelled background jobs at shutdown",
			logging.String(logging.FieldEventType, "shutdown_cancelled_jobs"),
			logging.Int("count", len(pending)),
			logging.String(logging.FieldImpact, "callbacks for these jobs will not fire"),
		)
	}
	return drainErr
}

func (c *Controller) newEngine(rid string, reg Registration) *polling.Engine {
	interval := reg.PollInterval
	if interval <= 0 {
		interval = c.defaultInterval
	}
	timeout := reg.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	return polling.New(c.source, polling.Config{
		RID:        rid,
		Interval:   interval,
		Timeout:    timeout,
		OnProgress: reg.OnProgress,
		OnResult:   reg.OnResult,
		Logger:     c.base,
		Now:        c.now,
	})
}

func (c *Controller) track(h *Handle) {
	c.mu.Lock()
	c.handles[h.RID()] = h
	c.mu.Unlock()
}

func (c *Controller) untrack(h *Handle) {
	c.mu.Lock()
	if c.handles[h.RID()] == h {
		delete(c.handles, h.RID())
	}
	c.mu.Unlock()
}

// finish resolves a background job. A timeout becomes the job's terminal
// notification; cancellation is silent; other errors reach OnError.
func (c *Controller) finish(logger *slog.Logger, h *Handle, reg Registration, err error) {
	var timeout *services.TimeoutError
	switch {
	case err == nil:
	case errors.As(err, &timeout):
		outcome := jobs.Outcome{RID: h.RID(), Error: &jobs.JobError{Code: jobs.TimeoutCode, Message: timeout.Error()}}
		if reg.OnResult != nil {
			reg.OnResult(outcome)
		} else if reg.OnError != nil {
			reg.OnError(err)
		}
	case errors.Is(err, services.ErrCancelled), errors.Is(err, context.Canceled):
		if !errors.Is(err, services.ErrCancelled) {
			err = services.Wrap(services.ErrCancelled, "execution", "poll", "job "+h.RID()+" cancelled", err)
		}
		logger.Info("background job cancelled", logging.String(logging.FieldEventType, "job_cancelled"))
	default:
		logging.ErrorWithContext(logger, "background job failed", "job_poll_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check connectivity and credentials, then wait on the job again"),
		)
		if reg.OnError != nil {
			reg.OnError(err)
		}
	}
	c.untrack(h)
	h.resolve(err)
}
