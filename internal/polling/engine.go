package polling

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"animate3d/internal/jobs"
	"animate3d/internal/logging"
	"animate3d/internal/services"
)

// DefaultInterval is used when Config.Interval is not positive.
const DefaultInterval = 5 * time.Second

// ErrFinished is returned by Poll once the engine delivered its terminal
// notification or stopped because of cancellation or timeout.
var ErrFinished = errors.New("polling finished")

// ProgressFunc receives each distinct snapshot in order.
type ProgressFunc func(jobs.Snapshot)

// ResultFunc receives the single terminal outcome.
type ResultFunc func(jobs.Outcome)

// Source reads job state. *jobs.Service satisfies it.
type Source interface {
	Status(ctx context.Context, rid string) (jobs.StatusReport, error)
	Result(ctx context.Context, report jobs.StatusReport) (jobs.Result, error)
}

// Config configures one Engine.
type Config struct {
	RID        string
	Interval   time.Duration
	Timeout    time.Duration
	OnProgress ProgressFunc
	OnResult   ResultFunc
	Logger     *slog.Logger
	// Now overrides time.Now for timeout accounting.
	Now func() time.Time
}

// Engine is the polling state machine for one RID. Poll is not safe for
// concurrent use; Cancel and the accessors are.
type Engine struct {
	source   Source
	rid      string
	interval time.Duration
	timeout  time.Duration
	onProg   ProgressFunc
	onResult ResultFunc
	logger   *slog.Logger
	now      func() time.Time
	sampler  *logging.ProgressSampler
	started  time.Time

	cancelled atomic.Bool

	mu         sync.Mutex
	current    jobs.Snapshot
	dispatched *jobs.Snapshot
	finished   bool
	polls      int
}

// New builds an Engine. The timeout clock starts now.
func New(source Source, cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := logging.NewComponentLogger(cfg.Logger, "polling").With(logging.RID(cfg.RID))
	e := &Engine{
		source:   source,
		rid:      cfg.RID,
		interval: interval,
		timeout:  cfg.Timeout,
		onProg:   cfg.OnProgress,
		onResult: cfg.OnResult,
		logger:   logger,
		now:      now,
		started:  now(),
		current:  jobs.Snapshot{RID: cfg.RID, Status: jobs.StatusPending},
	}
	if e.onProg == nil {
		e.sampler = logging.NewProgressSampler(10)
	}
	return e
}

// RID returns the job this engine follows.
func (e *Engine) RID() string { return e.rid }

// Interval returns the configured poll cadence.
func (e *Engine) Interval() time.Duration { return e.interval }

// Snapshot returns the latest normalized snapshot.
func (e *Engine) Snapshot() jobs.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Finished reports whether the engine stopped for good.
func (e *Engine) Finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finished
}

// Polls reports how many status queries were issued.
func (e *Engine) Polls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.polls
}

// Cancel requests a stop. It takes effect at the next poll boundary and no
// callback fires afterwards.
func (e *Engine) Cancel() { e.cancelled.Store(true) }

// NextDelay is the pause before the next poll: the interval, shortened so a
// timeout is noticed on time.
func (e *Engine) NextDelay() time.Duration {
	if e.timeout <= 0 {
		return e.interval
	}
	remaining := e.timeout - e.now().Sub(e.started)
	if remaining < 0 {
		return 0
	}
	return min(e.interval, remaining)
}

// Poll performs one step of the state machine. It returns ErrFinished once
// the terminal outcome was delivered, a *services.TimeoutError when the
// timeout expired, an ErrCancelled error after Cancel, and transport errors
// unchanged.
func (e *Engine) Poll(ctx context.Context) error {
	if e.Finished() {
		return ErrFinished
	}
	if e.cancelled.Load() {
		e.stop()
		return services.Wrap(services.ErrCancelled, "polling", "poll", "job "+e.rid+" cancelled", nil)
	}
	if elapsed := e.now().Sub(e.started); e.timeout > 0 && elapsed >= e.timeout {
		e.stop()
		e.logger.Warn("job polling timed out",
			logging.String(logging.FieldEventType, "job_timeout"),
			logging.Duration("timeout", e.timeout),
		)
		return &services.TimeoutError{RID: e.rid, After: e.timeout}
	}

	report, err := e.source.Status(ctx, e.rid)
	e.mu.Lock()
	e.polls++
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if e.cancelled.Load() {
		e.stop()
		return services.Wrap(services.ErrCancelled, "polling", "poll", "job "+e.rid+" cancelled", nil)
	}

	snap, changed := e.observe(report)
	if changed {
		e.dispatchProgress(snap)
	}
	if !snap.Status.IsTerminal() {
		return nil
	}

	outcome := jobs.Outcome{RID: e.rid}
	switch snap.Status {
	case jobs.StatusSuccess:
		result, err := e.source.Result(ctx, report)
		if err != nil {
			return err
		}
		outcome.Result = &result
	default:
		jobErr := report.Error
		if jobErr == nil {
			jobErr = &jobs.JobError{Code: string(snap.Status), Message: "job ended with status " + string(snap.Status)}
		}
		outcome.Error = jobErr
	}
	return e.deliver(outcome)
}

// Run polls until the terminal outcome is delivered, suspending between
// polls. It returns nil after terminal delivery.
func (e *Engine) Run(ctx context.Context, s Suspender) error {
	if s == nil {
		s = TimerSuspender
	}
	for {
		err := e.Poll(ctx)
		if errors.Is(err, ErrFinished) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.Suspend(ctx, e.NextDelay()); err != nil {
			return err
		}
	}
}

// observe clamps report against the last snapshot and reports whether it
// differs from the last dispatched one.
func (e *Engine) observe(report jobs.StatusReport) (jobs.Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := report.Snapshot
	snap.RID = e.rid
	if !snap.Status.IsTerminal() {
		if snap.Status.Rank() < e.current.Status.Rank() {
			snap.Status = e.current.Status
		}
		snap.ProgressPercent = max(snap.ProgressPercent, e.current.ProgressPercent)
	} else if snap.Status == jobs.StatusSuccess {
		snap.ProgressPercent = 100
	} else {
		snap.ProgressPercent = max(snap.ProgressPercent, e.current.ProgressPercent)
	}
	if snap.Status.Rank() >= jobs.StatusProcessing.Rank() {
		snap.PositionInQueue = 0
	}
	e.current = snap

	if e.dispatched != nil && e.dispatched.Equal(snap) {
		return snap, false
	}
	dispatched := snap
	e.dispatched = &dispatched
	return snap, true
}

func (e *Engine) dispatchProgress(snap jobs.Snapshot) {
	if e.onProg != nil {
		e.onProg(snap)
		return
	}
	if e.sampler.ShouldLog(float64(snap.ProgressPercent), string(snap.Status)) {
		e.logger.Info("job progress",
			logging.String(logging.FieldEventType, "job_progress"),
			logging.String("status", string(snap.Status)),
			logging.Int("percent", snap.ProgressPercent),
			logging.Int("position_in_queue", snap.PositionInQueue),
		)
	}
}

func (e *Engine) deliver(outcome jobs.Outcome) error {
	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return ErrFinished
	}
	e.finished = true
	e.mu.Unlock()

	if outcome.Succeeded() {
		e.logger.Info("job succeeded", logging.String(logging.FieldEventType, "job_succeeded"))
	} else {
		e.logger.Warn("job failed",
			logging.String(logging.FieldEventType, "job_failed"),
			logging.String("code", outcome.Error.Code),
			logging.String("message", outcome.Error.Message),
			logging.String(logging.FieldErrorHint, "inspect the job error code"),
			logging.String(logging.FieldImpact, "no artifacts produced"),
		)
	}
	if e.onResult != nil {
		e.onResult(outcome)
	}
	return ErrFinished
}

// stop latches the engine without a notification and marks the local view
// CANCELLED.
func (e *Engine) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finished = true
	e.current.Status = jobs.StatusCancelled
	e.current.PositionInQueue = 0
}
