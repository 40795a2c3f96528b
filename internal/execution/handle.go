package execution

import (
	"context"
	"sync"

	"animate3d/internal/jobs"
	"animate3d/internal/polling"
)

// Handle tracks one executed job. It resolves once polling ends, with the
// error that stopped it or nil after terminal delivery.
type Handle struct {
	rid    string
	engine *polling.Engine
	cancel context.CancelFunc

	done chan struct{}
	once sync.Once
	err  error
}

func newHandle(rid string, engine *polling.Engine, cancel context.CancelFunc) *Handle {
	return &Handle{rid: rid, engine: engine, cancel: cancel, done: make(chan struct{})}
}

// RID returns the job identifier.
func (h *Handle) RID() string { return h.rid }

// Done is closed once polling ended.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the error that ended polling. It is nil before Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the handle resolves or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Detached reports whether no polling was started for this job.
func (h *Handle) Detached() bool { return h.engine == nil }

// Snapshot returns the latest snapshot observed for the job.
func (h *Handle) Snapshot() jobs.Snapshot {
	if h.engine == nil {
		return jobs.Snapshot{RID: h.rid, Status: jobs.StatusPending}
	}
	return h.engine.Snapshot()
}

// Cancel stops polling at the next poll boundary. No callbacks fire
// afterwards.
func (h *Handle) Cancel() {
	if h.engine != nil {
		h.engine.Cancel()
	}
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Handle) resolve(err error) {
	h.once.Do(func() {
		h.err = err
		if h.cancel != nil {
			h.cancel()
		}
		close(h.done)
	})
}
