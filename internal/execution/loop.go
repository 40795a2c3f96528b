package execution

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"animate3d/internal/logging"
	"animate3d/internal/polling"
	"animate3d/internal/services"
)

// Loop is a cooperative scheduler: one goroutine polls every registered job
// in order of next due time. A slow callback delays the whole loop.
type Loop struct {
	logger *slog.Logger

	mu      sync.Mutex
	queue   entryQueue
	seq     uint64
	started bool
	closed  bool

	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
}

type loopEntry struct {
	ctx     context.Context
	engine  *polling.Engine
	done    func(error)
	due     time.Time
	seq     uint64
	index   int
	unwatch func() bool
}

// NewLoop builds an idle loop. Its goroutine starts with the first job.
func NewLoop(logger *slog.Logger) *Loop {
	return &Loop{
		logger:  logging.NewComponentLogger(logger, "loop"),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start queues engine for an immediate first poll.
func (l *Loop) Start(ctx context.Context, engine *polling.Engine, done func(error)) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		done(services.Wrap(services.ErrCancelled, "loop", "start", "loop closed", nil))
		return
	}
	l.seq++
	e := &loopEntry{ctx: ctx, engine: engine, done: done, due: time.Now(), seq: l.seq}
	e.unwatch = context.AfterFunc(ctx, l.signal)
	heap.Push(&l.queue, e)
	if !l.started {
		l.started = true
		go l.run()
	}
	l.mu.Unlock()
	l.signal()
}

// Len reports how many jobs are waiting for their next poll.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Len()
}

// Close stops the loop and resolves every queued job as cancelled.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	started := l.started
	l.mu.Unlock()

	close(l.stop)
	if started {
		<-l.stopped
	}

	l.mu.Lock()
	remaining := make([]*loopEntry, 0, l.queue.Len())
	for l.queue.Len() > 0 {
		remaining = append(remaining, heap.Pop(&l.queue).(*loopEntry))
	}
	l.mu.Unlock()
	for _, e := range remaining {
		e.unwatch()
		e.done(services.Wrap(services.ErrCancelled, "loop", "close", "job "+e.engine.RID()+" abandoned", nil))
	}
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		l.mu.Lock()
		cancelled := l.reapCancelled()
		var next *loopEntry
		if l.queue.Len() > 0 {
			next = l.queue[0]
		}
		l.mu.Unlock()

		for _, e := range cancelled {
			e.done(e.ctx.Err())
		}

		if next == nil {
			select {
			case <-l.wake:
				continue
			case <-l.stop:
				return
			}
		}

		if wait := time.Until(next.due); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-l.wake:
				timer.Stop()
				continue
			case <-l.stop:
				timer.Stop()
				return
			}
		}

		select {
		case <-l.stop:
			return
		default:
		}

		l.mu.Lock()
		if l.queue.Len() == 0 || l.queue[0] != next {
			l.mu.Unlock()
			continue
		}
		heap.Pop(&l.queue)
		l.mu.Unlock()

		err := l.step(next)
		switch {
		case errors.Is(err, polling.ErrFinished):
			next.unwatch()
			next.done(nil)
		case err != nil:
			next.unwatch()
			next.done(err)
		default:
			next.due = time.Now().Add(next.engine.NextDelay())
			l.mu.Lock()
			heap.Push(&l.queue, next)
			l.mu.Unlock()
		}
	}
}

func (l *Loop) step(e *loopEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s: callback panic: %v", e.engine.RID(), r)
		}
	}()
	if ctxErr := e.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return e.engine.Poll(e.ctx)
}

// reapCancelled removes entries whose context ended. Callers hold l.mu.
func (l *Loop) reapCancelled() []*loopEntry {
	var out []*loopEntry
	for _, e := range l.queue {
		if e.ctx.Err() != nil {
			out = append(out, e)
		}
	}
	for _, e := range out {
		heap.Remove(&l.queue, e.index)
	}
	return out
}

type entryQueue []*loopEntry

func (q entryQueue) Len() int { return len(q) }

func (q entryQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q entryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *entryQueue) Push(x any) {
	e := x.(*loopEntry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *entryQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
