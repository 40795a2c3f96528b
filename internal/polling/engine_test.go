package polling_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"animate3d/internal/jobs"
	"animate3d/internal/polling"
	"animate3d/internal/services"
)

type scriptedSource struct {
	mu      sync.Mutex
	reports []jobs.StatusReport
	calls   int
	results int
	err     error
}

func (s *scriptedSource) Status(_ context.Context, rid string) (jobs.StatusReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return jobs.StatusReport{}, s.err
	}
	idx := min(s.calls-1, len(s.reports)-1)
	r := s.reports[idx]
	r.RID = rid
	return r, nil
}

func (s *scriptedSource) Result(_ context.Context, report jobs.StatusReport) (jobs.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results++
	return jobs.Result{RID: report.RID, Output: report.Output}, nil
}

func report(status jobs.Status, percent, position int) jobs.StatusReport {
	return jobs.StatusReport{
		Found:    true,
		Snapshot: jobs.Snapshot{Status: status, ProgressPercent: percent, PositionInQueue: position},
	}
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) suspender() polling.Suspender {
	return polling.SuspenderFunc(func(_ context.Context, d time.Duration) error {
		c.now = c.now.Add(d)
		return nil
	})
}

func TestRunDispatchesOrderedDedupedProgress(t *testing.T) {
	success := report(jobs.StatusSuccess, 100, 0)
	success.Output = []string{"clip.fbx"}
	source := &scriptedSource{reports: []jobs.StatusReport{
		report(jobs.StatusPending, 0, 0),
		report(jobs.StatusQueued, 0, 2),
		report(jobs.StatusQueued, 0, 2),
		report(jobs.StatusProcessing, 30, 0),
		report(jobs.StatusProcessing, 30, 0),
		report(jobs.StatusProcessing, 75, 0),
		success,
	}}
	clock := &fakeClock{now: time.Unix(0, 0)}

	var progress []jobs.Snapshot
	var outcomes []jobs.Outcome
	engine := polling.New(source, polling.Config{
		RID:        "job-001",
		Interval:   time.Second,
		OnProgress: func(s jobs.Snapshot) { progress = append(progress, s) },
		OnResult:   func(o jobs.Outcome) { outcomes = append(outcomes, o) },
		Now:        clock.Now,
	})

	if err := engine.Run(context.Background(), clock.suspender()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	wantStatus := []jobs.Status{jobs.StatusPending, jobs.StatusQueued, jobs.StatusProcessing, jobs.StatusProcessing, jobs.StatusSuccess}
	wantPercent := []int{0, 0, 30, 75, 100}
	if len(progress) != len(wantStatus) {
		t.Fatalf("expected %d progress callbacks, got %d: %+v", len(wantStatus), len(progress), progress)
	}
	for i := range progress {
		if progress[i].Status != wantStatus[i] || progress[i].ProgressPercent != wantPercent[i] {
			t.Fatalf("progress[%d] = %+v, want %s/%d", i, progress[i], wantStatus[i], wantPercent[i])
		}
	}
	if len(outcomes) != 1 || !outcomes[0].Succeeded() || outcomes[0].Result.Output[0] != "clip.fbx" {
		t.Fatalf("expected one successful outcome, got %+v", outcomes)
	}
	if err := engine.Poll(context.Background()); !errors.Is(err, polling.ErrFinished) {
		t.Fatalf("expected ErrFinished after terminal, got %v", err)
	}
	if source.calls != 7 {
		t.Fatalf("expected no polls after terminal, got %d status calls", source.calls)
	}
}

func TestFailureDeliversErrorOnce(t *testing.T) {
	failed := report(jobs.StatusFailure, 0, 0)
	failed.Error = &jobs.JobError{Code: "101", Message: "Error 101: Not enough credits"}
	source := &scriptedSource{reports: []jobs.StatusReport{report(jobs.StatusProcessing, 40, 0), failed}}
	clock := &fakeClock{now: time.Unix(0, 0)}

	var outcomes []jobs.Outcome
	engine := polling.New(source, polling.Config{
		RID:      "bad",
		OnResult: func(o jobs.Outcome) { outcomes = append(outcomes, o) },
		Now:      clock.Now,
	})
	if err := engine.Run(context.Background(), clock.suspender()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Result != nil || outcomes[0].Error.Code != "101" {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}
	if source.results != 0 {
		t.Fatal("failed jobs must not fetch a result payload")
	}
	for range 3 {
		_ = engine.Poll(context.Background())
	}
	if source.calls != 2 || len(outcomes) != 1 {
		t.Fatalf("expected polling to stop, got %d calls and %d outcomes", source.calls, len(outcomes))
	}
	if snap := engine.Snapshot(); snap.ProgressPercent != 40 {
		t.Fatalf("failure must not reset progress, got %+v", snap)
	}
}

func TestProgressNeverMovesBackwards(t *testing.T) {
	source := &scriptedSource{reports: []jobs.StatusReport{
		report(jobs.StatusProcessing, 50, 0),
		report(jobs.StatusQueued, 20, 1),
		report(jobs.StatusProcessing, 60, 0),
	}}
	var progress []jobs.Snapshot
	engine := polling.New(source, polling.Config{
		RID:        "r",
		OnProgress: func(s jobs.Snapshot) { progress = append(progress, s) },
	})
	for range 3 {
		if err := engine.Poll(context.Background()); err != nil {
			t.Fatalf("Poll returned error: %v", err)
		}
	}
	if len(progress) != 2 || progress[0].ProgressPercent != 50 || progress[1].ProgressPercent != 60 {
		t.Fatalf("unexpected progress %+v", progress)
	}
	for _, p := range progress {
		if p.Status != jobs.StatusProcessing || p.PositionInQueue != 0 {
			t.Fatalf("status regressed: %+v", p)
		}
	}
}

func TestTimeoutStopsPolling(t *testing.T) {
	source := &scriptedSource{reports: []jobs.StatusReport{report(jobs.StatusProcessing, 10, 0)}}
	clock := &fakeClock{now: time.Unix(0, 0)}
	var outcomes int
	engine := polling.New(source, polling.Config{
		RID:      "slow",
		Interval: 2 * time.Second,
		Timeout:  5 * time.Second,
		OnResult: func(jobs.Outcome) { outcomes++ },
		Now:      clock.Now,
	})

	err := engine.Run(context.Background(), clock.suspender())
	var timeout *services.TimeoutError
	if !errors.As(err, &timeout) || timeout.RID != "slow" || !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	calls := source.calls
	if calls != 3 {
		t.Fatalf("expected polls at 0s, 2s and 4s, got %d", calls)
	}
	if err := engine.Poll(context.Background()); !errors.Is(err, polling.ErrFinished) {
		t.Fatalf("expected ErrFinished after timeout, got %v", err)
	}
	if source.calls != calls || outcomes != 0 {
		t.Fatalf("timeout must not poll again or call back, got %d calls, %d outcomes", source.calls, outcomes)
	}
	if engine.Snapshot().Status != jobs.StatusCancelled {
		t.Fatalf("expected local status CANCELLED, got %s", engine.Snapshot().Status)
	}
}

func TestCancelObservedAtNextPoll(t *testing.T) {
	source := &scriptedSource{reports: []jobs.StatusReport{report(jobs.StatusQueued, 0, 1)}}
	var callbacks int
	engine := polling.New(source, polling.Config{
		RID:        "c",
		OnProgress: func(jobs.Snapshot) { callbacks++ },
		OnResult:   func(jobs.Outcome) { callbacks++ },
	})
	if err := engine.Poll(context.Background()); err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	engine.Cancel()
	if err := engine.Poll(context.Background()); !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if err := engine.Poll(context.Background()); !errors.Is(err, polling.ErrFinished) {
		t.Fatalf("expected ErrFinished, got %v", err)
	}
	if callbacks != 1 || source.calls != 1 {
		t.Fatalf("expected no activity after cancel, got %d callbacks, %d calls", callbacks, source.calls)
	}
}

func TestTransportErrorIsReturned(t *testing.T) {
	boom := errors.New("connection reset")
	source := &scriptedSource{err: boom}
	engine := polling.New(source, polling.Config{RID: "x"})
	if err := engine.Run(context.Background(), polling.TimerSuspender); !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if engine.Finished() {
		t.Fatal("transport errors must not latch the engine")
	}
}
