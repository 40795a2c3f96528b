package client_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"animate3d/internal/client"
	"animate3d/internal/config"
	"animate3d/internal/execution"
	"animate3d/internal/jobs"
	"animate3d/internal/notifications"
	"animate3d/internal/params"
	"animate3d/internal/services"
	"animate3d/internal/testsupport"
)

type published struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{event: event, payload: payload})
	return nil
}

func (r *recordingNotifier) count(event notifications.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.events {
		if p.event == event {
			n++
		}
	}
	return n
}

// waitFor waits until event was published n times.
func (r *recordingNotifier) waitFor(t *testing.T, event notifications.Event, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for r.count(event) < n {
		if time.Now().After(deadline) {
			r.mu.Lock()
			defer r.mu.Unlock()
			t.Fatalf("expected %d %s notifications, got %+v", n, event, r.events)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// gatedNotifier blocks every publish until release is closed.
type gatedNotifier struct {
	recordingNotifier
	release chan struct{}
}

func (g *gatedNotifier) Publish(ctx context.Context, event notifications.Event, payload notifications.Payload) error {
	<-g.release
	return g.recordingNotifier.Publish(ctx, event, payload)
}

func newClient(t *testing.T, opts ...testsupport.ConfigOption) (*client.Client, *config.Config, *recordingNotifier) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	testsupport.StartMockService(t, cfg)
	notifier := &recordingNotifier{}
	c, err := client.New(cfg, nil, client.WithNotifier(notifier))
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, cfg, notifier
}

func blocking(c *client.Client, out *jobs.Outcome) execution.Registration {
	reg := c.DefaultRegistration()
	reg.Blocking = true
	reg.OnResult = func(o jobs.Outcome) { *out = o }
	return reg
}

func TestNewRequiresCredentials(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.ClientSecret = ""
	_, err := client.New(cfg, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestStartNewJobBlockingDeliversResultAndDownloads(t *testing.T) {
	c, cfg, notifier := newClient(t)
	ctx := context.Background()

	var outcome jobs.Outcome
	var progress []jobs.Snapshot
	reg := blocking(c, &outcome)
	reg.OnProgress = func(s jobs.Snapshot) { progress = append(progress, s) }

	rid, err := c.StartNewJob(ctx, "https://cdn.example/dance.mp4", params.New(params.FormatBVH, params.FormatMP4), reg)
	if err != nil {
		t.Fatalf("StartNewJob: %v", err)
	}
	if !outcome.Succeeded() || outcome.RID != rid {
		t.Fatalf("expected success for %s, got %+v", rid, outcome)
	}
	if len(progress) == 0 || progress[len(progress)-1].ProgressPercent != 100 {
		t.Fatalf("expected progress ending at 100%%, got %+v", progress)
	}
	notifier.waitFor(t, notifications.EventJobCompleted, 1)

	files, err := c.DownloadJob(ctx, rid, "")
	if err != nil {
		t.Fatalf("DownloadJob: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected bvh and mp4 files, got %+v", files)
	}
	for _, f := range files {
		if filepath.Dir(f.Path) != cfg.Download.OutputDir {
			t.Fatalf("file %s written outside %s", f.Path, cfg.Download.OutputDir)
		}
		if _, err := os.Stat(f.Path); err != nil {
			t.Fatalf("downloaded file missing: %v", err)
		}
	}
}

func TestStartNewJobReportsJobFailure(t *testing.T) {
	c, _, notifier := newClient(t)

	var outcome jobs.Outcome
	rid, err := c.StartNewJob(context.Background(), "https://cdn.example/fail.mp4", params.ProcessParams{}, blocking(c, &outcome))
	if err != nil {
		t.Fatalf("StartNewJob: %v", err)
	}
	if outcome.Succeeded() || outcome.Error == nil || outcome.Error.Code != "513" {
		t.Fatalf("expected error 513 for %s, got %+v", rid, outcome)
	}
	notifier.waitFor(t, notifications.EventJobFailed, 1)
	if _, err := c.JobResult(context.Background(), rid); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for failed job result, got %v", err)
	}
}

func TestStartNewJobUploadsLocalMedia(t *testing.T) {
	c, cfg, _ := newClient(t)
	video := testsupport.WriteMedia(t, filepath.Join(testsupport.BaseDir(cfg), "clips"), "walk.mp4", 4096)

	var outcome jobs.Outcome
	rid, err := c.StartNewJob(context.Background(), video, params.ProcessParams{}, blocking(c, &outcome))
	if err != nil {
		t.Fatalf("StartNewJob: %v", err)
	}
	if !outcome.Succeeded() {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if outcome.Result.Link == nil || outcome.Result.Link.Name != "walk.mp4" {
		t.Fatalf("expected link for walk.mp4, got %+v", outcome.Result.Link)
	}
	if rid == "" {
		t.Fatal("expected rid")
	}
}

func TestStartNewJobBackgroundWithCallback(t *testing.T) {
	for _, scheduler := range []string{config.SchedulerGoroutine, config.SchedulerLoop} {
		t.Run(scheduler, func(t *testing.T) {
			c, _, _ := newClient(t, testsupport.WithScheduler(scheduler))

			results := make(chan jobs.Outcome, 1)
			reg := c.DefaultRegistration()
			reg.Blocking = false
			reg.OnResult = func(o jobs.Outcome) { results <- o }

			rid, err := c.StartNewJob(context.Background(), "https://cdn.example/jump.mp4", params.ProcessParams{}, reg)
			if err != nil {
				t.Fatalf("StartNewJob: %v", err)
			}
			select {
			case o := <-results:
				if !o.Succeeded() || o.RID != rid {
					t.Fatalf("unexpected outcome %+v", o)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("background job never delivered a result")
			}
			deadline := time.Now().Add(5 * time.Second)
			for {
				if _, ok := c.Handle(rid); !ok {
					break
				}
				if time.Now().After(deadline) {
					t.Fatal("finished job is still tracked")
				}
				time.Sleep(5 * time.Millisecond)
			}
		})
	}
}

func TestBackgroundWithoutCallbacksIsDetached(t *testing.T) {
	c, _, _ := newClient(t)

	reg := c.DefaultRegistration()
	reg.Blocking = false
	rid, err := c.StartNewJob(context.Background(), "https://cdn.example/idle.mp4", params.ProcessParams{}, reg)
	if err != nil {
		t.Fatalf("StartNewJob: %v", err)
	}
	if _, ok := c.Handle(rid); ok {
		t.Fatal("a job nobody observes should not be tracked")
	}
	report, err := c.GetJobStatus(context.Background(), rid)
	if err != nil {
		t.Fatalf("GetJobStatus: %v", err)
	}
	if report.Status != jobs.StatusPending {
		t.Fatalf("expected untouched job to be PENDING, got %s", report.Status)
	}
}

func TestMultiPersonFlow(t *testing.T) {
	c, _, _ := newClient(t)
	ctx := context.Background()

	var detection jobs.Outcome
	detRID, err := c.PrepareMultiPersonJob(ctx, "https://cdn.example/duet.mp4", blocking(c, &detection))
	if err != nil {
		t.Fatalf("PrepareMultiPersonJob: %v", err)
	}
	if !detection.Succeeded() {
		t.Fatalf("expected detection success, got %+v", detection)
	}
	persons, err := c.DetectedPersons(ctx, detRID)
	if err != nil {
		t.Fatalf("DetectedPersons: %v", err)
	}
	if len(persons) != 2 {
		t.Fatalf("expected two persons, got %+v", persons)
	}

	_, err = c.StartMultiPersonJob(ctx, detRID, map[string]string{"1": "stock-ybot"}, params.ProcessParams{}, c.DefaultRegistration())
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for partial mapping, got %v", err)
	}

	var processing jobs.Outcome
	rid, err := c.StartMultiPersonJob(ctx, detRID, map[string]string{"1": "stock-ybot", "2": "stock-xbot"},
		params.New(params.FormatFBX), blocking(c, &processing))
	if err != nil {
		t.Fatalf("StartMultiPersonJob: %v", err)
	}
	if !processing.Succeeded() || rid == detRID {
		t.Fatalf("expected processing success under a new rid, got %+v", processing)
	}
	if link := processing.Result.Link; link == nil || !link.MultiPerson {
		t.Fatalf("expected multi-person link, got %+v", link)
	}
}

func TestRerunJob(t *testing.T) {
	c, _, _ := newClient(t)
	ctx := context.Background()

	var first jobs.Outcome
	original, err := c.StartNewJob(ctx, "https://cdn.example/spin.mp4", params.New(params.FormatBVH), blocking(c, &first))
	if err != nil {
		t.Fatalf("StartNewJob: %v", err)
	}

	overrides := params.ProcessParams{Formats: []params.Format{params.FormatFBX}}
	effective, err := c.EffectiveRerunParams(ctx, original, overrides)
	if err != nil {
		t.Fatalf("EffectiveRerunParams: %v", err)
	}
	if len(effective.Formats) != 1 || effective.Formats[0] != params.FormatFBX {
		t.Fatalf("expected overridden formats, got %+v", effective.Formats)
	}

	var second jobs.Outcome
	rid, err := c.RerunJob(ctx, original, overrides, blocking(c, &second))
	if err != nil {
		t.Fatalf("RerunJob: %v", err)
	}
	if rid == original || !second.Succeeded() {
		t.Fatalf("expected a new successful job, got %s %+v", rid, second)
	}

	if _, err := c.RerunJob(ctx, "missing-rid", overrides, c.DefaultRegistration()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown rid, got %v", err)
	}
}

func TestRunBatchReportsEachItem(t *testing.T) {
	c, _, notifier := newClient(t)

	var mu sync.Mutex
	seen := 0
	items := c.RunBatch(context.Background(), []string{
		"https://cdn.example/one.mp4",
		"https://cdn.example/fail.mp4",
		"",
	}, params.ProcessParams{}, 2, func(client.BatchItem) {
		mu.Lock()
		seen++
		mu.Unlock()
	})
	if len(items) != 3 || seen != 3 {
		t.Fatalf("expected three items reported, got %d (%d callbacks)", len(items), seen)
	}
	if !items[0].Succeeded() {
		t.Fatalf("expected first item to succeed, got %+v", items[0])
	}
	if items[1].Succeeded() || items[1].Outcome == nil || items[1].Outcome.Error == nil {
		t.Fatalf("expected second item to fail with a job error, got %+v", items[1])
	}
	if !errors.Is(items[2].Err, services.ErrValidation) {
		t.Fatalf("expected empty media to be rejected, got %+v", items[2])
	}
	notifier.waitFor(t, notifications.EventBatchCompleted, 1)
}

func TestListJobsAndCredits(t *testing.T) {
	c, _, _ := newClient(t)
	ctx := context.Background()

	before, err := c.CreditBalance(ctx)
	if err != nil {
		t.Fatalf("CreditBalance: %v", err)
	}

	var outcome jobs.Outcome
	rid, err := c.StartNewJob(ctx, "https://cdn.example/wave.mp4", params.ProcessParams{}, blocking(c, &outcome))
	if err != nil {
		t.Fatalf("StartNewJob: %v", err)
	}

	after, err := c.CreditBalance(ctx)
	if err != nil {
		t.Fatalf("CreditBalance: %v", err)
	}
	if after != before-1 {
		t.Fatalf("expected one credit charged, before=%d after=%d", before, after)
	}

	list, err := c.ListJobs(ctx, jobs.StatusSuccess)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(list) != 1 || list[0].RID != rid {
		t.Fatalf("expected only %s listed, got %+v", rid, list)
	}
}

func TestCloseCancelsRunningBackgroundJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Jobs.ShutdownGrace = 0
	cfg.Mock.StepsPerJob = 1000
	testsupport.StartMockService(t, cfg)
	c, err := client.New(cfg, nil, client.WithNotifier(&recordingNotifier{}))
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}

	reg := c.DefaultRegistration()
	reg.Blocking = false
	reg.OnProgress = func(jobs.Snapshot) {}
	rid, err := c.StartNewJob(context.Background(), "https://cdn.example/long.mp4", params.ProcessParams{}, reg)
	if err != nil {
		t.Fatalf("StartNewJob: %v", err)
	}
	h, ok := c.Handle(rid)
	if !ok {
		t.Fatal("expected running job to be tracked")
	}
	if err := c.Close(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected forced shutdown, got %v", err)
	}
	if _, ok := c.Handle(rid); ok {
		t.Fatal("cancelled job should no longer be tracked")
	}
	if !errors.Is(h.Err(), services.ErrCancelled) {
		t.Fatalf("expected cancelled handle, got %v", h.Err())
	}
	if _, err := c.StartNewJob(context.Background(), "https://cdn.example/late.mp4", params.ProcessParams{}, reg); !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected closed client to reject jobs, got %v", err)
	}
}

func TestOutcomeDeliveryDoesNotWaitForNotifications(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.StartMockService(t, cfg)
	notifier := &gatedNotifier{release: make(chan struct{})}
	c, err := client.New(cfg, nil, client.WithNotifier(notifier))
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}

	var outcome jobs.Outcome
	finished := make(chan error, 1)
	go func() {
		_, err := c.StartNewJob(context.Background(), "https://cdn.example/run.mp4", params.ProcessParams{}, blocking(c, &outcome))
		finished <- err
	}()
	select {
	case err := <-finished:
		if err != nil {
			t.Fatalf("StartNewJob: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job delivery waited on a stalled notifier")
	}
	if !outcome.Succeeded() {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if notifier.count(notifications.EventJobCompleted) != 0 {
		t.Fatal("notification should still be held by the notifier")
	}

	close(notifier.release)
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if notifier.count(notifications.EventJobCompleted) != 1 {
		t.Fatalf("expected completion to be published by Close, got %+v", notifier.events)
	}
}
