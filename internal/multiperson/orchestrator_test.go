package multiperson_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"animate3d/internal/execution"
	"animate3d/internal/jobs"
	"animate3d/internal/multiperson"
	"animate3d/internal/params"
	"animate3d/internal/polling"
	"animate3d/internal/services"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	rids     []string
	requests []jobs.Request
}

func (s *fakeSubmitter) Submit(_ context.Context, req jobs.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	rid := s.rids[0]
	s.rids = s.rids[1:]
	return rid, nil
}

type fakeSource struct {
	statuses map[string]jobs.Status
	links    map[string]*jobs.DownloadLink
	queries  int
}

func (s *fakeSource) Status(_ context.Context, rid string) (jobs.StatusReport, error) {
	s.queries++
	status, ok := s.statuses[rid]
	return jobs.StatusReport{Snapshot: jobs.Snapshot{RID: rid, Status: status}, Found: ok}, nil
}

func (s *fakeSource) Result(_ context.Context, report jobs.StatusReport) (jobs.Result, error) {
	return jobs.Result{RID: report.RID, Link: s.links[report.RID]}, nil
}

func detectionLink(rid string) *jobs.DownloadLink {
	return &jobs.DownloadLink{
		RID:         rid,
		MultiPerson: true,
		URLs: []jobs.URLGroup{
			{Name: "all_characters", Files: []jobs.File{{Type: "fbx", URL: "https://cdn/all.fbx"}}},
			{Name: "person_002", Files: []jobs.File{{Type: "mp4", URL: "https://cdn/2.mp4"}}},
			{Name: "person_001", Files: []jobs.File{{Type: "mp4", URL: "https://cdn/1.mp4"}}},
		},
	}
}

func newHarness() (*multiperson.Orchestrator, *fakeSubmitter, *fakeSource) {
	source := &fakeSource{
		statuses: map[string]jobs.Status{"det-01": jobs.StatusSuccess, "proc-01": jobs.StatusSuccess},
		links:    map[string]*jobs.DownloadLink{"det-01": detectionLink("det-01")},
	}
	submitter := &fakeSubmitter{rids: []string{"det-01", "proc-01"}}
	noWait := polling.SuspenderFunc(func(ctx context.Context, _ time.Duration) error { return ctx.Err() })
	ctrl := execution.NewController(source, execution.WithSuspender(noWait))
	return multiperson.New(submitter, ctrl, source, nil), submitter, source
}

func TestPrepareThenStart(t *testing.T) {
	orch, submitter, _ := newHarness()
	ctx := context.Background()

	det, err := orch.Prepare(ctx, "gs://bucket/duet.mp4", execution.Registration{Blocking: true})
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if det != "det-01" {
		t.Fatalf("unexpected detection rid %q", det)
	}
	sess, ok := orch.Session(det)
	if !ok || !sess.Detected || len(sess.Persons) != 2 || sess.Persons[0].Slot != "001" || sess.Persons[1].Slot != "002" {
		t.Fatalf("unexpected session %+v", sess)
	}

	_, err = orch.Start(ctx, det, map[string]string{"001": "modelA"}, params.New(params.FormatFBX), execution.Registration{Blocking: true})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for incomplete mapping, got %v", err)
	}

	var during multiperson.Session
	var open bool
	reg := execution.Registration{Blocking: true, OnResult: func(jobs.Outcome) { during, open = orch.Session(det) }}
	proc, err := orch.Start(ctx, det, map[string]string{"1": "modelA", "002": "modelB"}, params.New(params.FormatFBX), reg)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if proc != "proc-01" || proc == det {
		t.Fatalf("unexpected processing rid %q", proc)
	}
	req := submitter.requests[len(submitter.requests)-1]
	if req.Kind != jobs.KindMultiProcess || req.DetectionRID != "det-01" || req.MediaURL != "" {
		t.Fatalf("unexpected processing request %+v", req)
	}
	if len(req.Models) != 2 || req.Models[0] != (params.ModelBinding{TrackingID: "001", ModelID: "modelA"}) {
		t.Fatalf("unexpected bindings %+v", req.Models)
	}
	if !open || during.ProcessingRID != "proc-01" || during.Bindings["002"] != "modelB" {
		t.Fatalf("session not updated while processing: %+v", during)
	}
	if _, ok := orch.Session(det); ok {
		t.Fatal("session should close once the processing job resolves")
	}
}

func TestBackgroundProcessingReleasesSession(t *testing.T) {
	orch, _, _ := newHarness()
	ctx := context.Background()
	det, err := orch.Prepare(ctx, "gs://bucket/duet.mp4", execution.Registration{Blocking: true})
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}

	done := make(chan struct{})
	reg := execution.Registration{PollInterval: time.Millisecond, OnResult: func(jobs.Outcome) { close(done) }}
	if _, err := orch.Start(ctx, det, map[string]string{"001": "a", "002": "b"}, params.ProcessParams{}, reg); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("processing job never delivered")
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := orch.Session(det); !ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("session still open after the processing job resolved")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFailedDetectionLeavesNoSession(t *testing.T) {
	orch, _, source := newHarness()
	source.statuses["det-01"] = jobs.StatusFailure

	det, err := orch.Prepare(context.Background(), "gs://bucket/empty.mp4", execution.Registration{Blocking: true})
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if _, ok := orch.Session(det); ok {
		t.Fatal("failed detection must not open a session")
	}
}

func TestStartRejectsUnknownSlot(t *testing.T) {
	orch, _, _ := newHarness()
	ctx := context.Background()
	det, _ := orch.Prepare(ctx, "gs://x", execution.Registration{Blocking: true})

	_, err := orch.Start(ctx, det, map[string]string{"001": "a", "002": "b", "003": "c"}, params.ProcessParams{}, execution.Registration{Blocking: true})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = orch.Start(ctx, det, map[string]string{"001": "a", "002": " "}, params.ProcessParams{}, execution.Registration{Blocking: true})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty model, got %v", err)
	}
}

func TestStartQueriesRemoteDetection(t *testing.T) {
	orch, submitter, source := newHarness()
	submitter.rids = []string{"proc-01"}

	rid, err := orch.Start(context.Background(), "det-01", map[string]string{"001": "a", "002": "b"}, params.ProcessParams{}, execution.Registration{Blocking: true})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if rid != "proc-01" || source.queries == 0 {
		t.Fatalf("expected remote detection lookup, rid %q queries %d", rid, source.queries)
	}
}

func TestStartBeforeDetectionSucceeds(t *testing.T) {
	orch, submitter, source := newHarness()
	source.statuses["det-02"] = jobs.StatusProcessing

	_, err := orch.Start(context.Background(), "det-02", map[string]string{"001": "a"}, params.ProcessParams{}, execution.Registration{Blocking: true})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = orch.Start(context.Background(), "missing", map[string]string{"001": "a"}, params.ProcessParams{}, execution.Registration{Blocking: true})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown detection, got %v", err)
	}
	if len(submitter.requests) != 0 {
		t.Fatal("nothing should be submitted before detection succeeds")
	}
}

func TestSlotHelpers(t *testing.T) {
	if slot, ok := multiperson.SlotFromName("person_007"); !ok || slot != "007" {
		t.Fatalf("SlotFromName = %q, %v", slot, ok)
	}
	for _, name := range []string{"all_characters", "_01", "person_0a1", "inter_001x"} {
		if _, ok := multiperson.SlotFromName(name); ok {
			t.Fatalf("%q should not carry a slot", name)
		}
	}
	if got := multiperson.NormalizeSlot("2"); got != "002" {
		t.Fatalf("NormalizeSlot = %q", got)
	}
	if got := multiperson.NormalizeSlot("abc1"); got != "abc1" {
		t.Fatalf("NormalizeSlot = %q", got)
	}
}
