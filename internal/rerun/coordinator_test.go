package rerun_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"animate3d/internal/execution"
	"animate3d/internal/jobs"
	"animate3d/internal/params"
	"animate3d/internal/rerun"
	"animate3d/internal/services"
	"animate3d/internal/transport"
)

type fakeLookup struct {
	reports map[string]jobs.StatusReport
}

func (f fakeLookup) Lookup(_ context.Context, rid string) (jobs.StatusReport, error) {
	r, ok := f.reports[rid]
	if !ok {
		return jobs.StatusReport{}, services.NotFound("GET /status", "job "+rid)
	}
	return r, nil
}

type fakeSubmitter struct {
	rid  string
	reqs []jobs.Request
}

func (f *fakeSubmitter) Submit(_ context.Context, req jobs.Request) (string, error) {
	f.reqs = append(f.reqs, req)
	return f.rid, nil
}

type fakeExecutor struct{ rids []string }

func (f *fakeExecutor) Execute(_ context.Context, rid string, _ execution.Registration) (*execution.Handle, error) {
	f.rids = append(f.rids, rid)
	return nil, nil
}

func storedParams() params.ProcessParams {
	p := params.New(params.FormatFBX, params.FormatMP4)
	p.ModelID = "original-model"
	p.TrackFace = params.Bool(true)
	p.VideoSpeedMultiplier = params.Float(2)
	p.Trim = &params.Trim{Start: 1, End: 4}
	return p
}

func newCoordinator(newRID string) (*rerun.Coordinator, *fakeSubmitter, *fakeExecutor) {
	stored := storedParams()
	lookup := fakeLookup{reports: map[string]jobs.StatusReport{
		"job-001": {Snapshot: jobs.Snapshot{RID: "job-001", Status: jobs.StatusSuccess}, Found: true, Params: &stored},
	}}
	sub := &fakeSubmitter{rid: newRID}
	exec := &fakeExecutor{}
	return rerun.New(lookup, sub, exec, nil), sub, exec
}

func TestRerunWithoutOverridesKeepsStoredParams(t *testing.T) {
	coord, sub, exec := newCoordinator("job-002")
	rid, err := coord.Rerun(context.Background(), "job-001", params.ProcessParams{}, execution.Registration{})
	if err != nil {
		t.Fatalf("Rerun returned error: %v", err)
	}
	if rid != "job-002" || len(exec.rids) != 1 || exec.rids[0] != "job-002" {
		t.Fatalf("unexpected rid %q executed %v", rid, exec.rids)
	}
	req := sub.reqs[0]
	if req.Kind != jobs.KindRerun || req.SourceRID != "job-001" || req.MediaURL != "" {
		t.Fatalf("unexpected request %+v", req)
	}
	if !reflect.DeepEqual(req.Params, storedParams()) {
		t.Fatalf("effective params differ from stored:\n got %+v\nwant %+v", req.Params, storedParams())
	}
}

func TestRerunModelOverrideChangesOnlyModel(t *testing.T) {
	coord, sub, _ := newCoordinator("job-002")
	if _, err := coord.Rerun(context.Background(), "job-001", params.ProcessParams{ModelID: "X"}, execution.Registration{}); err != nil {
		t.Fatalf("Rerun returned error: %v", err)
	}
	want := storedParams()
	want.ModelID = "X"
	if !reflect.DeepEqual(sub.reqs[0].Params, want) {
		t.Fatalf("unexpected params:\n got %+v\nwant %+v", sub.reqs[0].Params, want)
	}
}

func TestRerunUnknownJobIsNotFound(t *testing.T) {
	coord, sub, _ := newCoordinator("job-002")
	_, err := coord.Rerun(context.Background(), "gone", params.ProcessParams{}, execution.Registration{})
	var apiErr *services.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
	if len(sub.reqs) != 0 {
		t.Fatal("nothing should be submitted for an unknown job")
	}
}

func TestRerunRejectsInvalidOverride(t *testing.T) {
	coord, sub, _ := newCoordinator("job-002")
	_, err := coord.Rerun(context.Background(), "job-001", params.ProcessParams{PoseFilteringStrength: params.Float(3)}, execution.Registration{})
	if !errors.Is(err, services.ErrValidation) || len(sub.reqs) != 0 {
		t.Fatalf("expected validation error before submit, got %v", err)
	}
}

func TestRerunRejectsReusedRID(t *testing.T) {
	coord, _, exec := newCoordinator("job-001")
	_, err := coord.Rerun(context.Background(), "job-001", params.ProcessParams{}, execution.Registration{})
	if !errors.Is(err, services.ErrAPI) {
		t.Fatalf("expected api error, got %v", err)
	}
	if len(exec.rids) != 0 {
		t.Fatal("a reused rid must not be polled")
	}
}

func TestRerunFailsWhenStoredParamsAreUnreadable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":1,"status":[{"rid":"job-001","status":"SUCCESS","details":{"params":["config=configDefault","model=original-model","formats=fbx","trackFace=2"]}}]}`))
	}))
	t.Cleanup(server.Close)
	svc := jobs.NewService(transport.New(server.URL, nil, transport.WithHTTPClient(server.Client())))
	sub := &fakeSubmitter{rid: "job-002"}
	coord := rerun.New(svc, sub, &fakeExecutor{}, nil)

	if _, err := coord.Effective(context.Background(), "job-001", params.ProcessParams{}); !errors.Is(err, services.ErrAPI) {
		t.Fatalf("expected api error for unreadable params, got %v", err)
	}
	if _, err := coord.Rerun(context.Background(), "job-001", params.ProcessParams{}, execution.Registration{}); err == nil {
		t.Fatal("expected rerun to fail")
	}
	if len(sub.reqs) != 0 {
		t.Fatal("nothing should be submitted when stored params are unreadable")
	}
}
