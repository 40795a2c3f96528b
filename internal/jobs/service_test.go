package jobs_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"animate3d/internal/jobs"
	"animate3d/internal/params"
	"animate3d/internal/services"
	"animate3d/internal/transport"
)

func newService(t *testing.T, handler http.HandlerFunc) *jobs.Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return jobs.NewService(transport.New(server.URL, nil, transport.WithHTTPClient(server.Client())))
}

func TestStatusDecodesProgress(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status/job-001" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"count":1,"status":[{"rid":"job-001","status":"PROGRESS","details":{"step":3,"total":4,"params":["config=configDefault","formats=fbx","model=m1"]}}]}`))
	})

	report, err := svc.Status(context.Background(), "job-001")
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if !report.Found || report.Status != jobs.StatusProcessing || report.ProgressPercent != 75 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Params == nil || report.Params.ModelID != "m1" || len(report.Params.Formats) != 1 || report.Params.Formats[0] != params.FormatFBX {
		t.Fatalf("stored params not decoded: %+v", report.Params)
	}
}

func TestStatusMissingEntryIsPending(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":0,"status":[]}`))
	})

	report, err := svc.Status(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if report.Found || report.Status != jobs.StatusPending {
		t.Fatalf("unexpected report %+v", report)
	}

	_, err = svc.Lookup(context.Background(), "ghost")
	if !errors.Is(err, services.ErrNotFound) || !errors.Is(err, services.ErrAPI) {
		t.Fatalf("expected not-found api error, got %v", err)
	}
}

func TestStatusFailureCarriesJobError(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":1,"status":[{"rid":"bad","status":"FAILURE","details":{"exc_type":"ProcessingError","exc_message":["101"]}}]}`))
	})

	report, err := svc.Status(context.Background(), "bad")
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if report.Status != jobs.StatusFailure || report.Error == nil {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Error.Message != "ProcessingError: Error 101: Not enough credits" {
		t.Fatalf("unexpected message %q", report.Error.Message)
	}
}

func TestResultIncludesDownloadLink(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":1,"links":[{"rid":"det-01","name":"dance","size":1024,"duration":3.5,"input":"dance.mp4","mode":1,
			"urls":[{"name":"person_001","files":[{"fbx":"https://cdn/1.fbx"}]},{"name":"person_002","files":[{"fbx":"https://cdn/2.fbx","bvh":"https://cdn/2.bvh"}]}]}]}`))
	})

	result, err := svc.Result(context.Background(), jobs.StatusReport{Snapshot: jobs.Snapshot{RID: "det-01"}, Output: []string{"out.fbx"}})
	if err != nil {
		t.Fatalf("Result returned error: %v", err)
	}
	if result.Link == nil || !result.Link.MultiPerson || len(result.Link.URLs) != 2 {
		t.Fatalf("unexpected link %+v", result.Link)
	}
	files := result.Link.URLs[1].Files
	if len(files) != 2 || files[0].Type != "bvh" || files[1].Type != "fbx" {
		t.Fatalf("expected files ordered by type, got %+v", files)
	}
	if len(result.Input) != 1 || result.Input[0] != "dance.mp4" {
		t.Fatalf("expected input from link, got %v", result.Input)
	}
}

func TestResultWithoutLinksKeepsReferences(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":0}`))
	})

	result, err := svc.Result(context.Background(), jobs.StatusReport{Snapshot: jobs.Snapshot{RID: "x"}, Output: []string{"a.fbx"}})
	if err != nil {
		t.Fatalf("Result returned error: %v", err)
	}
	if result.Link != nil || len(result.Output) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/list/SUCCESS,FAILURE" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"list":[{"rid":"a","status":"SUCCESS","fileName":"a.mp4","fileSize":10,"fileDuration":2.5,"ctime":1700000000000,"mtime":1700000001000}]}`))
	})

	list, err := svc.List(context.Background(), "success", "failure")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(list) != 1 || list[0].Status != jobs.StatusSuccess || list[0].Created.UnixMilli() != 1700000000000 {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestStatusKeepsUndecodableParamsError(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":1,"status":[{"rid":"job-001","status":"SUCCESS","details":{"params":["config=configDefault","model=original-model","formats=fbx","trackFace=2"]}}]}`))
	})

	report, err := svc.Lookup(context.Background(), "job-001")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if report.Params != nil {
		t.Fatalf("expected no decoded params, got %+v", report.Params)
	}
	if report.ParamsErr == nil || len(report.RawParams) != 4 {
		t.Fatalf("expected decode error alongside raw params, got %+v", report)
	}
}
