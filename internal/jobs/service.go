package jobs

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"animate3d/internal/services"
	"animate3d/internal/transport"
)

// Getter is the read side of the transport.
type Getter interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
}

// Service reads job state from the remote service.
type Service struct {
	api Getter
}

// NewService wraps an authenticated transport.
func NewService(api Getter) *Service {
	return &Service{api: api}
}

// Status queries the current state of rid. A RID the service has no entry
// for yet is reported as PENDING with Found=false.
func (s *Service) Status(ctx context.Context, rid string) (StatusReport, error) {
	if strings.TrimSpace(rid) == "" {
		return StatusReport{}, services.Wrap(services.ErrValidation, "jobs", "status", "rid is required", nil)
	}
	var resp StatusResponse
	if err := s.api.Get(ctx, transport.PathEscape("/status", rid), nil, &resp); err != nil {
		return StatusReport{}, err
	}
	if resp.Count == 0 || len(resp.Status) == 0 {
		return StatusEntry{}.report(rid, false), nil
	}
	entry := resp.Status[0]
	for _, candidate := range resp.Status {
		if candidate.RID == rid {
			entry = candidate
			break
		}
	}
	return entry.report(rid, true), nil
}

// Lookup is Status for callers that need the job to exist: an unknown RID is
// a not-found APIError.
func (s *Service) Lookup(ctx context.Context, rid string) (StatusReport, error) {
	report, err := s.Status(ctx, rid)
	if err != nil {
		return StatusReport{}, err
	}
	if !report.Found {
		return StatusReport{}, services.NotFound("GET /status", "job "+rid)
	}
	return report, nil
}

// Link fetches the download descriptor of rid.
func (s *Service) Link(ctx context.Context, rid string) (DownloadLink, error) {
	var resp DownloadResponse
	if err := s.api.Get(ctx, transport.PathEscape("/download", rid), nil, &resp); err != nil {
		return DownloadLink{}, err
	}
	if resp.Count == 0 || len(resp.Links) == 0 {
		return DownloadLink{}, services.NotFound("GET /download", "download links for job "+rid)
	}
	entry := resp.Links[0]
	for _, candidate := range resp.Links {
		if candidate.RID == rid {
			entry = candidate
			break
		}
	}
	return entry.link(), nil
}

// Result assembles the artifact descriptor of a successful job from its
// status report and download links. A job without download links still
// yields its input and output references.
func (s *Service) Result(ctx context.Context, report StatusReport) (Result, error) {
	result := Result{
		RID:    report.RID,
		Input:  report.Input,
		Output: report.Output,
	}
	link, err := s.Link(ctx, report.RID)
	switch {
	case err == nil:
		result.Link = &link
		if len(result.Input) == 0 {
			result.Input = link.Input
		}
	case errors.Is(err, services.ErrNotFound):
	default:
		return Result{}, err
	}
	return result, nil
}

// List returns jobs, optionally filtered by remote status (for example
// "SUCCESS" or "FAILURE").
func (s *Service) List(ctx context.Context, statuses ...string) ([]Summary, error) {
	path := "/list"
	var filter []string
	for _, st := range statuses {
		if st = strings.ToUpper(strings.TrimSpace(st)); st != "" {
			filter = append(filter, url.PathEscape(st))
		}
	}
	if len(filter) > 0 {
		path += "/" + strings.Join(filter, ",")
	}
	var resp ListResponse
	if err := s.api.Get(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(resp.List))
	for _, entry := range resp.List {
		out = append(out, entry.summary())
	}
	return out, nil
}
