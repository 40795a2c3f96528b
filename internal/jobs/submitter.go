package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"animate3d/internal/logging"
	"animate3d/internal/params"
	"animate3d/internal/services"
)

// Kind selects how a job is created.
type Kind string

const (
	KindSingle       Kind = "single"
	KindMultiDetect  Kind = "multi_detect"
	KindMultiProcess Kind = "multi_process"
	KindRerun        Kind = "rerun"
)

// Request describes one submission. Which reference field is required
// depends on Kind: MediaURL for single and multi_detect, DetectionRID for
// multi_process, SourceRID for rerun.
type Request struct {
	Kind         Kind
	MediaURL     string
	SourceRID    string
	DetectionRID string
	Params       params.ProcessParams
	Models       []params.ModelBinding
}

// Poster is the write side of the transport.
type Poster interface {
	Post(ctx context.Context, path string, body, out any) error
}

// Submitter validates requests and creates jobs.
type Submitter struct {
	api    Poster
	logger *slog.Logger
}

// NewSubmitter wraps an authenticated transport.
func NewSubmitter(api Poster, logger *slog.Logger) *Submitter {
	return &Submitter{api: api, logger: logging.NewComponentLogger(logger, "submitter")}
}

// Submit validates req, sends it, and returns the new RID. Validation
// failures are reported before any network call.
func (s *Submitter) Submit(ctx context.Context, req Request) (string, error) {
	body, err := BuildProcessRequest(req)
	if err != nil {
		return "", err
	}

	var resp ProcessResponse
	if err := s.api.Post(ctx, "/process", body, &resp); err != nil {
		return "", err
	}
	rid := strings.TrimSpace(resp.RID)
	if rid == "" {
		return "", &services.APIError{
			Code:      "invalid_response",
			Message:   "service returned an empty rid",
			Operation: "POST /process",
		}
	}

	s.logger.Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.RID(rid),
		logging.String(logging.FieldJobKind, string(req.Kind)),
	)
	return rid, nil
}

// BuildProcessRequest validates req and renders the POST /process body.
func BuildProcessRequest(req Request) (ProcessRequest, error) {
	p, err := effectiveParams(req)
	if err != nil {
		return ProcessRequest{}, err
	}
	body := ProcessRequest{Processor: Processor, Params: p.Encode()}
	switch req.Kind {
	case KindSingle, KindMultiDetect:
		body.URL = strings.TrimSpace(req.MediaURL)
	case KindMultiProcess:
		body.DetectionRID = strings.TrimSpace(req.DetectionRID)
	case KindRerun:
		body.RID = strings.TrimSpace(req.SourceRID)
	}
	return body, nil
}

func effectiveParams(req Request) (params.ProcessParams, error) {
	invalid := func(msg string) error {
		return services.Wrap(services.ErrValidation, "jobs", "submit "+string(req.Kind), msg, nil)
	}

	var p params.ProcessParams
	switch req.Kind {
	case KindSingle:
		if strings.TrimSpace(req.MediaURL) == "" {
			return p, invalid("media url is required")
		}
		p = req.Params.Clone()
		p.Models = nil
		p.Pipeline = ""
	case KindMultiDetect:
		if strings.TrimSpace(req.MediaURL) == "" {
			return p, invalid("media url is required")
		}
		// Detection only honours the preset and output formats.
		p = params.ProcessParams{
			Config:   req.Params.Config,
			Formats:  slices.Clone(req.Params.Formats),
			Pipeline: params.PipelineMultiPersonDetection,
		}
	case KindMultiProcess:
		if strings.TrimSpace(req.DetectionRID) == "" {
			return p, invalid("detection rid is required")
		}
		models, err := normalizeModels(req.Models)
		if err != nil {
			return p, invalid(err.Error())
		}
		p = req.Params.Clone()
		p.Models = models
		p.Pipeline = ""
	case KindRerun:
		if strings.TrimSpace(req.SourceRID) == "" {
			return p, invalid("source rid is required")
		}
		p = req.Params.Clone()
	default:
		return p, invalid(fmt.Sprintf("unknown job kind %q", req.Kind))
	}

	if p.Config == "" {
		p.Config = params.DefaultConfig
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func normalizeModels(models []params.ModelBinding) ([]params.ModelBinding, error) {
	if len(models) == 0 {
		return nil, errors.New("at least one slot to model binding is required")
	}
	seen := make(map[string]struct{}, len(models))
	out := make([]params.ModelBinding, 0, len(models))
	for _, m := range models {
		slot := strings.TrimSpace(m.TrackingID)
		model := strings.TrimSpace(m.ModelID)
		if slot == "" {
			return nil, errors.New("binding has an empty tracking id")
		}
		if model == "" {
			return nil, fmt.Errorf("slot %s has an empty model id", slot)
		}
		if _, dup := seen[slot]; dup {
			return nil, fmt.Errorf("slot %s is bound more than once", slot)
		}
		seen[slot] = struct{}{}
		out = append(out, params.ModelBinding{TrackingID: slot, ModelID: model})
	}
	slices.SortFunc(out, func(a, b params.ModelBinding) int { return strings.Compare(a.TrackingID, b.TrackingID) })
	return out, nil
}
