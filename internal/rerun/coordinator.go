package rerun

import (
	"context"
	"log/slog"
	"strings"

	"animate3d/internal/execution"
	"animate3d/internal/jobs"
	"animate3d/internal/logging"
	"animate3d/internal/params"
	"animate3d/internal/services"
)

// Lookup reads a job that must exist.
type Lookup interface {
	Lookup(ctx context.Context, rid string) (jobs.StatusReport, error)
}

// Submitter creates jobs.
type Submitter interface {
	Submit(ctx context.Context, req jobs.Request) (string, error)
}

// Executor polls jobs.
type Executor interface {
	Execute(ctx context.Context, rid string, reg execution.Registration) (*execution.Handle, error)
}

// Coordinator submits reruns.
type Coordinator struct {
	lookup    Lookup
	submitter Submitter
	executor  Executor
	logger    *slog.Logger
}

// New builds a Coordinator.
func New(lookup Lookup, submitter Submitter, executor Executor, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		lookup:    lookup,
		submitter: submitter,
		executor:  executor,
		logger:    logging.NewComponentLogger(logger, "rerun"),
	}
}

// Effective returns the parameters a rerun of originalRID with overrides
// would be submitted with.
func (c *Coordinator) Effective(ctx context.Context, originalRID string, overrides params.ProcessParams) (params.ProcessParams, error) {
	originalRID = strings.TrimSpace(originalRID)
	if originalRID == "" {
		return params.ProcessParams{}, services.Wrap(services.ErrValidation, "rerun", "lookup", "original rid is required", nil)
	}
	report, err := c.lookup.Lookup(ctx, originalRID)
	if err != nil {
		return params.ProcessParams{}, err
	}
	if report.ParamsErr != nil {
		return params.ProcessParams{}, services.Wrap(services.ErrAPI, "rerun", "lookup", "stored parameters are unreadable", report.ParamsErr)
	}
	var base params.ProcessParams
	if report.Params != nil {
		base = *report.Params
	}
	// Detection pipelines are never rerun as detection.
	base.Pipeline = ""
	effective := params.Merge(base, overrides)
	if err := effective.Validate(); err != nil {
		return params.ProcessParams{}, err
	}
	return effective, nil
}

// Rerun submits a new job from originalRID's stored media and parameters
// overlaid with overrides, then executes it.
func (c *Coordinator) Rerun(ctx context.Context, originalRID string, overrides params.ProcessParams, reg execution.Registration) (string, error) {
	effective, err := c.Effective(ctx, originalRID, overrides)
	if err != nil {
		return "", err
	}
	originalRID = strings.TrimSpace(originalRID)

	ctx = services.WithJobKind(ctx, string(jobs.KindRerun))
	rid, err := c.submitter.Submit(ctx, jobs.Request{
		Kind:      jobs.KindRerun,
		SourceRID: originalRID,
		Params:    effective,
	})
	if err != nil {
		return "", err
	}
	if rid == originalRID {
		return "", &services.APIError{
			Code:      "rid_reused",
			Message:   "service returned the original rid for a rerun",
			Operation: "POST /process",
		}
	}

	c.logger.Info("rerun submitted",
		logging.String(logging.FieldEventType, "rerun_submitted"),
		logging.String("original_rid", originalRID),
		logging.RID(rid),
	)
	if _, err := c.executor.Execute(ctx, rid, reg); err != nil {
		return rid, err
	}
	return rid, nil
}
