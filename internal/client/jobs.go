package client

import (
	"context"
	"math"
	"strings"

	"animate3d/internal/download"
	"animate3d/internal/execution"
	"animate3d/internal/jobs"
	"animate3d/internal/logging"
	"animate3d/internal/multiperson"
	"animate3d/internal/notifications"
	"animate3d/internal/params"
	"animate3d/internal/services"
)

// resolveMedia returns a URL the service accepts as job media. Remote URLs
// pass through; local files are uploaded first.
func (c *Client) resolveMedia(ctx context.Context, media string) (string, error) {
	media = strings.TrimSpace(media)
	if media == "" {
		return "", services.Wrap(services.ErrValidation, "client", "submit", "media is required", nil)
	}
	if isRemote(media) {
		return media, nil
	}
	return c.uploader.Video(ctx, media, "")
}

func isRemote(media string) bool {
	lower := strings.ToLower(media)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// StartNewJob submits a single-person job for media (a URL or a local file)
// and executes it according to reg.
func (c *Client) StartNewJob(ctx context.Context, media string, p params.ProcessParams, reg execution.Registration) (string, error) {
	mediaURL, err := c.resolveMedia(ctx, media)
	if err != nil {
		return "", err
	}
	ctx = services.WithJobKind(ctx, string(jobs.KindSingle))
	rid, err := c.submitter.Submit(ctx, jobs.Request{Kind: jobs.KindSingle, MediaURL: mediaURL, Params: p})
	if err != nil {
		return "", err
	}
	c.executor.publish(ctx, notifications.EventJobSubmitted, notifications.Payload{"rid": rid, "media": media})
	if _, err := c.executor.Execute(ctx, rid, reg); err != nil {
		return rid, err
	}
	return rid, nil
}

// PrepareMultiPersonJob submits a person detection job for media.
func (c *Client) PrepareMultiPersonJob(ctx context.Context, media string, reg execution.Registration) (string, error) {
	mediaURL, err := c.resolveMedia(ctx, media)
	if err != nil {
		return "", err
	}
	return c.multi.Prepare(ctx, mediaURL, reg)
}

// StartMultiPersonJob binds a model to every slot detected by detectionRID
// and submits the processing job.
func (c *Client) StartMultiPersonJob(ctx context.Context, detectionRID string, slotToModel map[string]string, p params.ProcessParams, reg execution.Registration) (string, error) {
	return c.multi.Start(ctx, detectionRID, slotToModel, p, reg)
}

// DetectedPersons returns the persons a succeeded detection job found.
func (c *Client) DetectedPersons(ctx context.Context, detectionRID string) ([]multiperson.Person, error) {
	return c.multi.Persons(ctx, detectionRID)
}

// RerunJob resubmits originalRID with overrides applied.
func (c *Client) RerunJob(ctx context.Context, originalRID string, overrides params.ProcessParams, reg execution.Registration) (string, error) {
	return c.reruns.Rerun(ctx, originalRID, overrides, reg)
}

// EffectiveRerunParams previews the parameters RerunJob would submit.
func (c *Client) EffectiveRerunParams(ctx context.Context, originalRID string, overrides params.ProcessParams) (params.ProcessParams, error) {
	return c.reruns.Effective(ctx, originalRID, overrides)
}

// GetJobStatus queries the service once.
func (c *Client) GetJobStatus(ctx context.Context, rid string) (jobs.StatusReport, error) {
	return c.jobs.Status(ctx, rid)
}

// JobResult returns the artifacts of a succeeded job.
func (c *Client) JobResult(ctx context.Context, rid string) (jobs.Result, error) {
	report, err := c.jobs.Lookup(ctx, rid)
	if err != nil {
		return jobs.Result{}, err
	}
	if report.Status != jobs.StatusSuccess {
		return jobs.Result{}, services.Wrap(services.ErrValidation, "client", "result",
			"job "+rid+" is "+report.Status.String()+", not SUCCESS", nil)
	}
	return c.jobs.Result(ctx, report)
}

// ListJobs lists the account's jobs, optionally filtered by status.
func (c *Client) ListJobs(ctx context.Context, statuses ...jobs.Status) ([]jobs.Summary, error) {
	filter := make([]string, 0, len(statuses))
	for _, s := range statuses {
		filter = append(filter, string(s))
	}
	return c.jobs.List(ctx, filter...)
}

// DownloadJob writes the artifacts of rid under dir, or under
// download.output_dir when dir is empty.
func (c *Client) DownloadJob(ctx context.Context, rid, dir string) ([]download.File, error) {
	if strings.TrimSpace(dir) == "" {
		dir = c.cfg.Download.OutputDir
	}
	ctx = services.WithRID(ctx, rid)
	link, err := c.jobs.Link(ctx, rid)
	if err != nil {
		return nil, err
	}
	files, err := c.downloader.Download(ctx, link, dir)
	if err != nil {
		return nil, err
	}
	c.executor.publish(ctx, notifications.EventDownloadFinished, notifications.Payload{
		"rid":   rid,
		"files": len(files),
		"dir":   dir,
	})
	return files, nil
}

// CreditBalance returns the account's remaining credits.
func (c *Client) CreditBalance(ctx context.Context) (int, error) {
	var resp struct {
		Credits float64 `json:"credits"`
	}
	if err := c.api.Get(ctx, "/account/creditBalance", nil, &resp); err != nil {
		return 0, err
	}
	credits := int(math.Floor(resp.Credits))
	c.logger.Debug("credit balance", logging.Int("credits", credits))
	return credits, nil
}

// TrackJob executes an already submitted job according to reg, for callers
// that submitted it elsewhere or detached earlier.
func (c *Client) TrackJob(ctx context.Context, rid string, reg execution.Registration) (*execution.Handle, error) {
	rid = strings.TrimSpace(rid)
	if rid == "" {
		return nil, services.Wrap(services.ErrValidation, "client", "track", "rid is required", nil)
	}
	return c.executor.Execute(ctx, rid, reg)
}
