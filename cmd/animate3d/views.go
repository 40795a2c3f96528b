package main

import (
	"time"

	"animate3d/internal/download"
	"animate3d/internal/jobs"
)

type errorView struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type statusView struct {
	RID             string     `json:"rid"`
	Status          string     `json:"status"`
	Progress        int        `json:"progress"`
	PositionInQueue int        `json:"position_in_queue,omitempty"`
	RemoteStatus    string     `json:"remote_status,omitempty"`
	Found           bool       `json:"found"`
	Error           *errorView `json:"error,omitempty"`
}

type fileView struct {
	Group  string `json:"group"`
	Type   string `json:"type"`
	Path   string `json:"path"`
	Bytes  int64  `json:"bytes"`
	SHA256 string `json:"sha256"`
}

type outcomeView struct {
	RID       string     `json:"rid"`
	Media     string     `json:"media,omitempty"`
	Succeeded bool       `json:"succeeded"`
	Error     *errorView `json:"error,omitempty"`
	Files     []fileView `json:"files,omitempty"`
}

type summaryView struct {
	RID          string    `json:"rid"`
	Status       string    `json:"status"`
	FileName     string    `json:"file_name,omitempty"`
	FileSize     int64     `json:"file_size,omitempty"`
	FileDuration float64   `json:"file_duration,omitempty"`
	Created      time.Time `json:"created"`
	Modified     time.Time `json:"modified"`
}

func newErrorView(e *jobs.JobError) *errorView {
	if e == nil {
		return nil
	}
	return &errorView{Code: e.Code, Message: e.Message}
}

func newStatusView(r jobs.StatusReport) statusView {
	return statusView{
		RID:             r.RID,
		Status:          string(r.Status),
		Progress:        r.ProgressPercent,
		PositionInQueue: r.PositionInQueue,
		RemoteStatus:    r.RemoteStatus,
		Found:           r.Found,
		Error:           newErrorView(r.Error),
	}
}

func newOutcomeView(o jobs.Outcome, files []download.File) outcomeView {
	return outcomeView{
		RID:       o.RID,
		Succeeded: o.Succeeded(),
		Error:     newErrorView(o.Error),
		Files:     newFileViews(files),
	}
}

func newFileViews(files []download.File) []fileView {
	if len(files) == 0 {
		return nil
	}
	out := make([]fileView, 0, len(files))
	for _, f := range files {
		out = append(out, fileView{Group: f.Group, Type: f.Type, Path: f.Path, Bytes: f.Bytes, SHA256: f.SHA256})
	}
	return out
}

func newSummaryView(s jobs.Summary) summaryView {
	return summaryView{
		RID:          s.RID,
		Status:       string(s.Status),
		FileName:     s.FileName,
		FileSize:     s.FileSize,
		FileDuration: s.FileDuration,
		Created:      s.Created,
		Modified:     s.Modified,
	}
}
