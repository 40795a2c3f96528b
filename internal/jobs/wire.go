package jobs

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"animate3d/internal/params"
)

// Processor is the service pipeline every job runs on.
const Processor = "video2anim"

// StringList decodes a JSON string, a list of strings, or null.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*l = nil
		} else {
			*l = StringList{single}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("decode string list: %w", err)
	}
	*l = list
	return nil
}

// ProcessRequest is the POST /process body.
type ProcessRequest struct {
	Processor    string   `json:"processor"`
	Params       []string `json:"params"`
	URL          string   `json:"url,omitempty"`
	RID          string   `json:"rid,omitempty"`
	DetectionRID string   `json:"rid_mp_detection,omitempty"`
}

// ProcessResponse is the POST /process reply.
type ProcessResponse struct {
	RID string `json:"rid"`
}

// StatusResponse is the GET /status/{rid} reply.
type StatusResponse struct {
	Count  int           `json:"count"`
	Status []StatusEntry `json:"status"`
}

// StatusEntry is the remote view of one job.
type StatusEntry struct {
	RID             string        `json:"rid"`
	Status          string        `json:"status"`
	PositionInQueue int           `json:"positionInQueue,omitempty"`
	Details         StatusDetails `json:"details"`
}

// StatusDetails carries progress, artifacts and failure fields.
type StatusDetails struct {
	Step       *float64   `json:"step,omitempty"`
	Total      *float64   `json:"total,omitempty"`
	In         StringList `json:"in,omitempty"`
	Out        StringList `json:"out,omitempty"`
	ExcType    string     `json:"exc_type,omitempty"`
	ExcMessage any        `json:"exc_message,omitempty"`
	Params     StringList `json:"params,omitempty"`
}

// ListResponse is the GET /list reply.
type ListResponse struct {
	List []ListEntry `json:"list"`
}

// ListEntry is one job in the listing. Timestamps are epoch milliseconds.
type ListEntry struct {
	RID          string  `json:"rid"`
	Status       string  `json:"status"`
	FileName     string  `json:"fileName"`
	FileSize     float64 `json:"fileSize"`
	FileDuration float64 `json:"fileDuration"`
	Created      float64 `json:"ctime"`
	Modified     float64 `json:"mtime"`
}

// DownloadResponse is the GET /download/{rid} reply.
type DownloadResponse struct {
	Count int         `json:"count"`
	Links []LinkEntry `json:"links"`
}

// LinkEntry is the download descriptor of one job. Mode 1 marks
// multi-person output.
type LinkEntry struct {
	RID      string          `json:"rid"`
	Name     string          `json:"name"`
	Size     float64         `json:"size"`
	Duration float64         `json:"duration"`
	Input    StringList      `json:"input,omitempty"`
	Mode     int             `json:"mode,omitempty"`
	Models   json.RawMessage `json:"models,omitempty"`
	URLs     []URLGroupEntry `json:"urls"`
}

// URLGroupEntry lists files as {type: url} objects.
type URLGroupEntry struct {
	Name  string              `json:"name"`
	Files []map[string]string `json:"files"`
}

// ModeMultiPerson is the LinkEntry.Mode value of multi-person output.
const ModeMultiPerson = 1

func (e StatusEntry) report(rid string, found bool) StatusReport {
	status := MapRemote(e.Status, e.PositionInQueue, found)
	report := StatusReport{
		Snapshot: Snapshot{
			RID:    rid,
			Status: status,
		},
		Found:        found,
		RemoteStatus: e.Status,
		Input:        e.Details.In,
		Output:       e.Details.Out,
		RawParams:    e.Details.Params,
	}
	switch status {
	case StatusPending, StatusQueued:
		report.PositionInQueue = max(e.PositionInQueue, 0)
	case StatusProcessing:
		report.ProgressPercent = Percent(intValue(e.Details.Step), intValue(e.Details.Total))
	case StatusSuccess:
		report.ProgressPercent = 100
	case StatusFailure:
		report.Error = NewJobError(e.Details.ExcMessage, e.Details.ExcType)
	case StatusCancelled:
		report.Error = &JobError{Code: CancelledCode, Message: "job cancelled by the service"}
	}
	if len(e.Details.Params) > 0 {
		decoded, err := params.Decode(e.Details.Params)
		if err != nil {
			report.ParamsErr = fmt.Errorf("decode stored params of %s: %w", rid, err)
		} else {
			report.Params = &decoded
		}
	}
	return report
}

func (e ListEntry) summary() Summary {
	return Summary{
		RID:          e.RID,
		Status:       MapRemote(e.Status, 0, true),
		RemoteStatus: e.Status,
		FileName:     e.FileName,
		FileSize:     int64(e.FileSize),
		FileDuration: e.FileDuration,
		Created:      fromMillis(e.Created),
		Modified:     fromMillis(e.Modified),
	}
}

func (e LinkEntry) link() DownloadLink {
	link := DownloadLink{
		RID:         e.RID,
		Name:        e.Name,
		Size:        int64(e.Size),
		Duration:    e.Duration,
		Input:       e.Input,
		MultiPerson: e.Mode == ModeMultiPerson,
	}
	if len(e.Models) > 0 {
		var models []params.ModelBinding
		if json.Unmarshal(e.Models, &models) == nil {
			link.Models = models
		}
	}
	for _, group := range e.URLs {
		g := URLGroup{Name: group.Name}
		for _, entry := range group.Files {
			for _, typ := range slices.Sorted(maps.Keys(entry)) {
				g.Files = append(g.Files, File{Type: typ, URL: entry[typ]})
			}
		}
		link.URLs = append(link.URLs, g)
	}
	return link
}

func intValue(v *float64) int {
	if v == nil {
		return 0
	}
	return int(*v)
}

func fromMillis(ms float64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms))
}
