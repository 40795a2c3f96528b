package jobs

import (
	"fmt"
	"time"

	"animate3d/internal/params"
)

// Snapshot is the progress view dispatched to progress callbacks.
type Snapshot struct {
	RID             string
	Status          Status
	ProgressPercent int
	PositionInQueue int
}

// Equal reports whether two snapshots carry the same observable state.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.RID == other.RID &&
		s.Status == other.Status &&
		s.ProgressPercent == other.ProgressPercent &&
		s.PositionInQueue == other.PositionInQueue
}

// StatusReport is one status query result.
type StatusReport struct {
	Snapshot
	// Found is false when the service has no entry for the RID.
	Found        bool
	RemoteStatus string
	Input        []string
	Output       []string
	// Params are the effective parameters the job was submitted with, when
	// the service returned them.
	Params    *params.ProcessParams
	RawParams []string
	// ParamsErr is set when RawParams could not be decoded.
	ParamsErr error
	Error     *JobError
}

// JobError is a job-level failure reported by the service. It is data
// delivered to result callbacks, not a Go error.
type JobError struct {
	Code    string
	Message string
}

func (e JobError) String() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// TimeoutCode marks the synthetic JobError delivered when polling times out.
const TimeoutCode = "TIMEOUT"

// CancelledCode marks a job cancelled on the service side.
const CancelledCode = "CANCELLED"

// Result describes the artifacts of a successful job.
type Result struct {
	RID    string
	Input  []string
	Output []string
	Link   *DownloadLink
}

// Outcome is the single terminal notification for a job. Exactly one of
// Result and Error is set.
type Outcome struct {
	RID    string
	Result *Result
	Error  *JobError
}

// Succeeded reports whether the outcome carries a result.
func (o Outcome) Succeeded() bool { return o.Result != nil && o.Error == nil }

// File is one downloadable artifact within a URL group.
type File struct {
	Type string
	URL  string
}

// URLGroup bundles the files produced for one output (a character or a
// rendered video).
type URLGroup struct {
	Name  string
	Files []File
}

// DownloadLink is the download descriptor for one job.
type DownloadLink struct {
	RID         string
	Name        string
	Size        int64
	Duration    float64
	Input       []string
	MultiPerson bool
	Models      []params.ModelBinding
	URLs        []URLGroup
}

// Summary is one entry of the job listing.
type Summary struct {
	RID          string
	Status       Status
	RemoteStatus string
	FileName     string
	FileSize     int64
	FileDuration float64
	Created      time.Time
	Modified     time.Time
}
