package jobs

import "strings"

// Status is the local lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusQueued     Status = "QUEUED"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailure    Status = "FAILURE"
	StatusCancelled  Status = "CANCELLED"
)

// Remote status values reported by the service.
const (
	RemoteStarting  = "STARTING"
	RemotePending   = "PENDING"
	RemoteQueued    = "QUEUED"
	RemoteProgress  = "PROGRESS"
	RemoteRetry     = "RETRY"
	RemoteSuccess   = "SUCCESS"
	RemoteFailure   = "FAILURE"
	RemoteCancelled = "CANCELLED"
)

var statusRank = map[Status]int{
	StatusPending:    0,
	StatusQueued:     1,
	StatusProcessing: 2,
	StatusSuccess:    3,
	StatusFailure:    3,
	StatusCancelled:  3,
}

// ParseStatus converts user input such as "success" into a Status.
func ParseStatus(value string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(value)))
	_, ok := statusRank[s]
	return s, ok
}

// IsTerminal reports whether no further transitions can follow.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusCancelled
}

// Rank orders statuses along the lifecycle. Terminal states share the top rank.
func (s Status) Rank() int {
	return statusRank[s]
}

func (s Status) String() string { return string(s) }

// MapRemote converts a remote status into the local lifecycle. A job the
// service has no entry for yet is PENDING. PROGRESS with a queue position is
// still QUEUED. Unknown values count as in progress.
func MapRemote(remote string, positionInQueue int, found bool) Status {
	if !found {
		return StatusPending
	}
	switch strings.ToUpper(strings.TrimSpace(remote)) {
	case "", RemoteStarting, RemotePending:
		return StatusPending
	case RemoteQueued:
		return StatusQueued
	case RemoteProgress:
		if positionInQueue > 0 {
			return StatusQueued
		}
		return StatusProcessing
	case RemoteRetry:
		return StatusProcessing
	case RemoteSuccess:
		return StatusSuccess
	case RemoteFailure:
		return StatusFailure
	case RemoteCancelled:
		return StatusCancelled
	default:
		return StatusProcessing
	}
}

// Percent converts step/total into a whole percentage rounded up. A missing or
// non-positive total counts as 100.
func Percent(step, total int) int {
	if step <= 0 {
		return 0
	}
	if total <= 0 {
		total = 100
	}
	pct := (step*100 + total - 1) / total
	return min(pct, 100)
}
