package model

import "time"

// JobStatus is the lifecycle state of an asynchronous scan.
type JobStatus string

const (
	// JobNotStarted means the scan is registered but the engine has not begun.
	JobNotStarted JobStatus = "not_started"

	// JobInProgress means the engine is running.
	JobInProgress JobStatus = "in_progress"

	// JobCompleted means the engine finished and the result is frozen.
	JobCompleted JobStatus = "completed"

	// JobFailed means the scan could not be started or set up.
	JobFailed JobStatus = "failed"
)

// Terminal reports whether no further transition can happen.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransitionTo reports whether s may move to next.
// Allowed: not_started -> in_progress | failed, in_progress -> completed | failed.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobNotStarted:
		return next == JobInProgress || next == JobFailed
	case JobInProgress:
		return next == JobCompleted || next == JobFailed
	default:
		return false
	}
}

// ScanJob is a point-in-time view of an asynchronous scan.
type ScanJob struct {
	ID     string     `json:"scan_id"`
	Status JobStatus  `json:"status"`
	Config ScanConfig `json:"config"`

	// Reason explains a failed status.
	Reason string `json:"error,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`

	// ResultFile is the JSON report written for a completed scan, if any.
	ResultFile string `json:"result_file,omitempty"`

	// Result is nil before the scan starts, a snapshot while it runs and the
	// frozen result once it completed.
	Result *ScanResult `json:"-"`
}
