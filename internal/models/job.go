package models

import "time"

type JobState string

const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// JobStatus is the externally visible progress of a pipeline job.
type JobStatus struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Key       string    `json:"key"`
	State     JobState  `json:"state"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the job will not change state again.
func (s JobStatus) Terminal() bool {
	return s.State == JobDone || s.State == JobFailed
}
