package worker

import (
	"context"
	"time"

	"recscribe/internal/recordings"
)

type JobType int

const (
	Process JobType = iota
	Stop
)

// Job is one pipeline step for one object key.
type Job struct {
	ID         string
	Type       JobType
	Kind       recordings.Kind
	Key        string
	EnqueuedAt time.Time
}

// group is the fairness bucket of the job: uploads of one day share a queue.
func (job Job) group() string {
	return recordings.DateOf(job.Key)
}

// Handler runs a job. A returned error marks the job failed.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error {
	return f(ctx, job)
}
