package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/weaveproject/weaveio/pkg/api"
)

type ErrJobNotFound struct {
	JobId string
}

func (err *ErrJobNotFound) Error() string {
	return fmt.Sprintf("could not find job %q", err.JobId)
}

type ErrActiveNightIngest struct {
	Night string
}

func (err *ErrActiveNightIngest) Error() string {
	return fmt.Sprintf("an ingest job for night %s is already queued or running", err.Night)
}

type ErrJobNotCancellable struct {
	JobId string
	State api.JobState
}

func (err *ErrJobNotCancellable) Error() string {
	return fmt.Sprintf("job %s is in state %s and cannot be cancelled", err.JobId, err.State)
}

// JobRepository persists jobs and serializes the queue state transitions.
type JobRepository interface {
	// Setup prepares the backing store (tables, indexes).
	Setup(ctx context.Context) error

	// SubmitJob stores a new QUEUED job.  Submitting an ingest job for a night
	// that already has an active ingest returns ErrActiveNightIngest.
	SubmitJob(ctx context.Context, job *api.Job) error

	GetJob(ctx context.Context, jobId string) (*api.Job, error)
	ListJobs(ctx context.Context, queue string, state api.JobState) ([]*api.Job, error)

	// LeaseNextJob atomically moves the highest priority, oldest QUEUED job to
	// LEASED for the given node.  Returns nil if the queue is empty.
	LeaseNextJob(ctx context.Context, node string) (*api.Job, error)

	MarkRunning(ctx context.Context, jobId string) error
	MarkDone(ctx context.Context, jobId string, state api.JobState, jobError string) error

	// CancelJob cancels a QUEUED job directly, or flags a LEASED/RUNNING job
	// for cancellation by the executor.  Terminal jobs return ErrJobNotCancellable.
	CancelJob(ctx context.Context, jobId string) (*api.Job, error)

	// RequeueExpiredLeases returns LEASED jobs older than leaseTimeout to QUEUED.
	RequeueExpiredLeases(ctx context.Context, leaseTimeout time.Duration) (int64, error)

	// CountByState returns the number of jobs per state, for metrics.
	CountByState(ctx context.Context) (map[api.JobState]int64, error)
}

func validateTransition(from api.JobState, to api.JobState) error {
	ok := false
	switch to {
	case api.JobRunning:
		ok = from == api.JobLeased
	case api.JobSucceeded, api.JobFailed:
		ok = from == api.JobRunning || from == api.JobLeased
	case api.JobCancelled:
		ok = !from.IsTerminal()
	case api.JobQueued:
		ok = from == api.JobLeased
	}
	if !ok {
		return fmt.Errorf("invalid job state transition %s -> %s", from, to)
	}
	return nil
}
