package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/weaveproject/weaveio/internal/common/util"
	"github.com/weaveproject/weaveio/pkg/api"
)

// InMemoryJobRepository keeps jobs in a map.  Used for tests and for running
// the server without a database.
type InMemoryJobRepository struct {
	jobs   map[string]*api.Job
	leased map[string]time.Time
	clock  util.Clock
	mutex  sync.Mutex
}

func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobs:   map[string]*api.Job{},
		leased: map[string]time.Time{},
		clock:  &util.DefaultClock{},
	}
}

func (r *InMemoryJobRepository) Setup(ctx context.Context) error {
	return nil
}

func (r *InMemoryJobRepository) SubmitJob(ctx context.Context, job *api.Job) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if job.Kind == api.JobKindIngest {
		for _, existing := range r.jobs {
			if existing.Kind == api.JobKindIngest &&
				existing.Night == job.Night &&
				!existing.State.IsTerminal() {
				return &ErrActiveNightIngest{Night: job.Night}
			}
		}
	}
	copied := *job
	r.jobs[job.Id] = &copied
	return nil
}

func (r *InMemoryJobRepository) GetJob(ctx context.Context, jobId string) (*api.Job, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	job, ok := r.jobs[jobId]
	if !ok {
		return nil, &ErrJobNotFound{JobId: jobId}
	}
	copied := *job
	return &copied, nil
}

func (r *InMemoryJobRepository) ListJobs(ctx context.Context, queue string, state api.JobState) ([]*api.Job, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	jobs := []*api.Job{}
	for _, job := range r.jobs {
		if queue != "" && job.Queue != queue {
			continue
		}
		if state != "" && job.State != state {
			continue
		}
		copied := *job
		jobs = append(jobs, &copied)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].Submitted.After(jobs[j].Submitted)
	})
	return jobs, nil
}

func (r *InMemoryJobRepository) LeaseNextJob(ctx context.Context, node string) (*api.Job, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var best *api.Job
	for _, job := range r.jobs {
		if job.State != api.JobQueued {
			continue
		}
		if best == nil ||
			job.Priority > best.Priority ||
			(job.Priority == best.Priority && job.Submitted.Before(best.Submitted)) {
			best = job
		}
	}
	if best == nil {
		return nil, nil
	}
	best.State = api.JobLeased
	best.Node = node
	r.leased[best.Id] = r.clock.Now()
	copied := *best
	return &copied, nil
}

func (r *InMemoryJobRepository) MarkRunning(ctx context.Context, jobId string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	job, ok := r.jobs[jobId]
	if !ok {
		return &ErrJobNotFound{JobId: jobId}
	}
	if err := validateTransition(job.State, api.JobRunning); err != nil {
		return err
	}
	job.State = api.JobRunning
	job.Started = r.clock.Now()
	return nil
}

func (r *InMemoryJobRepository) MarkDone(ctx context.Context, jobId string, state api.JobState, jobError string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	job, ok := r.jobs[jobId]
	if !ok {
		return &ErrJobNotFound{JobId: jobId}
	}
	if err := validateTransition(job.State, state); err != nil {
		return err
	}
	job.State = state
	job.Error = jobError
	job.Finished = r.clock.Now()
	delete(r.leased, jobId)
	return nil
}

func (r *InMemoryJobRepository) CancelJob(ctx context.Context, jobId string) (*api.Job, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	job, ok := r.jobs[jobId]
	if !ok {
		return nil, &ErrJobNotFound{JobId: jobId}
	}
	if job.State.IsTerminal() {
		return nil, &ErrJobNotCancellable{JobId: jobId, State: job.State}
	}
	job.State = api.JobCancelled
	job.Finished = r.clock.Now()
	delete(r.leased, jobId)
	copied := *job
	return &copied, nil
}

func (r *InMemoryJobRepository) RequeueExpiredLeases(ctx context.Context, leaseTimeout time.Duration) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	cutoff := r.clock.Now().Add(-leaseTimeout)
	requeued := int64(0)
	for jobId, leasedAt := range r.leased {
		job, ok := r.jobs[jobId]
		if !ok || job.State != api.JobLeased {
			delete(r.leased, jobId)
			continue
		}
		if leasedAt.Before(cutoff) {
			job.State = api.JobQueued
			job.Node = ""
			delete(r.leased, jobId)
			requeued++
		}
	}
	return requeued, nil
}

func (r *InMemoryJobRepository) CountByState(ctx context.Context) (map[api.JobState]int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	counts := map[api.JobState]int64{}
	for _, job := range r.jobs {
		counts[job.State]++
	}
	return counts, nil
}
