package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/weaveproject/weaveio/internal/queue/metrics"
	"github.com/weaveproject/weaveio/internal/queue/repository"
	"github.com/weaveproject/weaveio/pkg/api"
)

const defaultCancellationPollInterval = 5 * time.Second

// Runner executes one kind of job.  The context carries the job's wall time
// limit and is cancelled if the job is cancelled through the API.
type Runner interface {
	Run(ctx context.Context, job *api.Job) error
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context, job *api.Job) error

func (f RunnerFunc) Run(ctx context.Context, job *api.Job) error {
	return f(ctx, job)
}

// Executor leases jobs from the repository and runs them on this node with a
// fixed pool of workers.
type Executor struct {
	repository repository.JobRepository
	events     repository.EventRepository
	runners    map[api.JobKind]Runner
	node       string
	workers    int
	// interval between attempts to lease a job
	pollInterval time.Duration
	// interval between checks for cancellation of a running job
	cancelPollInterval time.Duration
}

func New(
	jobRepository repository.JobRepository,
	eventRepository repository.EventRepository,
	runners map[api.JobKind]Runner,
	node string,
	workers int,
	pollInterval time.Duration,
) *Executor {
	return &Executor{
		repository:         jobRepository,
		events:             eventRepository,
		runners:            runners,
		node:               node,
		workers:            workers,
		pollInterval:       pollInterval,
		cancelPollInterval: defaultCancellationPollInterval,
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight jobs to stop.
func (e *Executor) Run(ctx context.Context) error {
	log.Infof("Starting %d executor workers on node %s", e.workers, e.node)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < e.workers; i++ {
		worker := i
		g.Go(func() error {
			return e.workerLoop(ctx, worker)
		})
	}
	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func (e *Executor) workerLoop(ctx context.Context, worker int) error {
	for {
		job, err := e.repository.LeaseNextJob(ctx, e.node)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).Error("Failed to lease job")
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.pollInterval):
			}
			continue
		}
		e.publishEvent(job, api.JobLeased, "")
		e.executeJob(ctx, worker, job)
	}
}

func (e *Executor) executeJob(ctx context.Context, worker int, job *api.Job) {
	runner, ok := e.runners[job.Kind]
	if !ok {
		e.reportDone(job, api.JobFailed, fmt.Sprintf("no runner registered for job kind %q", job.Kind))
		return
	}

	if err := e.repository.MarkRunning(ctx, job.Id); err != nil {
		log.WithError(err).Errorf("Failed to mark job %s running", job.Id)
		return
	}
	e.publishEvent(job, api.JobRunning, "")

	entry := log.WithFields(log.Fields{
		"jobId":  job.Id,
		"kind":   job.Kind,
		"worker": worker,
		"node":   e.node,
	})
	entry.Infof("Running job (wall time %s)", job.WallTime)

	runCtx, cancel := context.WithTimeout(ctx, job.WallTime)
	defer cancel()

	cancelled := e.watchForCancellation(runCtx, cancel, job.Id)

	start := time.Now()
	err := runner.Run(runCtx, job)
	duration := time.Since(start)
	metrics.JobRunDuration.WithLabelValues(job.Queue, string(job.Kind)).Observe(duration.Seconds())

	select {
	case <-cancelled:
		entry.Infof("Job cancelled after %s", duration)
		return
	default:
	}

	switch {
	case err == nil:
		entry.Infof("Job succeeded in %s", duration)
		e.reportDone(job, api.JobSucceeded, "")
	case runCtx.Err() == context.DeadlineExceeded:
		entry.Warnf("Job exceeded wall time of %s", job.WallTime)
		e.reportDone(job, api.JobFailed, fmt.Sprintf("wall time of %s exceeded", job.WallTime))
	case ctx.Err() != nil:
		// server shutdown, leave the job leased so it gets requeued
		entry.Warn("Job interrupted by shutdown")
	default:
		entry.WithError(err).Error("Job failed")
		e.reportDone(job, api.JobFailed, err.Error())
	}
}

// watchForCancellation polls the job state and cancels the run context when
// the job is cancelled through the API.  The returned channel is closed if
// that happens.
func (e *Executor) watchForCancellation(ctx context.Context, cancel context.CancelFunc, jobId string) <-chan struct{} {
	cancelled := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.cancelPollInterval):
			}
			job, err := e.repository.GetJob(ctx, jobId)
			if err != nil {
				continue
			}
			if job.State == api.JobCancelled {
				close(cancelled)
				cancel()
				return
			}
		}
	}()
	return cancelled
}

func (e *Executor) reportDone(job *api.Job, state api.JobState, jobError string) {
	err := retry.Do(
		func() error {
			return e.repository.MarkDone(context.Background(), job.Id, state, jobError)
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
	)
	if err != nil {
		log.WithError(err).Errorf("Failed to record job %s as %s", job.Id, state)
		return
	}
	metrics.JobsCompleted.WithLabelValues(job.Queue, string(job.Kind), string(state)).Inc()
	e.publishEvent(job, state, jobError)
}

func (e *Executor) publishEvent(job *api.Job, state api.JobState, jobError string) {
	err := e.events.Publish(&api.JobEvent{
		JobId:   job.Id,
		Queue:   job.Queue,
		State:   state,
		Error:   jobError,
		Node:    e.node,
		Created: time.Now(),
	})
	if err != nil {
		log.WithError(err).Warnf("Failed to publish %s event for job %s", state, job.Id)
	}
}
