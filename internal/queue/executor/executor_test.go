package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveproject/weaveio/internal/common/util"
	"github.com/weaveproject/weaveio/internal/queue/repository"
	"github.com/weaveproject/weaveio/pkg/api"
)

func TestExecutor_RunsJobToSuccess(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	events := repository.NewInMemoryEventRepository()
	job := submitTestJob(t, repo)

	done := make(chan string, 1)
	executor := New(repo, events, map[api.JobKind]Runner{
		api.JobKindIngest: RunnerFunc(func(ctx context.Context, job *api.Job) error {
			done <- job.Id
			return nil
		}),
	}, "node1", 1, 10*time.Millisecond)

	runExecutorUntil(t, executor, func() bool {
		stored, err := repo.GetJob(context.Background(), job.Id)
		require.NoError(t, err)
		return stored.State.IsTerminal()
	})

	assert.Equal(t, job.Id, <-done)
	stored, err := repo.GetJob(context.Background(), job.Id)
	require.NoError(t, err)
	assert.Equal(t, api.JobSucceeded, stored.State)
	assert.Equal(t, "node1", stored.Node)

	states := eventStates(t, events, job.Id)
	assert.Equal(t, []api.JobState{api.JobLeased, api.JobRunning, api.JobSucceeded}, states)
}

func TestExecutor_RecordsFailure(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	events := repository.NewInMemoryEventRepository()
	job := submitTestJob(t, repo)

	executor := New(repo, events, map[api.JobKind]Runner{
		api.JobKindIngest: RunnerFunc(func(ctx context.Context, job *api.Job) error {
			return errors.New("no files found")
		}),
	}, "node1", 1, 10*time.Millisecond)

	runExecutorUntil(t, executor, func() bool {
		stored, err := repo.GetJob(context.Background(), job.Id)
		require.NoError(t, err)
		return stored.State.IsTerminal()
	})

	stored, err := repo.GetJob(context.Background(), job.Id)
	require.NoError(t, err)
	assert.Equal(t, api.JobFailed, stored.State)
	assert.Equal(t, "no files found", stored.Error)
}

func TestExecutor_FailsJobExceedingWallTime(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	events := repository.NewInMemoryEventRepository()
	job := newQueuedJob()
	job.WallTime = 20 * time.Millisecond
	require.NoError(t, repo.SubmitJob(context.Background(), job))

	executor := New(repo, events, map[api.JobKind]Runner{
		api.JobKindIngest: RunnerFunc(func(ctx context.Context, job *api.Job) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	}, "node1", 1, 10*time.Millisecond)

	runExecutorUntil(t, executor, func() bool {
		stored, err := repo.GetJob(context.Background(), job.Id)
		require.NoError(t, err)
		return stored.State.IsTerminal()
	})

	stored, err := repo.GetJob(context.Background(), job.Id)
	require.NoError(t, err)
	assert.Equal(t, api.JobFailed, stored.State)
	assert.Contains(t, stored.Error, "wall time")
}

func TestExecutor_CancellingRunningJobCancelsItsContext(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	events := repository.NewInMemoryEventRepository()
	job := submitTestJob(t, repo)

	runnerStopped := make(chan error, 1)
	executor := New(repo, events, map[api.JobKind]Runner{
		api.JobKindIngest: RunnerFunc(func(ctx context.Context, job *api.Job) error {
			<-ctx.Done()
			runnerStopped <- ctx.Err()
			return ctx.Err()
		}),
	}, "node1", 1, 10*time.Millisecond)
	executor.cancelPollInterval = 10 * time.Millisecond

	runExecutorUntil(t, executor, func() bool {
		stored, err := repo.GetJob(context.Background(), job.Id)
		require.NoError(t, err)
		if stored.State == api.JobRunning {
			_, err := repo.CancelJob(context.Background(), job.Id)
			require.NoError(t, err)
		}
		if stored.State != api.JobCancelled {
			return false
		}
		select {
		case err := <-runnerStopped:
			assert.Equal(t, context.Canceled, err)
			return true
		default:
			return false
		}
	})

	// the cancelled run must not be re-reported as failed or succeeded
	stored, err := repo.GetJob(context.Background(), job.Id)
	require.NoError(t, err)
	assert.Equal(t, api.JobCancelled, stored.State)
	for _, state := range eventStates(t, events, job.Id) {
		assert.NotContains(t, []api.JobState{api.JobFailed, api.JobSucceeded}, state)
	}
}

func TestExecutor_UnknownKindFails(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	events := repository.NewInMemoryEventRepository()
	job := submitTestJob(t, repo)

	executor := New(repo, events, map[api.JobKind]Runner{}, "node1", 1, 10*time.Millisecond)

	runExecutorUntil(t, executor, func() bool {
		stored, err := repo.GetJob(context.Background(), job.Id)
		require.NoError(t, err)
		return stored.State.IsTerminal()
	})

	stored, err := repo.GetJob(context.Background(), job.Id)
	require.NoError(t, err)
	assert.Equal(t, api.JobFailed, stored.State)
	assert.Contains(t, stored.Error, "no runner registered")
}

func runExecutorUntil(t *testing.T, executor *Executor, condition func() bool) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finished := make(chan error, 1)
	go func() {
		finished <- executor.Run(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for !condition() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for executor")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	require.NoError(t, <-finished)
}

func eventStates(t *testing.T, events repository.EventRepository, jobId string) []api.JobState {
	published, err := events.GetEvents(jobId)
	require.NoError(t, err)
	states := make([]api.JobState, 0, len(published))
	for _, e := range published {
		states = append(states, e.State)
	}
	return states
}

func submitTestJob(t *testing.T, repo repository.JobRepository) *api.Job {
	job := newQueuedJob()
	require.NoError(t, repo.SubmitJob(context.Background(), job))
	return job
}

func newQueuedJob() *api.Job {
	return &api.Job{
		Id:        util.NewULID(),
		Queue:     "test",
		Owner:     "test-user",
		Kind:      api.JobKindIngest,
		Night:     "20200101",
		WallTime:  time.Minute,
		State:     api.JobQueued,
		Submitted: time.Now(),
	}
}
