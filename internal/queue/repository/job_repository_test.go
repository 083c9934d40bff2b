package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveproject/weaveio/internal/common/util"
	"github.com/weaveproject/weaveio/pkg/api"
)

func TestSubmitAndGetJob(t *testing.T) {
	withEachRepository(t, func(r JobRepository) {
		job := newTestJob("queue-a", api.JobKindIngest, "20200101")
		err := r.SubmitJob(context.Background(), job)
		require.NoError(t, err)

		stored, err := r.GetJob(context.Background(), job.Id)
		require.NoError(t, err)
		assert.Equal(t, job.Id, stored.Id)
		assert.Equal(t, api.JobQueued, stored.State)
		assert.Equal(t, "20200101", stored.Night)
		assert.Equal(t, 12*time.Hour, stored.WallTime)
	})
}

func TestGetJob_NotFound(t *testing.T) {
	withEachRepository(t, func(r JobRepository) {
		_, err := r.GetJob(context.Background(), "missing")
		var notFound *ErrJobNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestSubmitJob_DuplicateNightIngestRejected(t *testing.T) {
	withEachRepository(t, func(r JobRepository) {
		first := newTestJob("queue-a", api.JobKindIngest, "20200101")
		require.NoError(t, r.SubmitJob(context.Background(), first))

		second := newTestJob("queue-a", api.JobKindIngest, "20200101")
		err := r.SubmitJob(context.Background(), second)
		var active *ErrActiveNightIngest
		assert.ErrorAs(t, err, &active)

		// a different night is fine
		third := newTestJob("queue-a", api.JobKindIngest, "20200102")
		assert.NoError(t, r.SubmitJob(context.Background(), third))
	})
}

func TestSubmitJob_DuplicateNightAllowedOnceTerminal(t *testing.T) {
	withEachRepository(t, func(r JobRepository) {
		first := newTestJob("queue-a", api.JobKindIngest, "20200101")
		require.NoError(t, r.SubmitJob(context.Background(), first))

		leased, err := r.LeaseNextJob(context.Background(), "node1")
		require.NoError(t, err)
		require.NoError(t, r.MarkRunning(context.Background(), leased.Id))
		require.NoError(t, r.MarkDone(context.Background(), leased.Id, api.JobSucceeded, ""))

		second := newTestJob("queue-a", api.JobKindIngest, "20200101")
		assert.NoError(t, r.SubmitJob(context.Background(), second))
	})
}

func TestLeaseNextJob_EmptyQueue(t *testing.T) {
	withEachRepository(t, func(r JobRepository) {
		job, err := r.LeaseNextJob(context.Background(), "node1")
		require.NoError(t, err)
		assert.Nil(t, job)
	})
}

func TestLeaseNextJob_PriorityOrder(t *testing.T) {
	withEachRepository(t, func(r JobRepository) {
		low := newTestJob("queue-a", api.JobKindValidate, "")
		low.Priority = 1
		low.Submitted = time.Now().Add(-2 * time.Minute)
		high := newTestJob("queue-a", api.JobKindValidate, "")
		high.Priority = 10
		high.Submitted = time.Now().Add(-time.Minute)
		require.NoError(t, r.SubmitJob(context.Background(), low))
		require.NoError(t, r.SubmitJob(context.Background(), high))

		leased, err := r.LeaseNextJob(context.Background(), "node1")
		require.NoError(t, err)
		require.NotNil(t, leased)
		assert.Equal(t, high.Id, leased.Id)
		assert.Equal(t, api.JobLeased, leased.State)
		assert.Equal(t, "node1", leased.Node)
	})
}

func TestLeaseNextJob_OldestFirstWithinPriority(t *testing.T) {
	withEachRepository(t, func(r JobRepository) {
		older := newTestJob("queue-a", api.JobKindValidate, "")
		older.Submitted = time.Now().Add(-2 * time.Minute)
		newer := newTestJob("queue-a", api.JobKindValidate, "")
		newer.Submitted = time.Now().Add(-time.Minute)
		require.NoError(t, r.SubmitJob(context.Background(), newer))
		require.NoError(t, r.SubmitJob(context.Background(), older))

		leased, err := r.LeaseNextJob(context.Background(), "node1")
		require.NoError(t, err)
		require.NotNil(t, leased)
		assert.Equal(t, older.Id, leased.Id)
	})
}

func TestJobLifecycle(t *testing.T) {
	withEachRepository(t, func(r JobRepository) {
		job := newTestJob("queue-a", api.JobKindIngest, "20200101")
		require.NoError(t, r.SubmitJob(context.Background(), job))

		leased, err := r.LeaseNextJob(context.Background(), "node1")
		require.NoError(t, err)
		require.NoError(t, r.MarkRunning(context.Background(), leased.Id))

		running, err := r.GetJob(context.Background(), leased.Id)
		require.NoError(t, err)
		assert.Equal(t, api.JobRunning, running.State)
		assert.False(t, running.Started.IsZero())

		require.NoError(t, r.MarkDone(context.Background(), leased.Id, api.JobFailed, "disk full"))
		failed, err := r.GetJob(context.Background(), leased.Id)
		require.NoError(t, err)
		assert.Equal(t, api.JobFailed, failed.State)
		assert.Equal(t, "disk full", failed.Error)
		assert.False(t, failed.Finished.IsZero())
	})
}

func TestMarkRunning_InvalidTransition(t *testing.T) {
	withEachRepository(t, func(r JobRepository) {
		job := newTestJob("queue-a", api.JobKindIngest, "20200101")
		require.NoError(t, r.SubmitJob(context.Background(), job))

		// QUEUED -> RUNNING skips the lease
		err := r.MarkRunning(context.Background(), job.Id)
		assert.Error(t, err)
	})
}

func TestCancelJob(t *testing.T) {
	withEachRepository(t, func(r JobRepository) {
		job := newTestJob("queue-a", api.JobKindIngest, "20200101")
		require.NoError(t, r.SubmitJob(context.Background(), job))

		cancelled, err := r.CancelJob(context.Background(), job.Id)
		require.NoError(t, err)
		assert.Equal(t, api.JobCancelled, cancelled.State)

		_, err = r.CancelJob(context.Background(), job.Id)
		var notCancellable *ErrJobNotCancellable
		assert.ErrorAs(t, err, &notCancellable)
	})
}

func TestRequeueExpiredLeases(t *testing.T) {
	withEachRepository(t, func(r JobRepository) {
		job := newTestJob("queue-a", api.JobKindIngest, "20200101")
		require.NoError(t, r.SubmitJob(context.Background(), job))

		leased, err := r.LeaseNextJob(context.Background(), "node1")
		require.NoError(t, err)
		require.NotNil(t, leased)

		// lease is fresh, nothing to requeue
		requeued, err := r.RequeueExpiredLeases(context.Background(), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(0), requeued)

		requeued, err = r.RequeueExpiredLeases(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), requeued)

		stored, err := r.GetJob(context.Background(), job.Id)
		require.NoError(t, err)
		assert.Equal(t, api.JobQueued, stored.State)
	})
}

func TestRequeueExpiredLeases_AfterTimeout(t *testing.T) {
	start := time.Date(2020, 1, 1, 22, 0, 0, 0, time.UTC)
	clock := &util.DummyClock{T: start}
	r := NewInMemoryJobRepository()
	r.clock = clock

	job := newTestJob("queue-a", api.JobKindIngest, "20200101")
	require.NoError(t, r.SubmitJob(context.Background(), job))
	leased, err := r.LeaseNextJob(context.Background(), "node1")
	require.NoError(t, err)
	require.NotNil(t, leased)

	clock.T = start.Add(10 * time.Minute)
	requeued, err := r.RequeueExpiredLeases(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), requeued)
}

func TestListJobs_Filters(t *testing.T) {
	withEachRepository(t, func(r JobRepository) {
		a := newTestJob("queue-a", api.JobKindIngest, "20200101")
		b := newTestJob("queue-b", api.JobKindValidate, "")
		require.NoError(t, r.SubmitJob(context.Background(), a))
		require.NoError(t, r.SubmitJob(context.Background(), b))

		all, err := r.ListJobs(context.Background(), "", "")
		require.NoError(t, err)
		assert.Len(t, all, 2)

		queueA, err := r.ListJobs(context.Background(), "queue-a", "")
		require.NoError(t, err)
		require.Len(t, queueA, 1)
		assert.Equal(t, a.Id, queueA[0].Id)

		queued, err := r.ListJobs(context.Background(), "", api.JobQueued)
		require.NoError(t, err)
		assert.Len(t, queued, 2)
	})
}

func TestCountByState(t *testing.T) {
	withEachRepository(t, func(r JobRepository) {
		a := newTestJob("queue-a", api.JobKindIngest, "20200101")
		b := newTestJob("queue-a", api.JobKindValidate, "")
		require.NoError(t, r.SubmitJob(context.Background(), a))
		require.NoError(t, r.SubmitJob(context.Background(), b))

		leased, err := r.LeaseNextJob(context.Background(), "node1")
		require.NoError(t, err)
		require.NotNil(t, leased)

		counts, err := r.CountByState(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts[api.JobQueued])
		assert.Equal(t, int64(1), counts[api.JobLeased])
	})
}

func withEachRepository(t *testing.T, action func(r JobRepository)) {
	t.Run("sqlite", func(t *testing.T) {
		withSqliteRepository(t, action)
	})
	t.Run("inMemory", func(t *testing.T) {
		action(NewInMemoryJobRepository())
	})
}

func withSqliteRepository(t *testing.T, action func(r JobRepository)) {
	repo, closeDb, err := NewSQLiteJobRepository(fmt.Sprintf("%s/jobs.db", t.TempDir()))
	require.NoError(t, err)
	defer closeDb()
	require.NoError(t, repo.Setup(context.Background()))
	action(repo)
}

func newTestJob(queue string, kind api.JobKind, night string) *api.Job {
	return &api.Job{
		Id:        util.NewULID(),
		Queue:     queue,
		Owner:     "test-user",
		Kind:      kind,
		Night:     night,
		WallTime:  12 * time.Hour,
		State:     api.JobQueued,
		Submitted: time.Now(),
	}
}
