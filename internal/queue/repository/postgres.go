package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"github.com/weaveproject/weaveio/internal/common/database"
	"github.com/weaveproject/weaveio/pkg/api"
)

var queueMigrations = []database.Migration{
	{Id: 1, Name: "001_initial_schema.sql", Sql: `
		CREATE TABLE IF NOT EXISTS jobs (
			job_id varchar(32) PRIMARY KEY,
			queue varchar(512) NOT NULL,
			owner varchar(512),
			kind varchar(32) NOT NULL,
			night varchar(8),
			priority double precision,
			wall_time_nanos bigint,
			state varchar(16) NOT NULL,
			error text,
			node varchar(512),
			submitted timestamp,
			leased timestamp,
			started timestamp,
			finished timestamp
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_queue_state ON jobs (queue, state);
		CREATE INDEX IF NOT EXISTS idx_jobs_kind_night ON jobs (kind, night);
	`},
}

// PostgresJobRepository persists jobs in postgres.  Leasing relies on
// FOR UPDATE SKIP LOCKED so multiple server replicas can share a queue.
type PostgresJobRepository struct {
	db *pgxpool.Pool
}

func NewPostgresJobRepository(db *pgxpool.Pool) *PostgresJobRepository {
	return &PostgresJobRepository{db: db}
}

func (r *PostgresJobRepository) Setup(ctx context.Context) error {
	return database.UpdateDatabase(ctx, r.db, queueMigrations)
}

func (r *PostgresJobRepository) SubmitJob(ctx context.Context, job *api.Job) error {
	return r.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		if job.Kind == api.JobKindIngest {
			var n int64
			err := tx.QueryRow(ctx, `
				SELECT COUNT(*) FROM jobs
				WHERE kind = $1 AND night = $2 AND state = ANY($3)`,
				string(api.JobKindIngest), job.Night,
				[]string{string(api.JobQueued), string(api.JobLeased), string(api.JobRunning)},
			).Scan(&n)
			if err != nil {
				return err
			}
			if n > 0 {
				return &ErrActiveNightIngest{Night: job.Night}
			}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO jobs (job_id, queue, owner, kind, night, priority, wall_time_nanos, state, error, node, submitted)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			job.Id, job.Queue, job.Owner, string(job.Kind), job.Night, job.Priority,
			int64(job.WallTime), string(job.State), job.Error, job.Node, job.Submitted)
		return err
	})
}

const pgSelectJob = `
	SELECT job_id, queue, owner, kind, night, priority, wall_time_nanos,
	       state, error, node, submitted, started, finished
	FROM jobs`

func scanPgJob(row pgx.Row) (*api.Job, error) {
	var job api.Job
	var kind, state string
	var wallTime int64
	var night, jobError, node *string
	var submitted, started, finished *time.Time
	err := row.Scan(&job.Id, &job.Queue, &job.Owner, &kind, &night, &job.Priority,
		&wallTime, &state, &jobError, &node, &submitted, &started, &finished)
	if err != nil {
		return nil, err
	}
	job.Kind = api.JobKind(kind)
	job.State = api.JobState(state)
	job.WallTime = time.Duration(wallTime)
	if night != nil {
		job.Night = *night
	}
	if jobError != nil {
		job.Error = *jobError
	}
	if node != nil {
		job.Node = *node
	}
	if submitted != nil {
		job.Submitted = *submitted
	}
	if started != nil {
		job.Started = *started
	}
	if finished != nil {
		job.Finished = *finished
	}
	return &job, nil
}

func (r *PostgresJobRepository) GetJob(ctx context.Context, jobId string) (*api.Job, error) {
	job, err := scanPgJob(r.db.QueryRow(ctx, pgSelectJob+" WHERE job_id = $1", jobId))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrJobNotFound{JobId: jobId}
	}
	return job, err
}

func (r *PostgresJobRepository) ListJobs(ctx context.Context, queue string, state api.JobState) ([]*api.Job, error) {
	query := pgSelectJob + " WHERE ($1 = '' OR queue = $1) AND ($2 = '' OR state = $2) ORDER BY submitted DESC"
	rows, err := r.db.Query(ctx, query, queue, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*api.Job{}
	for rows.Next() {
		job, err := scanPgJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *PostgresJobRepository) LeaseNextJob(ctx context.Context, node string) (*api.Job, error) {
	var job *api.Job
	err := r.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, pgSelectJob+`
			WHERE state = $1
			ORDER BY priority DESC, submitted ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED`, string(api.JobQueued))
		j, err := scanPgJob(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE jobs SET state = $1, node = $2, leased = $3 WHERE job_id = $4`,
			string(api.JobLeased), node, time.Now(), j.Id)
		if err != nil {
			return err
		}
		j.State = api.JobLeased
		j.Node = node
		job = j
		return nil
	})
	return job, err
}

func (r *PostgresJobRepository) MarkRunning(ctx context.Context, jobId string) error {
	return r.transition(ctx, jobId, api.JobRunning,
		`UPDATE jobs SET state = $1, started = $2 WHERE job_id = $3`,
		string(api.JobRunning), time.Now(), jobId)
}

func (r *PostgresJobRepository) MarkDone(ctx context.Context, jobId string, state api.JobState, jobError string) error {
	return r.transition(ctx, jobId, state,
		`UPDATE jobs SET state = $1, error = $2, finished = $3 WHERE job_id = $4`,
		string(state), jobError, time.Now(), jobId)
}

func (r *PostgresJobRepository) transition(ctx context.Context, jobId string, to api.JobState, query string, args ...interface{}) error {
	return r.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		job, err := scanPgJob(tx.QueryRow(ctx, pgSelectJob+" WHERE job_id = $1 FOR UPDATE", jobId))
		if errors.Is(err, pgx.ErrNoRows) {
			return &ErrJobNotFound{JobId: jobId}
		}
		if err != nil {
			return err
		}
		if err := validateTransition(job.State, to); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, query, args...)
		return err
	})
}

func (r *PostgresJobRepository) CancelJob(ctx context.Context, jobId string) (*api.Job, error) {
	var cancelled *api.Job
	err := r.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		job, err := scanPgJob(tx.QueryRow(ctx, pgSelectJob+" WHERE job_id = $1 FOR UPDATE", jobId))
		if errors.Is(err, pgx.ErrNoRows) {
			return &ErrJobNotFound{JobId: jobId}
		}
		if err != nil {
			return err
		}
		if job.State.IsTerminal() {
			return &ErrJobNotCancellable{JobId: jobId, State: job.State}
		}
		_, err = tx.Exec(ctx, `
			UPDATE jobs SET state = $1, finished = $2 WHERE job_id = $3`,
			string(api.JobCancelled), time.Now(), jobId)
		if err != nil {
			return err
		}
		job.State = api.JobCancelled
		cancelled = job
		return nil
	})
	return cancelled, err
}

func (r *PostgresJobRepository) RequeueExpiredLeases(ctx context.Context, leaseTimeout time.Duration) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE jobs SET state = $1, node = '' WHERE state = $2 AND leased < $3`,
		string(api.JobQueued), string(api.JobLeased), time.Now().Add(-leaseTimeout))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresJobRepository) CountByState(ctx context.Context) (map[api.JobState]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[api.JobState]int64{}
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[api.JobState(state)] = n
	}
	return counts, rows.Err()
}
