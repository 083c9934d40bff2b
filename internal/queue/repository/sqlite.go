package repository

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/weaveproject/weaveio/pkg/api"
)

// SQLiteJobRepository persists jobs in a local sqlite database.  SQLite only
// allows one writer at a time so all writes are serialized behind a lock.
type SQLiteJobRepository struct {
	db   *sql.DB
	lock sync.Mutex
}

func NewSQLiteJobRepository(databasePath string) (*SQLiteJobRepository, func(), error) {
	dbDir := filepath.Dir(databasePath)
	if _, err := os.Stat(dbDir); os.IsNotExist(err) {
		if errMkDir := os.MkdirAll(dbDir, 0o755); errMkDir != nil {
			return nil, func() {}, errors.Wrapf(errMkDir, "could not make directory at %s for sqlite db", dbDir)
		}
	}

	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		return nil, func() {}, errors.Wrapf(err, "error opening sqlite db at %s", databasePath)
	}

	return &SQLiteJobRepository{db: db}, func() {
			if err := db.Close(); err != nil {
				log.Warnf("error closing database: %v", err)
			}
		}, nil
}

func (r *SQLiteJobRepository) Setup(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, err := r.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS jobs (
			job_id TEXT PRIMARY KEY,
			queue TEXT NOT NULL,
			owner TEXT,
			kind TEXT NOT NULL,
			night TEXT,
			priority REAL,
			wall_time_nanos INTEGER,
			state TEXT NOT NULL,
			error TEXT,
			node TEXT,
			submitted INTEGER,
			leased INTEGER,
			started INTEGER,
			finished INTEGER)`)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_jobs_queue_state ON jobs (queue, state)`)
	return err
}

func (r *SQLiteJobRepository) SubmitJob(ctx context.Context, job *api.Job) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if job.Kind == api.JobKindIngest {
		active, err := r.hasActiveIngest(ctx, job.Night)
		if err != nil {
			return err
		}
		if active {
			return &ErrActiveNightIngest{Night: job.Night}
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, queue, owner, kind, night, priority, wall_time_nanos, state, error, node, submitted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Id, job.Queue, job.Owner, string(job.Kind), job.Night, job.Priority,
		int64(job.WallTime), string(job.State), job.Error, job.Node, job.Submitted.UnixNano())
	return err
}

func (r *SQLiteJobRepository) hasActiveIngest(ctx context.Context, night string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE kind = ? AND night = ? AND state IN (?, ?, ?)`,
		string(api.JobKindIngest), night,
		string(api.JobQueued), string(api.JobLeased), string(api.JobRunning))
	var n int64
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLiteJobRepository) GetJob(ctx context.Context, jobId string) (*api.Job, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.getJob(ctx, jobId)
}

func (r *SQLiteJobRepository) getJob(ctx context.Context, jobId string) (*api.Job, error) {
	row := r.db.QueryRowContext(ctx, selectJob+" WHERE job_id = ?", jobId)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, &ErrJobNotFound{JobId: jobId}
	}
	return job, err
}

const selectJob = `
	SELECT job_id, queue, owner, kind, night, priority, wall_time_nanos,
	       state, error, node, submitted, started, finished
	FROM jobs`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*api.Job, error) {
	var job api.Job
	var kind, state string
	var wallTime, submitted int64
	var started, finished sql.NullInt64
	var night, jobError, node sql.NullString
	err := row.Scan(&job.Id, &job.Queue, &job.Owner, &kind, &night, &job.Priority,
		&wallTime, &state, &jobError, &node, &submitted, &started, &finished)
	if err != nil {
		return nil, err
	}
	job.Kind = api.JobKind(kind)
	job.State = api.JobState(state)
	job.Night = night.String
	job.Error = jobError.String
	job.Node = node.String
	job.WallTime = time.Duration(wallTime)
	job.Submitted = time.Unix(0, submitted)
	if started.Valid {
		job.Started = time.Unix(0, started.Int64)
	}
	if finished.Valid {
		job.Finished = time.Unix(0, finished.Int64)
	}
	return &job, nil
}

func (r *SQLiteJobRepository) ListJobs(ctx context.Context, queue string, state api.JobState) ([]*api.Job, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	query := selectJob + " WHERE 1=1"
	args := []interface{}{}
	if queue != "" {
		query += " AND queue = ?"
		args = append(args, queue)
	}
	if state != "" {
		query += " AND state = ?"
		args = append(args, string(state))
	}
	query += " ORDER BY submitted DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*api.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *SQLiteJobRepository) LeaseNextJob(ctx context.Context, node string) (*api.Job, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	row := r.db.QueryRowContext(ctx, selectJob+`
		WHERE state = ?
		ORDER BY priority DESC, submitted ASC
		LIMIT 1`, string(api.JobQueued))
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, node = ?, leased = ?
		WHERE job_id = ? AND state = ?`,
		string(api.JobLeased), node, time.Now().UnixNano(), job.Id, string(api.JobQueued))
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// raced with a cancel, let the caller poll again
		return nil, nil
	}
	job.State = api.JobLeased
	job.Node = node
	return job, nil
}

func (r *SQLiteJobRepository) MarkRunning(ctx context.Context, jobId string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.transition(ctx, jobId, api.JobRunning, "", func(job *api.Job) (string, []interface{}) {
		return `UPDATE jobs SET state = ?, started = ? WHERE job_id = ?`,
			[]interface{}{string(api.JobRunning), time.Now().UnixNano(), jobId}
	})
}

func (r *SQLiteJobRepository) MarkDone(ctx context.Context, jobId string, state api.JobState, jobError string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.transition(ctx, jobId, state, jobError, func(job *api.Job) (string, []interface{}) {
		return `UPDATE jobs SET state = ?, error = ?, finished = ? WHERE job_id = ?`,
			[]interface{}{string(state), jobError, time.Now().UnixNano(), jobId}
	})
}

func (r *SQLiteJobRepository) transition(
	ctx context.Context,
	jobId string,
	to api.JobState,
	jobError string,
	stmt func(job *api.Job) (string, []interface{}),
) error {
	job, err := r.getJob(ctx, jobId)
	if err != nil {
		return err
	}
	if err := validateTransition(job.State, to); err != nil {
		return err
	}
	query, args := stmt(job)
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *SQLiteJobRepository) CancelJob(ctx context.Context, jobId string) (*api.Job, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	job, err := r.getJob(ctx, jobId)
	if err != nil {
		return nil, err
	}
	if job.State.IsTerminal() {
		return nil, &ErrJobNotCancellable{JobId: jobId, State: job.State}
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, finished = ? WHERE job_id = ?`,
		string(api.JobCancelled), time.Now().UnixNano(), jobId)
	if err != nil {
		return nil, err
	}
	job.State = api.JobCancelled
	return job, nil
}

func (r *SQLiteJobRepository) RequeueExpiredLeases(ctx context.Context, leaseTimeout time.Duration) (int64, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	cutoff := time.Now().Add(-leaseTimeout).UnixNano()
	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, node = '' WHERE state = ? AND leased < ?`,
		string(api.JobQueued), string(api.JobLeased), cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SQLiteJobRepository) CountByState(ctx context.Context) (map[api.JobState]int64, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	rows, err := r.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
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
