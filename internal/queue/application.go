package queue

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/go-redis/redis"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/weaveproject/weaveio/internal/common"
	"github.com/weaveproject/weaveio/internal/common/database"
	"github.com/weaveproject/weaveio/internal/common/health"
	"github.com/weaveproject/weaveio/internal/common/task"
	"github.com/weaveproject/weaveio/internal/common/util"
	"github.com/weaveproject/weaveio/internal/ingester"
	"github.com/weaveproject/weaveio/internal/ingester/archivedb"
	ingesterconfig "github.com/weaveproject/weaveio/internal/ingester/configuration"
	"github.com/weaveproject/weaveio/internal/queue/configuration"
	"github.com/weaveproject/weaveio/internal/queue/executor"
	"github.com/weaveproject/weaveio/internal/queue/metrics"
	"github.com/weaveproject/weaveio/internal/queue/repository"
	"github.com/weaveproject/weaveio/internal/queue/server"
	"github.com/weaveproject/weaveio/internal/validator"
	"github.com/weaveproject/weaveio/pkg/api"
)

type App struct {
	Config *configuration.QueueServerConfiguration
}

func New() *App {
	return &App{}
}

// CheckConfig fills in defaults for optional settings.
func CheckConfig(config *configuration.QueueServerConfiguration) {
	if config.Queue.DefaultQueue == "" {
		config.Queue.DefaultQueue = "weave"
	}
	if config.Queue.DefaultWallTime <= 0 {
		config.Queue.DefaultWallTime = 12 * time.Hour
	}
	if config.Queue.LeaseTimeout <= 0 {
		config.Queue.LeaseTimeout = 5 * time.Minute
	}
	if config.Queue.PollInterval <= 0 {
		config.Queue.PollInterval = 2 * time.Second
	}
	if config.Queue.Workers <= 0 {
		config.Queue.Workers = 1
	}
}

// StartUp runs the queue server until ctx is cancelled.
func (a *App) StartUp(ctx context.Context, config *configuration.QueueServerConfiguration) error {
	CheckConfig(config)

	jobRepository, closeRepository, err := createJobRepository(config)
	if err != nil {
		return err
	}
	defer closeRepository()
	if err := jobRepository.Setup(ctx); err != nil {
		return err
	}

	eventRepository, closeEvents := createEventRepository(config)
	defer closeEvents()

	archiveDb, archiveSink, err := createArchiveSink(&config.Ingest)
	if err != nil {
		return err
	}
	util.RetryUntilSuccess(ctx, archiveDb.Ping, func(err error) {
		log.WithError(err).Warn("Could not reach archive database, retrying")
		time.Sleep(5 * time.Second)
	})
	defer archiveDb.Close()
	nightIngester := ingester.New(&config.Ingest, archiveSink)
	archiveValidator := validator.New(archiveDb, "postgres")

	runners := map[api.JobKind]executor.Runner{
		api.JobKindIngest: executor.RunnerFunc(func(ctx context.Context, job *api.Job) error {
			return nightIngester.IngestNight(ctx, job.Night)
		}),
		api.JobKindValidate: executor.RunnerFunc(func(ctx context.Context, job *api.Job) error {
			return archiveValidator.Validate(ctx)
		}),
	}

	node, err := os.Hostname()
	if err != nil {
		node = "unknown"
	}
	jobExecutor := executor.New(
		jobRepository, eventRepository, runners, node,
		config.Queue.Workers, config.Queue.PollInterval)

	healthChecks := health.NewMultiChecker()
	healthChecks.Add(health.CheckerFunc(func() error {
		_, err := jobRepository.CountByState(context.Background())
		return err
	}))

	taskManager := task.NewBackgroundTaskManager(metrics.MetricPrefix)
	defer taskManager.StopAll(10 * time.Second)
	taskManager.Register(func() {
		requeued, err := jobRepository.RequeueExpiredLeases(ctx, config.Queue.LeaseTimeout)
		if err != nil {
			log.WithError(err).Error("Failed to requeue expired leases")
			return
		}
		if requeued > 0 {
			log.Warnf("Requeued %d expired job leases", requeued)
			metrics.LeasesRequeued.Add(float64(requeued))
		}
	}, config.Queue.LeaseTimeout/2, "lease_requeue")
	taskManager.Register(func() {
		counts, err := jobRepository.CountByState(context.Background())
		if err != nil {
			return
		}
		for _, state := range []api.JobState{api.JobQueued, api.JobLeased, api.JobRunning} {
			metrics.QueueSize.WithLabelValues(string(state)).Set(float64(counts[state]))
		}
	}, 15*time.Second, "queue_size_metrics")

	if config.MetricsPort > 0 {
		shutdownMetrics := common.ServeMetricsFor(config.MetricsPort, healthChecks)
		defer shutdownMetrics()
	}

	apiServer := server.New(config, jobRepository, eventRepository, healthChecks)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return apiServer.Run(ctx) })
	g.Go(func() error { return jobExecutor.Run(ctx) })
	return g.Wait()
}

func createJobRepository(config *configuration.QueueServerConfiguration) (repository.JobRepository, func(), error) {
	switch config.Database.Type {
	case configuration.DatabaseTypePostgres:
		db, err := database.OpenPgxPool(config.Database.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresJobRepository(db), db.Close, nil
	case configuration.DatabaseTypeMemory:
		return repository.NewInMemoryJobRepository(), func() {}, nil
	default:
		return repository.NewSQLiteJobRepository(config.Database.Sqlite.DatabasePath)
	}
}

func createEventRepository(config *configuration.QueueServerConfiguration) (repository.EventRepository, func()) {
	if len(config.EventsRedis.Addrs) == 0 {
		log.Info("No redis configured, job events are kept in memory")
		return repository.NewInMemoryEventRepository(), func() {}
	}
	client := redis.NewUniversalClient(&config.EventsRedis)
	return repository.NewRedisEventRepository(client), func() { _ = client.Close() }
}

func createArchiveSink(config *ingesterconfig.IngesterConfiguration) (*sql.DB, *archivedb.ArchiveSink, error) {
	db, err := sql.Open("postgres", database.CreateConnectionString(config.Postgres.Connection))
	if err != nil {
		return nil, nil, err
	}
	if !config.DryRun {
		if err := archivedb.CreateSchema(db); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return db, archivedb.NewArchiveSink(db, config.DryRun), nil
}
