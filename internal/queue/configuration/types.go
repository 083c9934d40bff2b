package configuration

import (
	"time"

	"github.com/go-redis/redis"

	"github.com/weaveproject/weaveio/internal/common/database"
	"github.com/weaveproject/weaveio/internal/ingester/configuration"
)

type DatabaseType string

const (
	DatabaseTypeSqlite   DatabaseType = "sqlite"
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeMemory   DatabaseType = "memory"
)

type QueueServerConfiguration struct {
	// Port of the job submission and query API
	HttpPort uint16 `validate:"required"`
	// Port exposing prometheus metrics and health checks
	MetricsPort uint16

	// Map of username to password accepted by the API.  Clients send these as
	// basic auth, typically read from WEAVEIO_USER and WEAVEIO_PASSWORD.
	Auth AuthConfig

	Queue    QueueConfig
	Database DatabaseConfig

	// When no redis address is configured job events are kept in memory only.
	EventsRedis redis.UniversalOptions

	// Settings handed to ingest jobs executed by this server
	Ingest configuration.IngesterConfiguration
}

type AuthConfig struct {
	// Disable basic auth entirely, for local development
	AnonymousAuth bool
	Users         map[string]string
}

type QueueConfig struct {
	// Queue used when a submission does not name one
	DefaultQueue string `validate:"required"`
	// Wall time applied to jobs submitted without one
	DefaultWallTime time.Duration
	// Leased jobs not reported running within this window return to the queue
	LeaseTimeout time.Duration
	// How often executor workers poll for work
	PollInterval time.Duration
	// Number of concurrent executor workers
	Workers int `validate:"required,gt=0"`
}

type DatabaseConfig struct {
	Type     DatabaseType `validate:"required,oneof=sqlite postgres memory"`
	Sqlite   SqliteConfig
	Postgres database.PostgresConfig
}

type SqliteConfig struct {
	DatabasePath string
}
