package configuration

import (
	"time"

	"github.com/weaveproject/weaveio/internal/common/database"
)

type IngesterConfiguration struct {
	// Directory scanned for raw and pipeline products.  Files for a night live
	// in directories ending in the night's YYYYMMDD date.
	DataRoot string `validate:"required"`

	// Port exposing prometheus metrics and health checks when the ingester
	// runs as its own process
	MetricsPort uint16

	// Number of files converted into instructions before a database round trip
	BatchSize int
	// Maximum time a partial batch may wait before being flushed
	BatchDuration time.Duration
	// Soft per-file budget.  Files taking longer are logged as a warning but
	// never interrupted, the job's wall time is the hard limit.
	FileBudget time.Duration

	// Parse and convert but skip all database writes
	DryRun bool

	// Archive database receiving the ingested hierarchy
	Postgres database.PostgresConfig
}
