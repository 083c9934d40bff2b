package archivedb

import (
	"database/sql"

	"github.com/pkg/errors"
)

// Portable DDL, executed against postgres in production and sqlite in tests.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS arm_configs (
		camera     TEXT NOT NULL,
		vph        INTEGER NOT NULL,
		resolution TEXT,
		PRIMARY KEY (camera, vph)
	)`,
	`CREATE TABLE IF NOT EXISTS ob_specs (
		xml        TEXT PRIMARY KEY,
		ob_title   TEXT,
		obstemp    TEXT,
		max_seeing TEXT,
		min_trans  TEXT,
		min_elev   TEXT,
		min_moon   TEXT,
		max_sky    TEXT,
		progtemp   TEXT,
		mode       TEXT,
		resolution TEXT,
		binning    INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS obs (
		ob_id        BIGINT PRIMARY KEY,
		ob_start_mjd DOUBLE PRECISION,
		ob_spec_xml  TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS exposures (
		exp_mjd DOUBLE PRECISION PRIMARY KEY,
		ob_id   BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		run_id  BIGINT PRIMARY KEY,
		exp_mjd DOUBLE PRECISION,
		camera  TEXT,
		vph     INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		fname     TEXT PRIMARY KEY,
		file_type TEXT,
		night     TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS file_runs (
		fname  TEXT NOT NULL,
		run_id BIGINT NOT NULL,
		PRIMARY KEY (fname, run_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_files_night ON files (night)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_exp_mjd ON runs (exp_mjd)`,
}

// CreateSchema brings the archive tables into existence.
func CreateSchema(db *sql.DB) error {
	for _, statement := range schema {
		if _, err := db.Exec(statement); err != nil {
			return errors.Wrap(err, "creating archive schema")
		}
	}
	return nil
}
