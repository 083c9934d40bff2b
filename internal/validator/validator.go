package validator

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Validator runs consistency checks over the archive database after an
// ingest.  Each failed check contributes one error naming the offending rows.
type Validator struct {
	db *goqu.Database
}

// New wraps an archive connection.  Dialect is "postgres" in production and
// "sqlite3" in tests.
func New(db *sql.DB, dialect string) *Validator {
	return &Validator{db: goqu.New(dialect, db)}
}

type check struct {
	name    string
	dataset *goqu.SelectDataset
}

// Validate runs every check and aggregates the failures.  A nil return means
// the archive is internally consistent.
func (v *Validator) Validate(ctx context.Context) error {
	checks := []check{
		{"runs referencing a missing exposure", v.runsWithoutExposure()},
		{"exposures referencing a missing OB", v.exposuresWithoutOB()},
		{"OBs referencing a missing OB spec", v.obsWithoutSpec()},
		{"exposures observed before their OB started", v.exposuresBeforeOBStart()},
		{"duplicate runs for the same exposure and camera", v.duplicateExposureCameraRuns()},
		{"file run references to runs never ingested", v.fileRunsWithoutRun()},
		{"stack files built from fewer than two runs", v.stacksWithTooFewRuns()},
		{"files not linked to any run", v.filesWithoutRuns()},
	}

	var result error
	for _, c := range checks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		count, err := v.countRows(ctx, c.dataset)
		if err != nil {
			return errors.Wrapf(err, "running check %q", c.name)
		}
		if count > 0 {
			log.Warnf("Validation check failed: %d %s", count, c.name)
			result = multierror.Append(result, errors.Errorf("%d %s", count, c.name))
		} else {
			log.Debugf("Validation check passed: %s", c.name)
		}
	}
	if result == nil {
		log.Info("Archive validation passed")
	}
	return result
}

func (v *Validator) countRows(ctx context.Context, dataset *goqu.SelectDataset) (int64, error) {
	query, args, err := v.db.From(dataset.As("violations")).Select(goqu.COUNT("*")).ToSQL()
	if err != nil {
		return 0, err
	}
	var count int64
	err = v.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func (v *Validator) runsWithoutExposure() *goqu.SelectDataset {
	return v.db.From(goqu.T("runs")).
		LeftJoin(goqu.T("exposures"), goqu.On(goqu.I("runs.exp_mjd").Eq(goqu.I("exposures.exp_mjd")))).
		Where(goqu.I("exposures.exp_mjd").IsNull()).
		Select(goqu.I("runs.run_id"))
}

func (v *Validator) exposuresWithoutOB() *goqu.SelectDataset {
	return v.db.From(goqu.T("exposures")).
		LeftJoin(goqu.T("obs"), goqu.On(goqu.I("exposures.ob_id").Eq(goqu.I("obs.ob_id")))).
		Where(goqu.I("obs.ob_id").IsNull()).
		Select(goqu.I("exposures.exp_mjd"))
}

func (v *Validator) obsWithoutSpec() *goqu.SelectDataset {
	return v.db.From(goqu.T("obs")).
		LeftJoin(goqu.T("ob_specs"), goqu.On(goqu.I("obs.ob_spec_xml").Eq(goqu.I("ob_specs.xml")))).
		Where(goqu.I("ob_specs.xml").IsNull()).
		Select(goqu.I("obs.ob_id"))
}

func (v *Validator) exposuresBeforeOBStart() *goqu.SelectDataset {
	return v.db.From(goqu.T("exposures")).
		Join(goqu.T("obs"), goqu.On(goqu.I("exposures.ob_id").Eq(goqu.I("obs.ob_id")))).
		Where(goqu.I("exposures.exp_mjd").Lt(goqu.I("obs.ob_start_mjd"))).
		Select(goqu.I("exposures.exp_mjd"))
}

func (v *Validator) duplicateExposureCameraRuns() *goqu.SelectDataset {
	return v.db.From(goqu.T("runs")).
		Select(goqu.I("exp_mjd"), goqu.I("camera")).
		GroupBy(goqu.I("exp_mjd"), goqu.I("camera")).
		Having(goqu.COUNT("*").Gt(1))
}

func (v *Validator) fileRunsWithoutRun() *goqu.SelectDataset {
	return v.db.From(goqu.T("file_runs")).
		LeftJoin(goqu.T("runs"), goqu.On(goqu.I("file_runs.run_id").Eq(goqu.I("runs.run_id")))).
		Where(goqu.I("runs.run_id").IsNull()).
		Select(goqu.I("file_runs.fname"))
}

func (v *Validator) stacksWithTooFewRuns() *goqu.SelectDataset {
	return v.db.From(goqu.T("files")).
		Join(goqu.T("file_runs"), goqu.On(goqu.I("files.fname").Eq(goqu.I("file_runs.fname")))).
		Where(goqu.I("files.file_type").In("l1stack", "l1superstack")).
		Select(goqu.I("files.fname")).
		GroupBy(goqu.I("files.fname")).
		Having(goqu.COUNT("*").Lt(2))
}

func (v *Validator) filesWithoutRuns() *goqu.SelectDataset {
	return v.db.From(goqu.T("files")).
		LeftJoin(goqu.T("file_runs"), goqu.On(goqu.I("files.fname").Eq(goqu.I("file_runs.fname")))).
		Where(goqu.I("file_runs.fname").IsNull()).
		Select(goqu.I("files.fname"))
}
