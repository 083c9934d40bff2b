package archivedb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	log "github.com/sirupsen/logrus"

	"github.com/weaveproject/weaveio/internal/common/database"
	"github.com/weaveproject/weaveio/internal/ingester/metrics"
	"github.com/weaveproject/weaveio/internal/ingester/model"
)

// ArchiveSink writes instruction sets to the archive database.  All writes
// are idempotent upserts, so re-ingesting a night is safe.
type ArchiveSink struct {
	db     *sql.DB
	dryRun bool
}

func NewArchiveSink(db *sql.DB, dryRun bool) *ArchiveSink {
	return &ArchiveSink{db: db, dryRun: dryRun}
}

// Store writes one batch of instructions.  Identical rows contributed by
// several files are deduplicated first.
func (s *ArchiveSink) Store(set *model.InstructionSet) error {
	if s.dryRun {
		log.Infof("Dry run: skipping write of %d archive rows", set.Size())
		return nil
	}
	start := time.Now()
	defer func() {
		metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}()

	if err := s.storeArmConfigs(set.ArmConfigs); err != nil {
		return err
	}
	if err := s.storeOBSpecs(set.OBSpecs); err != nil {
		return err
	}
	if err := s.storeOBs(set.OBs); err != nil {
		return err
	}
	if err := s.storeExposures(set.Exposures); err != nil {
		return err
	}
	if err := s.storeRuns(set.Runs); err != nil {
		return err
	}
	if err := s.storeFiles(set.Files); err != nil {
		return err
	}
	return s.storeFileRuns(set.FileRuns)
}

func (s *ArchiveSink) storeArmConfigs(rows []model.ArmConfigRow) error {
	seen := map[string]bool{}
	values := []interface{}{}
	count := 0
	for _, row := range rows {
		key := fmt.Sprintf("%s/%d", row.Camera, row.VPH)
		if seen[key] {
			continue
		}
		seen[key] = true
		values = append(values, row.Camera, row.VPH, row.Resolution)
		count++
	}
	return s.upsertCombinedKey("arm_configs", []string{"camera", "vph"}, []string{"resolution"}, values, count)
}

func (s *ArchiveSink) storeOBSpecs(rows []model.OBSpecRow) error {
	seen := map[string]bool{}
	values := []interface{}{}
	count := 0
	for _, row := range rows {
		if seen[row.XML] {
			continue
		}
		seen[row.XML] = true
		values = append(values,
			row.XML, row.OBTitle, row.ObsTemp, row.MaxSeeing, row.MinTrans, row.MinElev,
			row.MinMoon, row.MaxSky, row.ProgTemp, row.Mode, row.Resolution, row.Binning)
		count++
	}
	fields := []string{
		"ob_title", "obstemp", "max_seeing", "min_trans", "min_elev",
		"min_moon", "max_sky", "progtemp", "mode", "resolution", "binning",
	}
	return s.upsert("ob_specs", "xml", fields, values, count)
}

func (s *ArchiveSink) storeOBs(rows []model.OBRow) error {
	seen := map[int64]bool{}
	values := []interface{}{}
	count := 0
	for _, row := range rows {
		if seen[row.OBID] {
			continue
		}
		seen[row.OBID] = true
		values = append(values, row.OBID, row.OBStartMJD, row.OBSpecXML)
		count++
	}
	return s.upsert("obs", "ob_id", []string{"ob_start_mjd", "ob_spec_xml"}, values, count)
}

func (s *ArchiveSink) storeExposures(rows []model.ExposureRow) error {
	seen := map[float64]bool{}
	values := []interface{}{}
	count := 0
	for _, row := range rows {
		if seen[row.ExpMJD] {
			continue
		}
		seen[row.ExpMJD] = true
		values = append(values, row.ExpMJD, row.OBID)
		count++
	}
	return s.upsert("exposures", "exp_mjd", []string{"ob_id"}, values, count)
}

func (s *ArchiveSink) storeRuns(rows []model.RunRow) error {
	seen := map[int64]bool{}
	values := []interface{}{}
	count := 0
	for _, row := range rows {
		if seen[row.RunID] {
			continue
		}
		seen[row.RunID] = true
		values = append(values, row.RunID, row.ExpMJD, row.Camera, row.VPH)
		count++
	}
	return s.upsert("runs", "run_id", []string{"exp_mjd", "camera", "vph"}, values, count)
}

func (s *ArchiveSink) storeFiles(rows []model.FileRow) error {
	seen := map[string]bool{}
	values := []interface{}{}
	count := 0
	for _, row := range rows {
		if seen[row.FName] {
			continue
		}
		seen[row.FName] = true
		values = append(values, row.FName, row.FileType, row.Night)
		count++
	}
	return s.upsert("files", "fname", []string{"file_type", "night"}, values, count)
}

func (s *ArchiveSink) storeFileRuns(rows []model.FileRunRow) error {
	seen := map[string]bool{}
	values := []interface{}{}
	count := 0
	for _, row := range rows {
		key := fmt.Sprintf("%s/%d", row.FName, row.RunID)
		if seen[key] {
			continue
		}
		seen[key] = true
		values = append(values, row.FName, row.RunID)
		count++
	}
	if count == 0 {
		return nil
	}
	err := s.withRetry(func() error {
		_, err := database.InsertIgnoringConflicts(s.db, "file_runs", []string{"fname", "run_id"}, values)
		return err
	})
	if err == nil {
		metrics.RowsUpserted.WithLabelValues("file_runs").Add(float64(count))
	}
	return err
}

func (s *ArchiveSink) upsert(table string, key string, fields []string, values []interface{}, count int) error {
	return s.upsertCombinedKey(table, []string{key}, fields, values, count)
}

func (s *ArchiveSink) upsertCombinedKey(table string, key []string, fields []string, values []interface{}, count int) error {
	if count == 0 {
		return nil
	}
	err := s.withRetry(func() error {
		_, err := database.UpsertCombinedKey(s.db, table, key, fields, values)
		return err
	})
	if err == nil {
		metrics.RowsUpserted.WithLabelValues(table).Add(float64(count))
	}
	return err
}

func (s *ArchiveSink) withRetry(operation func() error) error {
	return retry.Do(
		operation,
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.OnRetry(func(attempt uint, err error) {
			log.WithError(err).Warnf("Archive write failed, retrying (attempt %d)", attempt+1)
		}),
	)
}
