package ingester

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	commoningest "github.com/weaveproject/weaveio/internal/common/ingest"
	"github.com/weaveproject/weaveio/internal/common/logging"
	"github.com/weaveproject/weaveio/internal/ingester/archivedb"
	"github.com/weaveproject/weaveio/internal/ingester/configuration"
	"github.com/weaveproject/weaveio/internal/ingester/filetypes"
	"github.com/weaveproject/weaveio/internal/ingester/fits"
	"github.com/weaveproject/weaveio/internal/ingester/instructions"
	"github.com/weaveproject/weaveio/internal/ingester/metrics"
	"github.com/weaveproject/weaveio/internal/ingester/model"
	"github.com/weaveproject/weaveio/internal/ingester/scan"
)

const (
	defaultBatchSize     = 50
	defaultBatchDuration = 5 * time.Second
)

// Ingester loads the pipeline products of a night into the archive.
type Ingester struct {
	config *configuration.IngesterConfiguration
	sink   *archivedb.ArchiveSink
}

func New(config *configuration.IngesterConfiguration, sink *archivedb.ArchiveSink) *Ingester {
	return &Ingester{config: config, sink: sink}
}

// IngestNight finds all MOS files of the night under the data root, derives
// their hierarchy rows and writes them in batches.  Files that fail to parse
// are reported together at the end, they do not stop the rest of the night.
func (i *Ingester) IngestNight(ctx context.Context, night string) error {
	log.Infof("Preparing to ingest data for night %s", night)
	files, err := scan.FindNightFiles(i.config.DataRoot, night)
	if err != nil {
		return err
	}

	batchSize := i.config.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	batchDuration := i.config.BatchDuration
	if batchDuration <= 0 {
		batchDuration = defaultBatchDuration
	}

	sets := make(chan *model.InstructionSet)
	var storeErrors error
	var storeMutex sync.Mutex
	batcher := commoningest.NewBatcher(sets, batchSize, batchDuration, func(batch []*model.InstructionSet) {
		merged := &model.InstructionSet{}
		for _, set := range batch {
			merged.Merge(set)
		}
		if err := i.sink.Store(merged); err != nil {
			storeMutex.Lock()
			storeErrors = multierror.Append(storeErrors, err)
			storeMutex.Unlock()
		}
	})
	batcherDone := make(chan struct{})
	go func() {
		defer close(batcherDone)
		batcher.Run(ctx)
	}()

	var fileErrors error
	ingested := 0
	skipped := 0
	for _, file := range files {
		if ctx.Err() != nil {
			close(sets)
			<-batcherDone
			return ctx.Err()
		}
		set, err := i.processFile(file, night)
		if err != nil {
			metrics.FileErrors.WithLabelValues(string(file.FileType)).Inc()
			logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Errorf("Failed to ingest %s", file.Name)
			fileErrors = multierror.Append(fileErrors, errors.Wrap(err, file.Name))
			continue
		}
		if set == nil {
			skipped++
			continue
		}
		ingested++
		select {
		case sets <- set:
		case <-ctx.Done():
			close(sets)
			<-batcherDone
			return ctx.Err()
		}
	}
	close(sets)
	<-batcherDone

	if ingested == 0 && fileErrors == nil {
		log.Info("No MOS files found")
		return nil
	}
	log.Infof("Night %s: ingested %d files, skipped %d non-MOS files", night, ingested, skipped)

	combined := multierror.Append(fileErrors, storeErrors)
	return combined.ErrorOrNil()
}

// processFile parses a file's primary header and converts it into archive
// rows.  Returns nil for files that are not MOS observations.
func (i *Ingester) processFile(file scan.FoundFile, night string) (*model.InstructionSet, error) {
	start := time.Now()
	header, err := fits.ReadHeaderFile(file.Path)
	if err != nil {
		return nil, err
	}
	if !filetypes.CheckMOS(header) {
		metrics.FilesSkipped.WithLabelValues("not_mos").Inc()
		log.Debugf("Skipping non-MOS file %s", file.Name)
		return nil, nil
	}
	set, err := instructions.Convert(file.FileType, file.Name, night, header)
	if err != nil {
		return nil, err
	}
	metrics.FilesProcessed.WithLabelValues(string(file.FileType)).Inc()
	if i.config.FileBudget > 0 && time.Since(start) > i.config.FileBudget {
		log.Warnf("Processing %s took %s, over the file budget of %s", file.Name, time.Since(start), i.config.FileBudget)
	}
	return set, nil
}
