// Package jobs builds the dataset ingest jobs from the configuration.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/eahazardswatch/geoingest/configs"
	"github.com/eahazardswatch/geoingest/pkg/ingest"
	"github.com/eahazardswatch/geoingest/pkg/ingest/cams"
	"github.com/eahazardswatch/geoingest/pkg/ingest/chirps"
	"github.com/eahazardswatch/geoingest/pkg/ingest/dust"
	"github.com/eahazardswatch/geoingest/pkg/ingest/ecmwf"
	"github.com/eahazardswatch/geoingest/pkg/ingest/modis"
	"github.com/eahazardswatch/geoingest/pkg/ingest/tamsat"
	"github.com/eahazardswatch/geoingest/pkg/scheduler"
	"github.com/eahazardswatch/geoingest/pkg/tracing"
	"github.com/eahazardswatch/geoingest/pkg/vectordb"
	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
)

// Factory constructs a dataset from its settings.
type Factory func(id string, settings map[string]interface{}, deps ingest.Dependencies) (ingest.Dataset, error)

// MSLContourTable is the PostGIS table of the ECMWF mean sea level pressure contours.
func MSLContourTable() vectordb.Table {
	return vectordb.Table{
		Schema:         "ecmwf",
		Name:           "msl_contours",
		GeomType:       "LineString",
		Columns:        []string{"msl"},
		SRID:           4326,
		DeletePastData: true,
	}
}

// Job is a dataset scheduled on an interval.
type Job struct {
	Dataset  ingest.Dataset
	Interval time.Duration
}

// Builder constructs datasets by ID.
type Builder struct {
	logger    hclog.Logger
	deps      ingest.Dependencies
	factories map[string]Factory
}

// NewBuilder returns a builder for all known datasets. Contours are not loaded
// when the contour store is nil.
func NewBuilder(logger hclog.Logger, deps ingest.Dependencies, contours ecmwf.ContourStore) *Builder {
	return &Builder{
		logger: logger,
		deps:   deps,
		factories: map[string]Factory{
			"dust_forecast": dust.New,
			"ecmwf_forecast": func(id string, settings map[string]interface{}, deps ingest.Dependencies) (ingest.Dataset, error) {
				return ecmwf.New(id, settings, deps, contours)
			},
			"tamsat_rainfall": tamsat.New,
			"chirps_rainfall": chirps.New,
			"cams_forecast":   cams.New,
			"modis":           modis.New,
		},
	}
}

// register adds or replaces a dataset factory.
func (b *Builder) register(id string, factory Factory) {
	b.factories[id] = factory
}

// known returns the sorted IDs of the datasets the builder can construct.
func (b *Builder) known() []string {
	result := []string{}
	for id := range b.factories {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// Dataset constructs the dataset of the configuration.
func (b *Builder) Dataset(config *configs.DatasetConfig) (ingest.Dataset, error) {
	factory, ok := b.factories[config.ID]
	if !ok {
		return nil, fmt.Errorf("dataset %s not known", config.ID)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return factory(config.ID, config.Settings(), b.deps)
}

// Selected returns true when the dataset should be scheduled: it is enabled
// outside of debug mode, or it is listed in the development tasks.
func Selected(config *configs.DatasetConfig, ingestConfig *configs.IngestConfig) bool {
	for _, id := range ingestConfig.TasksDev {
		if id == config.ID {
			return true
		}
	}
	return config.Enabled && !ingestConfig.Debug
}

// Build returns the jobs of the selected datasets. Datasets which can't be
// constructed are logged and skipped.
func (b *Builder) Build(datasets *configs.DatasetsConfig, ingestConfig *configs.IngestConfig) []Job {
	result := []Job{}
	for _, config := range datasets.Datasets {
		if !Selected(config, ingestConfig) {
			b.logger.Debug("dataset not selected", "dataset", config.ID)
			continue
		}
		dataset, err := b.Dataset(config)
		if err != nil {
			b.logger.Error("dataset not scheduled, invalid configuration", "dataset", config.ID, "reason", err)
			continue
		}
		result = append(result, Job{Dataset: dataset, Interval: config.Interval})
	}
	return result
}

// Runner returns the function executing one run of the dataset: a traced run
// with a unique run ID.
func Runner(logger hclog.Logger, tracer opentracing.Tracer, dataset ingest.Dataset) func(context.Context) error {
	return func(ctx context.Context) error {
		runID := uuid.Must(uuid.NewV4()).String()
		runLogger := logger.With("dataset", dataset.ID(), "run-id", runID)
		spanCtx, finish := tracing.StartRunSpan(ctx, tracer, dataset.ID(), runID)
		started := time.Now()
		runLogger.Info("ingest started")
		err := dataset.Run(spanCtx)
		finish(err)
		if err != nil {
			runLogger.Error("ingest failed", "reason", err, "duration", time.Since(started))
			return errors.Wrapf(err, "dataset %s", dataset.ID())
		}
		runLogger.Info("ingest finished", "duration", time.Since(started))
		return nil
	}
}

// Schedule adds the jobs to the scheduler. With a locker, every run holds the lock of its dataset.
func Schedule(s *scheduler.Scheduler, logger hclog.Logger, tracer opentracing.Tracer, locker *Locker, jobs []Job) error {
	for _, job := range jobs {
		run := Runner(logger, tracer, job.Dataset)
		if locker != nil {
			run = locker.Wrap(job.Dataset.ID(), run)
		}
		if err := s.Add(scheduler.Job{
			ID:       job.Dataset.ID(),
			Interval: job.Interval,
			Run:      run,
		}); err != nil {
			return errors.Wrap(err, "failed scheduling job")
		}
	}
	return nil
}
