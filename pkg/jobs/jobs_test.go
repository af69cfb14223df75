package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/eahazardswatch/geoingest/configs"
	"github.com/eahazardswatch/geoingest/pkg/ingest"
	"github.com/eahazardswatch/geoingest/pkg/scheduler"
	"github.com/hashicorp/go-hclog"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDataset struct {
	id  string
	err error
	ctx context.Context
}

func (d *fakeDataset) ID() string { return d.id }

func (d *fakeDataset) Run(ctx context.Context) error {
	d.ctx = ctx
	return d.err
}

func datasetIDs(jobs []Job) []string {
	result := []string{}
	for _, job := range jobs {
		result = append(result, job.Dataset.ID())
	}
	return result
}

func TestSelected(t *testing.T) {
	enabled := &configs.DatasetConfig{ID: "dust_forecast", Enabled: true}
	disabled := &configs.DatasetConfig{ID: "modis", Enabled: false}

	assert.True(t, Selected(enabled, &configs.IngestConfig{}))
	assert.False(t, Selected(disabled, &configs.IngestConfig{}))
	assert.False(t, Selected(enabled, &configs.IngestConfig{Debug: true}))
	assert.True(t, Selected(enabled, &configs.IngestConfig{Debug: true, TasksDev: []string{"dust_forecast"}}))
	assert.True(t, Selected(disabled, &configs.IngestConfig{TasksDev: []string{"modis"}}))
}

func TestBuildSkipsInvalidDatasets(t *testing.T) {
	out := t.TempDir()
	datasets := configs.NewDatasetsConfig()
	require.Nil(t, datasets.FlagSet().Parse([]string{
		"--dust-forecast.output-dir=" + out,
		"--ecmwf-forecast.output-dir=" + out,
		"--tamsat-rainfall.output-dir=" + out,
		"--chirps-rainfall.output-dir=" + out,
		"--cams-forecast.output-dir=" + out,
		"--dust-forecast.username=",
		"--dust-forecast.password=",
		"--cams-forecast.api-key=",
	}))

	builder := NewBuilder(hclog.NewNullLogger(), ingest.Dependencies{}, nil)
	jobs := builder.Build(datasets, &configs.IngestConfig{})
	assert.Equal(t, []string{"ecmwf_forecast", "tamsat_rainfall", "chirps_rainfall"}, datasetIDs(jobs))
	assert.Equal(t, 30*time.Minute, jobs[0].Interval)
	assert.Equal(t, 24*time.Hour, jobs[1].Interval)
}

func TestBuildInDebugMode(t *testing.T) {
	datasets := configs.NewDatasetsConfig()
	require.Nil(t, datasets.FlagSet().Parse([]string{}))
	builder := NewBuilder(hclog.NewNullLogger(), ingest.Dependencies{}, nil)
	for _, id := range builder.known() {
		id := id
		builder.register(id, func(string, map[string]interface{}, ingest.Dependencies) (ingest.Dataset, error) {
			return &fakeDataset{id: id}, nil
		})
	}
	jobs := builder.Build(datasets, &configs.IngestConfig{Debug: true, TasksDev: []string{"modis", "cams_forecast"}})
	assert.Equal(t, []string{"cams_forecast", "modis"}, datasetIDs(jobs))
}

func TestBuildSkipsOnlyDatasetWithInvalidInterval(t *testing.T) {
	datasets := configs.NewDatasetsConfig()
	require.Nil(t, datasets.FlagSet().Parse([]string{"--modis.interval=0s"}))
	require.NotNil(t, datasets.Validate())

	builder := NewBuilder(hclog.NewNullLogger(), ingest.Dependencies{}, nil)
	for _, id := range builder.known() {
		id := id
		builder.register(id, func(string, map[string]interface{}, ingest.Dependencies) (ingest.Dataset, error) {
			return &fakeDataset{id: id}, nil
		})
	}
	jobs := builder.Build(datasets, &configs.IngestConfig{Debug: true, TasksDev: []string{"modis", "cams_forecast"}})
	assert.Equal(t, []string{"cams_forecast"}, datasetIDs(jobs))
}

func TestScheduleWithLocker(t *testing.T) {
	locker, err := NewLocker(hclog.NewNullLogger(), t.TempDir())
	require.Nil(t, err)
	s := scheduler.New(hclog.NewNullLogger(), false)
	require.Nil(t, Schedule(s, hclog.NewNullLogger(), mocktracer.New(), locker, []Job{
		{Dataset: &fakeDataset{id: "modis"}, Interval: time.Minute},
	}))
	require.Len(t, s.Status(), 1)
}

func TestDatasetUnknown(t *testing.T) {
	builder := NewBuilder(hclog.NewNullLogger(), ingest.Dependencies{}, nil)
	_, err := builder.Dataset(&configs.DatasetConfig{ID: "unknown", Interval: time.Minute})
	assert.NotNil(t, err)
	assert.Equal(t, []string{"cams_forecast", "chirps_rainfall", "dust_forecast", "ecmwf_forecast", "modis", "tamsat_rainfall"}, builder.known())
}

func TestRunnerTracesRuns(t *testing.T) {
	tracer := mocktracer.New()
	dataset := &fakeDataset{id: "dust_forecast"}
	require.Nil(t, Runner(hclog.NewNullLogger(), tracer, dataset)(context.Background()))

	failing := &fakeDataset{id: "cams_forecast", err: fmt.Errorf("no data")}
	err := Runner(hclog.NewNullLogger(), tracer, failing)(context.Background())
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "cams_forecast")
	assert.Contains(t, err.Error(), "no data")

	spans := tracer.FinishedSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "ingest.dust_forecast", spans[0].OperationName)
	assert.NotEmpty(t, spans[0].Tag("run-id"))
	assert.Nil(t, spans[0].Tag("error"))
	assert.Equal(t, true, spans[1].Tag("error"))
	assert.NotEqual(t, spans[0].Tag("run-id"), spans[1].Tag("run-id"))
}

func TestSchedule(t *testing.T) {
	s := scheduler.New(hclog.NewNullLogger(), false)
	jobs := []Job{
		{Dataset: &fakeDataset{id: "a"}, Interval: time.Minute},
		{Dataset: &fakeDataset{id: "b"}, Interval: time.Hour},
	}
	require.Nil(t, Schedule(s, hclog.NewNullLogger(), mocktracer.New(), nil, jobs))
	status := s.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "1h0m0s", status[1].Interval)
	assert.NotNil(t, Schedule(s, hclog.NewNullLogger(), mocktracer.New(), nil, jobs[:1]))
}

func TestMSLContourTable(t *testing.T) {
	assert.Nil(t, MSLContourTable().Validate())
}
