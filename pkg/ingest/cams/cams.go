// Package cams ingests the CAMS global atmospheric composition forecast.
package cams

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/eahazardswatch/geoingest/pkg/ingest"
	"github.com/eahazardswatch/geoingest/pkg/state"
	"github.com/eahazardswatch/geoingest/pkg/toolchain"
	"github.com/eahazardswatch/geoingest/pkg/tracing"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Dataset is the data store dataset name.
const Dataset = "cams-global-atmospheric-composition-forecasts"

// Param is a forecast variable.
type Param struct {
	Variable string
	DataVar  string
	Name     string
}

// Params are the ingested forecast variables.
var Params = []Param{
	{Variable: "particulate_matter_2.5um", DataVar: "pm2p5", Name: "cams_forecast_pm2p5"},
}

// LeadTimes returns the forecast lead hours, 0 to 120.
func LeadTimes() []int {
	result := []int{}
	for hour := 0; hour <= 120; hour++ {
		result = append(result, hour)
	}
	return result
}

// Config is the dataset configuration.
type Config struct {
	OutputDir string `mapstructure:"output-dir"`
	APIKey    string `mapstructure:"api-key"`
	URL       string `mapstructure:"url"`
}

type dataset struct {
	*ingest.Base
	client *CDSClient
	now    func() time.Time
}

// New returns the CAMS forecast dataset.
func New(id string, settings map[string]interface{}, deps ingest.Dependencies) (ingest.Dataset, error) {
	config := &Config{}
	if err := mapstructure.Decode(settings, config); err != nil {
		return nil, errors.Wrap(err, "failed decoding CAMS configuration")
	}
	base, err := ingest.NewBase(id, config.OutputDir, deps)
	if err != nil {
		return nil, err
	}
	if err := ingest.RequireParameters("api_key", config.APIKey); err != nil {
		return nil, err
	}
	client, err := NewCDSClient(base.Logger().Named("cds"), base.Fetch(), config.URL, config.APIKey)
	if err != nil {
		return nil, err
	}
	return &dataset{Base: base, client: client, now: time.Now}, nil
}

// Request returns the data store request of the forecast run at date.
func Request(date time.Time) map[string]interface{} {
	variables := []string{}
	for _, p := range Params {
		variables = append(variables, p.Variable)
	}
	return map[string]interface{}{
		"variable":      variables,
		"date":          date.Format("2006-01-02"),
		"time":          "00:00",
		"leadtime_hour": LeadTimes(),
		"type":          "forecast",
		"format":        "netcdf",
	}
}

func (d *dataset) nextDate(current state.State) (time.Time, error) {
	if last := current.Get(state.KeyLastUpdate); last != "" {
		lastDate, err := ingest.ParseStateDate(last)
		if err != nil {
			return time.Time{}, errors.Wrap(err, "invalid last update state")
		}
		return lastDate.Add(24 * time.Hour), nil
	}
	now := d.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
}

func (d *dataset) Run(ctx context.Context) error {
	logger := d.Logger()
	logger.Info("trying")

	current, err := d.State(ctx)
	if err != nil {
		return err
	}
	next, err := d.nextDate(current)
	if err != nil {
		return err
	}
	if next.After(d.now().UTC()) {
		logger.Info("next forecast not due yet, skipping", "date", next)
		return nil
	}

	workDir, cleanup, err := d.WorkDir()
	if err != nil {
		return err
	}
	defer cleanup()

	dataFile := filepath.Join(workDir, "forecast.nc")
	logger.Info("trying download", "date", next)
	span, spanCtx := tracing.ChildSpan(ctx, "download")
	err = d.client.Retrieve(spanCtx, Dataset, Request(next), dataFile)
	span.Finish()
	if err != nil {
		logger.Info("data not downloaded, skipping", "date", next, "reason", err)
		return nil
	}

	timestamps, err := d.Toolchain().Timestamps(ctx, dataFile)
	if err != nil {
		return err
	}
	files := []string{}
	for _, p := range Params {
		source := toolchain.NetCDFSubdataset(dataFile, p.DataVar)
		for i, ts := range timestamps {
			dateStr := ingest.DataDateString(ts)
			output := ingest.ProductPath(d.OutputDir(), p.Name, dateStr)
			logger.Info("saving data", "namespace", p.Name, "date", dateStr)
			if err := d.WriteCOG(ctx, ingest.BandProduct{
				Source:   source,
				Band:     i + 1,
				Output:   output,
				Compress: "DEFLATE",
			}); err != nil {
				return errors.Wrapf(err, "failed writing %s", p.Name)
			}
			files = append(files, output)
		}
		logger.Info("sending ingest command", "namespace", p.Name, "date", next)
		if err := d.SendIngest(ctx, p.Name, d.NamespaceDir(p.Name)); err != nil {
			return err
		}
		if _, err := ingest.DeletePastDataFiles(logger, next, d.NamespaceDir(p.Name)); err != nil {
			logger.Warn("failed deleting past data files", "reason", err)
		}
	}
	os.Remove(dataFile)
	if err := d.Publish(ctx, files); err != nil {
		return err
	}
	return d.UpdateLastUpdate(ctx, ingest.StateDateString(next))
}
