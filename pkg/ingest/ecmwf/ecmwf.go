// Package ecmwf ingests the ECMWF open data high resolution forecast.
package ecmwf

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/eahazardswatch/geoingest/pkg/ingest"
	"github.com/eahazardswatch/geoingest/pkg/state"
	"github.com/eahazardswatch/geoingest/pkg/toolchain"
	"github.com/eahazardswatch/geoingest/pkg/tracing"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

const (
	contourParam     = "msl"
	contourInterval  = 200
	contourAttribute = "msl"
)

// Param is a forecast parameter and the name it is published under.
type Param struct {
	Variable string
	Name     string
}

// Params are the ingested forecast parameters.
var Params = []Param{
	{Variable: "2t", Name: "t2m"},
	{Variable: "tp", Name: "tp"},
	{Variable: "msl", Name: "msl"},
	{Variable: "10u", Name: "10u"},
	{Variable: "10v", Name: "10v"},
}

// Steps returns the forecast steps of the 00z run: 0 to 144 hours by 3.
func Steps() []int {
	steps := []int{}
	for step := 0; step <= 144; step = step + 3 {
		steps = append(steps, step)
	}
	return steps
}

// ContourStore stores contour lines of a forecast step.
type ContourStore interface {
	InsertGeoJSON(ctx context.Context, date time.Time, file string, latest time.Time) (int, error)
}

// Config is the dataset configuration.
type Config struct {
	OutputDir string `mapstructure:"output-dir"`
	BaseURL   string `mapstructure:"base-url"`
}

type dataset struct {
	*ingest.Base
	client   *Client
	contours ContourStore
	request  Request
}

// New returns the ECMWF forecast dataset. Contours of mean sea level pressure
// are loaded into the contour store when it is not nil.
func New(id string, settings map[string]interface{}, deps ingest.Dependencies, contours ContourStore) (ingest.Dataset, error) {
	config := &Config{}
	if err := mapstructure.Decode(settings, config); err != nil {
		return nil, errors.Wrap(err, "failed decoding ECMWF forecast configuration")
	}
	base, err := ingest.NewBase(id, config.OutputDir, deps)
	if err != nil {
		return nil, err
	}
	params := []string{}
	for _, p := range Params {
		params = append(params, p.Variable)
	}
	return &dataset{
		Base:     base,
		client:   NewClient(base.Logger().Named("opendata"), base.Fetch(), config.BaseURL),
		contours: contours,
		request: Request{
			Stream: "oper",
			Type:   "fc",
			Params: params,
			Time:   0,
			Steps:  Steps(),
		},
	}, nil
}

func (d *dataset) filePrefix() string {
	return d.request.Stream + "_" + d.request.Type
}

func (d *dataset) Run(ctx context.Context) error {
	logger := d.Logger()
	logger.Info("starting process")

	current, err := d.State(ctx)
	if err != nil {
		return err
	}

	logger.Info("checking for latest data date")
	latest, err := d.client.Latest(ctx, d.request)
	if err != nil {
		return err
	}
	latestStr := ingest.StateDateString(latest)
	logger.Info("latest data date from remote", "date", latestStr)
	if current.Get(state.KeyLastUpdate) == latestStr {
		logger.Info("no update required, skipping")
		return nil
	}

	workDir, cleanup, err := d.WorkDir()
	if err != nil {
		return err
	}
	defer cleanup()

	gribFile := filepath.Join(workDir, "forecast.grib2")
	logger.Info("downloading forecast data", "date", latestStr)
	span, spanCtx := tracing.ChildSpan(ctx, "download")
	size, err := d.client.Retrieve(spanCtx, d.request, latest, gribFile)
	span.Finish()
	if err != nil {
		return errors.Wrap(err, "failed retrieving forecast")
	}
	logger.Debug("forecast downloaded", "bytes", size)

	files, mslFiles, err := d.process(ctx, gribFile, workDir)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, p := range Params {
		logger.Info("sending ingest command", "param", p.Name, "date", latestStr)
		if err := d.SendIngest(ctx, d.filePrefix()+"_"+p.Name, d.NamespaceDir(p.Name)); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if d.contours != nil {
		if err := d.loadContours(ctx, mslFiles, workDir, latest); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := d.Publish(ctx, files); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	return d.UpdateLastUpdate(ctx, latestStr)
}

type timedFile struct {
	date time.Time
	path string
}

func (d *dataset) process(ctx context.Context, gribFile, workDir string) ([]string, []timedFile, error) {
	span, ctx := tracing.ChildSpan(ctx, "process")
	defer span.Finish()

	d.Logger().Info("converting grib to nc")
	ncFile := filepath.Join(workDir, "forecast.nc")
	if err := d.Toolchain().GribToNetCDF(ctx, gribFile, ncFile); err != nil {
		return nil, nil, err
	}
	os.Remove(gribFile)

	timestamps, err := d.Toolchain().Timestamps(ctx, ncFile)
	if err != nil {
		return nil, nil, err
	}

	files := []string{}
	mslFiles := []timedFile{}
	for _, p := range Params {
		d.Logger().Debug("processing variable", "variable", p.Variable)
		subdataset := toolchain.NetCDFSubdataset(ncFile, p.Variable)
		for i, ts := range timestamps {
			output := filepath.Join(d.OutputDir(), p.Name,
				d.filePrefix()+"_"+p.Name+"_"+ingest.DataDateString(ts)+".tif")
			if err := d.WriteCOG(ctx, ingest.BandProduct{
				Source: subdataset,
				Band:   i + 1,
				Output: output,
			}); err != nil {
				return files, nil, errors.Wrapf(err, "failed processing %s", p.Variable)
			}
			files = append(files, output)
			if p.Variable == contourParam {
				mslFiles = append(mslFiles, timedFile{date: ts, path: output})
			}
		}
	}
	return files, mslFiles, nil
}

func (d *dataset) loadContours(ctx context.Context, mslFiles []timedFile, workDir string, latest time.Time) error {
	span, ctx := tracing.ChildSpan(ctx, "contours")
	defer span.Finish()

	contourDir := filepath.Join(workDir, "contours")
	if err := os.MkdirAll(contourDir, 0755); err != nil {
		return errors.Wrap(err, "failed creating contour directory")
	}
	var result *multierror.Error
	for _, f := range mslFiles {
		geojson, err := d.Toolchain().Contour(ctx, f.path, contourDir, contourAttribute, contourInterval)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if _, err := d.contours.InsertGeoJSON(ctx, f.date, geojson, latest); err != nil {
			d.Logger().Error("failed loading contours", "date", f.date, "reason", err)
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
