// Package tamsat ingests TAMSAT v3.1 rainfall estimates and anomalies for Africa.
package tamsat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eahazardswatch/geoingest/pkg/fetch"
	"github.com/eahazardswatch/geoingest/pkg/ingest"
	"github.com/eahazardswatch/geoingest/pkg/state"
	"github.com/eahazardswatch/geoingest/pkg/toolchain"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// DefaultBaseURL is the TAMSAT public data root.
const DefaultBaseURL = "http://www.tamsat.org.uk/public_data/data/v3.1"

// Variables are written for every param.
var Variables = []string{"rfe", "rfe_filled"}

// Param names in the order they are downloaded.
var Params = []string{"rainfall_estimate", "rainfall_anomaly"}

// Period is a TAMSAT aggregation period.
type Period struct {
	Name      string
	Enabled   bool
	Start     time.Time
	Templates map[string]string
}

// Periods are the known aggregation periods. Only monthly data is ingested.
var Periods = []Period{
	{Name: "daily", Start: time.Date(1983, 1, 1, 0, 0, 0, 0, time.UTC), Templates: map[string]string{
		"rainfall_estimate": "/daily/{YYYY}/{MM}/rfe{YYYY}_{MM}_{dd}.v3.1.nc",
	}},
	{Name: "pentadal", Start: time.Date(1983, 1, 1, 0, 0, 0, 0, time.UTC), Templates: map[string]string{
		"rainfall_estimate": "/pentadal/{YYYY}/{MM}/rfe{YYYY}_{MM}-pt{P}.v3.1.nc",
		"rainfall_anomaly":  "/pentadal-anomalies/{YYYY}/{MM}/rfe{YYYY}_{MM}-pt{P}_anom.v3.1.nc",
	}},
	{Name: "dekadal", Start: time.Date(1983, 1, 1, 0, 0, 0, 0, time.UTC), Templates: map[string]string{
		"rainfall_estimate": "/dekadal/{YYYY}/{MM}/rfe{YYYY}_{MM}-dk{D}.v3.1.nc",
		"rainfall_anomaly":  "/dekadal-anomalies/{YYYY}/{MM}/rfe{YYYY}_{MM}-dk{D}_anom.v3.1.nc",
	}},
	{Name: "monthly", Enabled: true, Start: time.Date(1983, 1, 1, 0, 0, 0, 0, time.UTC), Templates: map[string]string{
		"rainfall_estimate": "/monthly/{YYYY}/{MM}/rfe{YYYY}_{MM}.v3.1.nc",
		"rainfall_anomaly":  "/monthly-anomalies/{YYYY}/{MM}/rfe{YYYY}_{MM}_anom.v3.1.nc",
	}},
	{Name: "seasonal", Start: time.Date(1983, 1, 1, 0, 0, 0, 0, time.UTC), Templates: map[string]string{
		"rainfall_estimate": "/seasonal/{YYYY}/{MM}/rfe{YYYY}_{MM}_seas.v3.1.nc",
		"rainfall_anomaly":  "/seasonal-anomalies/{YYYY}/{MM}/rfe{YYYY}_{MM}_seas_anom.v3.1.nc",
	}},
}

// ExpandTemplate fills the year and month placeholders of a file template.
func ExpandTemplate(template string, date time.Time) string {
	return strings.NewReplacer(
		"{YYYY}", fmt.Sprintf("%04d", date.Year()),
		"{MM}", fmt.Sprintf("%02d", int(date.Month())),
		"{dd}", fmt.Sprintf("%02d", date.Day()),
	).Replace(template)
}

// Config is the dataset configuration.
type Config struct {
	OutputDir string `mapstructure:"output-dir"`
	BaseURL   string `mapstructure:"base-url"`
}

type dataset struct {
	*ingest.Base
	baseURL string
	now     func() time.Time
}

// New returns the TAMSAT rainfall dataset.
func New(id string, settings map[string]interface{}, deps ingest.Dependencies) (ingest.Dataset, error) {
	config := &Config{}
	if err := mapstructure.Decode(settings, config); err != nil {
		return nil, errors.Wrap(err, "failed decoding TAMSAT configuration")
	}
	base, err := ingest.NewBase(id, config.OutputDir, deps)
	if err != nil {
		return nil, err
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	return &dataset{
		Base:    base,
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		now:     time.Now,
	}, nil
}

func (d *dataset) Run(ctx context.Context) error {
	for _, period := range Periods {
		if !period.Enabled {
			continue
		}
		if period.Name == "monthly" {
			if err := d.runMonthly(ctx, period); err != nil {
				return err
			}
		}
	}
	return nil
}

// runMonthly ingests every available month following the last ingested one.
func (d *dataset) runMonthly(ctx context.Context, period Period) error {
	logger := d.Logger()
	logger.Info("trying monthly data")

	current, err := d.State(ctx)
	if err != nil {
		return err
	}
	next := period.Start
	if last := current.Get(state.KeyMonthly); last != "" {
		lastDate, err := ingest.ParseStateDate(last)
		if err != nil {
			return errors.Wrap(err, "invalid monthly state")
		}
		next = ingest.NextMonth(lastDate)
	}

	for !next.After(d.now().UTC()) {
		if err := ctx.Err(); err != nil {
			return err
		}
		available, err := d.ingestMonth(ctx, period, next)
		if err != nil {
			return err
		}
		if !available {
			return nil
		}
		if err := d.UpdateState(ctx, state.State{state.KeyMonthly: ingest.StateDateString(next)}); err != nil {
			return err
		}
		logger.Info("monthly download success", "date", next)
		next = ingest.NextMonth(next)
	}
	return nil
}

// ingestMonth processes every param of the month. Returns false when data is not yet published.
func (d *dataset) ingestMonth(ctx context.Context, period Period, date time.Time) (bool, error) {
	files := []string{}
	namespaces := []string{}
	for _, param := range Params {
		template, ok := period.Templates[param]
		if !ok {
			continue
		}
		url := d.baseURL + ExpandTemplate(template, date)
		d.Logger().Info("downloading data", "param", param, "period", period.Name, "url", url, "date", date)
		dataFile, err := d.Fetch().DownloadTemp(ctx, url, ".nc", nil)
		if err != nil {
			if fetch.IsNotFound(err) {
				d.Logger().Info("requested data not yet available, skipping", "url", url, "date", date)
				return false, nil
			}
			return false, err
		}
		written, writtenNamespaces, err := d.writeVariables(ctx, dataFile, period.Name, param, date)
		os.Remove(dataFile)
		if err != nil {
			return false, err
		}
		files = append(files, written...)
		namespaces = append(namespaces, writtenNamespaces...)
	}
	for _, namespace := range namespaces {
		if err := d.SendIngest(ctx, namespace, d.NamespaceDir(namespace)); err != nil {
			return false, err
		}
	}
	if err := d.Publish(ctx, files); err != nil {
		return false, err
	}
	return true, nil
}

// Namespace returns the published namespace of a period, param and variable.
func Namespace(period, param, variable string) string {
	return period + "_" + param + "_" + variable
}

// writeVariables converts the variables present in the file. Missing variables are skipped.
func (d *dataset) writeVariables(ctx context.Context, dataFile, period, param string, date time.Time) ([]string, []string, error) {
	present, err := d.Toolchain().Variables(ctx, dataFile)
	if err != nil {
		return nil, nil, err
	}
	available := map[string]bool{}
	for _, name := range present {
		available[name] = true
	}
	files := []string{}
	namespaces := []string{}
	for _, variable := range Variables {
		namespace := Namespace(period, param, variable)
		if !available[variable] {
			d.Logger().Warn("variable not found in data file, skipping", "variable", variable, "param", param, "period", period, "date", date)
			continue
		}
		output := filepath.Join(d.NamespaceDir(namespace), namespace+"_"+ingest.DataDateString(date)+".tif")
		// a single time step per file
		if err := d.WriteCOG(ctx, ingest.BandProduct{
			Source:   toolchain.NetCDFSubdataset(dataFile, variable),
			Band:     1,
			Output:   output,
			Compress: "DEFLATE",
		}); err != nil {
			return files, namespaces, errors.Wrapf(err, "failed writing %s", namespace)
		}
		files = append(files, output)
		namespaces = append(namespaces, namespace)
	}
	return files, namespaces, nil
}
