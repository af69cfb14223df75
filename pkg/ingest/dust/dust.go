// Package dust ingests the AEMET multi-model dust forecast.
package dust

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/eahazardswatch/geoingest/pkg/fetch"
	"github.com/eahazardswatch/geoingest/pkg/ingest"
	"github.com/eahazardswatch/geoingest/pkg/state"
	"github.com/eahazardswatch/geoingest/pkg/toolchain"
	"github.com/eahazardswatch/geoingest/pkg/tracing"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// DefaultBaseURL is the AEMET THREDDS server.
const DefaultBaseURL = "https://dust.aemet.es/thredds"

const latestPath = "restrictedDataRoot/MULTI-MODEL/latest"

// Variable is a forecast variable written as its own namespace.
type Variable struct {
	Variable string
	Name     string
	Convert  *ingest.Conversion
	Units    string
}

// Variables are the ingested forecast variables.
var Variables = []Variable{
	{Variable: "OD550_DUST", Name: "od550_dust"},
	{Variable: "SCONC_DUST", Name: "sconc_dust", Convert: &ingest.Conversion{Operation: "multiply", Constant: 1e9}, Units: "μgm**3"},
}

// Config is the dataset configuration.
type Config struct {
	OutputDir string `mapstructure:"output-dir"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	BaseURL   string `mapstructure:"base-url"`
}

type dataset struct {
	*ingest.Base
	config *Config
}

// New returns the dust forecast dataset.
func New(id string, settings map[string]interface{}, deps ingest.Dependencies) (ingest.Dataset, error) {
	config := &Config{}
	if err := mapstructure.Decode(settings, config); err != nil {
		return nil, errors.Wrap(err, "failed decoding dust forecast configuration")
	}
	base, err := ingest.NewBase(id, config.OutputDir, deps)
	if err != nil {
		return nil, err
	}
	if err := ingest.RequireParameters("username", config.Username, "password", config.Password); err != nil {
		return nil, err
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	return &dataset{Base: base, config: config}, nil
}

type catalog struct {
	XMLName xml.Name `xml:"catalog"`
	Dataset struct {
		Name     string `xml:"name,attr"`
		Datasets []struct {
			Name string `xml:"name,attr"`
		} `xml:"dataset"`
	} `xml:"dataset"`
}

// LatestDataset parses a THREDDS catalog and returns the name of the latest dataset and its date.
func LatestDataset(body []byte) (string, time.Time, error) {
	doc := &catalog{}
	if err := xml.Unmarshal(body, doc); err != nil {
		return "", time.Time{}, errors.Wrap(err, "failed parsing catalog")
	}
	if len(doc.Dataset.Datasets) == 0 {
		return "", time.Time{}, fmt.Errorf("catalog lists no datasets")
	}
	name := doc.Dataset.Datasets[0].Name
	date, err := time.Parse("20060102", strings.Split(name, "_")[0])
	if err != nil {
		return "", time.Time{}, errors.Wrapf(err, "dataset name %q carries no date", name)
	}
	return name, date, nil
}

func (d *dataset) Run(ctx context.Context) error {
	logger := d.Logger()
	logger.Info("starting process")

	current, err := d.State(ctx)
	if err != nil {
		return err
	}

	catalogURL := fmt.Sprintf("%s/catalog/%s/catalog.xml", d.config.BaseURL, latestPath)
	logger.Info("getting catalog", "url", catalogURL)
	body, err := d.Fetch().GetBytes(ctx, catalogURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed fetching catalog")
	}
	name, date, err := LatestDataset(body)
	if err != nil {
		return err
	}
	dataDate := ingest.StateDateString(date)
	logger.Info("latest date from remote catalog", "date", dataDate)

	if current.Get(state.KeyLastUpdate) == dataDate {
		logger.Info("no update required, skipping")
		return nil
	}

	fileURL := fmt.Sprintf("%s/fileServer/%s/%s", d.config.BaseURL, latestPath, name)
	logger.Info("downloading data", "url", fileURL, "date", dataDate)
	span, spanCtx := tracing.ChildSpan(ctx, "download")
	tmpFile, err := d.Fetch().DownloadTemp(spanCtx, fileURL, ".nc", fetch.BasicAuth(d.config.Username, d.config.Password))
	span.Finish()
	if err != nil {
		return errors.Wrap(err, "failed downloading forecast")
	}
	defer os.Remove(tmpFile)

	files, err := d.process(ctx, tmpFile)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, variable := range Variables {
		logger.Info("sending ingest command", "param", variable.Name, "date", dataDate)
		if err := d.SendIngest(ctx, variable.Name, d.NamespaceDir(variable.Name)); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := d.Publish(ctx, files); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	return d.UpdateLastUpdate(ctx, dataDate)
}

func (d *dataset) process(ctx context.Context, source string) ([]string, error) {
	span, ctx := tracing.ChildSpan(ctx, "process")
	defer span.Finish()

	d.Logger().Info("processing data")
	timestamps, err := d.Toolchain().Timestamps(ctx, source)
	if err != nil {
		return nil, err
	}
	files := []string{}
	for _, variable := range Variables {
		d.Logger().Debug("processing variable", "variable", variable.Variable)
		subdataset := toolchain.NetCDFSubdataset(source, variable.Variable)
		for i, ts := range timestamps {
			output := ingest.ProductPath(d.OutputDir(), variable.Name, ingest.DataDateString(ts))
			if err := d.WriteCOG(ctx, ingest.BandProduct{
				Source:  subdataset,
				Band:    i + 1,
				Output:  output,
				Convert: variable.Convert,
				Units:   variable.Units,
			}); err != nil {
				return files, errors.Wrapf(err, "failed processing %s", variable.Variable)
			}
			files = append(files, output)
		}
	}
	return files, nil
}
