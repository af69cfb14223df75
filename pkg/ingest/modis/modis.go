// Package modis ingests MODIS land products: tiles covering the configured extent are
// downloaded, mosaicked and written as a single raster per composite date.
package modis

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/eahazardswatch/geoingest/pkg/fetch"
	"github.com/eahazardswatch/geoingest/pkg/ingest"
	"github.com/eahazardswatch/geoingest/pkg/state"
	"github.com/eahazardswatch/geoingest/pkg/utils"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// DefaultBaseURL is the LP DAAC data pool.
const DefaultBaseURL = "https://e4ftl01.cr.usgs.gov"

// compositePeriod is the period between two composites of a 16-day product.
const compositePeriod = 16 * 24 * time.Hour

// SubDataset is a product layer written as its own namespace.
type SubDataset struct {
	Grid    string
	Name    string
	Title   string
	Convert *ingest.Conversion
}

// Product is a MODIS product.
type Product struct {
	Title       string
	Satellite   string
	Path        string
	Code        string
	Version     string
	SubDatasets []SubDataset
}

// Products are the ingested products.
var Products = []Product{
	{
		Title:     "Vegetation Indices 16-Day L3 Global 250m",
		Satellite: "aqua",
		Path:      "MOLA",
		Code:      "MYD13Q1",
		Version:   "061",
		SubDatasets: []SubDataset{
			{
				Grid:    "MODIS_Grid_16DAY_250m_500m_VI",
				Name:    "250m 16 days NDVI",
				Title:   "modis_250m_16_days_ndvi",
				Convert: &ingest.Conversion{Operation: "divide", Constant: 10000},
			},
		},
	},
}

// DataPath returns <path>/<code>.<version>.
func (p Product) DataPath() string {
	if p.Version == "" {
		return p.Path + "/" + p.Code
	}
	return p.Path + "/" + p.Code + "." + p.Version
}

// HDFSubdataset returns the GDAL name of a layer of an HDF-EOS file.
func HDFSubdataset(file string, sub SubDataset) string {
	return fmt.Sprintf(`HDF4_EOS:EOS_GRID:"%s":%s:"%s"`, file, sub.Grid, sub.Name)
}

// Config is the dataset configuration.
type Config struct {
	OutputDir  string `mapstructure:"output-dir"`
	AuthToken  string `mapstructure:"auth-token"`
	DataExtent string `mapstructure:"data-extent"`
	BaseURL    string `mapstructure:"base-url"`
	StartDate  string `mapstructure:"start-date"`
}

type dataset struct {
	*ingest.Base
	baseURL string
	extent  Extent
	start   time.Time
	token   string
	now     func() time.Time
}

// New returns the MODIS dataset.
func New(id string, settings map[string]interface{}, deps ingest.Dependencies) (ingest.Dataset, error) {
	config := &Config{}
	if err := mapstructure.Decode(settings, config); err != nil {
		return nil, errors.Wrap(err, "failed decoding MODIS configuration")
	}
	base, err := ingest.NewBase(id, config.OutputDir, deps)
	if err != nil {
		return nil, err
	}
	if err := ingest.RequireParameters("auth_token", config.AuthToken, "data_extent", config.DataExtent); err != nil {
		return nil, err
	}
	extent, err := ParseExtent(config.DataExtent)
	if err != nil {
		return nil, err
	}
	if config.StartDate == "" {
		config.StartDate = "2023-02-26T00:00:00"
	}
	start, err := ingest.ParseStateDate(config.StartDate)
	if err != nil {
		return nil, errors.Wrap(err, "invalid start date")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	return &dataset{
		Base:    base,
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		extent:  extent,
		start:   start,
		token:   config.AuthToken,
		now:     time.Now,
	}, nil
}

// DateURL returns the directory of a composite date.
func (d *dataset) DateURL(product Product, date time.Time) string {
	return d.baseURL + "/" + product.DataPath() + "/" + date.Format("2006.01.02")
}

func (d *dataset) Run(ctx context.Context) error {
	current, err := d.State(ctx)
	if err != nil {
		return err
	}
	next := d.start
	if last := current.Get(state.KeyLastUpdate); last != "" {
		lastDate, err := ingest.ParseStateDate(last)
		if err != nil {
			return errors.Wrap(err, "invalid last update state")
		}
		next = lastDate.Add(compositePeriod)
	}
	if next.After(d.now().UTC()) {
		d.Logger().Info("next composite not due yet, skipping", "date", next)
		return nil
	}
	for _, product := range Products {
		available, err := d.ingestProduct(ctx, product, next)
		if err != nil {
			return err
		}
		if !available {
			return nil
		}
	}
	return d.UpdateLastUpdate(ctx, ingest.StateDateString(next))
}

func (d *dataset) ingestProduct(ctx context.Context, product Product, date time.Time) (bool, error) {
	logger := d.Logger().With("product", product.Code)
	dateURL := d.DateURL(product, date)
	listing, err := d.Fetch().GetBytes(ctx, dateURL+"/", nil)
	if err != nil {
		if fetch.IsNotFound(err) {
			logger.Info("data not available for date, skipping", "date", date)
			return false, nil
		}
		return false, err
	}
	links, err := ParseListing(listing)
	if err != nil {
		return false, err
	}
	tileFiles := TileFiles(links, product.Code, d.extent.Tiles())
	if len(tileFiles) == 0 {
		logger.Info("no tiles listed for the extent, skipping", "date", date)
		return false, nil
	}

	inputDir := filepath.Join(d.OutputDir(), "input")
	files := []string{}
	for _, tileFile := range tileFiles {
		out := filepath.Join(inputDir, tileFile)
		files = append(files, out)
		if _, err := utils.CheckIfExistsAndIsRegular(out); err == nil {
			continue
		}
		logger.Info("downloading tile", "tile", tileFile)
		if _, err := d.Fetch().DownloadTo(ctx, dateURL+"/"+tileFile, out, fetch.BearerAuth(d.token)); err != nil {
			return false, errors.Wrapf(err, "failed downloading tile %s", tileFile)
		}
	}
	logger.Info("finished downloading tiles", "count", len(tileFiles))

	workDir, cleanup, err := d.WorkDir()
	if err != nil {
		return false, err
	}
	defer cleanup()

	outputs := []string{}
	for _, sub := range product.SubDatasets {
		layers := []string{}
		for _, f := range files {
			layers = append(layers, HDFSubdataset(f, sub))
		}
		mosaic := filepath.Join(workDir, sub.Title+"-mosaic.vrt")
		if err := d.Toolchain().BuildVRT(ctx, mosaic, layers); err != nil {
			return false, err
		}
		output := ingest.ProductPath(d.OutputDir(), sub.Title, ingest.DataDateString(date))
		if err := d.WriteCOG(ctx, ingest.BandProduct{Source: mosaic, Output: output, Convert: sub.Convert}); err != nil {
			return false, err
		}
		outputs = append(outputs, output)
		if err := d.SendIngest(ctx, sub.Title, d.NamespaceDir(sub.Title)); err != nil {
			return false, err
		}
	}
	if err := d.Publish(ctx, outputs); err != nil {
		return false, err
	}
	return true, nil
}
