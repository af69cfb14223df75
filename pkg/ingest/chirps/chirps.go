// Package chirps ingests CHIRPS 2.0 monthly rainfall estimates for Africa and computes anomalies.
package chirps

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
	"github.com/eahazardswatch/geoingest/pkg/utils"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

const (
	// DefaultBaseURL is the CHIRPS 2.0 data root.
	DefaultBaseURL = "https://data.chc.ucsb.edu/products/CHIRPS-2.0"

	monthlyTemplate = "/africa_monthly/tifs/chirps-v2.0.{YYYY}.{MM}.tif.gz"

	estimateNamespace = "monthly_chirps_rainfall_estimate"
	anomalyNamespace  = "monthly_chirps_rainfall_anomaly"

	// KeyMonthlyNormalsPrefix prefixes the state keys of the normal files, one per month.
	KeyMonthlyNormalsPrefix = "monthly_normals."
)

var (
	monthlyStart      = time.Date(1981, 1, 1, 0, 0, 0, 0, time.UTC)
	climatologyPeriod = [2]int{1981, 2011}
)

// AnomalyExpression is the gdal_calc.py expression of the anomaly of A against the normal B.
const AnomalyExpression = "numpy.where((A!=-9999)&(B!=-9999),A-B,-9999)"

// MeanExpression averages every input of A.
const MeanExpression = "numpy.mean(A,axis=0)"

// Config is the dataset configuration.
type Config struct {
	OutputDir string `mapstructure:"output-dir"`
	BaseURL   string `mapstructure:"base-url"`
	// DisableAnomalies skips the anomaly computation.
	DisableAnomalies bool `mapstructure:"disable-anomalies"`
}

type dataset struct {
	*ingest.Base
	config *Config
	now    func() time.Time
}

// New returns the CHIRPS rainfall dataset.
func New(id string, settings map[string]interface{}, deps ingest.Dependencies) (ingest.Dataset, error) {
	config := &Config{}
	if err := mapstructure.WeakDecode(settings, config); err != nil {
		return nil, errors.Wrap(err, "failed decoding CHIRPS configuration")
	}
	base, err := ingest.NewBase(id, config.OutputDir, deps)
	if err != nil {
		return nil, err
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	return &dataset{Base: base, config: config, now: time.Now}, nil
}

// MonthURL returns the URL of the monthly file.
func (d *dataset) MonthURL(year int, month int) string {
	return d.config.BaseURL + strings.NewReplacer(
		"{YYYY}", fmt.Sprintf("%04d", year),
		"{MM}", fmt.Sprintf("%02d", month),
	).Replace(monthlyTemplate)
}

func (d *dataset) Run(ctx context.Context) error {
	logger := d.Logger()
	logger.Info("trying monthly data")

	current, err := d.State(ctx)
	if err != nil {
		return err
	}
	next := monthlyStart
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
		available, err := d.ingestMonth(ctx, next)
		if err != nil {
			return err
		}
		if !available {
			return nil
		}
		if err := d.UpdateState(ctx, state.State{state.KeyMonthly: ingest.StateDateString(next)}); err != nil {
			return err
		}
		next = ingest.NextMonth(next)
	}
	return nil
}

func (d *dataset) ingestMonth(ctx context.Context, date time.Time) (bool, error) {
	workDir, cleanup, err := d.WorkDir()
	if err != nil {
		return false, err
	}
	defer cleanup()

	url := d.MonthURL(date.Year(), int(date.Month()))
	d.Logger().Info("downloading monthly data", "url", url, "date", date)
	current := filepath.Join(workDir, "current.tif")
	if err := d.downloadTif(ctx, url, current); err != nil {
		if fetch.IsNotFound(err) {
			d.Logger().Info("requested data not yet available, skipping", "url", url, "date", date)
			return false, nil
		}
		return false, err
	}

	dateStr := ingest.DataDateString(date)
	files := []string{}
	estimate := ingest.ProductPath(d.OutputDir(), estimateNamespace, dateStr)
	if err := d.WriteCOG(ctx, ingest.BandProduct{Source: current, Output: estimate, Compress: "DEFLATE"}); err != nil {
		return false, err
	}
	files = append(files, estimate)
	if err := d.SendIngest(ctx, estimateNamespace, d.NamespaceDir(estimateNamespace)); err != nil {
		return false, err
	}

	if !d.config.DisableAnomalies {
		normal, err := d.monthNormal(ctx, int(date.Month()), workDir)
		if err != nil {
			return false, errors.Wrap(err, "failed computing monthly normal")
		}
		anomaly := ingest.ProductPath(d.OutputDir(), anomalyNamespace, dateStr)
		if err := utils.EnsureParentDirectory(anomaly); err != nil {
			return false, err
		}
		if err := d.Toolchain().Calc(ctx, anomaly, toolchain.CalcOptions{
			Inputs:     map[string][]string{"A": {estimate}, "B": {normal}},
			Expression: AnomalyExpression,
			NoData:     toolchain.NoData(toolchain.DefaultNoData),
			Type:       "Float32",
			COG:        true,
		}); err != nil {
			return false, err
		}
		files = append(files, anomaly)
		d.Logger().Info("sending ingest command", "namespace", anomalyNamespace, "date", dateStr)
		if err := d.SendIngest(ctx, anomalyNamespace, d.NamespaceDir(anomalyNamespace)); err != nil {
			return false, err
		}
	}
	if err := d.Publish(ctx, files); err != nil {
		return false, err
	}
	return true, nil
}

func (d *dataset) downloadTif(ctx context.Context, url, target string) error {
	gzFile, err := d.Fetch().DownloadTemp(ctx, url, ".tif.gz", nil)
	if err != nil {
		return err
	}
	defer os.Remove(gzFile)
	return utils.GunzipFile(gzFile, target)
}

// NormalPath returns the path of the climatological mean of a month.
func (d *dataset) NormalPath(month int) string {
	start, end := climatologyPeriod[0], climatologyPeriod[1]
	return filepath.Join(d.OutputDir(), fmt.Sprintf("normals_%d_%d", start, end), "monthly",
		fmt.Sprintf("chirps_monthly_normal_%02d_%d_%d.tif", month, start, end))
}

// monthNormal returns the climatological mean of the month, computing it when not known yet.
func (d *dataset) monthNormal(ctx context.Context, month int, workDir string) (string, error) {
	key := fmt.Sprintf("%s%02d", KeyMonthlyNormalsPrefix, month)
	current, err := d.State(ctx)
	if err != nil {
		return "", err
	}
	if normal := current.Get(key); normal != "" {
		if _, err := utils.CheckIfExistsAndIsRegular(normal); err == nil {
			return normal, nil
		}
	}

	start, end := climatologyPeriod[0], climatologyPeriod[1]
	d.Logger().Info("computing monthly normal", "month", month, "start", start, "end", end)
	inputs := []string{}
	for year := start; year <= end; year++ {
		target := filepath.Join(workDir, fmt.Sprintf("chirps-v2.0.%d.%02d.tif", year, month))
		d.Logger().Debug("downloading climatology data", "year", year, "month", month)
		if err := d.downloadTif(ctx, d.MonthURL(year, month), target); err != nil {
			return "", err
		}
		inputs = append(inputs, target)
	}
	normal := d.NormalPath(month)
	if err := utils.EnsureParentDirectory(normal); err != nil {
		return "", err
	}
	if err := d.Toolchain().Calc(ctx, normal, toolchain.CalcOptions{
		Inputs:     map[string][]string{"A": inputs},
		Expression: MeanExpression,
		NoData:     toolchain.NoData(toolchain.DefaultNoData),
		Type:       "Float32",
		COG:        true,
	}); err != nil {
		return "", err
	}
	for _, input := range inputs {
		os.Remove(input)
	}
	if err := d.UpdateState(ctx, state.State{key: normal}); err != nil {
		return "", err
	}
	return normal, nil
}
