package toolchain

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Required lists the external programs the ingest depends on.
var Required = []string{
	"cdo",
	"gdal_calc.py",
	"gdal_contour",
	"gdal_translate",
	"gdalbuildvrt",
	"gdalinfo",
}

// DefaultNoData is the nodata value written to every produced raster.
const DefaultNoData = -9999.0

// Toolchain wraps GDAL and CDO command line utilities.
type Toolchain struct {
	runner   Runner
	lookPath func(string) (string, error)
}

// New returns a toolchain using the given runner.
func New(runner Runner) *Toolchain {
	return &Toolchain{runner: runner, lookPath: exec.LookPath}
}

// Check verifies that every required program resolves on PATH.
func (t *Toolchain) Check() (map[string]string, error) {
	var result *multierror.Error
	resolved := map[string]string{}
	for _, name := range Required {
		path, err := t.lookPath(name)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: not found on PATH", name))
			continue
		}
		resolved[name] = path
	}
	return resolved, result.ErrorOrNil()
}

// GribToNetCDF converts a GRIB file to NetCDF.
func (t *Toolchain) GribToNetCDF(ctx context.Context, input, output string) error {
	if _, err := t.runner.Run(ctx, "cdo", "-f", "nc", "copy", input, output); err != nil {
		return errors.Wrap(err, "failed converting GRIB to NetCDF")
	}
	return nil
}

// Timestamps returns the time axis of a NetCDF or GRIB file, in UTC.
func (t *Toolchain) Timestamps(ctx context.Context, input string) ([]time.Time, error) {
	out, err := t.runner.Run(ctx, "cdo", "-s", "showtimestamp", input)
	if err != nil {
		return nil, errors.Wrap(err, "failed reading timestamps")
	}
	return ParseTimestamps(string(out))
}

// ParseTimestamps parses the output of cdo showtimestamp.
func ParseTimestamps(out string) ([]time.Time, error) {
	result := []time.Time{}
	for _, field := range strings.Fields(out) {
		ts, err := time.Parse("2006-01-02T15:04:05", field)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid timestamp %q", field)
		}
		result = append(result, ts.UTC())
	}
	return result, nil
}

// Variables returns the names of the variables of a NetCDF file.
func (t *Toolchain) Variables(ctx context.Context, input string) ([]string, error) {
	out, err := t.runner.Run(ctx, "cdo", "-s", "showname", input)
	if err != nil {
		return nil, errors.Wrap(err, "failed reading variable names")
	}
	return strings.Fields(string(out)), nil
}

// NetCDFSubdataset returns the GDAL name of a NetCDF variable.
func NetCDFSubdataset(file, variable string) string {
	return fmt.Sprintf(`NETCDF:"%s":%s`, file, variable)
}

// COGOptions controls a conversion to Cloud Optimized GeoTIFF.
type COGOptions struct {
	// Band is 1-based; zero keeps all bands.
	Band     int
	SRS      string
	NoData   *float64
	Compress string
	// Units is written as dataset metadata.
	Units string
}

// NoData returns a pointer to a nodata value, for COGOptions.
func NoData(v float64) *float64 {
	return &v
}

// ToCOG writes the source raster as a Cloud Optimized GeoTIFF.
func (t *Toolchain) ToCOG(ctx context.Context, source, output string, opts COGOptions) error {
	args := []string{"-of", "COG"}
	if opts.Band > 0 {
		args = append(args, "-b", strconv.Itoa(opts.Band))
	}
	if opts.SRS != "" {
		args = append(args, "-a_srs", opts.SRS)
	}
	if opts.NoData != nil {
		args = append(args, "-a_nodata", formatFloat(*opts.NoData))
	}
	if opts.Units != "" {
		args = append(args, "-mo", "units="+opts.Units)
	}
	if opts.Compress != "" {
		args = append(args, "-co", "COMPRESS="+opts.Compress)
	}
	args = append(args, source, output)
	if _, err := t.runner.Run(ctx, "gdal_translate", args...); err != nil {
		return errors.Wrapf(err, "failed writing COG %s", filepath.Base(output))
	}
	return nil
}

// CalcOptions controls a gdal_calc.py invocation.
type CalcOptions struct {
	// Inputs maps a calc letter to one or more files.
	Inputs map[string][]string
	// Bands selects the 1-based band read for a letter, the first band by default.
	Bands      map[string]int
	Expression string
	NoData     *float64
	Type       string
	// COG writes a Cloud Optimized GeoTIFF with DEFLATE compression.
	COG bool
}

// Calc evaluates a raster expression with gdal_calc.py.
func (t *Toolchain) Calc(ctx context.Context, output string, opts CalcOptions) error {
	if len(opts.Inputs) == 0 {
		return fmt.Errorf("calc requires at least one input")
	}
	letters := []string{}
	for letter := range opts.Inputs {
		letters = append(letters, letter)
	}
	sort.Strings(letters)
	args := []string{}
	for _, letter := range letters {
		args = append(args, "-"+letter)
		args = append(args, opts.Inputs[letter]...)
		if band, ok := opts.Bands[letter]; ok && band > 0 {
			args = append(args, fmt.Sprintf("--%s_band=%d", letter, band))
		}
	}
	args = append(args, "--outfile="+output, "--calc="+opts.Expression, "--overwrite", "--quiet")
	if opts.NoData != nil {
		args = append(args, "--NoDataValue="+formatFloat(*opts.NoData))
	}
	if opts.Type != "" {
		args = append(args, "--type="+opts.Type)
	}
	if opts.COG {
		args = append(args, "--format=COG", "--co=COMPRESS=DEFLATE")
	}
	if _, err := t.runner.Run(ctx, "gdal_calc.py", args...); err != nil {
		return errors.Wrapf(err, "failed calculating %s", filepath.Base(output))
	}
	return nil
}

// Contour generates contour lines from a raster into a GeoJSON file in outDir
// named after the source file, and returns its path.
func (t *Toolchain) Contour(ctx context.Context, source, outDir, attribute string, interval float64) (string, error) {
	base := filepath.Base(source)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + ".geojson"
	output := filepath.Join(outDir, name)
	if _, err := t.runner.Run(ctx, "gdal_contour", "-a", attribute, source, output, "-i", formatFloat(interval)); err != nil {
		return "", errors.Wrap(err, "failed generating contours")
	}
	return output, nil
}

// BuildVRT mosaics the inputs into a virtual raster.
func (t *Toolchain) BuildVRT(ctx context.Context, output string, inputs []string) error {
	args := append([]string{"-overwrite", output}, inputs...)
	if _, err := t.runner.Run(ctx, "gdalbuildvrt", args...); err != nil {
		return errors.Wrap(err, "failed building VRT")
	}
	return nil
}

// Info returns gdalinfo JSON output.
func (t *Toolchain) Info(ctx context.Context, source string) ([]byte, error) {
	out, err := t.runner.Run(ctx, "gdalinfo", "-json", source)
	if err != nil {
		return nil, errors.Wrap(err, "failed reading raster info")
	}
	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
