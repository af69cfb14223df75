package configs

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// DatasetConfig holds the scheduling and provider settings of a single dataset.
type DatasetConfig struct {
	ID        string
	Enabled   bool
	Interval  time.Duration
	OutputDir string

	envPrefix string
	options   []datasetOption
	values    map[string]*string
}

type datasetOption struct {
	name        string
	envVar      string
	description string
}

func option(name, envVar, description string) datasetOption {
	return datasetOption{name: name, envVar: envVar, description: description}
}

func newDatasetConfig(id, envPrefix string, enabled bool, interval time.Duration, options ...datasetOption) *DatasetConfig {
	return &DatasetConfig{
		ID:        id,
		Enabled:   enabled,
		Interval:  interval,
		envPrefix: envPrefix,
		options:   options,
		values:    map[string]*string{},
	}
}

func (c *DatasetConfig) flagPrefix() string {
	return strings.ReplaceAll(c.ID, "_", "-")
}

func (c *DatasetConfig) addFlags(set *pflag.FlagSet) {
	prefix := c.flagPrefix()
	set.BoolVar(&c.Enabled, prefix+".enabled", envBool(c.envPrefix+"_ENABLED", c.Enabled), fmt.Sprintf("Enable the %s job", c.ID))
	set.DurationVar(&c.Interval, prefix+".interval", envSeconds(c.envPrefix+"_UPDATE_INTERVAL_SECONDS", c.Interval), fmt.Sprintf("Update interval of the %s job", c.ID))
	set.StringVar(&c.OutputDir, prefix+".output-dir", envString(c.envPrefix+"_DATA_DIR", ""), fmt.Sprintf("Output data directory of the %s job", c.ID))
	for _, opt := range c.options {
		value := new(string)
		c.values[opt.name] = value
		set.StringVar(value, prefix+"."+opt.name, envString(opt.envVar, ""), opt.description)
	}
}

// Settings returns the dataset settings as a generic map, decoded by the dataset with mapstructure.
func (c *DatasetConfig) Settings() map[string]interface{} {
	result := map[string]interface{}{
		"output-dir": c.OutputDir,
	}
	for name, value := range c.values {
		result[name] = *value
	}
	return result
}

// SetOption sets a provider option; used when the configuration is built programmatically.
func (c *DatasetConfig) SetOption(name, value string) {
	v := value
	c.values[name] = &v
}

// Validate validates the correctness of the configuration.
func (c *DatasetConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("--%s.interval must be positive", c.flagPrefix())
	}
	return nil
}

// DatasetsConfig is the configuration of all known datasets.
type DatasetsConfig struct {
	flagBase

	Datasets []*DatasetConfig
}

// NewDatasetsConfig returns the configuration of all known datasets with their defaults.
func NewDatasetsConfig() *DatasetsConfig {
	return &DatasetsConfig{
		Datasets: []*DatasetConfig{
			newDatasetConfig("dust_forecast", "DUST_FORECAST", true, 30*time.Minute,
				option("username", "DUST_AEMET_USERNAME", "AEMET dust forecast THREDDS username"),
				option("password", "DUST_AEMET_PASSWORD", "AEMET dust forecast THREDDS password")),
			newDatasetConfig("ecmwf_forecast", "ECMWF_FORECAST", true, 30*time.Minute,
				option("base-url", "ECMWF_OPENDATA_URL", "ECMWF open data base URL; default used when empty")),
			newDatasetConfig("tamsat_rainfall", "TAMSAT_RAINFALL", true, 24*time.Hour),
			newDatasetConfig("chirps_rainfall", "CHIRPS_RAINFALL", true, 24*time.Hour),
			newDatasetConfig("cams_forecast", "CAMS_FORECAST", true, time.Hour,
				option("api-key", "CAMS_API_KEY", "Atmosphere Data Store API key, UID:KEY")),
			newDatasetConfig("modis", "MODIS", false, 24*time.Hour,
				option("auth-token", "MODIS_AUTH_TOKEN", "NASA Earthdata bearer token"),
				option("data-extent", "MODIS_DATA_EXTENT", "Data extent: min-lon,max-lon,min-lat,max-lat")),
		},
	}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *DatasetsConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		for _, dataset := range c.Datasets {
			dataset.addFlags(c.flagSet)
		}
	}
	return c.flagSet
}

// Get returns the configuration of a dataset by ID.
func (c *DatasetsConfig) Get(id string) (*DatasetConfig, bool) {
	for _, dataset := range c.Datasets {
		if dataset.ID == id {
			return dataset, true
		}
	}
	return nil, false
}

// IDs returns sorted dataset IDs.
func (c *DatasetsConfig) IDs() []string {
	result := []string{}
	for _, dataset := range c.Datasets {
		result = append(result, dataset.ID)
	}
	sort.Strings(result)
	return result
}

// Validate validates the correctness of the configuration.
func (c *DatasetsConfig) Validate() error {
	for _, dataset := range c.Datasets {
		if err := dataset.Validate(); err != nil {
			return err
		}
	}
	return nil
}
