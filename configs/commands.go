package configs

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// RunCommandConfig is the run command configuration.
type RunCommandConfig struct {
	flagBase

	Dataset string
}

// NewRunCommandConfig returns new command configuration.
func NewRunCommandConfig() *RunCommandConfig {
	return &RunCommandConfig{}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *RunCommandConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		c.flagSet.StringVar(&c.Dataset, "dataset", "", "ID of the dataset to ingest")
	}
	return c.flagSet
}

// Validate validates the correctness of the configuration.
func (c *RunCommandConfig) Validate() error {
	if c.Dataset == "" {
		return fmt.Errorf("--dataset can't be empty")
	}
	return nil
}

// StateResetCommandConfig is the state reset command configuration.
type StateResetCommandConfig struct {
	flagBase

	Dataset string
}

// NewStateResetCommandConfig returns new command configuration.
func NewStateResetCommandConfig() *StateResetCommandConfig {
	return &StateResetCommandConfig{}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *StateResetCommandConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		c.flagSet.StringVar(&c.Dataset, "dataset", "", "ID of the dataset to reset")
	}
	return c.flagSet
}

// Validate validates the correctness of the configuration.
func (c *StateResetCommandConfig) Validate() error {
	if c.Dataset == "" {
		return fmt.Errorf("--dataset can't be empty")
	}
	return nil
}

// ContourCommandConfig is the contour command configuration.
type ContourCommandConfig struct {
	flagBase

	Input     string
	OutputDir string
	Attribute string
	Interval  float64

	Date   string
	Load   bool
	Schema string
	Table  string
	SRID   int
}

// NewContourCommandConfig returns new command configuration.
func NewContourCommandConfig() *ContourCommandConfig {
	return &ContourCommandConfig{}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *ContourCommandConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		c.flagSet.StringVar(&c.Input, "input", "", "Raster file to contour")
		c.flagSet.StringVar(&c.OutputDir, "output-dir", ".", "Directory of the generated GeoJSON")
		c.flagSet.StringVar(&c.Attribute, "attribute", "value", "Name of the contour elevation attribute")
		c.flagSet.Float64Var(&c.Interval, "interval", 10, "Contour interval")
		c.flagSet.StringVar(&c.Date, "date", "", "Data date of the raster, RFC3339; required with --load")
		c.flagSet.BoolVar(&c.Load, "load", false, "Load the generated contours into PostGIS")
		c.flagSet.StringVar(&c.Schema, "schema", "public", "PostGIS schema")
		c.flagSet.StringVar(&c.Table, "table", "", "PostGIS table; required with --load")
		c.flagSet.IntVar(&c.SRID, "srid", 4326, "Geometry SRID")
	}
	return c.flagSet
}

// DataDate parses the configured date.
func (c *ContourCommandConfig) DataDate() (time.Time, error) {
	return time.Parse(time.RFC3339, c.Date)
}

// Validate validates the correctness of the configuration.
func (c *ContourCommandConfig) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("--input can't be empty")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}
	if c.Load {
		if c.Table == "" {
			return fmt.Errorf("--table is required with --load")
		}
		if _, err := c.DataDate(); err != nil {
			return fmt.Errorf("--date must be RFC3339 with --load: %v", err)
		}
	}
	return nil
}
