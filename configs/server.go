package configs

import (
	"github.com/spf13/pflag"
)

// ServeCommandConfig is the serve command configuration.
type ServeCommandConfig struct {
	flagBase

	StatusAddr string
	RunOnStart bool
}

// NewServeCommandConfig returns new command configuration.
func NewServeCommandConfig() *ServeCommandConfig {
	return &ServeCommandConfig{}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *ServeCommandConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		c.flagSet.StringVar(&c.StatusAddr, "status-addr", envString("STATUS_ADDR", ""), "Listen address of the status HTTP server; disabled when empty")
		c.flagSet.BoolVar(&c.RunOnStart, "run-on-start", envBool("RUN_ON_START", false), "Run every job once immediately instead of waiting for the first interval")
	}
	return c.flagSet
}
