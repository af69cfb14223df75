package configs

import (
	"github.com/spf13/pflag"
)

// VectorDBConfig is the PostGIS connection configuration.
type VectorDBConfig struct {
	flagBase

	URL string
}

// NewVectorDBConfig returns a new vector database configuration.
func NewVectorDBConfig() *VectorDBConfig {
	return &VectorDBConfig{}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *VectorDBConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		c.flagSet.StringVar(&c.URL, "vector-db-url", envString("VECTOR_DB_URL", ""), "PostGIS connection URL; contour loading is disabled when empty")
	}
	return c.flagSet
}

// Enabled returns true when a database is configured.
func (c *VectorDBConfig) Enabled() bool {
	return c.URL != ""
}
