package configs

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

// IngestConfig contains the settings shared by all dataset ingests.
type IngestConfig struct {
	flagBase

	Debug           bool
	TasksDev        []string
	RequestsTimeout time.Duration
	TempDir         string
	ToolTimeout     time.Duration

	GskyWebhookURL    string
	GskyWebhookSecret string
}

// NewIngestConfig returns a new ingest configuration.
func NewIngestConfig() *IngestConfig {
	return &IngestConfig{}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *IngestConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		c.flagSet.BoolVar(&c.Debug, "debug", envBool("DEBUG", false), "Debug mode: only datasets listed in --tasks-dev are scheduled")
		c.flagSet.StringSliceVar(&c.TasksDev, "tasks-dev", envList("TASKS_DEV"), "Dataset IDs to schedule regardless of the enabled setting, multiple OK")
		c.flagSet.DurationVar(&c.RequestsTimeout, "requests-timeout", envSeconds("REQUESTS_TIMEOUT", 300*time.Second), "Timeout of a single HTTP request")
		c.flagSet.StringVar(&c.TempDir, "temp-dir", envString("GEOINGEST_TEMP_DIR", os.TempDir()), "Directory for downloads and intermediate files")
		c.flagSet.DurationVar(&c.ToolTimeout, "tool-timeout", envSeconds("TOOL_TIMEOUT", 30*time.Minute), "Maximum run time of a single GDAL or CDO invocation")
		c.flagSet.StringVar(&c.GskyWebhookURL, "gsky-webhook-url", envString("GSKY_INGEST_LAYER_WEBHOOK_URL", ""), "GSKY ingest layer webhook URL; ingest commands are not sent when empty")
		c.flagSet.StringVar(&c.GskyWebhookSecret, "gsky-webhook-secret", envString("GSKY_WEBHOOK_SECRET", ""), "GSKY webhook signing secret")
	}
	return c.flagSet
}

// Validate validates the correctness of the configuration.
func (c *IngestConfig) Validate() error {
	if c.RequestsTimeout <= 0 {
		return fmt.Errorf("--requests-timeout must be positive")
	}
	if c.TempDir == "" {
		return fmt.Errorf("--temp-dir can't be empty")
	}
	if (c.GskyWebhookURL == "") != (c.GskyWebhookSecret == "") {
		return fmt.Errorf("--gsky-webhook-url and --gsky-webhook-secret must be set together")
	}
	return nil
}
