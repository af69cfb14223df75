package configs

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"
)

const defaultStateDir = "/data/state"

// StateConfig selects and configures the dataset state provider.
type StateConfig struct {
	flagBase

	Provider   string
	Dir        string
	SQLitePath string
}

// NewStateConfig returns a new state configuration.
func NewStateConfig() *StateConfig {
	return &StateConfig{}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *StateConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		c.flagSet.StringVar(&c.Provider, "state-provider", envString("STATE_PROVIDER", "file"), "State provider: file or sqlite")
		c.flagSet.StringVar(&c.Dir, "state-provider.file.dir", envString("DATASET_STATE_DIR", defaultStateDir), "Directory of the state.json file")
		c.flagSet.StringVar(&c.SQLitePath, "state-provider.sqlite.path", envString("STATE_SQLITE_PATH", ""), "SQLite database path; defaults to state.db in the state directory")
	}
	return c.flagSet
}

// ProviderName returns the configured provider name.
func (c *StateConfig) ProviderName() string {
	return c.Provider
}

// ProviderSettings returns the provider configuration map.
func (c *StateConfig) ProviderSettings() map[string]interface{} {
	sqlitePath := c.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(c.Dir, "state.db")
	}
	return map[string]interface{}{
		"dir":  c.Dir,
		"path": sqlitePath,
	}
}

// LockDir returns the directory of the per-dataset run locks.
func (c *StateConfig) LockDir() string {
	dir := c.Dir
	if dir == "" {
		dir = filepath.Dir(c.SQLitePath)
	}
	return filepath.Join(dir, "locks")
}

// Validate validates the correctness of the configuration.
func (c *StateConfig) Validate() error {
	switch c.Provider {
	case "file":
		if c.Dir == "" || c.Dir == "/" {
			return fmt.Errorf("--state-provider.file.dir cannot be empty or /")
		}
	case "sqlite":
		if c.Dir == "" && c.SQLitePath == "" {
			return fmt.Errorf("--state-provider.sqlite.path or --state-provider.file.dir required")
		}
	default:
		return fmt.Errorf("--state-provider %q not known", c.Provider)
	}
	return nil
}
