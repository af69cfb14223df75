package configs

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// PublishConfig configures mirroring of produced files to a remote host.
type PublishConfig struct {
	flagBase

	Provider       string
	Host           string
	Port           int
	User           string
	Password       string
	PrivateKeyFile string
	KnownHostsFile string
	RemoteRoot     string
	Timeout        time.Duration
}

// NewPublishConfig returns a new publish configuration.
func NewPublishConfig() *PublishConfig {
	return &PublishConfig{}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *PublishConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		c.flagSet.StringVar(&c.Provider, "publish-provider", envString("PUBLISH_PROVIDER", ""), "Publish provider: empty to disable or sftp")
		c.flagSet.StringVar(&c.Host, "publish-provider.sftp.host", envString("PUBLISH_SFTP_HOST", ""), "SFTP host")
		c.flagSet.IntVar(&c.Port, "publish-provider.sftp.port", envInt("PUBLISH_SFTP_PORT", 22), "SFTP port")
		c.flagSet.StringVar(&c.User, "publish-provider.sftp.user", envString("PUBLISH_SFTP_USER", ""), "SFTP user")
		c.flagSet.StringVar(&c.Password, "publish-provider.sftp.password", envString("PUBLISH_SFTP_PASSWORD", ""), "SFTP password")
		c.flagSet.StringVar(&c.PrivateKeyFile, "publish-provider.sftp.private-key-file", envString("PUBLISH_SFTP_PRIVATE_KEY_FILE", ""), "Path to the PEM private key used for SFTP authentication")
		c.flagSet.StringVar(&c.KnownHostsFile, "publish-provider.sftp.known-hosts-file", envString("PUBLISH_SFTP_KNOWN_HOSTS_FILE", ""), "known_hosts file used to verify the SFTP host key; the key is not verified when empty")
		c.flagSet.StringVar(&c.RemoteRoot, "publish-provider.sftp.remote-root", envString("PUBLISH_SFTP_REMOTE_ROOT", ""), "Remote directory the local data root maps to")
		c.flagSet.DurationVar(&c.Timeout, "publish-provider.sftp.timeout", envSeconds("PUBLISH_SFTP_TIMEOUT", 30*time.Second), "SFTP connect timeout")
	}
	return c.flagSet
}

// ProviderName returns the configured provider name.
func (c *PublishConfig) ProviderName() string {
	return c.Provider
}

// ProviderSettings returns the provider configuration map.
func (c *PublishConfig) ProviderSettings() map[string]interface{} {
	return map[string]interface{}{
		"host":             c.Host,
		"port":             c.Port,
		"user":             c.User,
		"password":         c.Password,
		"private-key-file": c.PrivateKeyFile,
		"known-hosts-file": c.KnownHostsFile,
		"remote-root":      c.RemoteRoot,
		"timeout":          c.Timeout.String(),
	}
}

// Validate validates the correctness of the configuration.
func (c *PublishConfig) Validate() error {
	switch c.Provider {
	case "":
		return nil
	case "sftp":
		if c.Host == "" || c.User == "" {
			return fmt.Errorf("--publish-provider.sftp.host and --publish-provider.sftp.user are required")
		}
		if c.Password == "" && c.PrivateKeyFile == "" {
			return fmt.Errorf("--publish-provider.sftp.password or --publish-provider.sftp.private-key-file is required")
		}
		if c.RemoteRoot == "" {
			return fmt.Errorf("--publish-provider.sftp.remote-root is required")
		}
		return nil
	default:
		return fmt.Errorf("--publish-provider %q not known", c.Provider)
	}
}
