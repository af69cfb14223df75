package resolver

import (
	"fmt"

	"github.com/eahazardswatch/geoingest/configs"
	"github.com/eahazardswatch/geoingest/pkg/publish"
	"github.com/eahazardswatch/geoingest/pkg/publish/sftp"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// GetPublisher returns the configured publisher; a no-op publisher when no provider is set.
func GetPublisher(logger hclog.Logger, config configs.ProviderConfig) (publish.Publisher, error) {
	var impl publish.Provider
	switch config.ProviderName() {
	case "":
		return publish.NewNoop(), nil
	case sftp.ProviderName:
		impl = sftp.New(logger.Named("publish-sftp"))
	}
	if impl == nil {
		return nil, fmt.Errorf("publish provider %s not known", config.ProviderName())
	}
	if err := impl.Configure(config.ProviderSettings()); err != nil {
		return nil, errors.Wrap(err, "failed configuring publish provider")
	}
	return impl, nil
}
