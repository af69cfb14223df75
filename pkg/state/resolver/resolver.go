package resolver

import (
	"fmt"

	"github.com/eahazardswatch/geoingest/configs"
	"github.com/eahazardswatch/geoingest/pkg/state"
	"github.com/eahazardswatch/geoingest/pkg/state/file"
	"github.com/eahazardswatch/geoingest/pkg/state/sqlite"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// GetStateStore returns the configured resolved state provider.
func GetStateStore(logger hclog.Logger, config configs.ProviderConfig) (state.Store, error) {
	return ResolveProvider(logger, config.ProviderName(), config.ProviderSettings())
}

// ResolveProvider resolves and configures a state provider by name.
func ResolveProvider(logger hclog.Logger, provider string, settings map[string]interface{}) (state.Store, error) {
	var impl state.Provider
	switch provider {
	case file.ProviderName:
		impl = file.New(logger.Named("state-file"))
	case sqlite.ProviderName:
		impl = sqlite.New(logger.Named("state-sqlite"))
	}
	if impl == nil {
		return nil, fmt.Errorf("state provider %s not known", provider)
	}
	if err := impl.Configure(settings); err != nil {
		return nil, errors.Wrap(err, "failed configuring state provider")
	}
	return impl, nil
}
