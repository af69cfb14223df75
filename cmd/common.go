package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/eahazardswatch/geoingest/configs"
	"github.com/eahazardswatch/geoingest/pkg/fetch"
	"github.com/eahazardswatch/geoingest/pkg/gsky"
	"github.com/eahazardswatch/geoingest/pkg/ingest"
	"github.com/eahazardswatch/geoingest/pkg/ingest/ecmwf"
	"github.com/eahazardswatch/geoingest/pkg/jobs"
	publishResolver "github.com/eahazardswatch/geoingest/pkg/publish/resolver"
	stateResolver "github.com/eahazardswatch/geoingest/pkg/state/resolver"
	"github.com/eahazardswatch/geoingest/pkg/toolchain"
	"github.com/eahazardswatch/geoingest/pkg/utils"
	"github.com/eahazardswatch/geoingest/pkg/vectordb"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// ValidateAll validates the configurations in order and returns the first error.
func ValidateAll(validatingConfigs ...configs.ValidatingConfig) error {
	for _, validatingConfig := range validatingConfigs {
		if err := validatingConfig.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NewDependencies resolves the collaborators shared by all datasets.
// Resources which need closing are registered with cleanup.
func NewDependencies(logger hclog.Logger, cleanup utils.Defers,
	ingestConfig *configs.IngestConfig,
	stateConfig *configs.StateConfig,
	publishConfig *configs.PublishConfig) (ingest.Dependencies, error) {

	store, err := stateResolver.GetStateStore(logger.Named("state"), stateConfig)
	if err != nil {
		return ingest.Dependencies{}, errors.Wrap(err, "failed resolving state store")
	}
	cleanup.Add(func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed closing state store", "reason", err)
		}
	})

	publisher, err := publishResolver.GetPublisher(logger.Named("publish"), publishConfig)
	if err != nil {
		return ingest.Dependencies{}, errors.Wrap(err, "failed resolving publisher")
	}

	fetchClient := fetch.New(fetch.Options{
		Timeout: ingestConfig.RequestsTimeout,
		TempDir: ingestConfig.TempDir,
	})

	return ingest.Dependencies{
		Logger:    logger,
		State:     store,
		Notifier:  gsky.NewNotifier(logger.Named("gsky"), fetchClient, ingestConfig.GskyWebhookURL, ingestConfig.GskyWebhookSecret),
		Toolchain: toolchain.New(toolchain.NewExecRunner(logger.Named("toolchain"), ingestConfig.ToolTimeout)),
		Fetch:     fetchClient,
		Publisher: publisher,
		TempDir:   ingestConfig.TempDir,
	}, nil
}

// GetContourStore returns the ECMWF contour store, or nil when no vector database is configured.
func GetContourStore(ctx context.Context, logger hclog.Logger, cleanup utils.Defers, config *configs.VectorDBConfig) (ecmwf.ContourStore, error) {
	if !config.Enabled() {
		return nil, nil
	}
	manager, err := GetVectorManager(ctx, logger, cleanup, config, jobs.MSLContourTable())
	if err != nil {
		return nil, err
	}
	return manager, nil
}

// GetVectorManager connects to the vector database and prepares the table.
func GetVectorManager(ctx context.Context, logger hclog.Logger, cleanup utils.Defers, config *configs.VectorDBConfig, table vectordb.Table) (*vectordb.Manager, error) {
	pool, err := vectordb.Connect(ctx, config.URL)
	if err != nil {
		return nil, err
	}
	cleanup.Add(pool.Close)
	return vectordb.NewManager(ctx, logger.Named("vectordb"), pool, table)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger hclog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(c)
		select {
		case s := <-c:
			logger.Info("caught signal, requesting clean shutdown", "signal", s.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
