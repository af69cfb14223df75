package run

import (
	"os"

	"github.com/eahazardswatch/geoingest/cmd"
	"github.com/eahazardswatch/geoingest/configs"
	"github.com/eahazardswatch/geoingest/pkg/jobs"
	"github.com/eahazardswatch/geoingest/pkg/tracing"
	"github.com/eahazardswatch/geoingest/pkg/utils"
	"github.com/spf13/cobra"
)

/*
	go run ./main.go run \
		--dataset=chirps_rainfall \
		--chirps-rainfall.output-dir=/data/chirps \
		--state-provider.file.dir=/tmp/state \
		--log-level=debug
*/

// Command is the run command declaration.
var Command = &cobra.Command{
	Use:   "run",
	Short: "Run a single dataset ingest once",
	Run:   run,
	Long:  ``,
}

var (
	commandConfig  = configs.NewRunCommandConfig()
	datasetsConfig = configs.NewDatasetsConfig()
	ingestConfig   = configs.NewIngestConfig()
	logConfig      = configs.NewLogginConfig()
	publishConfig  = configs.NewPublishConfig()
	stateConfig    = configs.NewStateConfig()
	tracingConfig  = configs.NewTracingConfig("geoingest-run")
	vectorDBConfig = configs.NewVectorDBConfig()
)

func initFlags() {
	Command.Flags().AddFlagSet(commandConfig.FlagSet())
	Command.Flags().AddFlagSet(datasetsConfig.FlagSet())
	Command.Flags().AddFlagSet(ingestConfig.FlagSet())
	Command.Flags().AddFlagSet(logConfig.FlagSet())
	Command.Flags().AddFlagSet(publishConfig.FlagSet())
	Command.Flags().AddFlagSet(stateConfig.FlagSet())
	Command.Flags().AddFlagSet(tracingConfig.FlagSet())
	Command.Flags().AddFlagSet(vectorDBConfig.FlagSet())
}

func init() {
	initFlags()
}

func run(cobraCommand *cobra.Command, _ []string) {
	os.Exit(processCommand())
}

func processCommand() int {
	cleanup := utils.NewDefers()
	defer cleanup.CallAll()

	rootLogger := logConfig.NewLogger("run")

	if err := cmd.ValidateAll(commandConfig, ingestConfig, publishConfig, stateConfig); err != nil {
		rootLogger.Error("configuration is invalid", "reason", err)
		return 1
	}

	datasetConfig, ok := datasetsConfig.Get(commandConfig.Dataset)
	if !ok {
		rootLogger.Error("dataset not known", "dataset", commandConfig.Dataset, "known", datasetsConfig.IDs())
		return 1
	}

	tracer, tracerCleanupFunc, err := tracing.GetTracer(rootLogger.Named("tracer"), tracingConfig)
	if err != nil {
		rootLogger.Error("failed constructing tracer", "reason", err)
		return 1
	}
	cleanup.Add(tracerCleanupFunc)

	ctx, cancel := cmd.SignalContext(rootLogger)
	defer cancel()

	deps, err := cmd.NewDependencies(rootLogger, cleanup, ingestConfig, stateConfig, publishConfig)
	if err != nil {
		rootLogger.Error("failed configuring dependencies", "reason", err)
		return 1
	}

	contours, err := cmd.GetContourStore(ctx, rootLogger, cleanup, vectorDBConfig)
	if err != nil {
		rootLogger.Error("vector database unavailable, contours will not be loaded", "reason", err)
		contours = nil
	}

	dataset, err := jobs.NewBuilder(rootLogger, deps, contours).Dataset(datasetConfig)
	if err != nil {
		rootLogger.Error("dataset configuration is invalid", "dataset", datasetConfig.ID, "reason", err)
		return 1
	}

	locker, err := jobs.NewLocker(rootLogger.Named("locks"), stateConfig.LockDir())
	if err != nil {
		rootLogger.Error("failed configuring dataset locks", "reason", err)
		return 1
	}

	if err := locker.Wrap(dataset.ID(), jobs.Runner(rootLogger, tracer, dataset))(ctx); err != nil {
		return 1
	}
	return 0
}
