package serve

import (
	"os"
	"sync"

	"github.com/eahazardswatch/geoingest/cmd"
	"github.com/eahazardswatch/geoingest/configs"
	"github.com/eahazardswatch/geoingest/pkg/jobs"
	"github.com/eahazardswatch/geoingest/pkg/scheduler"
	"github.com/eahazardswatch/geoingest/pkg/server"
	"github.com/eahazardswatch/geoingest/pkg/tracing"
	"github.com/eahazardswatch/geoingest/pkg/utils"
	"github.com/spf13/cobra"
)

// Command is the serve command declaration.
var Command = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduled dataset ingests",
	Run:   run,
	Long:  ``,
}

var (
	commandConfig  = configs.NewServeCommandConfig()
	datasetsConfig = configs.NewDatasetsConfig()
	ingestConfig   = configs.NewIngestConfig()
	logConfig      = configs.NewLogginConfig()
	publishConfig  = configs.NewPublishConfig()
	stateConfig    = configs.NewStateConfig()
	tracingConfig  = configs.NewTracingConfig("geoingest-serve")
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

	rootLogger := logConfig.NewLogger("serve")

	// datasets are validated one by one when the jobs are built
	if err := cmd.ValidateAll(ingestConfig, publishConfig, stateConfig); err != nil {
		rootLogger.Error("configuration is invalid", "reason", err)
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
		// contours are optional, the rasters are still ingested
		rootLogger.Error("vector database unavailable, contours will not be loaded", "reason", err)
		contours = nil
	}

	builder := jobs.NewBuilder(rootLogger, deps, contours)
	selected := builder.Build(datasetsConfig, ingestConfig)
	if len(selected) == 0 {
		rootLogger.Warn("no datasets selected, nothing to schedule")
	}

	locker, err := jobs.NewLocker(rootLogger.Named("locks"), stateConfig.LockDir())
	if err != nil {
		rootLogger.Error("failed configuring dataset locks", "reason", err)
		return 1
	}

	sched := scheduler.New(rootLogger.Named("scheduler"), commandConfig.RunOnStart)
	if err := jobs.Schedule(sched, rootLogger.Named("jobs"), tracer, locker, selected); err != nil {
		rootLogger.Error("failed scheduling jobs", "reason", err)
		return 1
	}

	wg := &sync.WaitGroup{}
	if commandConfig.StatusAddr != "" {
		app := server.New(rootLogger.Named("server"), sched, deps.State)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Serve(ctx, rootLogger.Named("server"), app, commandConfig.StatusAddr); err != nil {
				rootLogger.Error("status server stopped", "reason", err)
			}
		}()
	}

	rootLogger.Info("scheduler started", "jobs", len(selected), "run-on-start", commandConfig.RunOnStart)
	if err := sched.Start(ctx); err != nil {
		rootLogger.Error("scheduler failed", "reason", err)
		return 1
	}
	wg.Wait()
	rootLogger.Info("scheduler stopped")
	return 0
}
