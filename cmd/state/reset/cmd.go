package reset

import (
	"context"
	"os"

	"github.com/eahazardswatch/geoingest/configs"
	stateResolver "github.com/eahazardswatch/geoingest/pkg/state/resolver"
	"github.com/spf13/cobra"
)

/*
	go run ./main.go state reset --dataset=cams_forecast
*/

// Command is the state reset command declaration.
var Command = &cobra.Command{
	Use:   "reset",
	Short: "Remove the persisted state of a dataset so the next run starts over",
	Run:   run,
	Long:  ``,
}

var (
	commandConfig = configs.NewStateResetCommandConfig()
	logConfig     = configs.NewLogginConfig()
	stateConfig   = configs.NewStateConfig()
)

func initFlags() {
	Command.Flags().AddFlagSet(commandConfig.FlagSet())
	Command.Flags().AddFlagSet(logConfig.FlagSet())
	Command.Flags().AddFlagSet(stateConfig.FlagSet())
}

func init() {
	initFlags()
}

func run(cobraCommand *cobra.Command, _ []string) {
	os.Exit(processCommand())
}

func processCommand() int {
	rootLogger := logConfig.NewLogger("state-reset")

	for _, validatingConfig := range []configs.ValidatingConfig{commandConfig, stateConfig} {
		if err := validatingConfig.Validate(); err != nil {
			rootLogger.Error("configuration is invalid", "reason", err)
			return 1
		}
	}

	store, err := stateResolver.GetStateStore(rootLogger.Named("state"), stateConfig)
	if err != nil {
		rootLogger.Error("failed resolving state store", "reason", err)
		return 1
	}
	defer store.Close()

	if err := store.Reset(context.Background(), commandConfig.Dataset); err != nil {
		rootLogger.Error("failed resetting state", "dataset", commandConfig.Dataset, "reason", err)
		return 1
	}
	rootLogger.Info("state reset", "dataset", commandConfig.Dataset)
	return 0
}
