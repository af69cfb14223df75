package ls

import (
	"context"
	"os"
	"sort"

	"github.com/eahazardswatch/geoingest/configs"
	stateResolver "github.com/eahazardswatch/geoingest/pkg/state/resolver"
	"github.com/spf13/cobra"
)

// Command is the state ls command declaration.
var Command = &cobra.Command{
	Use:   "ls",
	Short: "List the persisted state of every dataset",
	Run:   run,
	Long:  ``,
}

var (
	logConfig   = configs.NewLogginConfig()
	stateConfig = configs.NewStateConfig()
)

func initFlags() {
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
	rootLogger := logConfig.NewLogger("state-ls")

	if err := stateConfig.Validate(); err != nil {
		rootLogger.Error("configuration is invalid", "reason", err)
		return 1
	}

	store, err := stateResolver.GetStateStore(rootLogger.Named("state"), stateConfig)
	if err != nil {
		rootLogger.Error("failed resolving state store", "reason", err)
		return 1
	}
	defer store.Close()

	all, err := store.List(context.Background())
	if err != nil {
		rootLogger.Error("failed listing state", "reason", err)
		return 1
	}
	ids := []string{}
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		current := all[id]
		for _, key := range current.Keys() {
			rootLogger.Info("state", "dataset", id, "key", key, "value", current[key])
		}
	}
	return 0
}
