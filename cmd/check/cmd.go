package check

import (
	"os"

	"github.com/eahazardswatch/geoingest/configs"
	"github.com/eahazardswatch/geoingest/pkg/toolchain"
	"github.com/spf13/cobra"
)

// Command is the check command declaration.
var Command = &cobra.Command{
	Use:   "check",
	Short: "Verify the GDAL and CDO programs are installed",
	Run:   run,
	Long:  ``,
}

var (
	logConfig = configs.NewLogginConfig()
)

func initFlags() {
	Command.Flags().AddFlagSet(logConfig.FlagSet())
}

func init() {
	initFlags()
}

func run(cobraCommand *cobra.Command, _ []string) {
	rootLogger := logConfig.NewLogger("check")
	resolved, err := toolchain.New(toolchain.NewExecRunner(rootLogger, 0)).Check()
	for _, name := range toolchain.Required {
		if path, ok := resolved[name]; ok {
			rootLogger.Info("found", "program", name, "path", path)
		}
	}
	if err != nil {
		rootLogger.Error("toolchain incomplete", "reason", err)
		os.Exit(1)
	}
	rootLogger.Info("toolchain complete")
}
