package state

import (
	"github.com/eahazardswatch/geoingest/cmd/state/ls"
	"github.com/eahazardswatch/geoingest/cmd/state/reset"
	"github.com/spf13/cobra"
)

// Command is the state command declaration.
var Command = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset the persisted dataset state",
	Long:  ``,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	Command.AddCommand(ls.Command)
	Command.AddCommand(reset.Command)
}
