package main

import (
	"fmt"
	"os"

	"github.com/eahazardswatch/geoingest/cmd/check"
	"github.com/eahazardswatch/geoingest/cmd/contour"
	"github.com/eahazardswatch/geoingest/cmd/run"
	"github.com/eahazardswatch/geoingest/cmd/serve"
	"github.com/eahazardswatch/geoingest/cmd/state"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "geoingest",
	Short: "geoingest",
	Long:  `Scheduled ingest of climate and earth observation datasets into Cloud Optimized GeoTIFFs.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

func init() {
	rootCmd.AddCommand(check.Command)
	rootCmd.AddCommand(contour.Command)
	rootCmd.AddCommand(run.Command)
	rootCmd.AddCommand(serve.Command)
	rootCmd.AddCommand(state.Command)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
