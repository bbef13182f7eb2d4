package commands

import (
	"github.com/spf13/cobra"
)

var cfgFile string

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "flowdeck",
		Short: "Dashboard for live proxy connection traffic",
		Long:  "Flowdeck — aggregates a proxy's live connections into a flow graph and serves a browser dashboard and terminal viewer. Single binary.",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "flowdeck.yaml", "config file path")

	root.AddCommand(
		newServeCmd(),
		newTUICmd(),
		newHistoryCmd(),
		newInitCmd(),
		newVersionCmd(),
	)

	return root
}
