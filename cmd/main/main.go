package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// newRootCmd builds the tundra command tree. Every subcommand reads the same
// JSON configuration file.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tundra",
		Short:         "Tundra compiles and renders text templates",
		Long:          `Tundra resolves template inheritance, compiles templates into programs and renders them against JSON data.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "./config.json", "Path of the JSON configuration file")
	root.PersistentFlags().String("dir", "", "Template directory, overrides engine_config.base_dir")

	root.AddCommand(
		newRenderCmd(),
		newCheckCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
