// Command jobstatectl is an operator tool for inspecting a job state
// store directly: opening it, dumping a job's record, and walking its
// activatable/timed-out/backoff indexes without running a partition.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCommand() *cobra.Command {
	var configFile string
	var dir string

	root := &cobra.Command{
		Use:     "jobstatectl",
		Short:   "Inspect a job state store",
		Version: "0.1.0",
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (overrides --dir/tuning defaults)")
	root.PersistentFlags().StringVar(&dir, "dir", "", "database directory (ignored if --config is set)")

	root.AddCommand(buildOpenCommand(&configFile, &dir))
	root.AddCommand(buildInspectCommand(&configFile, &dir))
	root.AddCommand(buildActivatableCommand(&configFile, &dir))
	root.AddCommand(buildTimedOutCommand(&configFile, &dir))
	root.AddCommand(buildBackoffCommand(&configFile, &dir))
	root.AddCommand(buildStatsCommand(&configFile, &dir))

	return root
}
