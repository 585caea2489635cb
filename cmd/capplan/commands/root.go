package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfroyo/capplan/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	logLevel   string
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "capplan",
		Short: "capplan - SMT-based capability composition planner",
		Long: `capplan composes the provided capabilities of a model into a plan that
achieves a required capability.

Each horizon of one or more happenings becomes an SMT problem: the required
capability's inputs are the initial state, its outputs are the goal, and
provided capabilities change properties between happenings. The smallest
satisfiable horizon is decoded into a plan. When none is found, a minimal
unsat core names the conflicting initial values and preconditions.

Models are read from Mangle files or a SPARQL endpoint. Problems are solved by
z3 or, when they are purely boolean, in process by gini.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if logLevel != "" {
				zerolog.SetGlobalLevel(telemetry.ParseLevel(logLevel))
			}
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (YAML or CUE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newQueryCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newRunsCommand())

	return rootCmd
}
