// Package commands implements the querybuilder command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/omegaalfa/QueryBuilder/cli/internal/version"
)

// Execute runs the root command
func Execute() error {
	return NewRootCommand(newApp()).Execute()
}

// NewRootCommand creates the root command with every subcommand attached
func NewRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "querybuilder",
		Short:         "Build and run parameterized SQL from the command line",
		Long:          "querybuilder renders SELECT statements from flags or runs raw SQL with named parameters against MySQL, PostgreSQL or SQLite.",
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.opts.ConfigFile, "config", "", "config file (default: .querybuilder.yaml in ., $HOME or $HOME/.config/querybuilder)")
	flags.StringSliceVar(&a.opts.EnvFiles, "env-file", nil, "dotenv files to load instead of .env and .env.local")
	flags.BoolVar(&a.debug, "debug", false, "log statements and connection events to stderr")
	flags.BoolVar(&a.stats, "stats", false, "print statement statistics when done")
	flags.BoolVar(&a.askPassword, "ask-password", false, "prompt for the database password when none is configured")

	cmd.AddCommand(NewSelectCommand(a))
	cmd.AddCommand(NewRawCommand(a))
	cmd.AddCommand(NewPingCommand(a))
	cmd.AddCommand(NewConfigCommand(a))
	cmd.AddCommand(NewVersionCommand())
	return cmd
}
