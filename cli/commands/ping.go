package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/omegaalfa/QueryBuilder/cli/internal/ui"
)

// NewPingCommand creates the ping command
func NewPingCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Connect and report the server version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.open(); err != nil {
				return err
			}

			start := time.Now()
			if _, err := a.provider.Connect(cmd.Context()); err != nil {
				return err
			}
			elapsed := time.Since(start)

			v, err := a.provider.CheckServerVersion(cmd.Context())
			if v == nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s reachable in %s (server %s)\n",
				a.cfg.Database.Kind(), a.cfg.Database.Host, elapsed.Round(time.Millisecond), v.Original())
			if err != nil {
				ui.PrintWarning("%v", err)
			}
			return nil
		},
	}
}
