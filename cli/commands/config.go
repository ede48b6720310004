package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omegaalfa/QueryBuilder/cli/internal/ui"
)

// NewConfigCommand creates the config command
func NewConfigCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration with the password masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.File != "" {
				fmt.Fprintf(a.out, "# %s\n", a.cfg.File)
			}
			return ui.WriteYAML(a.out, a.cfg.Redacted())
		},
	}
}
