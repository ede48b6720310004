package main

import (
	"os"

	"github.com/omegaalfa/QueryBuilder/cli/commands"
	"github.com/omegaalfa/QueryBuilder/cli/internal/ui"
)

func main() {
	if err := commands.Execute(); err != nil {
		ui.PrintError("%v", err)
		os.Exit(1)
	}
}
