package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/omegaalfa/QueryBuilder/cli/internal/ui"
	"github.com/omegaalfa/QueryBuilder/cli/internal/watch"
	"github.com/omegaalfa/QueryBuilder/internal/config"
)

type rawOptions struct {
	file   string
	params []string
	watch  bool
	format string
}

// NewRawCommand creates the raw command
func NewRawCommand(a *app) *cobra.Command {
	opts := &rawOptions{}

	cmd := &cobra.Command{
		Use:   "raw [sql]",
		Short: "Run SQL text with named parameters",
		Long: `Run SQL text with :name placeholders bound from --param flags.

Parameter values that parse as integers, floats or booleans are bound as such;
everything else is bound as a string. Quote a value to force a string.`,
		Example: `  querybuilder raw "SELECT * FROM users WHERE email = :email" --param email=ada@example.com
  querybuilder raw --file report.sql --param since=2024-01-01 --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (opts.file != "") {
				return fmt.Errorf("pass either SQL text or --file")
			}
			if opts.watch && opts.file == "" {
				return fmt.Errorf("--watch requires --file")
			}
			if !ui.ValidFormat(opts.format) {
				return fmt.Errorf("unsupported format %q", opts.format)
			}
			params, err := parseParams(opts.params)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			run := func() error {
				if len(args) == 1 {
					return runRaw(ctx, a, args[0], params, opts.format)
				}
				sql, err := readSQL(opts.file)
				if err != nil {
					return err
				}
				return runRaw(ctx, a, sql, params, opts.format)
			}
			if !opts.watch {
				return run()
			}
			return watchFile(ctx, opts.file, run)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", "", "read SQL from a file")
	flags.StringArrayVarP(&opts.params, "param", "p", nil, "bind a parameter as name=value (repeatable)")
	flags.BoolVarP(&opts.watch, "watch", "w", false, "run again whenever --file changes")
	flags.StringVarP(&opts.format, "format", "o", ui.FormatTable, "output format: "+strings.Join(ui.Formats, ", "))

	return cmd
}

func runRaw(ctx context.Context, a *app, sql string, params map[string]interface{}, format string) error {
	b, err := a.open()
	if err != nil {
		return err
	}
	result, err := b.Raw(sql, params).Execute(ctx)
	if err != nil {
		return err
	}
	return ui.RenderResult(a.out, result, format)
}

func readSQL(file string) (string, error) {
	data, err := afero.ReadFile(config.AppFs, file)
	if err != nil {
		return "", fmt.Errorf("failed to read SQL file: %w", err)
	}
	return string(data), nil
}

// watchFile runs fn now and after every change to file until interrupted.
// Failures after the first run are reported and watching continues.
func watchFile(ctx context.Context, file string, fn func() error) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watch.NewWatcher(file, func() error {
		ui.PrintSection(fmt.Sprintf("%s changed", file))
		if err := fn(); err != nil {
			ui.PrintError("%v", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	ui.PrintInfo("Watching %s, press Ctrl+C to stop", file)

	<-ctx.Done()
	return w.Stop()
}

// parseParams turns name=value pairs into bindings
func parseParams(pairs []string) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimPrefix(strings.TrimSpace(name), ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected name=value", pair)
		}
		params[name] = parseValue(value)
	}
	return params, nil
}

func parseValue(s string) interface{} {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
