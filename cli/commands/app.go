package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/omegaalfa/QueryBuilder/cli/internal/ui"
	"github.com/omegaalfa/QueryBuilder/internal/config"
	"github.com/omegaalfa/QueryBuilder/internal/debug"
	"github.com/omegaalfa/QueryBuilder/query/builder"
	"github.com/omegaalfa/QueryBuilder/query/executor"
	"github.com/omegaalfa/QueryBuilder/runtime/connection"
	"github.com/omegaalfa/QueryBuilder/telemetry"
)

// app carries the resolved configuration and the lazily opened builder
// shared by all commands of one invocation
type app struct {
	opts        config.LoadOptions
	debug       bool
	stats       bool
	askPassword bool

	out       io.Writer
	prompt    func(message string) (string, error)
	providers []connection.Option

	cfg       *config.Config
	provider  *connection.Provider
	builder   *builder.Builder
	collector *telemetry.Collector
}

func newApp() *app {
	return &app{
		out:    os.Stdout,
		prompt: ui.PromptPassword,
	}
}

// load resolves the configuration and sets up logging
func (a *app) load() error {
	cfg, err := config.Load(a.opts)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Debug = true
	}
	debug.Init(cfg.Debug)

	if a.askPassword && cfg.Database.Password == "" && cfg.Database.Kind() != "sqlite" {
		password, err := a.prompt(fmt.Sprintf("Password for %s@%s:", cfg.Database.Username, cfg.Database.Host))
		if err != nil {
			return err
		}
		cfg.Database.Password = password
	}

	a.cfg = cfg
	return nil
}

// open returns the builder, creating the provider on first use
func (a *app) open() (*builder.Builder, error) {
	if a.builder != nil {
		return a.builder, nil
	}
	if err := a.cfg.Database.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	store, err := a.cfg.CacheStore(config.AppFs)
	if err != nil {
		return nil, err
	}

	a.collector = telemetry.NewCollector(telemetry.WithSlowThreshold(time.Second), telemetry.WithSlowLog())
	opts := []builder.Option{
		builder.WithEmptyValueCheck(a.cfg.RejectEmptyValues),
		builder.WithDefaultCacheTTL(a.cfg.Cache.DefaultTTL),
		builder.WithMiddleware(executor.LoggingMiddleware(), a.collector.Middleware()),
	}
	if store != nil {
		opts = append(opts, builder.WithCache(store))
	}

	a.provider = connection.NewProvider(a.cfg.Database, a.providers...)
	a.builder = builder.New(a.provider, opts...)
	return a.builder, nil
}

// close prints statistics when requested and releases the connection
func (a *app) close() error {
	if a.stats && a.collector != nil {
		headers, rows := ui.StatsTable(a.collector.Snapshot())
		out, err := ui.RenderTable(headers, rows)
		if err != nil {
			return err
		}
		fmt.Fprint(a.out, out)
	}
	if a.provider != nil {
		return a.provider.Disconnect()
	}
	return nil
}
