// Package cmd implements the subcommands of the kappale command line tool.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/spf13/cobra"
	"github.com/vsariola/kappale/config"
	"github.com/vsariola/kappale/songio"
)

// env is what every command runs with.
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *songio.Registry
	out      io.Writer
}

func newEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)
	return &env{cfg: cfg, logger: logger, registry: songio.DefaultRegistry(), out: os.Stdout}, nil
}

func (e *env) loader() *songio.Loader {
	return songio.NewLoader(e.registry, songio.WithLogger(e.logger))
}

// loadContext bounds a load by the configured timeout.
func (e *env) loadContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.LoadTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.LoadTimeout)
}

func defaultParamEnricher() boa.ParamEnricher {
	return boa.ParamEnricherCombine(
		boa.ParamEnricherBool,
		boa.ParamEnricherName,
		boa.ParamEnricherShort,
	)
}

// runner adapts f to a boa RunFunc: f runs with a context cancelled on
// interrupt, and a failure is printed and exits the process.
func runner[P any](name string, f func(context.Context, *env, *P) error) func(*P, *cobra.Command, []string) {
	return func(params *P, _ *cobra.Command, _ []string) {
		e, err := newEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			os.Exit(1)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		err = f(ctx, e, params)
		stop()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			os.Exit(1)
		}
	}
}
