package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lcx/flightrpc/config"
	"github.com/lcx/flightrpc/invocation"
	"github.com/lcx/flightrpc/log"
	"github.com/lcx/flightrpc/server"
)

// ServerOptions holds the flags of flightsrv. Flags that were not set leave
// the configuration file value alone.
type ServerOptions struct {
	ConfigDir       string
	Env             string
	Addr            string
	Semantics       string
	SimulateFailure bool
	Flights         string
	MetricsAddr     string

	mode invocation.Mode

	// onStarted runs once the server is bound, for tests.
	onStarted func(*server.Server)
}

// NewServerCommand creates the flightsrv root command.
func NewServerCommand() *cobra.Command {
	return newServerCommand(&ServerOptions{})
}

func newServerCommand(opts *ServerOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flightsrv",
		Short: "Flight reservation server",
		Long: `Serve flight queries, reservations and seat availability pushes over UDP.

Settings come from <config-dir>[/<env>]/flightsrv.yaml and are overridden by
the flags given on the command line.

Example:
  flightsrv --semantics at-least-once --simulate-failure
  flightsrv --config-dir ./conf --env prod --metrics-addr :9100`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			mode, err := invocation.ParseMode(opts.Semantics)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --semantics", err)
			}
			opts.mode = mode
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigDir, "config-dir", "config", "directory holding flightsrv.yaml and logger.yaml")
	cmd.Flags().StringVar(&opts.Env, "env", "", "environment subdirectory of --config-dir")
	cmd.Flags().StringVarP(&opts.Addr, "addr", "a", "", "UDP listen address (default 0.0.0.0:7878)")
	cmd.Flags().StringVarP(&opts.Semantics, "semantics", "s", "at-most-once", "invocation semantics (at-most-once|at-least-once)")
	cmd.Flags().BoolVarP(&opts.SimulateFailure, "simulate-failure", "f", false, "drop every other reply, starting with the first")
	cmd.Flags().StringVar(&opts.Flights, "flights", "", "YAML file with the flight table")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this TCP address")

	return cmd
}

// overrides returns the changes the command line makes to the loaded configuration.
func (o *ServerOptions) overrides(cmd *cobra.Command) func(*server.Config) {
	changed := cmd.Flags().Changed
	return func(cfg *server.Config) {
		if changed("addr") {
			cfg.Transport.Addr = o.Addr
		}
		if changed("semantics") {
			cfg.Semantics = o.mode
		}
		if changed("simulate-failure") {
			cfg.SimulateFailure = o.SimulateFailure
		}
		if changed("flights") {
			cfg.FlightsFile = o.Flights
		}
		if changed("metrics-addr") {
			cfg.MetricsAddr = o.MetricsAddr
		}
	}
}

func runServer(cmd *cobra.Command, opts *ServerOptions) error {
	cm := config.GetInstance()
	defer cm.Close()
	cm.SetBasePath(opts.ConfigDir)
	if opts.Env != "" {
		cm.SetEnvironment(opts.Env)
	}

	if err := log.InitializeWithConfigManager(cm); err != nil {
		return WrapExitError(ExitCommandError, "failed to load logger configuration", err)
	}
	defer log.Refresh()

	s, err := server.NewWithConfigManager(cm, opts.overrides(cmd))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create server", err)
	}
	if err := s.Start(); err != nil {
		return WrapExitError(ExitCommandError, "failed to start server", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "flightsrv listening on %s\n", s.Addr())
	if opts.onStarted != nil {
		opts.onStarted(s)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var fatal error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case fatal = <-s.Errors():
		log.Error().Err(fatal).Msg("socket failure, shutting down")
	}

	if err := s.Stop(); err != nil {
		log.Warn().Err(err).Msg("stop")
	}
	if fatal != nil {
		return WrapExitError(ExitFailure, "server stopped", fatal)
	}
	return nil
}
