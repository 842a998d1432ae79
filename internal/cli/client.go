package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lcx/flightrpc/client"
	"github.com/lcx/flightrpc/discovery"
)

// ClientOptions holds the flags of flightcli.
type ClientOptions struct {
	Server      string
	Timeout     time.Duration
	Consul      string
	ServiceName string
}

// NewClientCommand creates the flightcli root command.
func NewClientCommand() *cobra.Command {
	opts := &ClientOptions{}

	cmd := &cobra.Command{
		Use:   "flightcli",
		Short: "Interactive flight reservation client",
		Long: `Query flights, reserve seats and baggage, and monitor seat availability
from an interactive menu.

Requests that get no reply within --timeout are resent unchanged until the
server answers.

Example:
  flightcli --server 10.0.0.5:7878
  flightcli --consul 127.0.0.1:8500 --service-name flightsrv`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Timeout <= 0 {
				return WrapExitError(ExitCommandError, "invalid --timeout", fmt.Errorf("%s is not positive", opts.Timeout))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Server, "server", "127.0.0.1:7878", "server address")
	cmd.Flags().DurationVarP(&opts.Timeout, "timeout", "t", client.DefaultTimeout, "wait this long for a reply before resending")
	cmd.Flags().StringVar(&opts.Consul, "consul", "", "resolve the server from this consul agent instead of --server")
	cmd.Flags().StringVar(&opts.ServiceName, "service-name", discovery.DefaultServiceName, "consul service name of the server")

	return cmd
}

func dialServer(ctx context.Context, opts *ClientOptions, clientOpts ...client.Option) (*client.Client, error) {
	if opts.Consul == "" {
		return client.Dial(ctx, opts.Server, clientOpts...)
	}
	addr, err := discovery.Resolve(ctx, opts.Consul, opts.ServiceName)
	if err != nil {
		return nil, err
	}
	return client.DialAddrPort(addr, clientOpts...)
}

func runClient(cmd *cobra.Command, opts *ClientOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	c, err := dialServer(ctx, opts,
		client.WithTimeout(opts.Timeout),
		client.WithRetryHook(func(cid uint32, attempt int) {
			fmt.Fprintf(out, "[client] Client timed out waiting for a response! Resending request %d (attempt %d)\n", cid, attempt+1)
		}),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to reach server", err)
	}
	defer c.Close()

	fmt.Fprintf(out, "-- Client is listening on port: %d\n", c.LocalAddr().Port())
	return NewMenu(c, cmd.InOrStdin(), out).Run(ctx)
}
