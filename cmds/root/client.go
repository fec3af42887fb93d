package root

import (
	"errors"
	"fmt"
	"io"

	"github.com/sigweb/signal-web/rpcclient"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// ErrNoUpstream is returned when neither --upstream nor defaultUpstream
// names a backend.
var ErrNoUpstream = errors.New("no upstream: pass --upstream or set defaultUpstream in the configuration")

// Executor represents the function interface of the subcommands talking to
// the backend.
type Executor func(client *rpcclient.Client, args []string, out io.Writer, flagSet *pflag.FlagSet) error

// ExecuteHelperE wraps f into a cobra RunE, building the client from the
// root flags. At least minArgs arguments are required.
func ExecuteHelperE(f Executor, minArgs int) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < minArgs {
			return fmt.Errorf("%s expects at least %d argument(s)", cmd.Name(), minArgs)
		}
		client, err := Client(cmd)
		if err != nil {
			return err
		}
		return f(client, args, cmd.OutOrStdout(), cmd.Flags())
	}
}

// Upstream returns the backend named by --upstream, or the configured
// default.
func Upstream(cmd *cobra.Command) (string, error) {
	upstream, _ := cmd.Flags().GetString("upstream")
	if upstream == "" && Config != nil {
		upstream = Config.DefaultUpstream
	}
	if upstream == "" {
		return "", ErrNoUpstream
	}
	return upstream, nil
}

// Client returns an RPC client for the command. With --relay, requests go
// through the relay carrying a session naming the upstream; otherwise they
// go to the upstream directly.
func Client(cmd *cobra.Command) (*rpcclient.Client, error) {
	upstream, err := Upstream(cmd)
	if err != nil {
		return nil, err
	}
	relayURL, _ := cmd.Flags().GetString("relay")
	return NewClient(relayURL, upstream)
}

// NewClient is Client without the flags.
func NewClient(relayURL, upstream string) (*rpcclient.Client, error) {
	opts := []rpcclient.Option{rpcclient.WithLogger(Logger.WithField("upstream", upstream))}
	if Config != nil {
		if Config.AvatarPlaceholder != "" {
			opts = append(opts, rpcclient.WithAvatarPlaceholder(Config.AvatarPlaceholder))
		}
		if relayURL == "" && Config.UpstreamRPCPath != "" {
			opts = append(opts, rpcclient.WithRoute(Config.UpstreamRPCPath))
		}
	}
	if relayURL == "" {
		return rpcclient.NewUpstream(upstream, opts...), nil
	}
	if Config != nil && Config.SessionCookie != "" {
		return rpcclient.New(relayURL, opts...).WithSessionCookie(Config.SessionCookie, upstream)
	}
	return rpcclient.New(relayURL, opts...).WithSession(upstream)
}
