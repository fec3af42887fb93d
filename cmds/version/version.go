// Package version implements the version subcommand.
package version

import (
	"context"
	"fmt"
	"io"

	"github.com/sigweb/signal-web/cmds/root"
	"github.com/sigweb/signal-web/rpcclient"
	"github.com/sigweb/signal-web/version"
	"github.com/spf13/cobra"
)

var (
	// Command is the cobra command representing the version subtree.
	Command = &cobra.Command{
		Use:   "version",
		Short: "Prints the signal-web version.",
		RunE:  runVersion,
	}
)

func init() {
	Command.Flags().BoolP("backend", "b", false, "Also ask the backend for its version.")
	root.Command.AddCommand(Command)
}

func runVersion(cmd *cobra.Command, _ []string) error {
	printVersion(cmd.OutOrStdout())
	if backend, _ := cmd.Flags().GetBool("backend"); !backend {
		return nil
	}
	client, err := root.Client(cmd)
	if err != nil {
		return err
	}
	return printBackendVersion(client, cmd.OutOrStdout())
}

func printVersion(out io.Writer) {
	fmt.Fprintln(out, version.String("signal-web"))
}

func printBackendVersion(client *rpcclient.Client, out io.Writer) error {
	info, err := client.Version(context.Background())
	if err != nil {
		return fmt.Errorf("could not get the backend version: %v", err)
	}
	fmt.Fprintf(out, "backend version %s\n", info.Version)
	return nil
}
