// Package groups implements the group listing subcommands.
package groups

import (
	"context"
	"fmt"
	"io"
	"text/template"

	"github.com/sigweb/signal-web/cmds/root"
	"github.com/sigweb/signal-web/rpcclient"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultFormat = "{{ .ID }} {{ .Name }}"

var (
	// Command is the root of the groups subtree.
	Command = &cobra.Command{
		Use:   "groups",
		Short: "Provides group-related commands.",
	}
)

func init() {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the groups of the account: ID and name",
		RunE:  root.ExecuteHelperE(runList, 0),
	}
	listCmd.Flags().String("format-string", defaultFormat, "Go Template string for output")
	listCmd.Flags().BoolP("member", "m", false, "Only include groups the account is a member of.")
	listCmd.Flags().Bool("raw", false, "Print the groups as YAML instead of using --format-string.")
	Command.AddCommand(listCmd)

	root.Command.AddCommand(Command)
}

func runList(client *rpcclient.Client, _ []string, out io.Writer, flags *pflag.FlagSet) error {
	groups, err := client.ListGroups(context.Background())
	if err != nil {
		return fmt.Errorf("could not list groups: %v", err)
	}
	if member, _ := flags.GetBool("member"); member {
		kept := groups[:0]
		for _, g := range groups {
			if g.IsMember {
				kept = append(kept, g)
			}
		}
		groups = kept
	}
	if raw, _ := flags.GetBool("raw"); raw {
		return root.WriteValue(flags, out, groups)
	}

	format, _ := flags.GetString("format-string")
	if format == "" {
		format = defaultFormat
	}
	tmpl, err := template.New("group").Parse(format + "\n")
	if err != nil {
		return fmt.Errorf("invalid format string: %v", err)
	}
	for _, g := range groups {
		if err := tmpl.Execute(out, g); err != nil {
			return err
		}
	}
	return nil
}
