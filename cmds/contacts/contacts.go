// Package contacts implements the contact listing subcommands.
package contacts

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/sigweb/signal-web/cmds/root"
	"github.com/sigweb/signal-web/model"
	"github.com/sigweb/signal-web/rpcclient"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultFormat = "{{ .Number }} {{ displayName . }}"

var (
	// Command is the root of the contacts subtree.
	Command = &cobra.Command{
		Use:   "contacts",
		Short: "Provides contact-related commands.",
	}
)

func init() {
	listCmd := &cobra.Command{
		Use:   "list [filter]",
		Short: "List the contacts of the account, optionally filtered by name or number",
		RunE:  root.ExecuteHelperE(runList, 0),
	}
	listCmd.Flags().String("format-string", defaultFormat, "Go Template string for output")
	listCmd.Flags().Bool("blocked", false, "Include blocked contacts.")
	Command.AddCommand(listCmd)

	root.Command.AddCommand(Command)
}

// displayName picks the best human readable name of a contact.
func displayName(c model.Contact) string {
	switch {
	case c.Name != "":
		return c.Name
	case c.ProfileName != "":
		return c.ProfileName
	case c.GivenName != "" || c.FamilyName != "":
		return strings.TrimSpace(c.GivenName + " " + c.FamilyName)
	case c.Username != "":
		return c.Username
	}
	return c.UUID
}

func matches(c model.Contact, filter string) bool {
	if filter == "" {
		return true
	}
	filter = strings.ToLower(filter)
	for _, field := range []string{c.Number, c.UUID, c.Username, displayName(c)} {
		if strings.Contains(strings.ToLower(field), filter) {
			return true
		}
	}
	return false
}

func runList(client *rpcclient.Client, args []string, out io.Writer, flags *pflag.FlagSet) error {
	contacts, err := client.ListContacts(context.Background())
	if err != nil {
		return fmt.Errorf("could not list contacts: %v", err)
	}
	format, _ := flags.GetString("format-string")
	if format == "" {
		format = defaultFormat
	}
	tmpl, err := template.New("contact").Funcs(template.FuncMap{"displayName": displayName}).Parse(format + "\n")
	if err != nil {
		return fmt.Errorf("invalid format string: %v", err)
	}

	filter := strings.Join(args, " ")
	blocked, _ := flags.GetBool("blocked")
	for _, c := range contacts {
		if (c.IsBlocked && !blocked) || !matches(c, filter) {
			continue
		}
		if err := tmpl.Execute(out, c); err != nil {
			return err
		}
	}
	return nil
}
