// Package send implements the send subcommand.
package send

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sigweb/signal-web/cmds/root"
	"github.com/sigweb/signal-web/model"
	"github.com/sigweb/signal-web/rpcclient"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func init() {
	sendCmd := &cobra.Command{
		Use:   "send <message...>",
		Short: "Send a message to recipients or to a group.",
		Long: `Sends a message. Either --to (repeatable) or --group must be given.

The words of the message are joined with spaces.`,
		RunE: root.ExecuteHelperE(runSend, 1),
	}
	sendCmd.Flags().StringSliceP("to", "t", nil, "Recipient number; may be repeated.")
	sendCmd.Flags().StringP("group", "g", "", "Group to send the message to.")
	sendCmd.Flags().StringSliceP("attachment", "a", nil, "Attachment to send, as understood by the backend; may be repeated.")
	root.AddOutputFlags(sendCmd)
	root.Command.AddCommand(sendCmd)
}

func runSend(client *rpcclient.Client, args []string, out io.Writer, flags *pflag.FlagSet) error {
	req := model.SendRequest{Message: strings.Join(args, " ")}
	req.Recipients, _ = flags.GetStringSlice("to")
	req.GroupID, _ = flags.GetString("group")
	req.Attachments, _ = flags.GetStringSlice("attachment")
	switch {
	case len(req.Recipients) == 0 && req.GroupID == "":
		return errors.New("send needs --to or --group")
	case len(req.Recipients) > 0 && req.GroupID != "":
		return errors.New("--to and --group are mutually exclusive")
	}

	result, err := client.Send(context.Background(), req)
	if err != nil {
		return fmt.Errorf("could not send message: %v", err)
	}
	return root.WriteValue(flags, out, result)
}
