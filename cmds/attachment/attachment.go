// Package attachment implements the attachment download subcommand.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/sigweb/signal-web/cmds/root"
	"github.com/sigweb/signal-web/rpcclient"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// ErrNeedsRelay is returned when downloading without --relay; only the
// relay serves decoded attachments.
var ErrNeedsRelay = errors.New("attachment downloads go through a relay, pass --relay")

func init() {
	downloadCmd := &cobra.Command{
		Use:   "attachment <attachmentId>",
		Short: "Download an attachment through the relay.",
		Long: `Downloads an attachment through the relay's attachment endpoint, retrying
intermittent failures.

Without --output the file is named after the attachment's filename, or its id
when it has none, and written to --dir. Use --output - to write to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if relayURL, _ := cmd.Flags().GetString("relay"); relayURL == "" {
				return ErrNeedsRelay
			}
			return root.ExecuteHelperE(runDownload, 1)(cmd, args)
		},
	}
	downloadCmd.Flags().StringP("group", "g", "", "Group the attachment was sent in.")
	downloadCmd.Flags().String("recipient", "", "Recipient of the conversation the attachment was sent in.")
	downloadCmd.Flags().StringP("output", "o", "", "File to write the attachment to.")
	downloadCmd.Flags().StringP("dir", "d", ".", "Directory to write the attachment to when --output is not given.")

	root.Command.AddCommand(downloadCmd)
}

func runDownload(client *rpcclient.Client, args []string, out io.Writer, flags *pflag.FlagSet) error {
	ctx := context.Background()
	ref := rpcclient.AttachmentRef{ID: args[0]}
	ref.GroupID, _ = flags.GetString("group")
	ref.RecipientID, _ = flags.GetString("recipient")
	output, _ := flags.GetString("output")

	if output != "" && output != "-" {
		d, err := client.DownloadAttachmentToFile(ctx, ref, output)
		if err != nil {
			_ = os.Remove(output)
			return downloadError(ref, err)
		}
		fmt.Fprintf(out, "wrote %d bytes (%s) to %s\n", d.ContentLength, d.ContentType, output)
		return nil
	}

	buf, d, err := client.DownloadAttachmentToBuf(ctx, ref)
	if err != nil {
		return downloadError(ref, err)
	}
	if output == "-" {
		_, err := out.Write(buf)
		return err
	}
	dir, _ := flags.GetString("dir")
	path := filepath.Join(dir, filename(d.ContentDisposition, ref.ID))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d bytes (%s) to %s\n", len(buf), d.ContentType, path)
	return nil
}

func downloadError(ref rpcclient.AttachmentRef, err error) error {
	if errors.Is(err, rpcclient.ErrAttachmentNotFound) {
		return fmt.Errorf("attachment %s not found", ref.ID)
	}
	return fmt.Errorf("could not download attachment %s: %v", ref.ID, err)
}

// filename returns the base name carried by a Content-Disposition header,
// or fallback.
func filename(disposition, fallback string) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		if name := filepath.Base(params["filename"]); params["filename"] != "" && name != "." && name != "/" && name != ".." {
			return name
		}
	}
	return filepath.Base(fallback)
}
