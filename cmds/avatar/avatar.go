// Package avatar implements the avatar lookup and avatar cache subcommands.
package avatar

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sigweb/signal-web/avatars"
	"github.com/sigweb/signal-web/cmds/root"
	"github.com/sigweb/signal-web/kvstore"
	"github.com/sigweb/signal-web/rpcclient"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Command is the root of the avatar subtree.
	Command = &cobra.Command{
		Use:   "avatar",
		Short: "Look up profile avatars and manage the local avatar cache.",
	}
)

func init() {
	getCmd := &cobra.Command{
		Use:   "get <profile> [profile...]",
		Short: "Print the avatar reference (data URI or placeholder) of profiles",
		RunE:  root.ExecuteHelperE(runGet, 1),
	}
	getCmd.Flags().Bool("no-cache", false, "Always ask the backend, bypassing the local cache.")
	getCmd.Flags().String("save", "", "Write the decoded image of the (single) profile to this file.")
	Command.AddCommand(getCmd)

	Command.AddCommand(&cobra.Command{
		Use:   "cached",
		Short: "List the profiles with a cached avatar",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCached(cmd.OutOrStdout())
		},
	})
	Command.AddCommand(&cobra.Command{
		Use:   "forget <profile> [profile...]",
		Short: "Drop the cached avatars of profiles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForget(args, cmd.OutOrStdout())
		},
	})
	Command.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty the local avatar cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(cmd.OutOrStdout())
		},
	})

	root.Command.AddCommand(Command)
}

// openCache returns an avatar cache in front of fetcher, backed by the
// configured cache directory unless noCache is set.
func openCache(fetcher avatars.Fetcher, noCache bool) (*avatars.Cache, error) {
	log := root.Logger.WithField("command", "avatar")
	var store *kvstore.Store[avatars.Entry]
	if !noCache {
		if root.Config == nil || root.Config.CacheDir == "" {
			return nil, errors.New("no cache directory configured")
		}
		var err error
		store, err = avatars.OpenStore(root.Config.CacheDir, kvstore.Compression(root.Config.CacheCompression), log, nil)
		if err != nil {
			return nil, err
		}
	}
	c := avatars.New(fetcher, store, log)
	if root.Config != nil {
		c.TTL = root.Config.AvatarTTL()
	}
	return c, nil
}

func runGet(client *rpcclient.Client, args []string, out io.Writer, flags *pflag.FlagSet) error {
	noCache, _ := flags.GetBool("no-cache")
	save, _ := flags.GetString("save")
	if save != "" && len(args) != 1 {
		return errors.New("--save needs exactly one profile")
	}
	cache, err := openCache(client, noCache)
	if err != nil {
		return err
	}
	defer cache.Close()

	for _, profile := range args {
		ref, err := cache.Get(context.Background(), profile)
		if err != nil {
			return fmt.Errorf("could not fetch avatar of %s: %v", profile, err)
		}
		if save != "" {
			return saveImage(client, ref, save, out)
		}
		if len(args) > 1 {
			fmt.Fprintf(out, "%s %s\n", profile, ref)
		} else {
			fmt.Fprintln(out, ref)
		}
	}
	return nil
}

func saveImage(client *rpcclient.Client, ref, path string, out io.Writer) error {
	if client.IsPlaceholder(ref) {
		fmt.Fprintln(out, "profile has no avatar")
		return nil
	}
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(ref, prefix) {
		return fmt.Errorf("unexpected avatar reference %q", ref)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ref, prefix))
	if err != nil {
		return fmt.Errorf("avatar is not valid base64: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d bytes to %s\n", len(data), path)
	return nil
}

func runCached(out io.Writer) error {
	cache, err := openCache(nil, false)
	if err != nil {
		return err
	}
	defer cache.Close()
	profiles, err := cache.Profiles(context.Background())
	if err != nil {
		return err
	}
	for _, p := range profiles {
		fmt.Fprintln(out, p)
	}
	return nil
}

func runForget(args []string, out io.Writer) error {
	cache, err := openCache(nil, false)
	if err != nil {
		return err
	}
	defer cache.Close()
	for _, profile := range args {
		if err := cache.Forget(context.Background(), profile); err != nil {
			return err
		}
		fmt.Fprintf(out, "forgot %s\n", profile)
	}
	return nil
}

func runClear(out io.Writer) error {
	cache, err := openCache(nil, false)
	if err != nil {
		return err
	}
	defer cache.Close()
	if err := cache.Clear(context.Background()); err != nil {
		return err
	}
	fmt.Fprintln(out, "avatar cache cleared")
	return nil
}
