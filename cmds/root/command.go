// Package root defines the root of the application command tree.
package root

import (
	"github.com/sigweb/signal-web/cfg"
	"github.com/spf13/cobra"
)

var (
	// Command is the root of the command tree.
	Command = setUpRootCmd()

	// Config is loaded before every subcommand runs.
	Config *cfg.Config
)

// Setup persistent flags, pre-run and return root command
func setUpRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "signal-web",
		Short: "signal-web command line client.",
		Long: `A command line client for a messaging backend, talking to it directly or
through a signal-web relay.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	verbose := flags.BoolP("verbose", "v", false, "verbose output")
	flags.StringP("config", "c", "", "YAML configuration file (default $XDG_CONFIG_HOME/signal-web.yml)")
	flags.StringP("upstream", "u", "", "Base URL of the messaging backend (default from defaultUpstream)")
	flags.StringP("relay", "r", "", "Base URL of a signal-web relay to go through")

	// function to run before every subcommand
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		c, err := cfg.Load(path)
		if err != nil {
			return err
		}
		Config = c
		setUpLogs(*verbose, Config.LogLevel)
		Logger.Debugf("Config: %v", Config)
		return nil
	}

	return rootCmd
}
