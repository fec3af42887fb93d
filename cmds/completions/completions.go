// Package completions implements command completion support.
package completions

import (
	"fmt"

	"github.com/sigweb/signal-web/cmds/root"
	"github.com/spf13/cobra"
)

var (
	defaultFilename = "completion.sh"
)

func init() {
	use := "completions shell [filename (default:" + defaultFilename + ")]"
	completionsCommand := &cobra.Command{
		Short: "Provides completion script for the specified shell.",
		Long: `Writes a completion script for the specified shell to the path specified, or the default filename if not given.

For bash, 'source bash_completion.sh' adds it to your current shell.`,
		Use: use,
	}
	root.Command.AddCommand(completionsCommand)

	shortDesc := "Generate the autocompletion script for %s"
	usage := "%s [filename]"

	for _, shell := range []string{"bash", "fish", "powershell", "zsh"} {
		completionsCommand.AddCommand(&cobra.Command{
			Args:  cobra.MaximumNArgs(1),
			RunE:  genCompletion(shell),
			Short: fmt.Sprintf(shortDesc, shell),
			Use:   fmt.Sprintf(usage, shell),
		})
	}
}

func genCompletion(shell string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		filename := fmt.Sprintf("%s_%s", shell, defaultFilename)
		if len(args) > 0 {
			filename = args[0]
		}

		switch shell {
		case "bash":
			return root.Command.GenBashCompletionFile(filename)
		case "fish":
			return root.Command.GenFishCompletionFile(filename, false)
		case "powershell":
			return root.Command.GenPowerShellCompletionFile(filename)
		case "zsh":
			return root.Command.GenZshCompletionFile(filename)
		}

		return nil
	}
}
