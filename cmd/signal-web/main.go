// Command signal-web is the command line client of the messaging backend.
package main

import (
	"os"

	"github.com/sigweb/signal-web/cmds/root"

	_ "github.com/sigweb/signal-web/cmds/attachment"
	_ "github.com/sigweb/signal-web/cmds/avatar"
	_ "github.com/sigweb/signal-web/cmds/call"
	_ "github.com/sigweb/signal-web/cmds/completions"
	_ "github.com/sigweb/signal-web/cmds/contacts"
	_ "github.com/sigweb/signal-web/cmds/groups"
	_ "github.com/sigweb/signal-web/cmds/send"
	_ "github.com/sigweb/signal-web/cmds/status"
	_ "github.com/sigweb/signal-web/cmds/version"
)

func main() {
	if err := root.Command.Execute(); err != nil {
		os.Exit(1)
	}
}
