// Package version holds the release version of signal-web.
package version

import (
	"fmt"
	"runtime"
)

// Version is filled in at release time with
// -ldflags "-X github.com/sigweb/signal-web/version.Version=<version>".
var Version = "1.0.0"

// Revision is the git commit the binaries were built from, when known.
var Revision = ""

// String returns a one line description of the build.
func String(program string) string {
	s := fmt.Sprintf("%s version %s", program, Version)
	if Revision != "" {
		s += " (" + Revision + ")"
	}
	return s + fmt.Sprintf(" %s/%s", runtime.GOOS, runtime.GOARCH)
}

// UserAgent is sent by the clients in this module.
func UserAgent() string {
	return "signal-web/" + Version
}
