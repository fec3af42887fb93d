package root

import (
	"os"

	"github.com/sigweb/signal-web/monitor"
	"github.com/sirupsen/logrus"
)

var (
	// Logger is the default log.Logger of the commands
	Logger = &logrus.Logger{
		Out:       os.Stderr,
		Formatter: &logrus.TextFormatter{DisableTimestamp: true},
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.WarnLevel,
	}
)

// setUpLogs applies the configured log level; --verbose overrides it.
func setUpLogs(verbose bool, level string) {
	switch {
	case verbose:
		Logger.SetLevel(logrus.DebugLevel)
	case level != "":
		if l, err := monitor.ParseLevel(level); err == nil {
			Logger.SetLevel(l)
		} else {
			Logger.WithError(err).Warn("ignoring log level")
		}
	}
}
