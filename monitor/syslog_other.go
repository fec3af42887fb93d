//go:build windows || plan9

package monitor

import (
	"errors"

	"github.com/sirupsen/logrus"
)

func addSyslogHook(*logrus.Logger, string, string) error {
	return errors.New("syslog is not supported on this platform")
}
