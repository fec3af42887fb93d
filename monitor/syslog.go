//go:build !windows && !plan9

package monitor

import (
	"log/syslog"

	"github.com/sirupsen/logrus"
	lSyslog "github.com/sirupsen/logrus/hooks/syslog"
)

func addSyslogHook(logger *logrus.Logger, addr, tag string) error {
	hook, err := lSyslog.NewSyslogHook("udp", addr, syslog.LOG_DEBUG, tag)
	if err != nil {
		return err
	}
	logger.AddHook(hook)
	return nil
}
