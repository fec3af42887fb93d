// Package monitor sets up logging and error reporting for the relay.
package monitor

import (
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"strings"

	raven "github.com/getsentry/raven-go"
	mozlog "github.com/mozilla-services/go-mozlogrus"
	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"
	nullLog "github.com/sirupsen/logrus/hooks/test"
)

// Config selects the log level and format, and where errors are reported.
type Config struct {
	// Name is used as the mozlog logger name and the sentry project tag.
	Name      string
	LogLevel  string
	LogFormat string
	SentryDSN string
	// SyslogAddr is a UDP address receiving a copy of all log entries.
	SyslogAddr string
	Tags       map[string]string
	Output     io.Writer
}

// A Monitor writes logs and reports errors, adding its tags and prefix to
// both.
//
// Child monitors created with WithTag and WithPrefix share the sentry client
// of their parent. Prefixes should be constant component names; values that
// change per request belong in tags.
type Monitor struct {
	*logrus.Entry
	sentry *raven.Client
	tags   map[string]string
	prefix string
}

// ParseLevel accepts the logrus level names, case insensitively.
func ParseLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(level) {
	case logrus.TraceLevel.String():
		return logrus.TraceLevel, nil
	case logrus.DebugLevel.String():
		return logrus.DebugLevel, nil
	case logrus.InfoLevel.String(), "":
		return logrus.InfoLevel, nil
	case logrus.WarnLevel.String(), "warn":
		return logrus.WarnLevel, nil
	case logrus.ErrorLevel.String():
		return logrus.ErrorLevel, nil
	case logrus.FatalLevel.String():
		return logrus.FatalLevel, nil
	case logrus.PanicLevel.String():
		return logrus.PanicLevel, nil
	}
	return logrus.InfoLevel, fmt.Errorf("unsupported log-level: %s", level)
}

// NewLogger builds a logger from cfg. The "mozlog" format writes mozlog
// JSON, "json" plain logrus JSON, anything else text.
func NewLogger(cfg Config) (*logrus.Logger, error) {
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.Level = level
	if cfg.Output != nil {
		logger.Out = cfg.Output
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "mozlog":
		logger.Formatter = &mozlog.MozLogFormatter{
			LoggerName: cfg.Name,
		}
	case "json":
		logger.Formatter = &logrus.JSONFormatter{}
	case "", "text":
		logger.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	default:
		return nil, fmt.Errorf("unsupported log-format: %s", cfg.LogFormat)
	}
	if cfg.SyslogAddr != "" {
		if err := addSyslogHook(logger, cfg.SyslogAddr, cfg.Name); err != nil {
			return nil, err
		}
	}
	return logger, nil
}

// New creates a monitor with a logger built from cfg and, when a DSN is
// configured, a sentry client.
func New(cfg Config) (*Monitor, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	var client *raven.Client
	if cfg.SentryDSN != "" {
		client, err = raven.New(cfg.SentryDSN)
		if err != nil {
			return nil, fmt.Errorf("invalid sentry DSN: %w", err)
		}
	}
	return newMonitor(logger, client, cfg.Tags), nil
}

// FromLogger wraps an existing logger, without error reporting.
func FromLogger(logger *logrus.Logger) *Monitor {
	return newMonitor(logger, nil, nil)
}

// NewNull returns a monitor that discards everything, and the hook
// recording the discarded entries.
func NewNull() (*Monitor, *nullLog.Hook) {
	logger, hook := nullLog.NewNullLogger()
	logger.Level = logrus.DebugLevel
	return FromLogger(logger), hook
}

func newMonitor(logger *logrus.Logger, client *raven.Client, tags map[string]string) *Monitor {
	fields := make(logrus.Fields, len(tags))
	for k, v := range tags {
		fields[k] = v
	}
	return &Monitor{
		Entry:  logrus.NewEntry(logger).WithFields(fields),
		sentry: client,
		tags:   maps.Clone(tags),
	}
}

// CapturePanic runs fn and recovers a panic from it. The incident id is
// empty when fn returned normally.
func (m *Monitor) CapturePanic(fn func()) (incidentID string) {
	defer func() {
		if crash := recover(); crash != nil {
			message := fmt.Sprint(crash)
			id := uuid.NewRandom()
			incidentID = id.String()
			m.Entry.WithField("incidentId", incidentID).WithField("panic", crash).Error("Recovered from panic:\n " + message)
			m.submitError(fmt.Errorf("PANIC: %s", message), fmt.Sprint("Recovered from panic ", message), raven.ERROR, id, 1)
		}
	}()
	fn()
	return
}

func (m *Monitor) ReportError(err error, message ...any) string {
	incidentID := uuid.NewRandom()
	m.Entry.WithField("incidentId", incidentID.String()).WithError(err).Error(message...)
	m.submitError(err, fmt.Sprint(message...), raven.ERROR, incidentID, 1)
	return incidentID.String()
}

func (m *Monitor) ReportWarning(err error, message ...any) string {
	incidentID := uuid.NewRandom()
	m.Entry.WithField("incidentId", incidentID.String()).WithError(err).Warn(message...)
	m.submitError(err, fmt.Sprint(message...), raven.WARNING, incidentID, 1)
	return incidentID.String()
}

// submitError sends the error to sentry, when configured.
func (m *Monitor) submitError(err error, message string, level raven.Severity, incidentID uuid.UUID, skipFrames int) {
	if m.sentry == nil {
		return
	}
	exception := raven.NewException(err, raven.NewStacktrace(1+skipFrames, 5, []string{
		"github.com/sigweb/",
	}))

	text := fmt.Sprintf("Error: %s\nMessage: %s", err.Error(), message)
	packet := raven.NewPacket(text, exception)
	packet.Level = level
	packet.EventID = hex.EncodeToString(incidentID)

	tags := make(map[string]string, len(m.tags)+2)
	maps.Copy(tags, m.tags)
	tags["incidentId"] = incidentID.String()
	tags["prefix"] = m.prefix

	_, done := m.sentry.Capture(packet, tags)
	if sendErr := <-done; sendErr != nil {
		m.Entry.WithError(sendErr).Error("Failed to send error to sentry")
	}
}

// WithTags creates a child monitor with the given tags added.
func (m *Monitor) WithTags(tags map[string]string) *Monitor {
	allTags := make(map[string]string, len(m.tags)+len(tags))
	maps.Copy(allTags, m.tags)
	maps.Copy(allTags, tags)
	fields := make(logrus.Fields, len(allTags)+1)
	for k, v := range allTags {
		fields[k] = v
	}
	fields["prefix"] = m.prefix // don't allow overwrite "prefix"
	return &Monitor{
		Entry:  m.Entry.WithFields(fields),
		sentry: m.sentry,
		tags:   allTags,
		prefix: m.prefix,
	}
}

// WithTag creates a child monitor with the given tag.
func (m *Monitor) WithTag(key, value string) *Monitor {
	return m.WithTags(map[string]string{key: value})
}

// WithPrefix creates a child monitor with the given prefix appended.
func (m *Monitor) WithPrefix(prefix string) *Monitor {
	completePrefix := prefix
	if m.prefix != "" {
		completePrefix = m.prefix + "." + prefix
	}
	return &Monitor{
		Entry:  m.Entry.WithField("prefix", completePrefix),
		sentry: m.sentry,
		tags:   m.tags,
		prefix: completePrefix,
	}
}

// Close flushes pending sentry reports.
func (m *Monitor) Close() {
	if m.sentry != nil {
		m.sentry.Wait()
		m.sentry.Close()
	}
}
