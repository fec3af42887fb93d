package monitor

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"INFO":    logrus.InfoLevel,
		"":        logrus.InfoLevel,
		"warn":    logrus.WarnLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("chatty")
	assert.Error(t, err)
}

func TestMozlogFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	m, err := New(Config{Name: "signal-web", LogLevel: "info", LogFormat: "mozlog", Output: buf})
	require.NoError(t, err)
	m.WithField("path", "/api/send").Info("relayed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "signal-web", entry["Logger"])
}

func TestUnknownFormat(t *testing.T) {
	_, err := New(Config{LogFormat: "xml"})
	assert.Error(t, err)
}

func TestInvalidSentryDSN(t *testing.T) {
	_, err := New(Config{SentryDSN: "not a dsn"})
	assert.Error(t, err)
}

func TestCapturePanic(t *testing.T) {
	m, hook := NewNull()

	incidentID := m.CapturePanic(func() {
		t.Log("No panicing happens here")
	})
	require.Equal(t, "", incidentID)

	incidentID = m.CapturePanic(func() {
		callingSomethingBad()
	})
	require.NotEqual(t, "", incidentID)
	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, logrus.ErrorLevel, last.Level)
	assert.Equal(t, incidentID, last.Data["incidentId"])
}

func TestReportError(t *testing.T) {
	m, hook := NewNull()
	id := m.WithPrefix("relay").WithTag("requestId", "abc").ReportError(errors.New("boom"), "upstream failed")
	assert.NotEmpty(t, id)
	last := hook.LastEntry()
	assert.Equal(t, "relay", last.Data["prefix"])
	assert.Equal(t, "abc", last.Data["requestId"])
	assert.Equal(t, id, last.Data["incidentId"])

	m.ReportWarning(errors.New("meh"), "slow")
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestPrefixesNest(t *testing.T) {
	m, hook := NewNull()
	m.WithPrefix("relay").WithPrefix("attachments").Info("hi")
	assert.Equal(t, "relay.attachments", hook.LastEntry().Data["prefix"])
}

func badThingHappens() {
	panic("Oh, this is bad")
}

func callingSomethingBad() {
	badThingHappens()
}
