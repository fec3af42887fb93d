package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
}

func TestDefaultAddress(t *testing.T) {
	isolate(t)
	opts, err := ParseCommandArgs([]string{}, false)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if opts.Config.ListenAddress != ":3000" {
		t.Fatalf("Was expecting address ':3000', but got address '%v'.", opts.Config.ListenAddress)
	}
	if opts.WaitTimeout != time.Minute {
		t.Fatalf("Was expecting a one minute wait timeout, but got %v", opts.WaitTimeout)
	}
	if opts.Open || opts.WaitForUpstream != "" {
		t.Fatalf("Unexpected options: %#v", opts)
	}
}

func TestNondefaultPort(t *testing.T) {
	isolate(t)
	opts, err := ParseCommandArgs([]string{"--port", "12345"}, false)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if opts.Config.ListenAddress != ":12345" {
		t.Fatalf("Was expecting address ':12345', but got address '%v'.", opts.Config.ListenAddress)
	}
}

func TestPortOutOfRange(t *testing.T) {
	isolate(t)
	if _, err := ParseCommandArgs([]string{"--port", "70000"}, false); err == nil {
		t.Fatal("Was expecting an error for port 70000")
	}
}

func TestIPAddress(t *testing.T) {
	isolate(t)
	opts, err := ParseCommandArgs([]string{"--ip-address", "::1", "-p", "8080"}, false)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if opts.Config.ListenAddress != "[::1]:8080" {
		t.Fatalf("Was expecting address '[::1]:8080', but got address '%v'.", opts.Config.ListenAddress)
	}
}

func TestBadIPAddress(t *testing.T) {
	isolate(t)
	if _, err := ParseCommandArgs([]string{"--ip-address", "localhost"}, false); err == nil {
		t.Fatal("Was expecting an error for a host name given as IP address")
	}
}

func TestConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "signal-web.yml")
	content := "listenAddress: 127.0.0.1:4000\nlogLevel: warn\nallowedUpstreams:\n  - http://signal-cli:8080\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("%v", err)
	}
	opts, err := ParseCommandArgs([]string{"--config", path, "--log-level", "debug"}, false)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if opts.Config.ListenAddress != "127.0.0.1:4000" {
		t.Fatalf("Was expecting address from config file, but got '%v'.", opts.Config.ListenAddress)
	}
	if opts.Config.LogLevel != "debug" {
		t.Fatalf("Command line log level should win over the config file, got %v", opts.Config.LogLevel)
	}
	if len(opts.Config.AllowedUpstreams) != 1 {
		t.Fatalf("Was expecting one allowed upstream, got %v", opts.Config.AllowedUpstreams)
	}
}

func TestMissingConfigFile(t *testing.T) {
	isolate(t)
	if _, err := ParseCommandArgs([]string{"--config", filepath.Join(t.TempDir(), "nope.yml")}, false); err == nil {
		t.Fatal("Was expecting an error for a missing config file")
	}
}

func TestWaitForUpstream(t *testing.T) {
	isolate(t)
	opts, err := ParseCommandArgs([]string{"--wait-for-upstream", "http://signal-cli:8080", "--wait-timeout", "5", "--open"}, false)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if opts.WaitForUpstream != "http://signal-cli:8080" || opts.WaitTimeout != 5*time.Second || !opts.Open {
		t.Fatalf("Unexpected options: %#v", opts)
	}
}

func TestBadWaitTimeout(t *testing.T) {
	isolate(t)
	for _, v := range []string{"0", "soon"} {
		if _, err := ParseCommandArgs([]string{"--wait-timeout", v}, false); err == nil {
			t.Fatalf("Was expecting an error for --wait-timeout %v", v)
		}
	}
}

func TestUnknownFlag(t *testing.T) {
	isolate(t)
	if _, err := ParseCommandArgs([]string{"--bogus"}, false); err == nil {
		t.Fatal("Was expecting an error for an unknown flag")
	}
}
