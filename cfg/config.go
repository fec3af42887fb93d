// Package cfg holds the configuration of the relay server and the client
// CLI.
package cfg

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/johncgriffin/overflow"
	homedir "github.com/mitchellh/go-homedir"
)

type (
	Config struct {
		// Address the relay server listens on.
		ListenAddress string `json:"listenAddress" yaml:"listenAddress" default:":3000"`
		// Name of the cookie carrying the upstream base URL.
		SessionCookie string `json:"sessionCookie" yaml:"sessionCookie" default:"ws-url"`
		// Path of the JSON-RPC endpoint on the upstream.
		UpstreamRPCPath string `json:"upstreamRPCPath" yaml:"upstreamRPCPath" default:"/api/v1/rpc"`
		// Seconds to wait for upstream response headers.
		UpstreamTimeoutSecs int `json:"upstreamTimeoutSecs" yaml:"upstreamTimeoutSecs" default:"30"`
		// Interval between flushes of a streamed relay response.
		FlushIntervalMillis int `json:"flushIntervalMillis" yaml:"flushIntervalMillis" default:"100"`
		// Upstreams (scheme://host[:port]) sessions may name; empty allows
		// any.
		AllowedUpstreams []string `json:"allowedUpstreams" yaml:"allowedUpstreams"`
		// Upstream used by the CLI and --wait-for-upstream when none is given.
		DefaultUpstream string `json:"defaultUpstream" yaml:"defaultUpstream"`

		LogLevel   string `json:"logLevel" yaml:"logLevel" default:"info"`
		LogFormat  string `json:"logFormat" yaml:"logFormat" default:"text"`
		SentryDSN  string `json:"sentryDSN" yaml:"sentryDSN"`
		SyslogAddr string `json:"syslogAddr" yaml:"syslogAddr"`

		// Directory holding the local cache databases.
		CacheDir string `json:"cacheDir" yaml:"cacheDir"`
		// Compression of large cached values: none, zstd or lz4.
		CacheCompression  string `json:"cacheCompression" yaml:"cacheCompression" default:"zstd"`
		AvatarPlaceholder string `json:"avatarPlaceholder" yaml:"avatarPlaceholder"`
		AvatarTTLSecs     int    `json:"avatarTTLSecs" yaml:"avatarTTLSecs" default:"86400"`
	}

	MissingConfigError struct {
		Setting string
	}

	InvalidConfigError struct {
		Setting string
		Reason  string
	}
)

func (c *Config) String() string {
	cCopy := *c
	if cCopy.SentryDSN != "" {
		cCopy.SentryDSN = "*************"
	}
	j, err := json.MarshalIndent(&cCopy, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(j)
}

// Validate checks that all required settings are present and sane.
func (c *Config) Validate() error {
	fields := []struct {
		value      any
		name       string
		disallowed any
	}{
		{value: c.ListenAddress, name: "listenAddress", disallowed: ""},
		{value: c.SessionCookie, name: "sessionCookie", disallowed: ""},
		{value: c.UpstreamRPCPath, name: "upstreamRPCPath", disallowed: ""},
		{value: c.UpstreamTimeoutSecs, name: "upstreamTimeoutSecs", disallowed: 0},
		{value: c.FlushIntervalMillis, name: "flushIntervalMillis", disallowed: 0},
		{value: c.CacheDir, name: "cacheDir", disallowed: ""},
	}
	for _, f := range fields {
		if f.value == f.disallowed {
			return MissingConfigError{Setting: f.name}
		}
	}

	if !strings.HasPrefix(c.UpstreamRPCPath, "/") {
		return InvalidConfigError{Setting: "upstreamRPCPath", Reason: "must start with /"}
	}
	if c.UpstreamTimeoutSecs < 0 {
		return InvalidConfigError{Setting: "upstreamTimeoutSecs", Reason: "must be positive"}
	}
	if c.FlushIntervalMillis < 0 {
		return InvalidConfigError{Setting: "flushIntervalMillis", Reason: "must be positive"}
	}
	if c.AvatarTTLSecs < 0 {
		return InvalidConfigError{Setting: "avatarTTLSecs", Reason: "must not be negative"}
	}
	for name, d := range map[string]struct {
		n    int
		unit time.Duration
	}{
		"upstreamTimeoutSecs": {c.UpstreamTimeoutSecs, time.Second},
		"flushIntervalMillis": {c.FlushIntervalMillis, time.Millisecond},
		"avatarTTLSecs":       {c.AvatarTTLSecs, time.Second},
	} {
		if _, ok := duration(d.n, d.unit); !ok {
			return InvalidConfigError{Setting: name, Reason: "too large"}
		}
	}
	switch c.CacheCompression {
	case "", "none", "zstd", "lz4":
	default:
		return InvalidConfigError{Setting: "cacheCompression", Reason: "must be none, zstd or lz4, got " + c.CacheCompression}
	}
	for _, u := range c.AllowedUpstreams {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return InvalidConfigError{Setting: "allowedUpstreams", Reason: "entries must be http(s) origins, got " + u}
		}
	}
	return nil
}

func (err MissingConfigError) Error() string {
	return "Config setting \"" + err.Setting + "\" has not been defined"
}

func (err InvalidConfigError) Error() string {
	return "Config setting \"" + err.Setting + "\" is invalid: " + err.Reason
}

func (c *Config) UpstreamTimeout() time.Duration {
	d, _ := duration(c.UpstreamTimeoutSecs, time.Second)
	return d
}

func (c *Config) FlushInterval() time.Duration {
	d, _ := duration(c.FlushIntervalMillis, time.Millisecond)
	return d
}

func (c *Config) AvatarTTL() time.Duration {
	d, _ := duration(c.AvatarTTLSecs, time.Second)
	return d
}

// duration multiplies n units, reporting false when the result overflows.
func duration(n int, unit time.Duration) (time.Duration, bool) {
	d, ok := overflow.Mul64(int64(n), int64(unit))
	return time.Duration(d), ok
}

// xdgDir returns $<env>, or <home>/<fallback> when it is unset.
func xdgDir(env, fallback string) string {
	dir := os.Getenv(env)
	if dir == "" {
		home, err := homedir.Dir()
		if err != nil || home == "" {
			return ""
		}
		dir = filepath.Join(home, fallback)
	}
	return dir
}

// DefaultPath is the location of the configuration file when none is given.
func DefaultPath() string {
	dir := xdgDir("XDG_CONFIG_HOME", ".config")
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "signal-web.yml")
}

// DefaultCacheDir is where the local cache lives when cacheDir is unset.
func DefaultCacheDir() string {
	dir := xdgDir("XDG_CACHE_HOME", ".cache")
	if dir == "" {
		return filepath.Join(os.TempDir(), "signal-web")
	}
	return filepath.Join(dir, "signal-web")
}
