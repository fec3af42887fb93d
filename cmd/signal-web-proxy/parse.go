package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	docopt "github.com/docopt/docopt-go"
	"github.com/sigweb/signal-web/cfg"
	"github.com/sigweb/signal-web/version"
)

var usage = `
signal-web relay. Forwards JSON-RPC envelopes from the browser to the
messaging backend named by the session cookie, and serves attachments
fetched from that backend.

Settings are read from the configuration file, then from SIGNAL_WEB_*
environment variables; the options below override both.

  Usage:
    signal-web-proxy [options]
    signal-web-proxy -h|--help
    signal-web-proxy --version
    signal-web-proxy --short-version

  Options:
    -h --help                       Show this help screen.
    --version                       Show the signal-web-proxy version number.
    --short-version                 Show only the semantic version.
    -c --config <file>              YAML configuration file. Defaults to
                                    $XDG_CONFIG_HOME/signal-web.yml, which may
                                    be absent [default: ].
    -p --port <port>                Port to bind the relay to [default: ].
    -i --ip-address <address>       IPv4 or IPv6 address of network interface to bind listener to.
                                    If not provided, will bind listener to all available network
                                    interfaces [default: ].
    --log-level <level>             Override the configured log level [default: ].
    --wait-for-upstream <url>       Wait until the backend at <url> reports healthy before
                                    serving [default: ].
    --wait-timeout <seconds>        How long to wait for the backend [default: 60].
    --open                          Open the relay in a browser once it is listening.
`

// Options are the settings of one relay run.
type Options struct {
	Config          *cfg.Config
	WaitForUpstream string
	WaitTimeout     time.Duration
	Open            bool
}

// ParseCommandArgs converts command line arguments into relay options. When
// exit is false, --help and parse errors are returned instead of exiting.
func ParseCommandArgs(argv []string, exit bool) (*Options, error) {
	fullversion := version.String("signal-web-proxy")
	parser := &docopt.Parser{HelpHandler: docopt.PrintHelpAndExit}
	if !exit {
		parser.HelpHandler = docopt.NoHelpHandler
	}
	arguments, err := parser.ParseArgs(usage, argv, fullversion)
	if err != nil {
		return nil, err
	}

	if short, _ := arguments["--short-version"].(bool); short {
		fmt.Println(version.Version)
		if exit {
			os.Exit(0)
		}
	}

	conf, err := cfg.Load(arguments["--config"].(string))
	if err != nil {
		return nil, err
	}

	host, port, err := net.SplitHostPort(conf.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid listenAddress %q: %w", conf.ListenAddress, err)
	}
	if ipAddress := arguments["--ip-address"].(string); ipAddress != "" {
		if net.ParseIP(ipAddress) == nil {
			return nil, fmt.Errorf("invalid IPv4/IPv6 address specified - cannot parse: %v", ipAddress)
		}
		host = ipAddress
	}
	if portStr := arguments["--port"].(string); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, err
		}
		if p < 0 || p > 65535 {
			return nil, fmt.Errorf("port %v is not in range [0,65535]", p)
		}
		port = portStr
	}
	conf.ListenAddress = net.JoinHostPort(host, port)

	if level := arguments["--log-level"].(string); level != "" {
		conf.LogLevel = level
	}

	opts := &Options{
		Config:          conf,
		WaitForUpstream: arguments["--wait-for-upstream"].(string),
		Open:            arguments["--open"].(bool),
	}
	secs, err := strconv.Atoi(arguments["--wait-timeout"].(string))
	if err != nil || secs <= 0 {
		return nil, fmt.Errorf("--wait-timeout must be a positive number of seconds, got %v", arguments["--wait-timeout"])
	}
	opts.WaitTimeout = time.Duration(secs) * time.Second
	return opts, nil
}
