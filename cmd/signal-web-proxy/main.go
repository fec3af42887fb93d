package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/sigweb/signal-web/internal/httputil"
	"github.com/sigweb/signal-web/monitor"
	"github.com/sigweb/signal-web/relay"
	"github.com/sigweb/signal-web/rpcclient"
	"github.com/sigweb/signal-web/version"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	opts, err := ParseCommandArgs(os.Args[1:], true)
	if err != nil {
		logrus.Fatalf("%v", err)
	}

	m, err := monitor.New(monitor.Config{
		Name:       "signal-web-proxy",
		LogLevel:   opts.Config.LogLevel,
		LogFormat:  opts.Config.LogFormat,
		SentryDSN:  opts.Config.SentryDSN,
		SyslogAddr: opts.Config.SyslogAddr,
		Tags:       map[string]string{"version": version.Version},
	})
	if err != nil {
		logrus.Fatalf("%v", err)
	}
	defer m.Close()
	m.Infof("Version: %v", version.String("signal-web-proxy"))
	m.Debugf("Config: %v", opts.Config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, opts, m); err != nil {
		m.WithError(err).Error("signal-web-proxy failed")
		m.Close()
		os.Exit(1)
	}
}

// run serves the relay until ctx is done.
func run(ctx context.Context, opts *Options, m *monitor.Monitor) error {
	conf := opts.Config
	if opts.WaitForUpstream != "" {
		upstream := rpcclient.NewUpstream(opts.WaitForUpstream, rpcclient.WithLogger(m.Entry))
		if err := upstream.WaitForUpstream(ctx, opts.WaitTimeout); err != nil {
			return err
		}
	}

	rl := relay.New(relay.Config{
		Monitor:          m,
		SessionCookie:    conf.SessionCookie,
		UpstreamRPCPath:  conf.UpstreamRPCPath,
		AllowedUpstreams: conf.AllowedUpstreams,
		UpstreamTimeout:  conf.UpstreamTimeout(),
		FlushInterval:    conf.FlushInterval(),
		Version:          version.Version,
	})
	server := &http.Server{
		Handler:           rl.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", conf.ListenAddress)
	if err != nil {
		return err
	}
	m.Infof("Listening on: %v", listener.Addr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		m.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	if opts.Open {
		g.Go(func() error {
			addr := httputil.DialAddress(listener.Addr().String())
			if err := httputil.WaitForTCPListener(ctx, addr, shutdownTimeout); err != nil {
				return nil
			}
			if err := browser.OpenURL("http://" + addr + "/api/ping"); err != nil {
				m.WithError(err).Warn("could not open a browser")
			}
			return nil
		})
	}
	return g.Wait()
}
