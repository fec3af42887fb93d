// Package relay implements the HTTP side of signal-web: it forwards
// JSON-RPC envelopes from the browser to the upstream named by the session
// cookie, and serves attachments fetched from that upstream as plain
// downloads.
package relay

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/sigweb/signal-web/monitor"
	"github.com/sigweb/signal-web/rpcclient"
	"github.com/sirupsen/logrus"
)

const (
	DefaultUpstreamTimeout = 30 * time.Second
	DefaultFlushInterval   = 100 * time.Millisecond
)

// Config contains the run time parameters of the relay.
type Config struct {
	// Monitor is used for logs and panic reports. A null monitor is used
	// when nil.
	Monitor *monitor.Monitor

	// SessionCookie names the cookie holding the upstream base URL.
	SessionCookie string
	// UpstreamRPCPath is appended to the upstream base URL.
	UpstreamRPCPath  string
	AllowedUpstreams []string

	// UpstreamTimeout bounds the wait for upstream response headers. The
	// body itself is streamed without a deadline.
	UpstreamTimeout time.Duration
	FlushInterval   time.Duration

	// Version is sent in the X-Signal-Web-Version header.
	Version string

	// HTTPClient replaces the client used to reach upstreams. It should not
	// follow redirects.
	HTTPClient *http.Client
}

// Relay serves the relay and attachment endpoints.
type Relay struct {
	monitor       *monitor.Monitor
	sessions      SessionExtractor
	rpcPath       string
	flushInterval time.Duration
	version       string
	httpClient    *http.Client
}

// New creates a relay from conf, filling in defaults.
func New(conf Config) *Relay {
	m := conf.Monitor
	if m == nil {
		m, _ = monitor.NewNull()
	}
	if conf.SessionCookie == "" {
		conf.SessionCookie = rpcclient.SessionCookie
	}
	if conf.UpstreamRPCPath == "" {
		conf.UpstreamRPCPath = rpcclient.UpstreamRoute
	}
	if conf.UpstreamTimeout <= 0 {
		conf.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if conf.FlushInterval <= 0 {
		conf.FlushInterval = DefaultFlushInterval
	}
	client := conf.HTTPClient
	if client == nil {
		client = newHTTPClient(conf.UpstreamTimeout)
	}
	return &Relay{
		monitor:       m.WithPrefix("relay"),
		sessions:      NewSessionExtractor(conf.SessionCookie, conf.AllowedUpstreams),
		rpcPath:       conf.UpstreamRPCPath,
		flushInterval: conf.FlushInterval,
		version:       conf.Version,
		httpClient:    client,
	}
}

func newHTTPClient(responseHeaderTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: responseHeaderTimeout,
		},
		// do not follow redirects, and instead pass them back to the caller
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// RelayHandler forwards the request body to the session's upstream and
// streams the upstream response back unchanged, apart from hop-by-hop
// headers. Once forwarded, the upstream call is not cancelled when the
// client goes away.
func (rl *Relay) RelayHandler(w http.ResponseWriter, r *http.Request) {
	m := requestMonitor(r.Context(), rl.monitor)
	session, err := rl.sessions.Extract(r)
	if err != nil {
		m.WithError(err).Info("rejecting relay request")
		writeSessionError(w, err)
		return
	}
	target := session.Endpoint(rl.rpcPath)

	ctx := context.WithoutCancel(r.Context())
	proxyreq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, r.Body)
	if err != nil {
		m.ReportError(err, "could not build upstream request")
		writeError(w, http.StatusInternalServerError, msgProxyError, err.Error())
		return
	}
	proxyreq.ContentLength = r.ContentLength
	proxyreq.Header.Set("Content-Type", "application/json")
	if accept := r.Header.Get("Accept"); accept != "" {
		proxyreq.Header.Set("Accept", accept)
	}

	m = m.WithTag("upstream", session.BaseURL())
	start := time.Now()
	resp, err := rl.httpClient.Do(proxyreq)
	if err != nil {
		m.ReportWarning(err, "upstream request failed")
		writeError(w, http.StatusInternalServerError, msgProxyError, err.Error())
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	n, err := stream(w, resp.Body, rl.flushInterval)
	entry := m.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"bytes":    n,
		"duration": time.Since(start).String(),
	})
	if err != nil {
		entry.WithError(err).Warn("relay stream interrupted")
		return
	}
	entry.Debug("relayed")
}

// Ping answers liveness probes.
func (rl *Relay) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"alive": "true", "version": rl.version})
}
