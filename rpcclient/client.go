// Package rpcclient sends JSON-RPC envelopes to the relay (or directly to a
// messaging backend) and decodes the replies.
//
// RPC-level errors are not Go errors here: Dispatch returns them inside the
// response, and only transport problems or unparseable bodies produce a
// *CallException. The convenience calls (ListGroups, GetAvatar, ...) turn an
// RPC error into a *jsonrpc.Error where the caller needs to see it.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sigweb/signal-web/jsonrpc"
	"github.com/sigweb/signal-web/version"
	"github.com/sirupsen/logrus"
	"github.com/taskcluster/httpbackoff/v3"
	"golang.org/x/net/publicsuffix"
)

const (
	// RelayRoute is the relay endpoint a browser posts envelopes to.
	RelayRoute = "/api/send"
	// UpstreamRoute is the JSON-RPC endpoint of the messaging backend.
	UpstreamRoute = "/api/v1/rpc"
	// CheckRoute is the health endpoint of the messaging backend.
	CheckRoute = "/api/v1/check"
	// SessionCookie carries the upstream base URL to the relay.
	SessionCookie = "ws-url"
)

// CallSummary provides information about the underlying http request and
// response issued for a given call.
type CallSummary struct {
	HTTPRequest *http.Request
	// Copy of the request body, since the body of HTTPRequest has been
	// consumed by the time the call returns.
	HTTPRequestBody string
	// The envelope that was serialised into the request body.
	HTTPRequestObject any
	HTTPResponse      *http.Response
	// Copy of the response body, for the same reason as HTTPRequestBody.
	HTTPResponseBody string
	Attempts         int
	Duration         time.Duration
}

func (cs *CallSummary) String() string {
	s := "\nCALL SUMMARY\n============\n"
	if req := cs.HTTPRequest; req != nil {
		s += fmt.Sprintf("Method: %v\n", req.Method)
		if req.URL != nil {
			s += fmt.Sprintf("URL: %v\n", req.URL)
		}
		s += fmt.Sprintf("Request Headers:\n%#v\n", req.Header)
	}
	s += fmt.Sprintf("Request Body:\n%v\n", cs.HTTPRequestBody)
	if resp := cs.HTTPResponse; resp != nil {
		s += fmt.Sprintf("Response Status: %v\n", resp.Status)
		s += fmt.Sprintf("Response Headers:\n%#v\n", resp.Header)
	}
	s += fmt.Sprintf("Response Body:\n%v\n", cs.HTTPResponseBody)
	s += fmt.Sprintf("Attempts: %v", cs.Attempts)
	return s
}

// CallException is returned when a call fails below the JSON-RPC layer: the
// request could not be sent, or the reply was not a JSON-RPC response.
type CallException struct {
	CallSummary *CallSummary
	RootCause   error
}

func (err *CallException) Error() string {
	return err.CallSummary.String() + "\n" + err.RootCause.Error()
}

func (err *CallException) Unwrap() error {
	return err.RootCause
}

// ReducedHTTPClient is the interface that wraps the functionality of
// http.Client that we actually use in Client.Dispatch.
type ReducedHTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// defaultHTTPClient is shared by all clients without an HTTPClient of their
// own; http.Client is safe for concurrent use.
var defaultHTTPClient ReducedHTTPClient = &http.Client{}

// Client dispatches envelopes to BaseURL + Route.
type Client struct {
	BaseURL string
	Route   string
	// HTTPClient is used instead of the default client when set.
	HTTPClient ReducedHTTPClient
	Logger     *logrus.Entry
	// AvatarPlaceholder is returned by GetAvatar when the backend has no
	// avatar for a profile.
	AvatarPlaceholder string
}

// Option customises a Client created by New or NewUpstream.
type Option func(*Client)

func WithHTTPClient(c ReducedHTTPClient) Option {
	return func(client *Client) { client.HTTPClient = c }
}

func WithLogger(l *logrus.Entry) Option {
	return func(client *Client) { client.Logger = l }
}

func WithRoute(route string) Option {
	return func(client *Client) { client.Route = route }
}

func WithAvatarPlaceholder(ref string) Option {
	return func(client *Client) { client.AvatarPlaceholder = ref }
}

// New returns a client for a relay at baseURL.
func New(baseURL string, opts ...Option) *Client {
	return newClient(baseURL, RelayRoute, opts)
}

// NewUpstream returns a client talking to a messaging backend directly.
func NewUpstream(upstreamURL string, opts ...Option) *Client {
	return newClient(upstreamURL, UpstreamRoute, opts)
}

func newClient(baseURL, route string, opts []Option) *Client {
	c := &Client{
		BaseURL:           baseURL,
		Route:             route,
		AvatarPlaceholder: DefaultAvatarPlaceholder,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return c
}

// WithSession returns a copy of the client whose requests carry the session
// cookie naming upstream, as a browser session would.
func (c *Client) WithSession(upstream string) (*Client, error) {
	return c.WithSessionCookie(SessionCookie, upstream)
}

// WithSessionCookie is WithSession with a custom cookie name.
func (c *Client) WithSessionCookie(name, upstream string) (*Client, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse base URL %q", c.BaseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	jar.SetCookies(u, []*http.Cookie{{Name: name, Value: upstream, Path: "/"}})

	httpClient := &http.Client{Jar: jar}
	if hc, ok := c.HTTPClient.(*http.Client); ok && hc != nil {
		copied := *hc
		copied.Jar = jar
		httpClient = &copied
	}
	clone := *c
	clone.HTTPClient = httpClient
	return &clone, nil
}

func (c *Client) httpClient() ReducedHTTPClient {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return defaultHTTPClient
}

// setURL joins the base URL and route without doubling the separator.
func setURL(baseURL, route string, query url.Values) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + route)
	if err != nil {
		return nil, fmt.Errorf("cannot parse url %q, is BaseURL (%v) set correctly? %w", baseURL+route, baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must be an absolute http(s) URL", baseURL)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u, nil
}

// Request posts a raw body to the client's endpoint and reads the whole
// reply. It never retries.
func (c *Client) Request(ctx context.Context, rawPayload []byte) (*CallSummary, error) {
	callSummary := &CallSummary{HTTPRequestBody: string(rawPayload)}
	u, err := setURL(c.BaseURL, c.Route, nil)
	if err != nil {
		return callSummary, err
	}
	callSummary.HTTPRequest, err = http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(rawPayload))
	if err != nil {
		return callSummary, err
	}
	callSummary.HTTPRequest.Header.Set("Content-Type", "application/json")
	callSummary.HTTPRequest.Header.Set("Accept", "application/json")
	callSummary.HTTPRequest.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	callSummary.Attempts = 1
	resp, err := c.httpClient().Do(callSummary.HTTPRequest)
	callSummary.Duration = time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return callSummary, ctx.Err()
		}
		return callSummary, err
	}
	defer resp.Body.Close()
	callSummary.HTTPResponse = resp
	body, err := io.ReadAll(resp.Body)
	callSummary.HTTPResponseBody = string(body)
	if err != nil {
		return callSummary, errors.Wrap(err, "reading response body")
	}
	return callSummary, nil
}

// Dispatch validates env, sends it and decodes the reply. An envelope
// without a method is rejected with jsonrpc.ErrMissingMethod before any
// request is made. A reply carrying a JSON-RPC error is a successful
// dispatch; inspect the returned response.
func (c *Client) Dispatch(ctx context.Context, env jsonrpc.Envelope) (*jsonrpc.Response, *CallSummary, error) {
	rawPayload, err := env.Marshal()
	if err != nil {
		return nil, &CallSummary{HTTPRequestObject: env}, err
	}
	callSummary, err := c.Request(ctx, rawPayload)
	callSummary.HTTPRequestObject = env
	log := c.Logger.WithFields(logrus.Fields{"method": env.Method, "id": env.ID})
	if err != nil {
		if ctx.Err() != nil {
			return nil, callSummary, ctx.Err()
		}
		log.WithError(err).Debug("rpc call failed")
		return nil, callSummary, &CallException{CallSummary: callSummary, RootCause: err}
	}

	resp := new(jsonrpc.Response)
	if err := json.Unmarshal([]byte(callSummary.HTTPResponseBody), resp); err != nil || (resp.Result == nil && resp.Error == nil) {
		var rootCause error
		status := callSummary.HTTPResponse.StatusCode
		switch {
		case status/100 != 2:
			rootCause = httpbackoff.BadHttpResponseCode{
				HttpResponseCode: status,
				Message:          callSummary.HTTPResponseBody,
			}
		case err != nil:
			rootCause = errors.Wrap(err, "response is not a JSON-RPC response")
		default:
			rootCause = errors.New("response has neither result nor error")
		}
		log.WithError(rootCause).Debug("rpc call failed")
		return nil, callSummary, &CallException{CallSummary: callSummary, RootCause: rootCause}
	}
	log.WithFields(logrus.Fields{
		"status":   callSummary.HTTPResponse.StatusCode,
		"duration": callSummary.Duration,
		"rpcError": resp.Error != nil,
	}).Debug("rpc call")
	return resp, callSummary, nil
}

// Call builds an envelope for method and params and dispatches it.
func (c *Client) Call(ctx context.Context, method string, params any) (*jsonrpc.Response, error) {
	resp, _, err := c.Dispatch(ctx, jsonrpc.NewBuilder().SetMethod(method).SetPayload(params).Build())
	return resp, err
}

// callInto is Call followed by decoding the result into v; RPC errors are
// returned as *jsonrpc.Error.
func (c *Client) callInto(ctx context.Context, method string, params, v any) error {
	resp, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if err := resp.DecodeResult(v); err != nil {
		return errors.Wrapf(err, "decoding %s result", method)
	}
	return nil
}
