package relay

import (
	"net/http"
	"net/url"
	"strings"

	set "github.com/deckarep/golang-set"
)

// SessionContext is the upstream a request should be relayed to, as named
// by the session cookie.
type SessionContext struct {
	Upstream *url.URL
}

// Endpoint joins the upstream base URL and path.
func (s SessionContext) Endpoint(path string) string {
	return strings.TrimSuffix(s.Upstream.String(), "/") + path
}

// BaseURL is the upstream base URL without a trailing slash.
func (s SessionContext) BaseURL() string {
	return strings.TrimSuffix(s.Upstream.String(), "/")
}

// SessionExtractor reads the session context from a request.
type SessionExtractor struct {
	CookieName string
	// allowed holds the lower cased scheme://host[:port] origins a session
	// may name. Nil allows any http(s) upstream.
	allowed set.Set
}

// NewSessionExtractor returns an extractor reading cookieName and accepting
// only the given upstream origins, or any origin when none are given.
func NewSessionExtractor(cookieName string, allowedUpstreams []string) SessionExtractor {
	e := SessionExtractor{CookieName: cookieName}
	if len(allowedUpstreams) > 0 {
		e.allowed = set.NewSet()
		for _, a := range allowedUpstreams {
			e.allowed.Add(strings.ToLower(strings.TrimSuffix(strings.TrimSpace(a), "/")))
		}
	}
	return e
}

// Extract returns the session context of r, ErrMissingSession when the
// cookie is absent or empty, and ErrInvalidSession when its value is not
// an acceptable upstream.
func (e SessionExtractor) Extract(r *http.Request) (SessionContext, error) {
	cookie, err := r.Cookie(e.CookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return SessionContext{}, ErrMissingSession
	}
	value, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		value = cookie.Value
	}
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.User != nil {
		return SessionContext{}, ErrInvalidSession
	}
	u.RawQuery = ""
	u.Fragment = ""
	if !e.isAllowed(u) {
		return SessionContext{}, ErrInvalidSession
	}
	return SessionContext{Upstream: u}, nil
}

func (e SessionExtractor) isAllowed(u *url.URL) bool {
	if e.allowed == nil {
		return true
	}
	return e.allowed.Contains(strings.ToLower(u.Scheme + "://" + u.Host))
}
