// Package mockrpc is a fake messaging backend for tests. It serves the
// JSON-RPC and health endpoints of a backend from in-memory state.
package mockrpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sigweb/signal-web/internal/httputil"
)

func WriteAsJSON(t *testing.T, w http.ResponseWriter, resp any) {
	t.Helper()
	bytes, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	if err != nil {
		t.Fatal(err)
	}
}

func Marshal(req *http.Request, payload any) error {
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(payload)
}

// NewServer starts an httptest server routing to the given providers. The
// server is closed when the test finishes.
func NewServer(t *testing.T, providers ...httputil.ServiceProvider) *httptest.Server {
	t.Helper()
	r := mux.NewRouter().UseEncodedPath()
	for _, p := range providers {
		p.RegisterService(r)
	}
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}
