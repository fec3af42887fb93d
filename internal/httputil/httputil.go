package httputil

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/mux"
)

// ServiceProvider registers its routes on a router.
type ServiceProvider interface {
	RegisterService(r *mux.Router)
}

// WaitForTCPListener blocks until something accepts connections on addr,
// the context is cancelled, or timeout elapses.
func WaitForTCPListener(ctx context.Context, addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("timed out waiting for %v to be active after %v", addr, timeout)
}

// DialAddress turns a listen address such as ":3000" into one that can be
// dialled locally.
func DialAddress(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return listenAddr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
