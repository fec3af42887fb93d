package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sigweb/signal-web/monitor"
	"github.com/sirupsen/logrus"
	"github.com/taskcluster/slugid-go/slugid"
)

const (
	RequestIDHeader = "X-Request-Id"
	VersionHeader   = "X-Signal-Web-Version"
)

type ctxKey int

const monitorKey ctxKey = iota

// requestMonitor returns the per-request monitor stored by the request id
// middleware, or fallback.
func requestMonitor(ctx context.Context, fallback *monitor.Monitor) *monitor.Monitor {
	if m, ok := ctx.Value(monitorKey).(*monitor.Monitor); ok {
		return m
	}
	return fallback
}

// statusRecorder remembers the status and size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(status int) {
	if s.status == 0 {
		s.status = status
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(p)
	s.bytes += int64(n)
	return n, err
}

// Flush keeps streamed relay responses flowing through the recorder.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// middleware returns the handler chain applied to every route, outermost
// first.
func (rl *Relay) middleware() []mux.MiddlewareFunc {
	return []mux.MiddlewareFunc{rl.withRequestID, rl.logRequests, rl.recoverPanics, rl.versionHeader}
}

// withRequestID tags the request with an id, taken from the incoming
// X-Request-Id header when it is a reasonable token.
func (rl *Relay) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = slugid.Nice()
		}
		w.Header().Set(RequestIDHeader, id)
		m := rl.monitor.WithTag("requestId", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), monitorKey, m)))
	})
}

func (rl *Relay) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		entry := requestMonitor(r.Context(), rl.monitor).WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"bytes":    rec.bytes,
			"duration": time.Since(start).String(),
		})
		if rec.status >= 500 {
			entry.Warn("request")
			return
		}
		entry.Info("request")
	})
}

// recoverPanics turns a panicking handler into a 500 carrying the incident
// id, unless the response has already started.
func (rl *Relay) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec, ok := w.(*statusRecorder)
		if !ok {
			rec = &statusRecorder{ResponseWriter: w}
		}
		m := requestMonitor(r.Context(), rl.monitor)
		incidentID := m.CapturePanic(func() { next.ServeHTTP(rec, r) })
		if incidentID == "" || rec.status != 0 {
			return
		}
		writeError(rec, http.StatusInternalServerError, msgInternal, "incident "+incidentID)
	})
}

func (rl *Relay) versionHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.version != "" {
			w.Header().Set(VersionHeader, rl.version)
		}
		next.ServeHTTP(w, r)
	})
}
