package relay

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// threadSafeWriteFlusher serialises writes and flushes coming from the copy
// and the flushing goroutine.
type threadSafeWriteFlusher struct {
	m sync.Mutex
	w io.Writer
	f http.Flusher
}

func (w *threadSafeWriteFlusher) Write(p []byte) (int, error) {
	w.m.Lock()
	defer w.m.Unlock()
	return w.w.Write(p)
}

func (w *threadSafeWriteFlusher) Flush() {
	w.m.Lock()
	defer w.m.Unlock()
	w.f.Flush()
}

// copyAndFlush copies r to w, flushing every interval so the client sees
// data as soon as the upstream produces it.
func copyAndFlush(w *threadSafeWriteFlusher, r io.Reader, interval time.Duration) (int64, error) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.Flush()
			case <-done:
				return
			}
		}
	}()

	n, err := io.Copy(w, r)
	close(done)
	wg.Wait()

	w.Flush()
	return n, err
}

// stream writes body to w, flushing periodically when w supports it.
func stream(w http.ResponseWriter, body io.Reader, interval time.Duration) (int64, error) {
	flusher, ok := w.(http.Flusher)
	// flusher may not be implemented by a ResponseWriter wrapper
	if !ok {
		return io.Copy(w, body)
	}
	return copyAndFlush(&threadSafeWriteFlusher{w: w, f: flusher}, body, interval)
}

// hopHeaders are meaningful only for a single connection and are not
// copied from the upstream response.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// copyHeaders copies the end-to-end headers of src into dst.
func copyHeaders(dst, src http.Header) {
	skip := map[string]bool{}
	for _, h := range hopHeaders {
		skip[h] = true
	}
	for _, v := range src.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				skip[http.CanonicalHeaderKey(name)] = true
			}
		}
	}
	for k, vv := range src {
		if skip[http.CanonicalHeaderKey(k)] {
			continue
		}
		dst[k] = append([]string(nil), vv...)
	}
}
