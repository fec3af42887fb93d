package relay

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterService mounts the relay endpoints under /api.
func (rl *Relay) RegisterService(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/ping", rl.Ping).Methods(http.MethodGet)
	api.HandleFunc("/send", rl.RelayHandler).Methods(http.MethodPost)
	api.HandleFunc("/relay", rl.RelayHandler).Methods(http.MethodPost)
	api.HandleFunc("/attachments", rl.AttachmentHandler).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/download", rl.AttachmentHandler).Methods(http.MethodGet, http.MethodHead)
}

// Routes returns the complete relay handler, middleware included.
func (rl *Relay) Routes() http.Handler {
	r := mux.NewRouter().UseEncodedPath()
	r.Use(rl.middleware()...)
	rl.RegisterService(r)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found", "")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
	})
	return r
}
