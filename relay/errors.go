package relay

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	// ErrMissingSession is returned when the request has no session cookie.
	ErrMissingSession = errors.New("missing session context")

	// ErrInvalidSession is returned when the session cookie does not name an
	// allowed absolute http(s) upstream.
	ErrInvalidSession = errors.New("invalid session context")
)

// Messages of the JSON error bodies.
const (
	msgMissingSession      = "Missing session context"
	msgInvalidSession      = "Invalid session context"
	msgMissingAttachmentID = "Missing attachment id"
	msgProxyError          = "Proxy error"
	msgNotFound            = "Attachment not found"
	msgInternal            = "Internal server error"
)

// errorBody is the JSON body of every error response of the relay.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, errorBody{Error: message, Detail: detail})
}

func writeSessionError(w http.ResponseWriter, err error) {
	msg := msgInvalidSession
	if errors.Is(err, ErrMissingSession) {
		msg = msgMissingSession
	}
	writeError(w, http.StatusBadRequest, msg, "")
}
