package mockrpc

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sigweb/signal-web/jsonrpc"
)

// Provider serves a Backend over HTTP the way the real backend does.
type Provider struct {
	backend *Backend
}

func NewProvider(backend *Backend) *Provider {
	return &Provider{
		backend: backend,
	}
}

func (p *Provider) RegisterService(r *mux.Router) {
	s := r.PathPrefix("/api/v1").Subrouter()
	s.HandleFunc("/rpc", p.RPC).Methods("POST")
	s.HandleFunc("/check", p.Check).Methods("GET")
}

func (p *Provider) Check(w http.ResponseWriter, r *http.Request) {
	if p.backend.Unhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RPC decodes an envelope and answers it. Malformed requests get the
// standard parse and invalid request errors with HTTP 200, as JSON-RPC
// servers over HTTP commonly do.
func (p *Provider) RPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var env struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		respond(w, nil, nil, &jsonrpc.Error{Code: jsonrpc.CodeParseError, Message: "Parse error"})
		return
	}
	if env.JSONRPC != jsonrpc.Version || env.Method == "" {
		respond(w, env.ID, nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidRequest, Message: "Invalid request"})
		return
	}
	var id string
	_ = json.Unmarshal(env.ID, &id)
	result, rpcErr := p.backend.Handle(Call{ID: id, Method: env.Method, Params: env.Params})
	respond(w, env.ID, result, rpcErr)
}

func respond(w http.ResponseWriter, id json.RawMessage, result any, rpcErr *jsonrpc.Error) {
	resp := map[string]any{"jsonrpc": jsonrpc.Version, "id": id}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
