package mockrpc

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dchest/uniuri"
	"github.com/sigweb/signal-web/jsonrpc"
	"github.com/sigweb/signal-web/model"
)

// MethodFunc answers one JSON-RPC method. Exactly one of the results should
// be non-nil.
type MethodFunc func(params json.RawMessage) (any, *jsonrpc.Error)

// Call is a request received by the backend.
type Call struct {
	ID     string
	Method string
	Params json.RawMessage
}

// Backend holds the state served by a fake messaging backend.
type Backend struct {
	mu sync.Mutex

	Groups []model.Group
	// WrapGroups makes listGroups answer {"groups": [...]} instead of a bare
	// array, as some backend versions do.
	WrapGroups  bool
	Contacts    []model.Contact
	Avatars     map[string]string
	Attachments map[string]model.Attachment
	Sent        []model.SendRequest
	Calls       []Call
	Unhealthy   bool

	// Methods overrides or extends the built-in methods.
	Methods map[string]MethodFunc
}

func NewBackend() *Backend {
	return &Backend{
		Avatars:     map[string]string{},
		Attachments: map[string]model.Attachment{},
		Methods:     map[string]MethodFunc{},
	}
}

// Handle answers a decoded envelope.
func (b *Backend) Handle(call Call) (any, *jsonrpc.Error) {
	b.mu.Lock()
	b.Calls = append(b.Calls, call)
	override := b.Methods[call.Method]
	b.mu.Unlock()
	if override != nil {
		return override(call.Params)
	}

	switch call.Method {
	case "listGroups":
		return b.listGroups()
	case "listContacts":
		return b.listContacts()
	case "getAvatar":
		return b.getAvatar(call.Params)
	case "getAttachment":
		return b.getAttachment(call.Params)
	case "send":
		return b.send(call.Params)
	case "version":
		return model.VersionInfo{Version: "0.13.0-mock"}, nil
	}
	return nil, &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: "Method not implemented"}
}

// AddAttachment stores a, under a fresh random id unless it has one, and
// returns the id.
func (b *Backend) AddAttachment(a model.Attachment) string {
	if a.ID == "" {
		a.ID = uniuri.NewLen(20)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Attachments[a.ID] = a
	return a.ID
}

// Received returns the methods called so far, in order.
func (b *Backend) Received() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	methods := make([]string, len(b.Calls))
	for i, c := range b.Calls {
		methods[i] = c.Method
	}
	return methods
}

// LastCall returns the most recent call, if any.
func (b *Backend) LastCall() (Call, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Calls) == 0 {
		return Call{}, false
	}
	return b.Calls[len(b.Calls)-1], true
}

func (b *Backend) listGroups() (any, *jsonrpc.Error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	groups := append([]model.Group{}, b.Groups...)
	if b.WrapGroups {
		return map[string]any{"groups": groups}, nil
	}
	return groups, nil
}

func (b *Backend) listContacts() (any, *jsonrpc.Error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Contact{}, b.Contacts...), nil
}

func (b *Backend) getAvatar(params json.RawMessage) (any, *jsonrpc.Error) {
	var p struct {
		Profile string `json:"profile"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Profile == "" {
		return nil, invalidParams(err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.Avatars[p.Profile]
	if !ok {
		return nil, &jsonrpc.Error{Code: -1, Message: "Failed to get avatar: " + p.Profile}
	}
	return model.Avatar{Data: data}, nil
}

func (b *Backend) getAttachment(params json.RawMessage) (any, *jsonrpc.Error) {
	var p struct {
		ID          string `json:"id"`
		GroupID     string `json:"groupId"`
		RecipientID string `json:"recipientId"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.ID == "" {
		return nil, invalidParams(err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.Attachments[p.ID]
	if !ok {
		return nil, &jsonrpc.Error{Code: -1, Message: "Failed to get attachment: " + p.ID}
	}
	return a, nil
}

func (b *Backend) send(params json.RawMessage) (any, *jsonrpc.Error) {
	var req model.SendRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, invalidParams(err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Sent = append(b.Sent, req)
	result := model.SendResult{Timestamp: int64(1700000000000 + len(b.Sent))}
	for _, r := range req.Recipients {
		result.Results = append(result.Results, model.SendStatus{
			RecipientAddress: model.Member{Number: r},
			Type:             "SUCCESS",
		})
	}
	return result, nil
}

func invalidParams(err error) *jsonrpc.Error {
	msg := "Invalid params"
	if err != nil {
		msg = fmt.Sprintf("Invalid params: %v", err)
	}
	return &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: msg}
}
