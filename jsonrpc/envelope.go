// Package jsonrpc builds JSON-RPC 2.0 request envelopes and decodes the
// responses returned by the messaging backend.
//
// A Builder is an immutable value: SetMethod and SetPayload return a new
// Builder, so a partially configured builder can be shared and specialised
// without the copies affecting one another. The request id is generated once,
// when NewBuilder is called, and is carried over by every derived builder.
//
//	env := jsonrpc.NewBuilder().SetMethod("listGroups").SetPayload(map[string]any{}).Build()
package jsonrpc

import (
	"encoding/json"

	"github.com/pborman/uuid"
)

// Version is the protocol version string sent in every envelope.
const Version = "2.0"

// Envelope is a frozen JSON-RPC request, ready to be serialised.
type Envelope struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Builder accumulates the method and params of a request.
type Builder struct {
	id     string
	method string
	params any
}

// NewBuilder returns a builder with a fresh random (RFC 4122 version 4) id
// and no method or params.
func NewBuilder() Builder {
	return Builder{id: uuid.NewRandom().String()}
}

// SetMethod returns a copy of b with the given method name.
func (b Builder) SetMethod(name string) Builder {
	b.method = name
	return b
}

// SetPayload returns a copy of b with the given params. Params must be
// serialisable with encoding/json; nil means "no params" and the field is
// omitted on the wire.
func (b Builder) SetPayload(params any) Builder {
	b.params = params
	return b
}

func (b Builder) ID() string     { return b.id }
func (b Builder) Method() string { return b.method }
func (b Builder) Params() any    { return b.params }

// Build returns the envelope described by b. A builder without a method
// produces an envelope with an empty method; such an envelope fails
// Validate and is never sent by the dispatch client.
func (b Builder) Build() Envelope {
	return Envelope{
		JSONRPC: Version,
		ID:      b.id,
		Method:  b.method,
		Params:  b.params,
	}
}

// Marshal serialises the envelope after validating it.
func (e Envelope) Marshal() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}
