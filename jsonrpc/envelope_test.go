package jsonrpc

import (
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var uuidV4 = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestNewBuilderGeneratesV4ID(t *testing.T) {
	b := NewBuilder()
	assert.Regexp(t, uuidV4, b.ID())
	assert.Equal(t, "", b.Method())
	assert.Nil(t, b.Params())
}

func TestBuildersHaveDistinctIDs(t *testing.T) {
	seen := make(map[string]bool, 10000)
	for range 10000 {
		id := NewBuilder().ID()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestSettersReturnNewBuilder(t *testing.T) {
	base := NewBuilder()
	withMethod := base.SetMethod("listGroups")
	withPayload := withMethod.SetPayload(map[string]any{"a": 1})

	assert.Equal(t, "", base.Method(), "original builder must not change")
	assert.Nil(t, withMethod.Params())
	assert.Equal(t, "listGroups", withPayload.Method())
	assert.Equal(t, base.ID(), withMethod.ID())
	assert.Equal(t, base.ID(), withPayload.ID())
}

func TestLastSetterWins(t *testing.T) {
	env := NewBuilder().
		SetMethod("a").
		SetMethod("b").
		SetPayload(map[string]any{"x": 1}).
		SetPayload(map[string]any{"y": 2}).
		Build()
	assert.Equal(t, "b", env.Method)
	assert.Equal(t, map[string]any{"y": 2}, env.Params)
}

func TestBuildIsStable(t *testing.T) {
	b := NewBuilder().SetMethod("getAvatar").SetPayload(map[string]any{"profile": "abc"})
	first, second := b.Build(), b.Build()
	assert.Equal(t, first, second)
	assert.Equal(t, Version, first.JSONRPC)
	assert.Equal(t, b.ID(), first.ID)
}

func TestEnvelopeWireFormat(t *testing.T) {
	b := NewBuilder().SetMethod("listGroups")
	data, err := b.Build().Marshal()
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      b.ID(),
		"method":  "listGroups",
	}, wire, "params must be omitted when unset")

	data, err = b.SetPayload(map[string]any{"profile": "p"}).Build().Marshal()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, map[string]any{"profile": "p"}, wire["params"])
}

func TestValidateMissingMethod(t *testing.T) {
	env := NewBuilder().SetPayload(map[string]any{}).Build()
	err := env.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingMethod))

	_, err = env.Marshal()
	assert.ErrorIs(t, err, ErrMissingMethod)
}

func TestValidateSchemaViolations(t *testing.T) {
	env := NewBuilder().SetMethod("send").SetPayload("not an object").Build()
	err := env.Validate()
	var invalid *InvalidEnvelopeError
	require.ErrorAs(t, err, &invalid)
	assert.NotEmpty(t, invalid.Problems)

	env = Envelope{JSONRPC: "1.0", ID: "x", Method: "send"}
	require.ErrorAs(t, env.Validate(), &invalid)

	env = Envelope{JSONRPC: Version, Method: "send"}
	require.ErrorAs(t, env.Validate(), &invalid)
}

func TestValidateAcceptsArrayParams(t *testing.T) {
	env := NewBuilder().SetMethod("send").SetPayload([]string{"a", "b"}).Build()
	assert.NoError(t, env.Validate())
}
