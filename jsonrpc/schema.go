package jsonrpc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrMissingMethod is returned when an envelope is validated (or dispatched)
// before a method was set on its builder.
var ErrMissingMethod = errors.New("jsonrpc: envelope has no method")

const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "JSON-RPC request envelope",
  "type": "object",
  "properties": {
    "jsonrpc": {"const": "2.0"},
    "id": {"type": "string", "minLength": 1},
    "method": {"type": "string", "minLength": 1},
    "params": {"type": ["object", "array", "null"]}
  },
  "required": ["jsonrpc", "id", "method"],
  "additionalProperties": false
}`

var envelopeSchemaLoader = gojsonschema.NewStringLoader(envelopeSchema)

// InvalidEnvelopeError lists the schema violations of an envelope.
type InvalidEnvelopeError struct {
	Problems []string
}

func (err *InvalidEnvelopeError) Error() string {
	return fmt.Sprintf("jsonrpc: invalid envelope:\n%s", strings.Join(err.Problems, "\n"))
}

// Validate checks the envelope against the request schema. An empty method
// is reported as ErrMissingMethod so callers can test for it with
// errors.Is; any other violation is an *InvalidEnvelopeError.
func (e Envelope) Validate() error {
	if e.Method == "" {
		return ErrMissingMethod
	}
	result, err := gojsonschema.Validate(envelopeSchemaLoader, gojsonschema.NewGoLoader(e))
	if err != nil {
		return fmt.Errorf("jsonrpc: cannot validate envelope: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return &InvalidEnvelopeError{Problems: problems}
	}
	return nil
}
