package toolbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Handler executes a tool with the given JSON input and returns a text result.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

// Tool is a named, described callable the model can select. InputSchema is
// a JSON Schema for the arguments object; the Description is read by the
// model when it decides what to call.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

// SchemaFor infers an object schema from T's exported fields. Fields
// without omitempty are required and unknown properties are rejected.
// Field descriptions come from the jsonschema struct tag.
func SchemaFor[T any]() (json.RawMessage, error) {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("toolbox: infer schema: %w", err)
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("toolbox: marshal schema: %w", err)
	}

	return raw, nil
}

// NewTyped builds a Tool whose arguments decode into T. The schema is
// inferred with SchemaFor.
func NewTyped[T any](name, description string, fn func(ctx context.Context, args T) (string, error)) (Tool, error) {
	schema, err := SchemaFor[T]()
	if err != nil {
		return Tool{}, fmt.Errorf("toolbox: %s: %w", name, err)
	}

	return Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			var args T
			if err := json.Unmarshal(input, &args); err != nil {
				return "", fmt.Errorf("decode arguments: %w", err)
			}
			return fn(ctx, args)
		},
	}, nil
}
