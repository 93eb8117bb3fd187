package toolbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/germanamz/persona/pkg/chats/content"
	"github.com/google/jsonschema-go/jsonschema"
)

type entry struct {
	tool   Tool
	schema *jsonschema.Resolved
}

// ToolBox is the registry the agent dispatches tool calls through. Tools are
// looked up by name; Tools returns them in registration order. Register is
// not safe for concurrent use, everything else is once registration is done.
type ToolBox struct {
	entries map[string]entry
	order   []string
}

// New creates an empty ToolBox.
func New() *ToolBox {
	return &ToolBox{entries: make(map[string]entry)}
}

// Register adds tools. It fails, registering none of the remaining tools, on
// an empty or duplicate name, a missing handler or a schema that does not
// resolve.
func (tb *ToolBox) Register(tools ...Tool) error {
	for _, t := range tools {
		if t.Name == "" {
			return errors.New("toolbox: tool name is empty")
		}
		if _, dup := tb.entries[t.Name]; dup {
			return fmt.Errorf("toolbox: duplicate tool %q", t.Name)
		}
		if t.Handler == nil {
			return fmt.Errorf("toolbox: tool %q has no handler", t.Name)
		}

		resolved, err := resolveSchema(t.InputSchema)
		if err != nil {
			return fmt.Errorf("toolbox: tool %q: %w", t.Name, err)
		}

		tb.entries[t.Name] = entry{tool: t, schema: resolved}
		tb.order = append(tb.order, t.Name)
	}

	return nil
}

func resolveSchema(raw json.RawMessage) (*jsonschema.Resolved, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage(`{"type":"object"}`)
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse input schema: %w", err)
	}

	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve input schema: %w", err)
	}

	return resolved, nil
}

// Get returns a tool by name.
func (tb *ToolBox) Get(name string) (Tool, bool) {
	e, ok := tb.entries[name]
	return e.tool, ok
}

// Tools returns the registered tools in registration order.
func (tb *ToolBox) Tools() []Tool {
	out := make([]Tool, 0, len(tb.order))
	for _, name := range tb.order {
		out = append(out, tb.entries[name].tool)
	}
	return out
}

// Names returns the registered tool names in registration order.
func (tb *ToolBox) Names() []string {
	return append([]string(nil), tb.order...)
}

// Invoke validates args against the tool's schema and runs its handler.
// Every failure is a *ToolExecutionError naming the tool; argument problems
// additionally match *InvalidArgumentsError.
func (tb *ToolBox) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	e, ok := tb.entries[name]
	if !ok {
		return "", &ToolExecutionError{Tool: name, Err: ErrUnknownTool}
	}

	if err := validate(e.schema, args); err != nil {
		return "", &ToolExecutionError{Tool: name, Err: &InvalidArgumentsError{Tool: name, Err: err}}
	}

	out, err := e.tool.Handler(ctx, normalize(args))
	if err != nil {
		return "", &ToolExecutionError{Tool: name, Err: err}
	}

	return out, nil
}

// Call runs a model-issued tool call and always returns a result: failures
// become results with IsError set and the error text as content, so the
// model can see what went wrong.
func (tb *ToolBox) Call(ctx context.Context, tc content.ToolCall) content.ToolResult {
	out, err := tb.Invoke(ctx, tc.Name, json.RawMessage(tc.Arguments))
	if err != nil {
		return content.ToolResult{
			ToolCallID: tc.ID,
			Name:       tc.Name,
			Content:    err.Error(),
			IsError:    true,
		}
	}

	return content.ToolResult{
		ToolCallID: tc.ID,
		Name:       tc.Name,
		Content:    out,
	}
}

// normalize maps empty arguments to an empty object; some models send ""
// for parameterless calls.
func normalize(args json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(args)) == 0 {
		return json.RawMessage(`{}`)
	}
	return args
}

func validate(schema *jsonschema.Resolved, args json.RawMessage) error {
	var instance any
	if err := json.Unmarshal(normalize(args), &instance); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}

	return schema.Validate(instance)
}
