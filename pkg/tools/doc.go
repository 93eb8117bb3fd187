// Package tools holds the tool registry and its MCP front end.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/persona/pkg/tools/toolbox]: Tool type and ToolBox for registering, validating and calling tools
//   - [github.com/germanamz/persona/pkg/tools/mcpserver]: MCP server (official MCP Go SDK) exposing a ToolBox to other clients
//
// mcpserver depends on toolbox; toolbox depends on nothing but the chat
// content types and github.com/google/jsonschema-go.
package tools
