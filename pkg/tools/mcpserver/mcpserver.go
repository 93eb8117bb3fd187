// Package mcpserver exposes a ToolBox over the Model Context Protocol, so
// the judge, response and excuse chains can be called by any MCP client.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/germanamz/persona/pkg/tools/toolbox"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPServer serves the tools of one ToolBox using the official MCP Go SDK.
type MCPServer struct {
	server *mcp.Server
	tools  *toolbox.ToolBox
	log    *slog.Logger
}

// New creates an MCPServer publishing every tool of tb. A nil log uses
// slog.Default().
func New(name, version string, tb *toolbox.ToolBox, log *slog.Logger) *MCPServer {
	if log == nil {
		log = slog.Default()
	}

	s := &MCPServer{
		server: mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		tools:  tb,
		log:    log,
	}

	for _, t := range tb.Tools() {
		s.server.AddTool(toSDKTool(t), s.handler(t.Name))
	}

	return s
}

// ServeStdio serves requests on the process's stdin and stdout until ctx is
// cancelled or the client disconnects.
func (s *MCPServer) ServeStdio(ctx context.Context) error {
	return s.run(ctx, &mcp.StdioTransport{})
}

// Serve reads requests from in and writes responses to out. It blocks until
// ctx is cancelled or the transport closes.
func (s *MCPServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	transport := &mcp.IOTransport{
		Reader: io.NopCloser(in),
		Writer: nopWriteCloser{out},
	}

	return s.run(ctx, transport)
}

func (s *MCPServer) run(ctx context.Context, transport mcp.Transport) error {
	s.log.InfoContext(ctx, "mcp server started", "tools", s.tools.Names())

	err := s.server.Run(ctx, transport)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.ErrorContext(ctx, "mcp server stopped", "error", err)
	}

	return err
}

func toSDKTool(t toolbox.Tool) *mcp.Tool {
	schema := t.InputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	return &mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
}

// handler dispatches through the ToolBox, so arguments are validated the
// same way as for the agent. Failures are tool results, not protocol errors.
func (s *MCPServer) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.Params.Arguments
		if args == nil {
			args = json.RawMessage("{}")
		}

		s.log.DebugContext(ctx, "mcp tool call", "tool", name)

		result, err := s.tools.Invoke(ctx, name, args)
		if err != nil {
			s.log.DebugContext(ctx, "mcp tool failed", "tool", name, "error", err)
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: result}},
		}, nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
