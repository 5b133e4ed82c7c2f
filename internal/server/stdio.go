package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"aitable-mcp/internal/tools"
)

// NewStdioServer builds an MCP server that exposes every dispatcher tool over
// the stdio transport.
func NewStdioServer(d *tools.Dispatcher, name, version string) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(name, version, mcpserver.WithToolCapabilities(false))
	for _, t := range d.Tools() {
		s.AddTool(mcp.NewToolWithRawSchema(t.Name, t.Description, t.InputSchema), toolAdapter(d, t.Name))
	}
	return s
}

// ServeStdio serves MCP over in/out until ctx is cancelled or in is closed.
func ServeStdio(ctx context.Context, d *tools.Dispatcher, name, version string, in io.Reader, out io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	stdio := mcpserver.NewStdioServer(NewStdioServer(d, name, version))
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
	logger.Info("serving MCP over stdio", "tools", len(d.Tools()))
	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "stdio transport")
	}
	return nil
}

func toolAdapter(d *tools.Dispatcher, name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args json.RawMessage
		if req.Params.Arguments != nil {
			buf, err := json.Marshal(req.Params.Arguments)
			if err != nil {
				return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
			}
			args = buf
		}
		return toCallToolResult(d.Call(ctx, name, args)), nil
	}
}

func toCallToolResult(res tools.Result) *mcp.CallToolResult {
	out := &mcp.CallToolResult{IsError: res.IsError}
	for _, c := range res.Content {
		out.Content = append(out.Content, mcp.NewTextContent(c.Text))
	}
	return out
}
