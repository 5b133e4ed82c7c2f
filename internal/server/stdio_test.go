package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitable-mcp/internal/aitable"
	"aitable-mcp/internal/tools"
)

func stdioDispatcher(t *testing.T) *tools.Dispatcher {
	t.Helper()
	d, err := tools.New(&stubRemote{spaces: []aitable.Space{{ID: "spc1", Name: "Team"}}}, nil)
	require.NoError(t, err)
	return d
}

func TestToolAdapter(t *testing.T) {
	handler := toolAdapter(stdioDispatcher(t), "list_spaces")

	req := mcp.CallToolRequest{}
	req.Params.Name = "list_spaces"
	req.Params.Arguments = map[string]any{}
	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, `"spc1"`)
}

func TestToolAdapterValidationError(t *testing.T) {
	handler := toolAdapter(stdioDispatcher(t), "get_fields_schema")

	res, err := handler(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	text := res.Content[0].(mcp.TextContent).Text
	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &env))
	assert.Equal(t, false, env["success"])
	assert.Contains(t, env["message"], "node_id")
}

func TestStdioServerListsTools(t *testing.T) {
	s := NewStdioServer(stdioDispatcher(t), "aitable-mcp", "test")

	initResp := s.HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"t","version":"0"}}}`))
	require.NotNil(t, initResp)

	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	buf, err := json.Marshal(resp)
	require.NoError(t, err)
	for _, name := range []string{"list_spaces", "search_nodes", "list_records", "get_fields_schema", "create_record", "upload_attachment_via_url"} {
		assert.Contains(t, string(buf), `"`+name+`"`)
	}
}
