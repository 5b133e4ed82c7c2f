package server

import (
	"encoding/json"

	"aitable-mcp/internal/tools"
)

// Supported MCP protocol versions
var supportedProtocolVersions = map[string]bool{
	"2024-11-05": true,
	"2025-03-26": true,
	"2025-06-18": true,
}

const latestProtocolVersion = "2025-06-18"

// maxRequestBodySize caps JSON-RPC request bodies (1MB).
const maxRequestBodySize = 1 << 20

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Standard JSON-RPC error codes
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
)

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
}

type listToolsResult struct {
	Tools []tools.Tool `json:"tools"`
}

// CallRequest is a tool invocation: the tools/call params, and the body of
// the plain JSON /mcp/call endpoint.
type CallRequest struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"arguments"`
}
