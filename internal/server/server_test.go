package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitable-mcp/internal/aitable"
	"aitable-mcp/internal/tools"
)

type stubRemote struct {
	spaces []aitable.Space
	err    error
}

func (s *stubRemote) ListSpaces(context.Context) ([]aitable.Space, error) {
	return s.spaces, s.err
}

func (s *stubRemote) SearchNodes(context.Context, string, string, string) ([]map[string]any, error) {
	return nil, s.err
}

func (s *stubRemote) ListRecords(context.Context, string, aitable.RecordQuery) (json.RawMessage, error) {
	return json.RawMessage(`{"records":[]}`), s.err
}

func (s *stubRemote) FetchFieldsSchema(context.Context, string) ([]aitable.FieldSchema, error) {
	return nil, s.err
}

func (s *stubRemote) CreateRecord(context.Context, string, map[string]any) (json.RawMessage, error) {
	return nil, s.err
}

func (s *stubRemote) UploadAttachment(context.Context, string, string, string) (*aitable.Response, error) {
	return nil, s.err
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	d, err := tools.New(&stubRemote{spaces: []aitable.Space{{ID: "spc1", Name: "Team"}}}, nil)
	require.NoError(t, err)
	return New(cfg, d)
}

func do(t *testing.T, s *Server, method, path, token, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func rpc(id int, method string, params any) map[string]any {
	msg := map[string]any{"jsonrpc": "2.0", "method": method}
	if id > 0 {
		msg["id"] = id
	}
	if params != nil {
		msg["params"] = params
	}
	return msg
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func initialize(t *testing.T, s *Server, token string) string {
	t.Helper()
	rr := do(t, s, http.MethodPost, "/mcp", token, "", rpc(1, "initialize", map[string]any{"protocolVersion": "2025-03-26"}))
	require.Equal(t, http.StatusOK, rr.Code)
	id := rr.Header().Get("Mcp-Session-Id")
	require.NotEmpty(t, id)
	return id
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Config{})
	rr := do(t, s, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestToolsAndCall(t *testing.T) {
	s := newTestServer(t, Config{Token: "x"})

	rr := do(t, s, http.MethodGet, "/mcp/tools", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, s, http.MethodGet, "/mcp/tools", "wrong", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, s, http.MethodGet, "/mcp/tools", "x", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	listed := decode(t, rr)["tools"].([]any)
	assert.Len(t, listed, 6)
	first := listed[0].(map[string]any)
	assert.Equal(t, "list_spaces", first["name"])
	assert.Contains(t, first, "inputSchema")

	rr = do(t, s, http.MethodPost, "/mcp/call", "x", "", map[string]any{"name": "list_spaces", "arguments": map[string]any{}})
	require.Equal(t, http.StatusOK, rr.Code)
	res := decode(t, rr)
	assert.Equal(t, false, res["isError"])
	text := res["content"].([]any)[0].(map[string]any)["text"].(string)
	assert.Contains(t, text, `"spc1"`)
}

func TestCallRejectsBadBodies(t *testing.T) {
	s := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/mcp/call", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, s, http.MethodPost, "/mcp/call", "", "", map[string]any{"arguments": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCallUnknownToolIsErrorResult(t *testing.T) {
	s := newTestServer(t, Config{})
	rr := do(t, s, http.MethodPost, "/mcp/call", "", "", map[string]any{"name": "drop_table"})
	require.Equal(t, http.StatusOK, rr.Code)
	res := decode(t, rr)
	assert.Equal(t, true, res["isError"])
	text := res["content"].([]any)[0].(map[string]any)["text"].(string)
	assert.JSONEq(t, `{"success":false,"message":"unknown tool: drop_table"}`, text)
}

func TestJSONRPCSessionFlow(t *testing.T) {
	s := newTestServer(t, Config{Token: "x", Name: "aitable-mcp", Version: "1.2.3"})

	rr := do(t, s, http.MethodPost, "/mcp", "x", "", rpc(1, "initialize", map[string]any{"protocolVersion": "2025-03-26"}))
	require.Equal(t, http.StatusOK, rr.Code)
	sessionID := rr.Header().Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID)
	result := decode(t, rr)["result"].(map[string]any)
	assert.Equal(t, "2025-03-26", result["protocolVersion"])
	assert.Equal(t, "1.2.3", result["serverInfo"].(map[string]any)["version"])

	rr = do(t, s, http.MethodPost, "/mcp", "x", sessionID, rpc(0, "notifications/initialized", nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)

	rr = do(t, s, http.MethodPost, "/mcp", "x", sessionID, rpc(2, "tools/list", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode(t, rr)
	assert.EqualValues(t, 2, resp["id"])
	assert.Len(t, resp["result"].(map[string]any)["tools"], 6)

	rr = do(t, s, http.MethodPost, "/mcp", "x", sessionID, rpc(3, "tools/call", map[string]any{"name": "list_spaces", "arguments": map[string]any{}}))
	require.Equal(t, http.StatusOK, rr.Code)
	callResult := decode(t, rr)["result"].(map[string]any)
	assert.Equal(t, false, callResult["isError"])

	rr = do(t, s, http.MethodPost, "/mcp", "x", sessionID, rpc(4, "ping", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, decode(t, rr), "result")

	rr = do(t, s, http.MethodPost, "/mcp", "x", sessionID, rpc(5, "resources/list", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, rpcMethodNotFound, decode(t, rr)["error"].(map[string]any)["code"])

	rr = do(t, s, http.MethodDelete, "/mcp", "x", sessionID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, s, http.MethodPost, "/mcp", "x", sessionID, rpc(6, "tools/list", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestJSONRPCUnsupportedVersionFallsBackToLatest(t *testing.T) {
	s := newTestServer(t, Config{})
	rr := do(t, s, http.MethodPost, "/mcp", "", "", rpc(1, "initialize", map[string]any{"protocolVersion": "1999-01-01"}))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, latestProtocolVersion, decode(t, rr)["result"].(map[string]any)["protocolVersion"])
}

func TestJSONRPCRequiresSession(t *testing.T) {
	s := newTestServer(t, Config{})

	rr := do(t, s, http.MethodPost, "/mcp", "", "", rpc(1, "tools/list", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, s, http.MethodPost, "/mcp", "", "no-such-session", rpc(1, "tools/list", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestJSONRPCMalformed(t *testing.T) {
	s := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("not json"))
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	resp := decode(t, rr)
	assert.EqualValues(t, rpcParseError, resp["error"].(map[string]any)["code"])
	assert.Nil(t, resp["id"])

	rr = do(t, s, http.MethodPost, "/mcp", "", "", map[string]any{"jsonrpc": "1.0", "id": 1, "method": "initialize"})
	assert.EqualValues(t, rpcInvalidRequest, decode(t, rr)["error"].(map[string]any)["code"])

	sessionID := initialize(t, s, "")
	rr = do(t, s, http.MethodPost, "/mcp", "", sessionID, rpc(2, "tools/call", map[string]any{"arguments": map[string]any{}}))
	assert.EqualValues(t, rpcInvalidParams, decode(t, rr)["error"].(map[string]any)["code"])
}

func TestJSONRPCRejectsUnsupportedProtocolHeader(t *testing.T) {
	s := newTestServer(t, Config{})
	sessionID := initialize(t, s, "")

	buf, _ := json.Marshal(rpc(2, "tools/list", nil))
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(buf))
	req.Header.Set("Mcp-Session-Id", sessionID)
	req.Header.Set("Mcp-Protocol-Version", "1999-01-01")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteSession(t *testing.T) {
	s := newTestServer(t, Config{})
	sessionID := initialize(t, s, "")

	rr := do(t, s, http.MethodDelete, "/mcp", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, s, http.MethodDelete, "/mcp", "", "missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, s, http.MethodDelete, "/mcp", "someone-else", sessionID, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, s, http.MethodDelete, "/mcp", "", sessionID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 0, s.sessions.len())
}

func TestMetricsEndpoint(t *testing.T) {
	m := NewMetrics()
	d, err := tools.New(&stubRemote{}, nil)
	require.NoError(t, err)
	d.Observe = m.ObserveTool
	s := New(Config{Metrics: m}, d)

	initialize(t, s, "")
	do(t, s, http.MethodPost, "/mcp/call", "", "", map[string]any{"name": "list_spaces"})
	m.ObserveRemote(http.MethodGet, "/spaces", 0, time.Millisecond)

	rr := do(t, s, http.MethodGet, "/metrics", "", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `aitable_mcp_tool_calls_total{outcome="success",tool="list_spaces"} 1`)
	assert.Contains(t, body, `aitable_mcp_remote_requests_total{method="GET",status="error"} 1`)
	assert.Contains(t, body, "aitable_mcp_sessions 1")
}

func TestNoMetricsRouteWithoutMetrics(t *testing.T) {
	s := newTestServer(t, Config{})
	rr := do(t, s, http.MethodGet, "/metrics", "", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
