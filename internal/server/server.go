// Package server provides the HTTP handlers and routing for the MCP server.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"aitable-mcp/internal/tools"
)

// Config contains server configuration values such as port and auth token.
type Config struct {
	Port           string
	Token          string
	SessionTTL     time.Duration
	RequestTimeout time.Duration
	Name           string
	Version        string
	Logger         *slog.Logger
	Metrics        *Metrics
}

// Server contains the configured router, session table and tool dispatcher.
type Server struct {
	cfg        Config
	router     *chi.Mux
	dispatcher *tools.Dispatcher
	sessions   *sessionStore
	logger     *slog.Logger
}

// New constructs a Server with middleware and routes configured.
func New(cfg Config, d *tools.Dispatcher) *Server {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "aitable-mcp"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		router:     chi.NewRouter(),
		dispatcher: d,
		sessions:   newSessionStore(cfg.SessionTTL),
		logger:     logger,
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(cfg.RequestTimeout))

	s.router.Get("/health", s.handleHealth)
	if cfg.Metrics != nil {
		s.router.Handle("/metrics", cfg.Metrics.Handler())
	}

	s.router.Route("/mcp", func(r chi.Router) {
		r.Use(s.auth)
		r.Post("/", s.handleRPC)
		r.Delete("/", s.handleDeleteSession)
		r.Get("/tools", s.handleListTools)
		r.Post("/call", s.handleCall)
	})

	return s
}

// Router exposes the root HTTP handler for the server.
func (s *Server) Router() http.Handler { return s.router }

// SweepSessions drops expired sessions every interval until ctx is done.
func (s *Server) SweepSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.sweep(); n > 0 {
				s.logger.Debug("expired MCP sessions removed", "count", n)
			}
			s.recordSessions()
		}
	}
}

func (s *Server) recordSessions() {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SetSessions(s.sessions.len())
	}
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.cfg.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, listToolsResult{Tools: s.dispatcher.Tools()})
}

// handleCall runs a tool outside of a JSON-RPC session and returns the bare
// tool result.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "tool name is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.dispatcher.Call(r.Context(), req.Name, req.Args))
}

// handleRPC processes JSON-RPC messages of the MCP streamable HTTP transport.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
	if err != nil {
		s.sendError(w, nil, rpcParseError, "failed to read request body")
		return
	}
	if len(body) > maxRequestBodySize {
		s.sendError(w, nil, rpcInvalidRequest, "request body too large")
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.sendError(w, nil, rpcParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" {
		s.sendError(w, req.ID, rpcInvalidRequest, "invalid JSON-RPC version")
		return
	}
	if v := r.Header.Get("Mcp-Protocol-Version"); v != "" && req.Method != "initialize" && !supportedProtocolVersions[v] {
		http.Error(w, "Bad Request: unsupported MCP-Protocol-Version", http.StatusBadRequest)
		return
	}

	if req.Method == "initialize" {
		s.handleInitialize(w, r, req)
		return
	}

	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}
	if _, ok := s.sessions.get(sessionID); !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	if len(req.ID) == 0 || string(req.ID) == "null" {
		if !strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch req.Method {
	case "ping":
		s.sendResult(w, req.ID, map[string]any{})
	case "tools/list":
		s.sendResult(w, req.ID, listToolsResult{Tools: s.dispatcher.Tools()})
	case "tools/call":
		s.handleToolsCall(w, r, req)
	default:
		s.sendError(w, req.ID, rpcMethodNotFound, "method not found")
	}
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendError(w, req.ID, rpcInvalidParams, "invalid params")
			return
		}
	}
	version := latestProtocolVersion
	if supportedProtocolVersions[params.ProtocolVersion] {
		version = params.ProtocolVersion
	}

	sess := s.sessions.create(version, bearerToken(r))
	s.recordSessions()
	s.logger.Info("MCP session created", "session_id", sess.id, "protocol_version", version)

	w.Header().Set("Mcp-Session-Id", sess.id)
	s.sendResult(w, req.ID, map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    s.cfg.Name,
			"version": s.cfg.Version,
		},
	})
}

func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var params CallRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendError(w, req.ID, rpcInvalidParams, "invalid params")
			return
		}
	}
	if params.Name == "" {
		s.sendError(w, req.ID, rpcInvalidParams, "tool name is required")
		return
	}
	s.sendResult(w, req.ID, s.dispatcher.Call(r.Context(), params.Name, params.Args))
}

// handleDeleteSession terminates a session. Only the bearer that created a
// session may end it.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}
	sess, ok := s.sessions.get(sessionID)
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if sess.ownerToken != bearerToken(r) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	s.sessions.delete(sessionID)
	s.recordSessions()
	s.logger.Info("MCP session terminated", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func bearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (s *Server) sendResult(w http.ResponseWriter, id json.RawMessage, result any) {
	s.send(w, rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) sendError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	s.send(w, rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

func (s *Server) send(w http.ResponseWriter, resp rpcResponse) {
	if resp.ID == nil {
		resp.ID = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
