package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/mcpvault/mcpvault/internal/audit"
	"github.com/mcpvault/mcpvault/internal/dispatcher"
	"github.com/mcpvault/mcpvault/internal/events"
	"github.com/mcpvault/mcpvault/internal/metrics"
	"github.com/mcpvault/mcpvault/internal/ratelimit"
	"github.com/mcpvault/mcpvault/internal/wallet"
)

// Server holds the wallet and dispatcher handles a headless vaultd process
// needs to answer MCP requests. One Server instance is shared by every
// connected transport (stdio is single-client by protocol; HTTP/SSE may
// serve several concurrent callers against the same resumed session).
type Server struct {
	Wallet     *wallet.Wallet
	Dispatcher *dispatcher.Dispatcher
	Bus        *events.Bus
	Logger     *slog.Logger

	Name    string
	Version string

	// SessionToken is the token this process resumed at startup; the
	// HTTP/SSE transport authorises every call against it.
	SessionToken string

	// Metrics, Audit, and RateLimiter are optional collaborators set by the
	// caller after New returns; each is nil-checked before use so a Server
	// built without them (most tests) behaves exactly as before.
	Metrics     *metrics.Registry
	Audit       *audit.Log
	RateLimiter *ratelimit.Limiter
}

// New creates a Server. logger may be nil, in which case slog.Default() is used.
func New(w *wallet.Wallet, d *dispatcher.Dispatcher, bus *events.Bus, name, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Wallet: w, Dispatcher: d, Bus: bus, Name: name, Version: version, Logger: logger}
}

// HandleMessage decodes one JSON-RPC message and dispatches it to the
// matching method handler. It returns nil for notifications, which never
// produce a response per the JSON-RPC spec.
func (s *Server) HandleMessage(ctx context.Context, raw []byte) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return newErrorResponse(nil, CodeParseError, "parse error: "+err.Error())
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return newErrorResponse(req.ID, CodeInvalidRequest, "invalid request")
	}

	var resp *Response
	switch req.Method {
	case "initialize":
		resp = s.handleInitialize(req)
	case "notifications/initialized":
		return nil // acknowledged, no side effects, no response
	case "tools/list":
		resp = s.handleToolsList(req)
	case "tools/call":
		resp = s.handleToolsCall(ctx, req)
	default:
		resp = newErrorResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
	if req.IsNotification() {
		return nil
	}
	return resp
}

func (s *Server) handleInitialize(req Request) *Response {
	var params InitializeParams
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &params)
	}
	result := InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]any{
			"tools": map[string]any{"listChanged": true},
		},
		ServerInfo: ServerInfo{Name: s.Name, Version: s.Version},
	}
	return newResponse(req.ID, result)
}

func (s *Server) handleToolsList(req Request) *Response {
	tools, err := s.listTools()
	if err != nil {
		return newErrorResponse(req.ID, CodeInternalError, err.Error())
	}
	return newResponse(req.ID, ToolsListResult{Tools: tools})
}

func (s *Server) handleToolsCall(ctx context.Context, req Request) *Response {
	var params ToolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newErrorResponse(req.ID, CodeInvalidParams, "invalid params: "+err.Error())
	}

	start := time.Now()
	result, integrationKey, err := s.callTool(ctx, params.Name, params.Arguments)
	latencyMs := float64(time.Since(start).Milliseconds())

	if err != nil {
		s.publishToolEvent(params.Name, false, latencyMs, err.Error())
		s.recordToolCall(ctx, integrationKey, params.Name, "error", latencyMs, err.Error())
		switch {
		case errors.Is(err, errUnauthenticated):
			return newErrorResponse(req.ID, CodeUnauthenticated, err.Error())
		case errors.Is(err, wallet.ErrWalletLocked):
			return newErrorResponse(req.ID, CodeInternalError, "wallet locked")
		default:
			var badArgs *dispatcher.ErrBadArguments
			var badIntegration *dispatcher.ErrBadIntegration
			if errors.As(err, &badArgs) {
				return newErrorResponse(req.ID, CodeInvalidParams, err.Error())
			}
			if errors.As(err, &badIntegration) {
				return newErrorResponse(req.ID, CodeInternalError, err.Error())
			}
			return newErrorResponse(req.ID, CodeInternalError, err.Error())
		}
	}

	status := "ok"
	if result.IsError {
		status = "tool_error"
	}
	s.publishToolEvent(params.Name, !result.IsError, latencyMs, "")
	s.recordToolCall(ctx, integrationKey, params.Name, status, latencyMs, "")
	return newResponse(req.ID, result)
}

// recordToolCall updates the tool-call counter and latency histogram and
// writes the audit trail's single most important row: one entry per
// tools/call dispatch, success or failure. Both collaborators are optional;
// a logging or metrics failure never affects the MCP response already
// computed by the caller.
func (s *Server) recordToolCall(ctx context.Context, integrationKey, toolName, status string, latencyMs float64, detail string) {
	if s.Metrics != nil {
		s.Metrics.ToolCallsTotal.WithLabelValues(integrationKey, toolName, status).Inc()
		s.Metrics.ToolCallLatency.WithLabelValues(integrationKey, toolName).Observe(latencyMs)
	}
	if s.Audit != nil {
		_ = s.Audit.Record(ctx, audit.Entry{
			Kind:           "tool.call",
			IntegrationKey: integrationKey,
			ToolName:       toolName,
			Status:         status,
			LatencyMs:      latencyMs,
			Detail:         detail,
		})
	}
}

func (s *Server) publishToolEvent(toolName string, success bool, latencyMs float64, errMsg string) {
	if s.Bus == nil {
		return
	}
	e := events.Event{
		ToolName:  toolName,
		LatencyMs: latencyMs,
		ErrorMsg:  errMsg,
	}
	if success {
		e.Type = events.EventToolCallSucceeded
	} else {
		e.Type = events.EventToolCallFailed
	}
	s.Bus.Publish(e)
}
