// Package mcp is the RPC boundary: it consumes framed
// {session_id, method, params} requests, resolves the session's project
// context, dispatches to the registered tool, and translates engine errors
// into structured JSON-RPC errors. Engines below this layer never see
// transport concerns.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/codeintel/server/internal/mcp/tools"
	"github.com/codeintel/server/internal/metrics"
	"github.com/codeintel/server/internal/session"
	"github.com/codeintel/server/internal/xerrors"
)

// JSON-RPC error codes. The standard range covers protocol failures;
// server-defined codes carry the engine taxonomy.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603

	codeStoreUnavailable = -32000
	codeNotFound         = -32001
	codeScopeMismatch    = -32002
	codeTimeout          = -32003
	codeNoWorkspace      = -32004
)

// maxDeadline caps the per-call deadline a client may request.
const maxDeadline = 5 * time.Minute

// Handler dispatches requests to tools.
type Handler struct {
	tools    map[string]tools.Tool
	sessions *session.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewHandler creates a Handler over the session registry. metrics may be
// nil.
func NewHandler(sessions *session.Registry, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		tools:    make(map[string]tools.Tool),
		sessions: sessions,
		metrics:  m,
		logger:   logger.With("component", "rpc"),
	}
}

// Register adds a tool under its own name.
func (h *Handler) Register(tool tools.Tool) {
	h.tools[tool.Name()] = tool
}

// Methods lists the registered method names.
func (h *Handler) Methods() []string {
	out := make([]string, 0, len(h.tools))
	for name := range h.tools {
		out = append(out, name)
	}
	return out
}

// Handle processes one request and always returns a response; engine
// failures become structured errors, never panics.
func (h *Handler) Handle(ctx context.Context, req *tools.JSONRPCRequest) *tools.JSONRPCResponse {
	start := time.Now()

	tool, ok := h.tools[req.Method]
	if !ok {
		return errorResponse(req.ID, codeMethodNotFound, "method not found: "+req.Method, nil)
	}

	params := req.Params
	if params == nil {
		params = map[string]interface{}{}
	}

	call := tools.Call{SessionID: req.SessionID, Params: params}
	if pc, bound := h.sessions.Resolve(req.SessionID); bound {
		call.Project = pc
		call.Bound = true
	}
	if tool.RequiresWorkspace() && !call.Bound {
		return errorResponse(req.ID, codeNoWorkspace, "no workspace bound; call set_workspace first", map[string]interface{}{"kind": "NoWorkspace"})
	}

	ctx, cancel := callContext(ctx, params)
	defer cancel()

	result, err := tool.Execute(ctx, call)

	if h.metrics != nil {
		h.metrics.ObserveQuery(req.Method, time.Since(start))
	}

	if err != nil {
		if ctx.Err() != nil {
			err = xerrors.Timeoutf("%s exceeded its deadline: %v", req.Method, ctx.Err())
		}
		h.logger.Warn("tool failed", "method", req.Method, "session_id", req.SessionID, "error", err)
		code, kind := classify(err)
		return errorResponse(req.ID, code, err.Error(), map[string]interface{}{"kind": kind})
	}

	return &tools.JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

// callContext applies the optional deadline_ms param.
func callContext(ctx context.Context, params map[string]interface{}) (context.Context, context.CancelFunc) {
	raw, ok := params["deadline_ms"].(float64)
	if !ok || raw <= 0 {
		return context.WithCancel(ctx)
	}
	d := time.Duration(raw) * time.Millisecond
	if d > maxDeadline {
		d = maxDeadline
	}
	return context.WithTimeout(ctx, d)
}

// classify maps an engine error onto a JSON-RPC code and a stable kind
// string, without ever leaking raw store errors: the xerrors wrap is the
// message surface.
func classify(err error) (int, string) {
	var xe *xerrors.Error
	if !errors.As(err, &xe) {
		return codeInternal, "Internal"
	}
	switch xe.Type {
	case xerrors.ErrorTypeDatabase, xerrors.ErrorTypeNetwork, xerrors.ErrorTypeExternal:
		return codeStoreUnavailable, "StoreUnavailable"
	case xerrors.ErrorTypeNotFound:
		return codeNotFound, "NotFound"
	case xerrors.ErrorTypeProjectScopeMismatch:
		return codeScopeMismatch, "ProjectScopeMismatch"
	case xerrors.ErrorTypeTimeout:
		return codeTimeout, "Timeout"
	case xerrors.ErrorTypeInvalidArguments, xerrors.ErrorTypeValidation:
		return codeInvalidParams, "InvalidArguments"
	case xerrors.ErrorTypeQueryTooShort:
		return codeInvalidParams, "QueryTooShort"
	case xerrors.ErrorTypeConfig:
		return codeInternal, "Config"
	default:
		return codeInternal, "Internal"
	}
}

func errorResponse(id interface{}, code int, message string, data interface{}) *tools.JSONRPCResponse {
	return &tools.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &tools.JSONRPCError{Code: code, Message: message, Data: data},
	}
}
