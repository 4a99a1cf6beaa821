// Package tools implements the server's RPC tool surface. Each tool
// consumes an already-resolved Call (session project context + raw params)
// and returns a JSON-encodable result; transport framing and session
// resolution live one layer up in internal/mcp.
package tools

import (
	"context"
	"fmt"

	"github.com/codeintel/server/internal/models"
)

// JSONRPCRequest is one framed request line. SessionID is carried as a
// top-level envelope field; a null/absent session maps to the process-wide
// default context.
type JSONRPCRequest struct {
	JSONRPC   string                 `json:"jsonrpc"`
	ID        interface{}            `json:"id"`
	SessionID string                 `json:"session_id,omitempty"`
	Method    string                 `json:"method"`
	Params    map[string]interface{} `json:"params"`
}

// JSONRPCResponse is the reply to one request.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCError is the structured error shape; Data carries the engine
// error kind so callers can branch without parsing messages.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Call is the resolved request a tool executes against.
type Call struct {
	SessionID string
	Project   models.ProjectContext
	Bound     bool // false until the session (or default) has a workspace
	Params    map[string]interface{}
}

// Profile returns the call's output-shaping profile, defaulting to
// balanced.
func (c Call) Profile() string {
	p, _ := c.Params["profile"].(string)
	switch p {
	case "compact", "balanced", "debug":
		return p
	default:
		return "balanced"
	}
}

// Tool is one RPC method implementation.
type Tool interface {
	Name() string
	// RequiresWorkspace reports whether the tool needs a bound project
	// context; the handler rejects unbound calls before Execute runs.
	RequiresWorkspace() bool
	Execute(ctx context.Context, call Call) (interface{}, error)
}

// Param helpers. JSON numbers arrive as float64; integer-valued fields are
// narrowed with explicit bounds checks before use.

func stringParam(params map[string]interface{}, key string) string {
	v, _ := params[key].(string)
	return v
}

func boolParam(params map[string]interface{}, key string) bool {
	v, _ := params[key].(bool)
	return v
}

func intParam(params map[string]interface{}, key string, def int) (int, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return def, nil
	}
	f, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	const maxSafe = float64(1 << 53)
	if f > maxSafe || f < -maxSafe {
		return 0, fmt.Errorf("%s out of range", key)
	}
	return int(f), nil
}

func stringSliceParam(params map[string]interface{}, key string) []string {
	raw, ok := params[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
