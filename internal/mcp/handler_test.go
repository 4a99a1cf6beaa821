package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeintel/server/internal/index"
	"github.com/codeintel/server/internal/mcp/tools"
	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/session"
	"github.com/codeintel/server/internal/xerrors"
)

type echoTool struct {
	name      string
	needsWS   bool
	lastCall  tools.Call
	result    interface{}
	returnErr error
}

func (e *echoTool) Name() string            { return e.name }
func (e *echoTool) RequiresWorkspace() bool { return e.needsWS }
func (e *echoTool) Execute(ctx context.Context, call tools.Call) (interface{}, error) {
	e.lastCall = call
	return e.result, e.returnErr
}

func newTestHandler(t *testing.T) (*Handler, *session.Registry) {
	t.Helper()
	sessions := session.NewRegistry(index.NewRegistry(0, nil), nil, false, nil)
	return NewHandler(sessions, nil, nil), sessions
}

func TestHandleUnknownMethod(t *testing.T) {
	h, _ := newTestHandler(t)
	resp := h.Handle(context.Background(), &tools.JSONRPCRequest{ID: 1, Method: "nope"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestHandleRejectsUnboundWorkspaceTool(t *testing.T) {
	h, _ := newTestHandler(t)
	h.Register(&echoTool{name: "query", needsWS: true})

	resp := h.Handle(context.Background(), &tools.JSONRPCRequest{ID: 1, Method: "query", SessionID: "s1"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeNoWorkspace, resp.Error.Code)
}

func TestHandleResolvesSessionContext(t *testing.T) {
	h, sessions := newTestHandler(t)
	tool := &echoTool{name: "query", needsWS: true, result: "ok"}
	h.Register(tool)

	_, err := sessions.SetWorkspace(context.Background(), "s1", models.ProjectContext{ProjectID: "a", RootPath: "/tmp/a"})
	require.NoError(t, err)

	resp := h.Handle(context.Background(), &tools.JSONRPCRequest{ID: 1, Method: "query", SessionID: "s1"})
	require.Nil(t, resp.Error)
	assert.Equal(t, "ok", resp.Result)
	assert.Equal(t, "a", tool.lastCall.Project.ProjectID)
	assert.True(t, tool.lastCall.Bound)
}

func TestHandleClassifiesEngineErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
		kind string
	}{
		{xerrors.NotFoundf("missing"), codeNotFound, "NotFound"},
		{xerrors.DatabaseErrorf("down"), codeStoreUnavailable, "StoreUnavailable"},
		{xerrors.InvalidArgumentsf("bad"), codeInvalidParams, "InvalidArguments"},
		{xerrors.ProjectScopeMismatchf("cross"), codeScopeMismatch, "ProjectScopeMismatch"},
		{xerrors.Timeoutf("slow"), codeTimeout, "Timeout"},
	}

	for _, tc := range cases {
		h, _ := newTestHandler(t)
		h.Register(&echoTool{name: "t", returnErr: tc.err})
		resp := h.Handle(context.Background(), &tools.JSONRPCRequest{ID: 1, Method: "t"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, tc.code, resp.Error.Code)
		data, ok := resp.Error.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, tc.kind, data["kind"])
	}
}

func TestStdioTransportRoundTrip(t *testing.T) {
	h, _ := newTestHandler(t)
	h.Register(&echoTool{name: "ping", result: map[string]interface{}{"pong": true}})

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n" + "not json\n")
	var out bytes.Buffer
	transport := NewStdioTransport(h, in, &out)
	require.NoError(t, transport.Run(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var first tools.JSONRPCResponse
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Nil(t, first.Error)

	var second tools.JSONRPCResponse
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.NotNil(t, second.Error)
	assert.Equal(t, codeParseError, second.Error.Code)
}
