package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/codeintel/server/internal/mcp/tools"
)

// maxLineBytes bounds a single framed request; large payloads (bulk
// episode imports) stay well under this.
const maxLineBytes = 4 << 20

// StdioTransport reads newline-delimited JSON-RPC requests from in and
// writes one response line per request to out. Requests from the same
// stream are processed in arrival order; the transport owns the write lock
// so a future concurrent dispatcher cannot interleave partial lines.
type StdioTransport struct {
	in      io.Reader
	out     io.Writer
	outMu   sync.Mutex
	handler *Handler
}

// NewStdioTransport wires a transport over the given streams.
func NewStdioTransport(handler *Handler, in io.Reader, out io.Writer) *StdioTransport {
	return &StdioTransport{in: in, out: out, handler: handler}
}

// Run processes requests until EOF or ctx cancellation.
func (t *StdioTransport) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req tools.JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			t.write(errorResponse(nil, codeParseError, "parse error", nil))
			continue
		}

		resp := t.handler.Handle(ctx, &req)
		t.write(resp)
	}
	return scanner.Err()
}

func (t *StdioTransport) write(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	t.outMu.Lock()
	defer t.outMu.Unlock()
	t.out.Write(data)
	t.out.Write([]byte{'\n'})
}
