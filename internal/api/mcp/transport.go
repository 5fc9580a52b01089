package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/scrypster/atelier/internal/logger"
)

// maxLineBytes bounds a single request line.
const maxLineBytes = 4 * 1024 * 1024

// StdioTransport reads line-delimited JSON-RPC 2.0 requests from in and
// writes one response line per request to out. Nothing but responses may be
// written to out; diagnostics go to the logger, which writes to stderr.
type StdioTransport struct {
	server *Server
	in     io.Reader
	out    io.Writer
	log    *logger.Logger
}

// NewStdioTransport constructs a transport between srv and the given streams.
//
//	t := mcp.NewStdioTransport(srv, os.Stdin, os.Stdout, log)
//	t.Serve(ctx)
func NewStdioTransport(srv *Server, in io.Reader, out io.Writer, log *logger.Logger) *StdioTransport {
	if log == nil {
		log = logger.Nop()
	}
	return &StdioTransport{server: srv, in: in, out: out, log: log}
}

// Serve processes requests in arrival order until in is closed or ctx is
// cancelled.
func (t *StdioTransport) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for {
		select {
		case <-ctx.Done():
			t.log.Info("mcp: context cancelled, shutting down")
			return ctx.Err()
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				t.log.Error("mcp: stdin scanner error", "error", err)
				return fmt.Errorf("stdin scanner: %w", err)
			}
			t.log.Info("mcp: stdin closed, shutting down")
			return nil
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp, err := t.server.HandleRequest(ctx, line)
		if err != nil {
			t.log.Error("mcp: handler error", "error", err)
			resp = internalErrorResponse(line, err)
		}
		if resp == nil {
			continue // notification
		}

		if _, err := fmt.Fprintf(t.out, "%s\n", resp); err != nil {
			t.log.Error("mcp: write error", "error", err)
			return fmt.Errorf("write response: %w", err)
		}
	}
}

// internalErrorResponse builds a best-effort error response, recovering the
// request id when possible so the client can correlate it.
func internalErrorResponse(rawRequest []byte, handlerErr error) []byte {
	var partial struct {
		ID interface{} `json:"id"`
	}
	_ = json.Unmarshal(rawRequest, &partial)

	data, err := json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      partial.ID,
		Error: &JSONRPCError{
			Code:    ErrCodeInternalError,
			Message: handlerErr.Error(),
		},
	})
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return data
}
