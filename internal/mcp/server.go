package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// maxLineBytes bounds a single request line. Inline base64 image payloads
// can run to several megabytes.
const maxLineBytes = 64 * 1024 * 1024

// Handler processes a single decoded request. A nil response means no
// output line is written (notifications).
type Handler interface {
	HandleRequest(request JSONRPCRequest) *JSONRPCResponse
}

// StdioServer runs the newline-delimited JSON-RPC loop over an
// input/output stream pair. The loop is strictly sequential: the next
// line is not read until the current response has been written and
// flushed, so requests never overlap in flight.
type StdioServer struct {
	reader  io.Reader
	writer  io.Writer
	handler Handler
	logger  *slog.Logger
}

// NewStdioServer creates a new StdioServer instance.
func NewStdioServer(reader io.Reader, writer io.Writer, handler Handler) *StdioServer {
	return &StdioServer{
		reader:  reader,
		writer:  writer,
		handler: handler,
		logger:  slog.Default(),
	}
}

// Run reads one line at a time until end-of-input. Blank lines produce no
// output. A line that fails to parse as JSON yields a -32700 response
// with a null id, since the id cannot be recovered from unparseable
// input. End-of-stream is a clean return, not an error.
func (s *StdioServer) Run() error {
	scanner := bufio.NewScanner(s.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	writer := bufio.NewWriter(s.writer)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var request JSONRPCRequest
		if err := json.Unmarshal(line, &request); err != nil {
			s.logger.Debug("Failed to parse request line", "error", err)
			if werr := s.writeResponse(writer, NewErrorResponse(nil, CodeParseError, "Parse error", nil)); werr != nil {
				return werr
			}
			continue
		}

		response := s.dispatch(request)
		if response == nil {
			continue
		}
		if err := s.writeResponse(writer, *response); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// dispatch invokes the handler, converting a panic into a -32603
// response carrying the best-known request id.
func (s *StdioServer) dispatch(request JSONRPCRequest) (response *JSONRPCResponse) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic while handling request", "method", request.Method, "id", request.ID, "panic", r)
			errResp := NewErrorResponse(request.ID, CodeInternalError, fmt.Sprintf("Internal error: %v", r), nil)
			response = &errResp
		}
	}()
	return s.handler.HandleRequest(request)
}

// writeResponse serializes one response as a single line and flushes it
// immediately, preserving one-line-per-message framing on the wire.
func (s *StdioServer) writeResponse(writer *bufio.Writer, response JSONRPCResponse) error {
	respBytes, err := json.Marshal(response)
	if err != nil {
		s.logger.Error("Failed to marshal response", "id", response.ID, "error", err)
		respBytes, err = json.Marshal(NewErrorResponse(response.ID, CodeInternalError, "Internal error: response serialization failed", nil))
		if err != nil {
			return err
		}
	}
	if _, err := writer.Write(respBytes); err != nil {
		return err
	}
	if _, err := writer.WriteString("\n"); err != nil {
		return err
	}
	return writer.Flush()
}
