package mcp

// JSONRPCRequest represents a JSON-RPC request.
type JSONRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Method  string        `json:"method"`
	Params  RequestParams `json:"params"`
}

// RequestParams holds the parameters for the MCP methods this server
// understands.
type RequestParams struct {
	// initialize params
	ProtocolVersion string                 `json:"protocolVersion,omitempty"`
	ClientInfo      map[string]interface{} `json:"clientInfo,omitempty"`
	Capabilities    map[string]interface{} `json:"capabilities,omitempty"`

	// tools/call params
	Name      string                 `json:"name,omitempty"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC response. The ID field carries no
// omitempty on purpose: a parse error response must serialize "id":null.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard JSON-RPC error codes used by the transport and the router.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// NewErrorResponse creates a JSONRPCResponse populated with an error.
func NewErrorResponse(id interface{}, code int, message string, data interface{}) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &RPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}
