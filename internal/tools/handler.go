package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"imagegen-mcp-server/internal/config"
	"imagegen-mcp-server/internal/genai"
	"imagegen-mcp-server/internal/imagehost"
	"imagegen-mcp-server/internal/mcp"
)

// resultProcessor is the post-processing hook applied to generation
// results before they are returned.
type resultProcessor interface {
	Process(result map[string]interface{}) (map[string]interface{}, error)
}

// Handler routes MCP requests to the tool implementations.
type Handler struct {
	src          config.Source
	timeoutSec   int
	newGenerator genai.Factory
	processor    resultProcessor
	logger       *slog.Logger
}

// NewHandler creates the request router. Provider availability, tool
// schemas and upload configuration are all derived from src at call
// time, never captured here.
func NewHandler(src config.Source, timeoutSec int) *Handler {
	return &Handler{
		src:          src,
		timeoutSec:   timeoutSec,
		newGenerator: genai.New,
		processor:    imagehost.NewProcessor(src),
		logger:       slog.Default(),
	}
}

// HandleRequest dispatches one request. A nil return means no response
// line is written; notifications/initialized is the only method with
// that behavior.
func (h *Handler) HandleRequest(request mcp.JSONRPCRequest) *mcp.JSONRPCResponse {
	h.logger.Debug("Handling request", "method", request.Method, "id", request.ID)

	var response mcp.JSONRPCResponse
	switch request.Method {
	case "initialize":
		response = h.handleInitialize(request)
	case "notifications/initialized":
		return nil
	case "ping":
		response = mcp.JSONRPCResponse{JSONRPC: "2.0", ID: request.ID, Result: map[string]interface{}{}}
	case "tools/list":
		response = h.handleListTools(request)
	case "tools/call":
		response = h.handleCallTool(request)
	default:
		response = mcp.NewErrorResponse(request.ID, mcp.CodeMethodNotFound, "Method not found", request.Method)
	}
	return &response
}

func (h *Handler) handleInitialize(request mcp.JSONRPCRequest) mcp.JSONRPCResponse {
	return mcp.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      request.ID,
		Result: map[string]interface{}{
			"protocolVersion": protocolVersion,
			"serverInfo": map[string]interface{}{
				"name":    serverName,
				"version": serverVersion,
			},
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
		},
	}
}

func (h *Handler) handleListTools(request mcp.JSONRPCRequest) mcp.JSONRPCResponse {
	return mcp.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      request.ID,
		Result:  map[string]interface{}{"tools": toolDefinitions(genai.Available(h.src))},
	}
}

func (h *Handler) handleCallTool(request mcp.JSONRPCRequest) mcp.JSONRPCResponse {
	h.logger.Debug("Handling tools/call request", "tool_name", request.Params.Name, "id", request.ID)

	args := request.Params.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}

	var toolResult map[string]interface{}
	var toolErr error
	switch request.Params.Name {
	case "generate_image":
		toolResult, toolErr = h.callGenerateImage(args)
	case "list_models":
		toolResult, toolErr = h.callListModels(args)
	case "list_providers":
		toolResult, toolErr = h.callListProviders()
	default:
		return mcp.NewErrorResponse(request.ID, mcp.CodeInvalidParams, "Tool not found: "+request.Params.Name, nil)
	}

	if toolErr != nil {
		message, ok := toolErrorMessage(toolErr)
		if !ok {
			h.logger.Error("Tool call failed unexpectedly", "tool_name", request.Params.Name, "error", toolErr)
			return mcp.NewErrorResponse(request.ID, mcp.CodeInternalError, "Internal error: "+toolErr.Error(), nil)
		}
		h.logger.Warn("Tool call failed", "tool_name", request.Params.Name, "error", toolErr)
		toolResult = toolErrorResult(message)
	}

	return mcp.JSONRPCResponse{JSONRPC: "2.0", ID: request.ID, Result: toolResult}
}

func (h *Handler) callGenerateImage(args map[string]interface{}) (map[string]interface{}, error) {
	provider, ok := args["provider"].(string)
	if !ok || provider == "" {
		return nil, &genai.Error{Kind: genai.KindInvalidRequest, Message: "missing or invalid 'provider'"}
	}
	prompt, ok := args["prompt"].(string)
	if !ok || prompt == "" {
		return nil, &genai.Error{Kind: genai.KindInvalidRequest, Message: "missing or invalid 'prompt'"}
	}
	model, _ := args["model"].(string)

	opts := NormalizeOptions(args)

	generator, err := h.newGenerator(h.src, provider, model)
	if err != nil {
		return nil, err
	}
	defer generator.Close()

	ctx, cancel := h.callContext()
	defer cancel()

	result, err := generator.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}

	processed, err := h.processor.Process(result)
	if err != nil {
		return nil, err
	}

	return toolTextResult(processed)
}

func (h *Handler) callListModels(args map[string]interface{}) (map[string]interface{}, error) {
	provider, ok := args["provider"].(string)
	if !ok || provider == "" {
		return nil, &genai.Error{Kind: genai.KindInvalidRequest, Message: "missing or invalid 'provider'"}
	}

	generator, err := h.newGenerator(h.src, provider, "")
	if err != nil {
		return nil, err
	}
	defer generator.Close()

	ctx, cancel := h.callContext()
	defer cancel()

	models, err := generator.Models(ctx)
	if err != nil {
		return nil, err
	}

	return toolTextResult(map[string]interface{}{"provider": provider, "models": models})
}

func (h *Handler) callListProviders() (map[string]interface{}, error) {
	available := genai.Available(h.src)
	configured := make(map[string]bool, len(available))
	for _, name := range available {
		configured[name] = true
	}

	providers := make([]map[string]interface{}, 0, len(genai.Providers()))
	for _, name := range genai.Providers() {
		providers = append(providers, map[string]interface{}{
			"name":      name,
			"available": configured[name],
		})
	}

	return toolTextResult(map[string]interface{}{"providers": providers})
}

func (h *Handler) callContext() (context.Context, context.CancelFunc) {
	if h.timeoutSec <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), time.Duration(h.timeoutSec)*time.Second)
}

// toolTextResult wraps a successful tool payload as MCP text content.
func toolTextResult(payload interface{}) (map[string]interface{}, error) {
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": string(text)},
		},
	}, nil
}

// toolErrorResult wraps a tool-level failure. This is a successful
// JSON-RPC response whose result carries isError; the client relays the
// message to its own caller.
func toolErrorResult(message string) map[string]interface{} {
	return map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": message},
		},
		"isError": true,
	}
}

// toolErrorMessage translates legitimate tool-job failures into their
// user-facing messages. Anything outside the known taxonomy reports not
// ok and becomes a protocol-level internal error.
func toolErrorMessage(err error) (string, bool) {
	var genErr *genai.Error
	if errors.As(err, &genErr) {
		switch genErr.Kind {
		case genai.KindAuth:
			return "Authentication failed: " + genErr.Message, true
		case genai.KindRateLimit:
			return "Rate limit exceeded: " + genErr.Message, true
		case genai.KindInvalidRequest:
			return "Invalid request: " + genErr.Message, true
		case genai.KindAPI:
			if genErr.StatusCode != 0 {
				return fmt.Sprintf("API error (status %d): %s", genErr.StatusCode, genErr.Message), true
			}
			return "API error: " + genErr.Message, true
		case genai.KindConfiguration:
			return "Configuration error: " + genErr.Message, true
		case genai.KindProviderNotFound:
			return "Provider not found: " + genErr.Message, true
		case genai.KindUnsupported:
			return "Unsupported feature: " + genErr.Message, true
		}
	}

	if errors.Is(err, imagehost.ErrNoImages) {
		return "No images were produced; check that the selected model supports image output.", true
	}
	var uploadErr *imagehost.UploadError
	if errors.As(err, &uploadErr) {
		return fmt.Sprintf("Image upload failed with status %d: %s", uploadErr.StatusCode, uploadErr.Body), true
	}

	return "", false
}
