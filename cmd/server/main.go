package main

import (
	"fmt"
	"log/slog"
	"os"

	"imagegen-mcp-server/internal/config"
	"imagegen-mcp-server/internal/genai"
	"imagegen-mcp-server/internal/mcp"
	"imagegen-mcp-server/internal/tools"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr; stdout carries the protocol.
	logHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})
	slog.SetDefault(slog.New(logHandler))

	genai.ClarifaiAddr = cfg.ClarifaiAddr

	slog.Info("Starting image generation MCP server on stdio")

	handler := tools.NewHandler(config.OSEnv{}, cfg.TimeoutSec)
	server := mcp.NewStdioServer(os.Stdin, os.Stdout, handler)
	if err := server.Run(); err != nil {
		slog.Error("Transport loop failed", "error", err)
		os.Exit(1)
	}
}
