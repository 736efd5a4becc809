// Package mcpadapter implements C9: a thin Model Context Protocol surface
// over the capability facade. Every resource, tool and prompt handler
// does argument extraction and JSON rendering only — all domain logic
// lives in internal/capability.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"lspbridge/internal/capability"
	"lspbridge/internal/logging"
)

// Adapter owns the mcp-go server and the facade it delegates to.
type Adapter struct {
	facade *capability.Facade
	log    logging.Logger
	srv    *mcpserver.MCPServer
}

// New builds an Adapter with every resource/tool/prompt registered.
func New(facade *capability.Facade, log logging.Logger) *Adapter {
	if log == nil {
		log = logging.NewNoop()
	}
	srv := mcpserver.NewMCPServer("lsp-bridge", "1.0.0",
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
	)
	a := &Adapter{facade: facade, log: log, srv: srv}
	a.registerResources()
	a.registerTools()
	a.registerPrompts()
	return a
}

// ServeStdio blocks serving MCP requests over stdio until ctx is done or
// the transport closes.
func (a *Adapter) ServeStdio(ctx context.Context) error {
	return mcpserver.ServeStdio(a.srv, mcpserver.WithStdioContextFunc(func(c context.Context) context.Context {
		return ctx
	}))
}

func toolResultJSON(v any) *mcplib.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err)
	}
	return mcplib.NewToolResultText(string(data))
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argInt(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func fmtErrorResult(op string, err error) *mcplib.CallToolResult {
	return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("%s failed", op), err)
}
