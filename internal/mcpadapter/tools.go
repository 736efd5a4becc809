package mcpadapter

import (
	"context"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerTools wires the six capability-facade operations as MCP tools
// (SPEC_FULL.md §4.9).
func (a *Adapter) registerTools() {
	a.srv.AddTool(
		mcplib.NewTool("list_workspaces",
			mcplib.WithDescription("List every workspace the bridge knows about"),
		),
		a.handleListWorkspaces,
	)
	a.srv.AddTool(
		mcplib.NewTool("get_status",
			mcplib.WithDescription("Get the lifecycle state and diagnostic counts for one or all workspaces"),
			mcplib.WithString("name", mcplib.Description("Workspace name; omit for every workspace")),
		),
		a.handleGetStatus,
	)
	a.srv.AddTool(
		mcplib.NewTool("get_diagnostics",
			mcplib.WithDescription("Get current diagnostics for a workspace, optionally narrowed to one file"),
			mcplib.WithString("name", mcplib.Required(), mcplib.Description("Workspace name")),
			mcplib.WithString("path", mcplib.Description("Absolute file path to narrow to")),
		),
		a.handleGetDiagnostics,
	)
	a.srv.AddTool(
		mcplib.NewTool("trigger_compilation",
			mcplib.WithDescription("Force the language server to resync open documents and report fresh diagnostics"),
			mcplib.WithString("name", mcplib.Required(), mcplib.Description("Workspace name")),
			mcplib.WithString("workspace_root", mcplib.Description("Absolute workspace root for a workspace missing from the config; it is connected only when the registry has a default command resolver, and otherwise the call fails with unknownWorkspace")),
		),
		a.handleTriggerCompilation,
	)
	a.srv.AddTool(
		mcplib.NewTool("get_hover",
			mcplib.WithDescription("Get hover text at a position in a file"),
			mcplib.WithString("name", mcplib.Required(), mcplib.Description("Workspace name")),
			mcplib.WithString("path", mcplib.Required(), mcplib.Description("Absolute file path")),
			mcplib.WithNumber("line", mcplib.Required(), mcplib.Description("1-indexed line number")),
			mcplib.WithNumber("character", mcplib.Required(), mcplib.Description("0-indexed character offset")),
		),
		a.handleGetHover,
	)
	a.srv.AddTool(
		mcplib.NewTool("get_definition",
			mcplib.WithDescription("Get the definition location(s) of the symbol at a position in a file"),
			mcplib.WithString("name", mcplib.Required(), mcplib.Description("Workspace name")),
			mcplib.WithString("path", mcplib.Required(), mcplib.Description("Absolute file path")),
			mcplib.WithNumber("line", mcplib.Required(), mcplib.Description("1-indexed line number")),
			mcplib.WithNumber("character", mcplib.Required(), mcplib.Description("0-indexed character offset")),
		),
		a.handleGetDefinition,
	)
}

func (a *Adapter) handleListWorkspaces(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return toolResultJSON(a.facade.ListWorkspaces()), nil
}

func (a *Adapter) handleGetStatus(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	args := req.GetArguments()
	result, err := a.facade.GetStatus(argString(args, "name"))
	if err != nil {
		return fmtErrorResult("get_status", err), nil
	}
	return toolResultJSON(result), nil
}

func (a *Adapter) handleGetDiagnostics(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	args := req.GetArguments()
	name := argString(args, "name")
	if name == "" {
		return mcplib.NewToolResultError("name is required"), nil
	}
	result, err := a.facade.GetDiagnostics(ctx, name, argString(args, "path"))
	if err != nil {
		return fmtErrorResult("get_diagnostics", err), nil
	}
	return toolResultJSON(result), nil
}

func (a *Adapter) handleTriggerCompilation(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	args := req.GetArguments()
	name := argString(args, "name")
	if name == "" {
		return mcplib.NewToolResultError("name is required"), nil
	}
	result, err := a.facade.TriggerCompilation(ctx, name, argString(args, "workspace_root"))
	if err != nil {
		return fmtErrorResult("trigger_compilation", err), nil
	}
	return toolResultJSON(result), nil
}

func (a *Adapter) handleGetHover(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	args := req.GetArguments()
	name, path := argString(args, "name"), argString(args, "path")
	if name == "" || path == "" {
		return mcplib.NewToolResultError("name and path are required"), nil
	}
	text, err := a.facade.GetHover(ctx, name, path, argInt(args, "line"), argInt(args, "character"))
	if err != nil {
		return fmtErrorResult("get_hover", err), nil
	}
	return mcplib.NewToolResultText(text), nil
}

func (a *Adapter) handleGetDefinition(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	args := req.GetArguments()
	name, path := argString(args, "name"), argString(args, "path")
	if name == "" || path == "" {
		return mcplib.NewToolResultError("name and path are required"), nil
	}
	locs, err := a.facade.GetDefinition(ctx, name, path, argInt(args, "line"), argInt(args, "character"))
	if err != nil {
		return fmtErrorResult("get_definition", err), nil
	}
	return toolResultJSON(locs), nil
}
