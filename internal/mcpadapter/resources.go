package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources wires lsp-bridge://workspaces and the per-workspace
// diagnostics resource template (SPEC_FULL.md §4.9).
func (a *Adapter) registerResources() {
	a.srv.AddResource(
		mcplib.NewResource(
			"lsp-bridge://workspaces",
			"Workspaces",
			mcplib.WithResourceDescription("Every workspace the bridge knows about"),
			mcplib.WithMIMEType("application/json"),
		),
		a.handleWorkspacesResource,
	)

	a.srv.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"lsp-bridge://{name}/diagnostics",
			"Workspace diagnostics",
			mcplib.WithTemplateDescription("Current diagnostics snapshot for one workspace"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		a.handleWorkspaceDiagnosticsResource,
	)
}

func (a *Adapter) handleWorkspacesResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	data, err := json.Marshal(a.facade.ListWorkspaces())
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
	}, nil
}

func (a *Adapter) handleWorkspaceDiagnosticsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	name, ok := extractWorkspaceName(req.Params.URI)
	if !ok {
		return nil, fmt.Errorf("mcpadapter: malformed resource uri %q", req.Params.URI)
	}
	result, err := a.facade.GetDiagnostics(ctx, name, "")
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
	}, nil
}

// extractWorkspaceName pulls {name} out of "lsp-bridge://{name}/diagnostics".
func extractWorkspaceName(uri string) (string, bool) {
	const prefix = "lsp-bridge://"
	const suffix = "/diagnostics"
	if !strings.HasPrefix(uri, prefix) || !strings.HasSuffix(uri, suffix) {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(uri, prefix), suffix)
	if name == "" {
		return "", false
	}
	return name, true
}
