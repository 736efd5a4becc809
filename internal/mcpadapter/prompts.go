package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerPrompts wires the explain_diagnostics prompt (SPEC_FULL.md
// §4.9): it pulls the current diagnostics for a workspace and hands them
// to the model as a ready-to-answer prompt body.
func (a *Adapter) registerPrompts() {
	a.srv.AddPrompt(
		mcplib.NewPrompt("explain_diagnostics",
			mcplib.WithPromptDescription("Summarize and explain the current diagnostics for a workspace"),
			mcplib.WithArgument("name", mcplib.ArgumentDescription("Workspace name"), mcplib.RequiredArgument()),
		),
		a.handleExplainDiagnostics,
	)
}

func (a *Adapter) handleExplainDiagnostics(ctx context.Context, req mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	name := req.Params.Arguments["name"]
	if name == "" {
		return nil, fmt.Errorf("mcpadapter: explain_diagnostics requires a workspace name")
	}
	result, err := a.facade.GetDiagnostics(ctx, name, "")
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, err
	}
	body := fmt.Sprintf(
		"Here are the current diagnostics for workspace %q:\n\n%s\n\nExplain what is wrong and suggest fixes, ordered by severity.",
		name, string(data),
	)
	return &mcplib.GetPromptResult{
		Description: "Explain current diagnostics for a workspace",
		Messages: []mcplib.PromptMessage{
			{
				Role:    mcplib.RoleUser,
				Content: mcplib.TextContent{Type: "text", Text: body},
			},
		},
	}, nil
}
