package lspsession

import (
	"context"
	"os/exec"

	"lspbridge/internal/logging"
)

// BuildHook is the advisory build-tool provisioning step spec.md §4.5
// calls out: a language-specific pre-flight run before the LSP child is
// launched (e.g. generating a build descriptor the server needs). A
// failing hook never blocks Start — it is logged and ignored.
type BuildHook interface {
	Name() string
	Provision(ctx context.Context, workspaceRoot string) error
}

// CommandHook is a BuildHook that shells out to a provisioning command,
// e.g. {"sbt", "bloopInstall"} for a Metals workspace that hasn't been
// Bloop-exported yet.
type CommandHook struct {
	HookName string
	Command  []string
	Log      logging.Logger
}

func (h *CommandHook) Name() string {
	if h.HookName != "" {
		return h.HookName
	}
	if len(h.Command) > 0 {
		return h.Command[0]
	}
	return "command-hook"
}

func (h *CommandHook) Provision(ctx context.Context, workspaceRoot string) error {
	if len(h.Command) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, h.Command[0], h.Command[1:]...)
	cmd.Dir = workspaceRoot
	out, err := cmd.CombinedOutput()
	if h.Log != nil {
		h.Log.Debug("buildsupport: {Hook} produced {Bytes} bytes of output", h.Name(), len(out))
	}
	return err
}
