package lspsession

import (
	"context"
	"testing"
)

func TestCommandHookName(t *testing.T) {
	h := &CommandHook{Command: []string{"sbt", "bloopInstall"}}
	if got := h.Name(); got != "sbt" {
		t.Errorf("Name() = %q, want %q", got, "sbt")
	}

	named := &CommandHook{HookName: "custom", Command: []string{"sbt"}}
	if got := named.Name(); got != "custom" {
		t.Errorf("Name() = %q, want %q", got, "custom")
	}
}

func TestCommandHookProvisionRunsCommand(t *testing.T) {
	h := &CommandHook{Command: []string{"true"}}
	if err := h.Provision(context.Background(), t.TempDir()); err != nil {
		t.Errorf("Provision: %v", err)
	}
}

func TestCommandHookProvisionFails(t *testing.T) {
	h := &CommandHook{Command: []string{"false"}}
	if err := h.Provision(context.Background(), t.TempDir()); err == nil {
		t.Error("expected an error from a failing command")
	}
}

func TestCommandHookProvisionEmptyCommandNoop(t *testing.T) {
	h := &CommandHook{}
	if err := h.Provision(context.Background(), t.TempDir()); err != nil {
		t.Errorf("expected nil for an empty command, got %v", err)
	}
}
