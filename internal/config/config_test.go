package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsZeroConfig(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Workspaces) != 0 {
		t.Errorf("expected no workspaces, got %v", cfg.Workspaces)
	}
	if cfg.StartupTimeout() != 30_000_000_000 {
		t.Errorf("expected default startup timeout, got %v", cfg.StartupTimeout())
	}
}

func TestLoadParsesFile(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, ".lsp-bridge")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	doc := Config{
		LogLevel: "debug",
		Workspaces: []WorkspaceConfig{
			{Name: "svc", WorkspaceRoot: "/workspace/svc", Command: []string{"gopls"}},
		},
	}
	data, _ := json.Marshal(doc)
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.LogLevel)
	}
	if len(cfg.Workspaces) != 1 || cfg.Workspaces[0].Name != "svc" {
		t.Errorf("unexpected workspaces: %+v", cfg.Workspaces)
	}
}

func TestLoadRespectsEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.json")
	os.WriteFile(path, []byte(`{"log_level":"warn"}`), 0o644)

	t.Setenv("LSP_BRIDGE_CONFIG", path)
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected warn, got %q", cfg.LogLevel)
	}
}

func TestSessionsValidatesRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing name", Config{Workspaces: []WorkspaceConfig{{WorkspaceRoot: "/a", Command: []string{"x"}}}}},
		{"missing root", Config{Workspaces: []WorkspaceConfig{{Name: "a", Command: []string{"x"}}}}},
		{"missing command", Config{Workspaces: []WorkspaceConfig{{Name: "a", WorkspaceRoot: "/a"}}}},
	}
	for _, tt := range tests {
		if _, err := tt.cfg.Sessions(); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}

func TestSessionsBuildsConfig(t *testing.T) {
	cfg := Config{
		Workspaces: []WorkspaceConfig{
			{Name: "svc", WorkspaceRoot: "/workspace/svc", Command: []string{"gopls"}},
		},
	}
	sessions, err := cfg.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	s, ok := sessions["svc"]
	if !ok {
		t.Fatal("expected a \"svc\" session config")
	}
	if s.RootURI != "file:///workspace/svc" {
		t.Errorf("expected a derived root uri, got %q", s.RootURI)
	}
}

func TestNotifyFilePathDefaultsToTmp(t *testing.T) {
	var cfg Config
	if got := cfg.NotifyFilePath(t.TempDir()); got != "/tmp/lsp-bridge-notify.txt" {
		t.Errorf("expected the documented default notify path, got %q", got)
	}
}

func TestNotifyFilePathHonorsOverride(t *testing.T) {
	cfg := Config{NotifyFile: "/var/run/custom-notify.txt"}
	if got := cfg.NotifyFilePath(t.TempDir()); got != "/var/run/custom-notify.txt" {
		t.Errorf("expected the configured override, got %q", got)
	}
}

func TestBuildSupportAcceptsBareString(t *testing.T) {
	var w WorkspaceConfig
	if err := json.Unmarshal([]byte(`{"name":"svc","workspace_root":"/a","command":["x"],"build_support":"sbt-bloop"}`), &w); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(w.BuildSupport) != 1 || w.BuildSupport[0] != "sbt-bloop" {
		t.Errorf("expected build_support [\"sbt-bloop\"], got %v", w.BuildSupport)
	}
}

func TestBuildSupportAcceptsArray(t *testing.T) {
	var w WorkspaceConfig
	if err := json.Unmarshal([]byte(`{"name":"svc","workspace_root":"/a","command":["x"],"build_support":["sbt-bloop","compile"]}`), &w); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(w.BuildSupport) != 2 {
		t.Errorf("expected 2 build_support entries, got %v", w.BuildSupport)
	}
}

func TestDefaultTimeouts(t *testing.T) {
	var cfg Config
	if cfg.HoverTimeout().Seconds() != 10 {
		t.Errorf("expected default hover timeout 10s, got %v", cfg.HoverTimeout())
	}
	if cfg.DefinitionTimeout().Seconds() != 10 {
		t.Errorf("expected default definition timeout 10s, got %v", cfg.DefinitionTimeout())
	}
	if cfg.CompileGrace().Seconds() != 60 {
		t.Errorf("expected default compile grace 60s, got %v", cfg.CompileGrace())
	}
}
