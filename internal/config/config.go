// Package config loads the bridge's on-disk configuration, following the
// same lenient-decode shape the loom project config loader used: missing
// file is not an error, unknown fields are ignored by encoding/json, and
// defaults are applied by the caller rather than baked into the schema.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lspbridge/internal/lspsession"
)

// WorkspaceConfig is the on-disk shape of one entry in "workspaces".
type WorkspaceConfig struct {
	Name          string        `json:"name"`
	WorkspaceRoot string        `json:"workspace_root"`
	Command       []string      `json:"command"`
	RootURI       string        `json:"root_uri,omitempty"`
	BuildSupport  StringOrSlice `json:"build_support,omitempty"`
}

// StringOrSlice decodes a JSON field that may be written either as a bare
// string ("sbt-bloop") or as an array of strings (["sbt-bloop", "compile"]).
type StringOrSlice []string

// UnmarshalJSON accepts either a JSON string or a JSON array of strings.
func (s *StringOrSlice) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*s = nil
			return nil
		}
		*s = StringOrSlice{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// Config is the on-disk schema for <cwd>/.lsp-bridge/config.json, or the
// file named by $LSP_BRIDGE_CONFIG.
type Config struct {
	LogPath              string            `json:"log_path,omitempty"`
	LogLevel             string            `json:"log_level,omitempty"`
	NotifyFile           string            `json:"notify_file,omitempty"`
	StartupTimeoutSec    int               `json:"startup_timeout_sec,omitempty"`
	HoverTimeoutSec      int               `json:"hover_timeout_sec,omitempty"`
	DefinitionTimeoutSec int               `json:"definition_timeout_sec,omitempty"`
	CompileGraceSec      int               `json:"compile_grace_sec,omitempty"`
	Workspaces           []WorkspaceConfig `json:"workspaces"`
}

// defaultConfigRelPath is where Load looks relative to the working
// directory when $LSP_BRIDGE_CONFIG is unset.
const defaultConfigRelPath = ".lsp-bridge/config.json"

// envVar names the override for the config file's location.
const envVar = "LSP_BRIDGE_CONFIG"

// Load reads and decodes the bridge config. A missing file yields a zero
// Config (all defaults, no workspaces) rather than an error, mirroring
// how the original project-level MCP config loader treated absence as
// "nothing configured" rather than a failure.
func Load(cwd string) (Config, error) {
	path := os.Getenv(envVar)
	if path == "" {
		path = filepath.Join(strings.TrimSpace(cwd), defaultConfigRelPath)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, err
	}
	if len(data) == 0 {
		return Config{}, nil
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Sessions converts the on-disk workspace list into the map
// internal/registry.New expects, validating that every entry names a
// workspace_root and a non-empty command.
func (c Config) Sessions() (map[string]lspsession.Config, error) {
	out := make(map[string]lspsession.Config, len(c.Workspaces))
	for _, w := range c.Workspaces {
		if w.Name == "" {
			return nil, errors.New("config: workspace entry missing \"name\"")
		}
		if w.WorkspaceRoot == "" {
			return nil, errors.New("config: workspace " + w.Name + " missing \"workspace_root\"")
		}
		if len(w.Command) == 0 {
			return nil, errors.New("config: workspace " + w.Name + " missing \"command\"")
		}
		rootURI := w.RootURI
		if rootURI == "" {
			rootURI = lspsession.PathToURI(w.WorkspaceRoot)
		}
		var hook lspsession.BuildHook
		if len(w.BuildSupport) > 0 {
			hook = &lspsession.CommandHook{HookName: w.Name + "-build-support", Command: []string(w.BuildSupport)}
		}
		out[w.Name] = lspsession.Config{
			Name:          w.Name,
			WorkspaceRoot: w.WorkspaceRoot,
			Command:       w.Command,
			RootURI:       rootURI,
			BuildSupport:  hook,
		}
	}
	return out, nil
}

// StartupTimeout returns the configured session-start deadline, defaulting
// to 30s if unset.
func (c Config) StartupTimeout() time.Duration {
	if c.StartupTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.StartupTimeoutSec) * time.Second
}

// HoverTimeout defaults to 10s.
func (c Config) HoverTimeout() time.Duration {
	if c.HoverTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.HoverTimeoutSec) * time.Second
}

// DefinitionTimeout defaults to 10s.
func (c Config) DefinitionTimeout() time.Duration {
	if c.DefinitionTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.DefinitionTimeoutSec) * time.Second
}

// CompileGrace defaults to 60s.
func (c Config) CompileGrace() time.Duration {
	if c.CompileGraceSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.CompileGraceSec) * time.Second
}

// defaultNotifyFilePath is the bridge's documented default location for
// the edit-notify file when no config overrides it.
const defaultNotifyFilePath = "/tmp/lsp-bridge-notify.txt"

// NotifyFilePath returns the configured edit-notify file path, defaulting
// to /tmp/lsp-bridge-notify.txt.
func (c Config) NotifyFilePath(cwd string) string {
	if c.NotifyFile != "" {
		return c.NotifyFile
	}
	return defaultNotifyFilePath
}
