// Package capability implements C8: the language-neutral API the
// upstream MCP adapter calls. Every operation except ListWorkspaces and
// GetStatus resolves its named session via the registry, waits for it to
// be ready, and dispatches; those two only read registry state and never
// start a session.
package capability

import (
	"context"
	"time"

	"lspbridge/internal/bridgeerr"
	"lspbridge/internal/diagstore"
	"lspbridge/internal/lspsession"
)

// SessionGetter is the subset of *registry.Registry the facade needs.
type SessionGetter interface {
	Get(ctx context.Context, name string) (*lspsession.Session, error)
	GetOrConnect(ctx context.Context, name, workspaceRoot string) (*lspsession.Session, error)
	List() []string
	Lookup(name string) (*lspsession.Session, bool)
}

// Timeouts bundles the ambient deadlines spec.md §5 calls out.
type Timeouts struct {
	Hover        time.Duration
	Definition   time.Duration
	CompileGrace time.Duration
}

// DefaultTimeouts matches spec.md §5's suggested defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Hover:        10 * time.Second,
		Definition:   10 * time.Second,
		CompileGrace: 60 * time.Second,
	}
}

// Facade is the single process-wide capability object (spec.md §9).
type Facade struct {
	registry SessionGetter
	timeouts Timeouts
}

// New builds a Facade over reg.
func New(reg SessionGetter, timeouts Timeouts) *Facade {
	return &Facade{registry: reg, timeouts: timeouts}
}

// ListWorkspaces returns every known workspace name, sorted.
func (f *Facade) ListWorkspaces() []string {
	return f.registry.List()
}

// StatusResult is getStatus's per-session snapshot.
type StatusResult struct {
	Name     string
	State    string
	Errors   int
	Warnings int
	OpenDocs int
}

// GetStatus returns the status for name, or for every known workspace if
// name is empty.
func (f *Facade) GetStatus(name string) ([]StatusResult, error) {
	if name != "" {
		sess, ok := f.registry.Lookup(name)
		if !ok {
			return nil, bridgeerr.New(bridgeerr.KindUnknownWorkspace, "getStatus", nil)
		}
		return []StatusResult{toStatusResult(sess.Status())}, nil
	}
	var out []StatusResult
	for _, n := range f.registry.List() {
		sess, ok := f.registry.Lookup(n)
		if !ok {
			continue
		}
		out = append(out, toStatusResult(sess.Status()))
	}
	return out, nil
}

func toStatusResult(s lspsession.Status) StatusResult {
	return StatusResult{
		Name:     s.Name,
		State:    s.State.String(),
		Errors:   s.Errors,
		Warnings: s.Warnings,
		OpenDocs: s.OpenDocs,
	}
}

// DiagnosticsResult is getDiagnostics's return value.
type DiagnosticsResult struct {
	Summary diagstore.Summary
	Files   []diagstore.FileDiagnostics
}

// GetDiagnostics returns the summary and by-file listing for name,
// optionally narrowed to a single path.
func (f *Facade) GetDiagnostics(ctx context.Context, name, path string) (DiagnosticsResult, error) {
	sess, err := f.registry.Get(ctx, name)
	if err != nil {
		return DiagnosticsResult{}, err
	}
	if path != "" {
		diags := sess.DiagnosticsForFile(path)
		sum := diagstore.Summary{TotalFiles: 1, TotalDiagnostics: len(diags)}
		for _, d := range diags {
			switch d.Severity {
			case diagstore.SeverityError:
				sum.Errors++
			case diagstore.SeverityWarning:
				sum.Warnings++
			case diagstore.SeverityInformation:
				sum.Info++
			case diagstore.SeverityHint:
				sum.Hints++
			}
		}
		return DiagnosticsResult{
			Summary: sum,
			Files:   []diagstore.FileDiagnostics{{URI: lspsession.PathToURI(path), Diagnostics: diags}},
		}, nil
	}
	summary, files := sess.Diagnostics()
	return DiagnosticsResult{Summary: summary, Files: files}, nil
}

// TriggerCompilation forces a resync of every open document in name (or
// connects it first via workspaceRoot) and returns the diagnostics
// snapshot gathered after the grace period.
func (f *Facade) TriggerCompilation(ctx context.Context, name, workspaceRoot string) (DiagnosticsResult, error) {
	sess, err := f.registry.GetOrConnect(ctx, name, workspaceRoot)
	if err != nil {
		return DiagnosticsResult{}, err
	}
	if err := sess.TriggerCompilation(ctx, f.timeouts.CompileGrace); err != nil {
		return DiagnosticsResult{}, err
	}
	summary, files := sess.Diagnostics()
	return DiagnosticsResult{Summary: summary, Files: files}, nil
}

// GetHover returns hover text at (line1, char0) in path.
func (f *Facade) GetHover(ctx context.Context, name, path string, line1, char0 int) (string, error) {
	sess, err := f.registry.Get(ctx, name)
	if err != nil {
		return "", err
	}
	hoverCtx, cancel := context.WithTimeout(ctx, f.timeouts.Hover)
	defer cancel()
	return sess.Hover(hoverCtx, path, line1, char0)
}

// GetDefinition returns the normalized definition locations for the
// symbol at (line1, char0) in path.
func (f *Facade) GetDefinition(ctx context.Context, name, path string, line1, char0 int) ([]lspsession.Location, error) {
	sess, err := f.registry.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defCtx, cancel := context.WithTimeout(ctx, f.timeouts.Definition)
	defer cancel()
	return sess.Definition(defCtx, path, line1, char0)
}
