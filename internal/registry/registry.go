// Package registry implements C6, the named collection of LSP sessions:
// lazy connect, lookup by name, and coordinated shutdown.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"lspbridge/internal/bridgeerr"
	"lspbridge/internal/diagstore"
	"lspbridge/internal/logging"
	"lspbridge/internal/lspsession"
	"lspbridge/internal/snapshot"
)

// Registry is a single mutex protecting the name->session map; session
// internals are guarded separately inside each session (spec.md §4.6).
type Registry struct {
	mu             sync.Mutex
	sessions       map[string]*lspsession.Session
	configs        map[string]lspsession.Config
	log            logging.Logger
	startupTimeout time.Duration

	// sf collapses concurrent Start calls for the same workspace name
	// into a single child-process spawn (SPEC_FULL.md §10 domain stack:
	// golang.org/x/sync/singleflight).
	sf singleflight.Group

	// defaultCommand resolves a bare workspace name to a launch command
	// when getOrConnect must synthesize a config on the fly. nil means
	// no synthesis is possible and getOrConnect always requires a
	// pre-registered config.
	defaultCommand func(name string) ([]string, bool)
}

// Option configures a Registry at construction.
type Option func(*Registry)

// WithDefaultCommandResolver installs the function getOrConnect uses to
// synthesize a command for a name it has never seen before.
func WithDefaultCommandResolver(f func(name string) ([]string, bool)) Option {
	return func(r *Registry) { r.defaultCommand = f }
}

// New builds a Registry pre-populated with configs (from the bridge's
// configuration file); sessions are not started until first use.
func New(configs map[string]lspsession.Config, log logging.Logger, startupTimeout time.Duration, opts ...Option) *Registry {
	if log == nil {
		log = logging.NewNoop()
	}
	r := &Registry{
		sessions:       make(map[string]*lspsession.Session),
		configs:        make(map[string]lspsession.Config, len(configs)),
		log:            log,
		startupTimeout: startupTimeout,
	}
	for name, cfg := range configs {
		r.configs[name] = cfg
		// Instantiate (but do not start) every pre-registered workspace
		// so the edit watcher can prefix-match its root before the
		// workspace has ever been queried (spec.md §4.7).
		r.sessions[name] = newSessionWithSnapshot(cfg, log)
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Get returns the named session, starting it on first use. Returns
// *bridgeerr.UnknownWorkspace if name has no registered config.
func (r *Registry) Get(ctx context.Context, name string) (*lspsession.Session, error) {
	sess, _, err := r.lookupOrCreate(name, "")
	if err != nil {
		return nil, err
	}
	if err := r.ensureStarted(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetOrConnect returns the named session if it exists; otherwise, if
// workspaceRoot is non-empty, synthesizes a default config and starts a
// new session. Fails with *bridgeerr.UnknownWorkspace if name is unknown
// and no workspaceRoot (or command resolver) is available.
func (r *Registry) GetOrConnect(ctx context.Context, name, workspaceRoot string) (*lspsession.Session, error) {
	sess, created, err := r.lookupOrCreate(name, workspaceRoot)
	if err != nil {
		return nil, err
	}
	if created {
		r.log.Information("registry: synthesized workspace {Name} rooted at {Root}", name, workspaceRoot)
	}
	if err := r.ensureStarted(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (r *Registry) lookupOrCreate(name, workspaceRoot string) (sess *lspsession.Session, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[name]; ok {
		return sess, false, nil
	}
	cfg, ok := r.configs[name]
	if !ok {
		if workspaceRoot == "" {
			return nil, false, bridgeerr.New(bridgeerr.KindUnknownWorkspace, "get", nil)
		}
		if r.defaultCommand == nil {
			return nil, false, bridgeerr.New(bridgeerr.KindUnknownWorkspace, "getOrConnect", nil)
		}
		command, ok := r.defaultCommand(name)
		if !ok {
			return nil, false, bridgeerr.New(bridgeerr.KindConfigError, "getOrConnect", nil)
		}
		cfg = lspsession.Config{Name: name, WorkspaceRoot: workspaceRoot, Command: command}
		r.configs[name] = cfg
	}
	sess = newSessionWithSnapshot(cfg, r.log)
	r.sessions[name] = sess
	return sess, true, nil
}

// newSessionWithSnapshot wires a session to rewrite its workspace's
// diagnostics.json (spec.md §6) on every publishDiagnostics-driven
// update.
func newSessionWithSnapshot(cfg lspsession.Config, log logging.Logger) *lspsession.Session {
	sess := lspsession.New(cfg, log)
	writer := snapshot.New(cfg.WorkspaceRoot)
	sess.SetDiagnosticsListener(func(summary diagstore.Summary, files []diagstore.FileDiagnostics) {
		if err := writer.Write(summary, files); err != nil {
			log.Warning("registry: failed to write diagnostics snapshot for {Workspace}: {Error}", cfg.Name, err.Error())
		}
	})
	return sess
}

func (r *Registry) ensureStarted(ctx context.Context, sess *lspsession.Session) error {
	if sess.State() == lspsession.Ready {
		return nil
	}
	startCtx, cancel := context.WithTimeout(ctx, r.startupTimeout)
	defer cancel()
	_, err, _ := r.sf.Do(sess.Name(), func() (any, error) {
		return nil, sess.Start(startCtx)
	})
	return err
}

// List returns every known workspace name (started or not), sorted.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{}, len(r.configs))
	for name := range r.configs {
		seen[name] = struct{}{}
	}
	for name := range r.sessions {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the session for name without starting it, for callers
// (getStatus) that tolerate an unstarted/dead session.
func (r *Registry) Lookup(name string) (*lspsession.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[name]
	return sess, ok
}

// All returns every currently-instantiated session (started or not).
func (r *Registry) All() []*lspsession.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*lspsession.Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}

// ShutdownAll gracefully shuts down every session concurrently, each
// bounded by perSessionTimeout, and never calls into a session while
// holding the registry's lock (spec.md §4.6).
func (r *Registry) ShutdownAll(ctx context.Context, perSessionTimeout time.Duration) error {
	sessions := r.All()
	g, gctx := errgroup.WithContext(ctx)
	for _, sess := range sessions {
		sess := sess
		g.Go(func() error {
			return sess.Shutdown(gctx, perSessionTimeout)
		})
	}
	return g.Wait()
}
