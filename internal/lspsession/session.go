// Package lspsession implements C5, the protocol heart of the bridge: one
// LSP child process, its JSON-RPC peer, its document and diagnostics
// stores, and the operations the capability facade drives.
package lspsession

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"lspbridge/internal/bridgeerr"
	"lspbridge/internal/diagstore"
	"lspbridge/internal/docstore"
	"lspbridge/internal/logging"
	"lspbridge/internal/rpcpeer"
)

// Config is the immutable server configuration (spec.md §3).
type Config struct {
	Name          string
	WorkspaceRoot string
	Command       []string
	RootURI       string
	BuildSupport  BuildHook
}

// Status is a point-in-time snapshot for getStatus (spec.md §6).
type Status struct {
	Name     string
	State    State
	Errors   int
	Warnings int
	OpenDocs int
}

// Location is a normalized definition result (spec.md §4.5).
type Location struct {
	Path      string
	Line1     int
	Character int
}

// Session owns one child process and one JSON-RPC peer.
type Session struct {
	cfg Config
	log logging.Logger

	startMu sync.Mutex // serializes Start so concurrent callers don't double-spawn

	mu                 sync.RWMutex // guards state, cmd, peer, serverCapabilities
	state              State
	cmd                *exec.Cmd
	peer               *rpcpeer.Peer
	serverCapabilities json.RawMessage

	documents *docstore.Store

	dataMu      sync.RWMutex // guards diagnostics, per spec.md §5 store discipline
	diagnostics *diagstore.Store

	closeOnce sync.Once
	closedCh  chan struct{}

	onDiagChanged func(diagstore.Summary, []diagstore.FileDiagnostics)
}

// SetDiagnosticsListener installs a callback fired after every
// publishDiagnostics-driven store update, used to persist the
// diagnostics snapshot file (spec.md §6). Must be called before Start.
func (s *Session) SetDiagnosticsListener(f func(diagstore.Summary, []diagstore.FileDiagnostics)) {
	s.onDiagChanged = f
}

// New constructs a not-yet-started session.
func New(cfg Config, log logging.Logger) *Session {
	if log == nil {
		log = logging.NewNoop()
	}
	return &Session{
		cfg:         cfg,
		log:         log.For("workspace", cfg.Name),
		documents:   docstore.New(),
		diagnostics: diagstore.New(),
		state:       Unstarted,
		closedCh:    make(chan struct{}),
	}
}

func (s *Session) Name() string { return s.cfg.Name }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Start spawns the child process and performs the initialize handshake.
// Idempotent: a second call while starting/ready is a no-op; a second
// call after death returns *bridgeerr.Unavailable (restart is permitted
// but not required by spec.md §7 — this implementation does not restart).
func (s *Session) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	switch s.State() {
	case Starting, Ready:
		return nil
	case Dead, ShuttingDown:
		return bridgeerr.New(bridgeerr.KindUnavailable, "start", fmt.Errorf("session %s already %s", s.cfg.Name, s.State()))
	}

	s.setState(Starting)
	s.log.Information("lspsession: starting {Command}", s.cfg.Command)

	if s.cfg.BuildSupport != nil {
		if err := s.cfg.BuildSupport.Provision(ctx, s.cfg.WorkspaceRoot); err != nil {
			s.log.Warning("lspsession: build support hook {Hook} failed, continuing: {Error}", s.cfg.BuildSupport.Name(), err.Error())
		}
	}

	if len(s.cfg.Command) == 0 {
		s.setState(Dead)
		return bridgeerr.New(bridgeerr.KindConfigError, "start", fmt.Errorf("session %s has an empty command", s.cfg.Name))
	}

	cmd := exec.Command(s.cfg.Command[0], s.cfg.Command[1:]...)
	cmd.Dir = s.cfg.WorkspaceRoot
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.setState(Dead)
		return bridgeerr.New(bridgeerr.KindSpawnError, "start", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.setState(Dead)
		return bridgeerr.New(bridgeerr.KindSpawnError, "start", err)
	}
	if err := cmd.Start(); err != nil {
		s.setState(Dead)
		return bridgeerr.New(bridgeerr.KindSpawnError, "start", err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	waitFn := func() error {
		err := cmd.Wait()
		if err == nil {
			err = io.EOF
		}
		return err
	}
	return s.attach(ctx, stdin, stdout, waitFn)
}

// attach wires a peer onto already-open stdio streams, registers
// handlers, runs the initialize handshake, and starts the goroutine that
// watches for the transport closing. waitFn blocks until the child (or
// its stand-in, in tests) has exited.
func (s *Session) attach(ctx context.Context, stdin io.WriteCloser, stdout io.Reader, waitFn func() error) error {
	peer := rpcpeer.New(stdout, stdin, s.log, s.onTransportClosed)
	s.mu.Lock()
	s.peer = peer
	s.mu.Unlock()
	s.registerHandlers(peer)

	go func() {
		s.onTransportClosed(waitFn())
	}()

	if err := s.initialize(ctx); err != nil {
		s.setState(Dead)
		s.killChild()
		return err
	}

	s.setState(Ready)
	s.log.Information("lspsession: {Workspace} ready", s.cfg.Name)
	return nil
}

func (s *Session) initialize(ctx context.Context) error {
	peer := s.currentPeer()
	params := map[string]any{
		"processId": os.Getpid(),
		"rootUri":   s.rootURI(),
		"workspaceFolders": []map[string]any{
			{"uri": s.rootURI(), "name": s.cfg.Name},
		},
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"synchronization":     map[string]any{"didSave": true},
				"publishDiagnostics":  map[string]any{},
				"hover":               map[string]any{},
				"definition":          map[string]any{},
			},
		},
	}
	result, err := peer.Call(ctx, "initialize", params)
	if err != nil {
		return bridgeerr.New(bridgeerr.KindSpawnError, "initialize", err)
	}
	s.mu.Lock()
	s.serverCapabilities = result
	s.mu.Unlock()
	if err := peer.Notify("initialized", map[string]any{}); err != nil {
		return bridgeerr.New(bridgeerr.KindProtocolError, "initialized", err)
	}
	return nil
}

func (s *Session) rootURI() string {
	if s.cfg.RootURI != "" {
		return s.cfg.RootURI
	}
	return PathToURI(s.cfg.WorkspaceRoot)
}

// registerHandlers wires the notification and server-request handlers
// spec.md §4.5 requires to be registered before initialize.
func (s *Session) registerHandlers(peer *rpcpeer.Peer) {
	peer.OnNotification("textDocument/publishDiagnostics", s.handlePublishDiagnostics)
	peer.OnNotification("window/logMessage", s.handleLogMessage)
	peer.OnNotification("window/showMessage", s.handleLogMessage)
	peer.OnNotification("$/progress", func(json.RawMessage) {})
	peer.OnNotification("metals/status", func(json.RawMessage) {})

	nullHandler := func(json.RawMessage) (any, *rpcpeer.RPCError) { return nil, nil }
	peer.OnRequest("window/workDoneProgress/create", nullHandler)
	peer.OnRequest("workspace/configuration", func(json.RawMessage) (any, *rpcpeer.RPCError) {
		return []any{}, nil
	})
	peer.OnRequest("client/registerCapability", nullHandler)
}

type publishDiagnosticsParams struct {
	URI         string `json:"uri"`
	Diagnostics []struct {
		Severity int    `json:"severity"`
		Message  string `json:"message"`
		Source   string `json:"source"`
		Code     any    `json:"code"`
		Range    struct {
			Start struct{ Line, Character int } `json:"start"`
			End   struct{ Line, Character int } `json:"end"`
		} `json:"range"`
	} `json:"diagnostics"`
}

func (s *Session) handlePublishDiagnostics(params json.RawMessage) {
	var p publishDiagnosticsParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.log.Warning("lspsession: malformed publishDiagnostics: {Error}", err.Error())
		return
	}
	diags := make([]diagstore.Diagnostic, 0, len(p.Diagnostics))
	for _, d := range p.Diagnostics {
		sev := diagstore.SeverityError
		switch d.Severity {
		case 1:
			sev = diagstore.SeverityError
		case 2:
			sev = diagstore.SeverityWarning
		case 3:
			sev = diagstore.SeverityInformation
		case 4:
			sev = diagstore.SeverityHint
		}
		code := ""
		if d.Code != nil {
			code = fmt.Sprintf("%v", d.Code)
		}
		diags = append(diags, diagstore.Diagnostic{
			Severity:     sev,
			Line:         d.Range.Start.Line + 1,
			Character:    d.Range.Start.Character,
			EndLine:      d.Range.End.Line + 1,
			EndCharacter: d.Range.End.Character,
			Message:      d.Message,
			Source:       d.Source,
			Code:         code,
		})
	}
	s.dataMu.Lock()
	s.diagnostics.Set(p.URI, diags)
	summary, all := s.diagnostics.Summary(), s.diagnostics.GetAll()
	s.dataMu.Unlock()

	if s.onDiagChanged != nil {
		s.onDiagChanged(summary, all)
	}
}

type logMessageParams struct {
	Type    int    `json:"type"`
	Message string `json:"message"`
}

func (s *Session) handleLogMessage(params json.RawMessage) {
	var p logMessageParams
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}
	s.log.Debug("lspsession: server log {Message}", p.Message)
}

func (s *Session) onTransportClosed(err error) {
	s.mu.Lock()
	alreadyDead := s.state == Dead
	s.state = Dead
	s.mu.Unlock()

	if !alreadyDead {
		s.documents.MarkAllClosed()
		s.dataMu.Lock()
		s.diagnostics = diagstore.New()
		s.dataMu.Unlock()

		if err != nil && err != io.EOF {
			s.log.Error("lspsession: {Workspace} transport closed: {Error}", s.cfg.Name, err.Error())
		} else {
			s.log.Information("lspsession: {Workspace} child exited", s.cfg.Name)
		}
	}
	s.closeOnce.Do(func() { close(s.closedCh) })
}

func (s *Session) killChild() {
	s.mu.RLock()
	cmd := s.cmd
	s.mu.RUnlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func (s *Session) currentPeer() *rpcpeer.Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peer
}

// requireReady returns *bridgeerr.Unavailable unless the session is ready.
func (s *Session) requireReady() (*rpcpeer.Peer, error) {
	s.mu.RLock()
	st := s.state
	peer := s.peer
	s.mu.RUnlock()
	if st != Ready {
		return nil, bridgeerr.New(bridgeerr.KindUnavailable, "", fmt.Errorf("session %s is %s", s.cfg.Name, st))
	}
	return peer, nil
}

// EnsureOpen opens path on the server if it is not already open there
// (spec.md §4.5).
func (s *Session) EnsureOpen(path string) error {
	peer, err := s.requireReady()
	if err != nil {
		return err
	}
	uri := PathToURI(path)
	if entry, ok := s.documents.Get(uri); ok && entry.OpenOnServer {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return bridgeerr.New(bridgeerr.KindIOError, "ensureOpen", err)
	}
	text := string(data)
	langID := LanguageIDForPath(path)
	entry := s.documents.Open(uri, langID, text)
	if err := peer.Notify("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri":        uri,
			"languageId": langID,
			"version":    entry.Version,
			"text":       text,
		},
	}); err != nil {
		return bridgeerr.New(bridgeerr.KindProtocolError, "didOpen", err)
	}
	s.documents.MarkOpenOnServer(uri)
	return nil
}

// ApplyEdit reacts to an out-of-band file-change signal for path (spec.md
// §4.5 "Apply edit").
func (s *Session) ApplyEdit(path string) error {
	peer, err := s.requireReady()
	if err != nil {
		return err
	}
	uri := PathToURI(path)
	entry, open := s.documents.Get(uri)
	if !open || !entry.OpenOnServer {
		return s.EnsureOpen(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return bridgeerr.New(bridgeerr.KindIOError, "applyEdit", err)
	}
	newText := string(data)
	if newText == entry.Text {
		return nil // optimization permitted, not required, by spec.md §4.5
	}
	version, err := s.documents.Update(uri, newText)
	if err != nil {
		return bridgeerr.New(bridgeerr.KindProtocolError, "applyEdit", err)
	}
	if err := peer.Notify("textDocument/didChange", map[string]any{
		"textDocument":   map[string]any{"uri": uri, "version": version},
		"contentChanges": []map[string]any{{"text": newText}},
	}); err != nil {
		return bridgeerr.New(bridgeerr.KindProtocolError, "didChange", err)
	}
	if err := peer.Notify("textDocument/didSave", map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"text":         newText,
	}); err != nil {
		return bridgeerr.New(bridgeerr.KindProtocolError, "didSave", err)
	}
	return nil
}

// TriggerCompilation resyncs every open document, then waits out the full
// grace period (returning early only if ctx is done) so publishDiagnostics
// can arrive. It returns only an error; callers read the diagnostics store
// afterwards (spec.md §4.5, Open Question in §9 resolved as "after the
// grace period only").
func (s *Session) TriggerCompilation(ctx context.Context, grace time.Duration) error {
	peer, err := s.requireReady()
	if err != nil {
		return err
	}
	callID := uuid.NewString()
	s.log.Information("lspsession: {Workspace} triggerCompilation {CallID} resyncing {DocCount} open docs", s.cfg.Name, callID, len(s.documents.OpenURIs()))
	for _, uri := range s.documents.OpenURIs() {
		entry, ok := s.documents.Get(uri)
		if !ok {
			continue
		}
		version, err := s.documents.Update(uri, entry.Text)
		if err != nil {
			continue
		}
		_ = peer.Notify("textDocument/didChange", map[string]any{
			"textDocument":   map[string]any{"uri": uri, "version": version},
			"contentChanges": []map[string]any{{"text": entry.Text}},
		})
		_ = peer.Notify("textDocument/didSave", map[string]any{
			"textDocument": map[string]any{"uri": uri},
			"text":         entry.Text,
		})
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		s.log.Warning("lspsession: {Workspace} triggerCompilation {CallID} aborted: {Error}", s.cfg.Name, callID, ctx.Err().Error())
		return ctx.Err()
	case <-timer.C:
		s.log.Information("lspsession: {Workspace} triggerCompilation {CallID} grace period elapsed", s.cfg.Name, callID)
		return nil
	}
}

type hoverResult struct {
	Contents json.RawMessage `json:"contents"`
}

// Hover returns the server's hover text at (line1, char0), or
// *bridgeerr.NotFound if the server returned null.
func (s *Session) Hover(ctx context.Context, path string, line1, char0 int) (string, error) {
	if err := s.EnsureOpen(path); err != nil {
		return "", err
	}
	peer, err := s.requireReady()
	if err != nil {
		return "", err
	}
	uri := PathToURI(path)
	raw, err := peer.Call(ctx, "textDocument/hover", map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"position":     map[string]any{"line": line1 - 1, "character": char0},
	})
	if err != nil {
		return "", classifyCallError("hover", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return "", bridgeerr.New(bridgeerr.KindNotFound, "hover", nil)
	}
	var res hoverResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", bridgeerr.New(bridgeerr.KindProtocolError, "hover", err)
	}
	text := joinHoverContents(res.Contents)
	if text == "" {
		return "", bridgeerr.New(bridgeerr.KindNotFound, "hover", nil)
	}
	return text, nil
}

// joinHoverContents normalizes MarkupContent | MarkedString | MarkedString[]
// into a single plaintext/markdown string.
func joinHoverContents(raw json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asMarkup struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &asMarkup); err == nil && asMarkup.Value != "" {
		return asMarkup.Value
	}
	var asArray []json.RawMessage
	if err := json.Unmarshal(raw, &asArray); err == nil {
		parts := make([]string, 0, len(asArray))
		for _, item := range asArray {
			if s := joinHoverContents(item); s != "" {
				parts = append(parts, s)
			}
		}
		return joinStrings(parts, "\n\n")
	}
	return ""
}

func joinStrings(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

type lspRange struct {
	Start struct{ Line, Character int } `json:"start"`
	End   struct{ Line, Character int } `json:"end"`
}

type lspLocation struct {
	URI   string   `json:"uri"`
	Range lspRange `json:"range"`
}

type lspLocationLink struct {
	TargetURI            string   `json:"targetUri"`
	TargetRange          lspRange `json:"targetRange"`
	TargetSelectionRange lspRange `json:"targetSelectionRange"`
}

// Definition returns zero, one, or many normalized locations for the
// symbol at (line1, char0); *bridgeerr.NotFound if the result is empty.
func (s *Session) Definition(ctx context.Context, path string, line1, char0 int) ([]Location, error) {
	if err := s.EnsureOpen(path); err != nil {
		return nil, err
	}
	peer, err := s.requireReady()
	if err != nil {
		return nil, err
	}
	uri := PathToURI(path)
	raw, err := peer.Call(ctx, "textDocument/definition", map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"position":     map[string]any{"line": line1 - 1, "character": char0},
	})
	if err != nil {
		return nil, classifyCallError("definition", err)
	}
	locs := parseDefinitionResult(raw)
	if len(locs) == 0 {
		return nil, bridgeerr.New(bridgeerr.KindNotFound, "definition", nil)
	}
	return locs, nil
}

func parseDefinitionResult(raw json.RawMessage) []Location {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	// Try a single Location first, then a homogeneous array of either
	// Location or LocationLink.
	var single lspLocation
	if err := json.Unmarshal(raw, &single); err == nil && single.URI != "" {
		return []Location{locationFrom(single)}
	}
	var asLocations []lspLocation
	if err := json.Unmarshal(raw, &asLocations); err == nil && len(asLocations) > 0 && asLocations[0].URI != "" {
		out := make([]Location, 0, len(asLocations))
		for _, l := range asLocations {
			out = append(out, locationFrom(l))
		}
		return out
	}
	var asLinks []lspLocationLink
	if err := json.Unmarshal(raw, &asLinks); err == nil {
		out := make([]Location, 0, len(asLinks))
		for _, l := range asLinks {
			out = append(out, Location{
				Path:      URIToPath(l.TargetURI),
				Line1:     l.TargetSelectionRange.Start.Line + 1,
				Character: l.TargetSelectionRange.Start.Character,
			})
		}
		return out
	}
	return nil
}

func locationFrom(l lspLocation) Location {
	return Location{
		Path:      URIToPath(l.URI),
		Line1:     l.Range.Start.Line + 1,
		Character: l.Range.Start.Character,
	}
}

func classifyCallError(op string, err error) error {
	if err == context.DeadlineExceeded || err == context.Canceled {
		return bridgeerr.New(bridgeerr.KindTimeout, op, err)
	}
	if _, ok := err.(*rpcpeer.RPCError); ok {
		return bridgeerr.New(bridgeerr.KindRPCError, op, err)
	}
	return bridgeerr.New(bridgeerr.KindProtocolError, op, err)
}

// Status returns a point-in-time snapshot for getStatus.
func (s *Session) Status() Status {
	s.dataMu.RLock()
	sum := s.diagnostics.Summary()
	s.dataMu.RUnlock()
	return Status{
		Name:     s.cfg.Name,
		State:    s.State(),
		Errors:   sum.Errors,
		Warnings: sum.Warnings,
		OpenDocs: len(s.documents.OpenURIs()),
	}
}

// Diagnostics returns the current summary and per-file listing.
func (s *Session) Diagnostics() (diagstore.Summary, []diagstore.FileDiagnostics) {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.diagnostics.Summary(), s.diagnostics.GetAll()
}

// DiagnosticsForFile returns the diagnostics for one file.
func (s *Session) DiagnosticsForFile(path string) []diagstore.Diagnostic {
	uri := PathToURI(path)
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.diagnostics.GetForFile(uri)
}

// WorkspaceRoot returns the session's configured workspace root, used by
// the registry and edit watcher for prefix matching.
func (s *Session) WorkspaceRoot() string { return s.cfg.WorkspaceRoot }

// Shutdown performs the graceful shutdown/exit handshake, then kills the
// child if it has not exited within timeout.
func (s *Session) Shutdown(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	if s.state == Dead || s.state == ShuttingDown || s.state == Unstarted {
		s.state = Dead
		s.mu.Unlock()
		s.closeOnce.Do(func() { close(s.closedCh) })
		return nil
	}
	s.state = ShuttingDown
	peer := s.peer
	s.mu.Unlock()

	if peer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		_, _ = peer.Call(shutdownCtx, "shutdown", nil)
		cancel()
		_ = peer.Notify("exit", nil)
	}

	// The goroutine started in Start() calls cmd.Wait() and reports the
	// exit through onTransportClosed; wait for that here instead of
	// calling cmd.Wait() a second time (only one waiter is ever valid).
	select {
	case <-s.closedCh:
	case <-time.After(timeout):
		s.killChild()
		<-s.closedCh
	}
	return nil
}
