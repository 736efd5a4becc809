// Package watcher implements C7: it observes the well-known edit-notify
// file for absolute paths of recently edited files and delivers each to
// the session whose workspace root contains it.
package watcher

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"lspbridge/internal/logging"
	"lspbridge/internal/lspsession"
)

// SessionLister is the subset of *registry.Registry the watcher needs;
// narrowed to an interface so tests can supply a fake without starting
// real LSP child processes.
type SessionLister interface {
	All() []*lspsession.Session
}

// Watcher polls/watches NotifyFile and dispatches edits. Policy decision
// (spec.md §9 Open Question): on every change it rereads the whole file
// and acts on its *last* non-empty line only, not on every line — a batch
// of edits collapses to the most recent file, which is sufficient to
// trigger a recompile and keeps the debounce window simple.
type Watcher struct {
	NotifyFile string
	Sessions   SessionLister
	Log        logging.Logger
	Debounce   time.Duration
	PollEvery  time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time
	offset   int64 // not read or updated: readLastLine always reads NotifyFile from the start
}

// New builds a Watcher with the default Debounce (200ms) and PollEvery
// (500ms); callers may overwrite either field before Run.
func New(notifyFile string, sessions SessionLister, log logging.Logger) *Watcher {
	if log == nil {
		log = logging.NewNoop()
	}
	return &Watcher{
		NotifyFile: notifyFile,
		Sessions:   sessions,
		Log:        log,
		Debounce:   200 * time.Millisecond,
		PollEvery:  500 * time.Millisecond,
		lastSeen:   make(map[string]time.Time),
	}
}

// Run blocks until ctx is done. It prefers fsnotify on the notify file's
// parent directory (SPEC_FULL.md §10: the notify file often doesn't exist
// until the first edit, so the directory is what's watchable) and falls
// back to polling if the watch can't be established.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.Log.Warning("watcher: fsnotify unavailable ({Error}), falling back to polling", err.Error())
		return w.runPoll(ctx)
	}
	defer fsw.Close()

	dir := filepath.Dir(w.NotifyFile)
	if err := fsw.Add(dir); err != nil {
		w.Log.Warning("watcher: cannot watch {Dir} ({Error}), falling back to polling", dir, err.Error())
		return w.runPoll(ctx)
	}
	w.Log.Information("watcher: watching {File} via fsnotify", w.NotifyFile)

	target := filepath.Clean(w.NotifyFile)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.handleChange()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.Log.Warning("watcher: fsnotify error: {Error}", err.Error())
		}
	}
}

func (w *Watcher) runPoll(ctx context.Context) error {
	w.Log.Information("watcher: polling {File} every {Interval}", w.NotifyFile, w.PollEvery)
	ticker := time.NewTicker(w.PollEvery)
	defer ticker.Stop()
	var lastModTime time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			info, err := os.Stat(w.NotifyFile)
			if err != nil {
				continue
			}
			if info.ModTime().After(lastModTime) {
				lastModTime = info.ModTime()
				w.handleChange()
			}
		}
	}
}

// handleChange reads the notify file, extracts the last non-empty line,
// debounces repeats, and dispatches to the matching session.
func (w *Watcher) handleChange() {
	path, ok := w.readLastLine()
	if !ok {
		return
	}

	w.mu.Lock()
	if last, seen := w.lastSeen[path]; seen && time.Since(last) < w.Debounce {
		w.mu.Unlock()
		return
	}
	w.lastSeen[path] = time.Now()
	w.mu.Unlock()

	sess := w.matchSession(path)
	if sess == nil {
		w.Log.Warning("watcher: no workspace owns {Path}, ignoring", path)
		return
	}
	if err := sess.ApplyEdit(path); err != nil {
		w.Log.Warning("watcher: applyEdit({Path}) on {Workspace} failed: {Error}", path, sess.Name(), err.Error())
	}
}

func (w *Watcher) readLastLine() (string, bool) {
	f, err := os.Open(w.NotifyFile)
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	last := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			last = line
		}
	}
	if last == "" {
		return "", false
	}
	return last, true
}

// matchSession finds the session whose workspace root is the longest
// path-prefix match for path.
func (w *Watcher) matchSession(path string) *lspsession.Session {
	path = filepath.Clean(path)
	var best *lspsession.Session
	bestLen := -1
	for _, sess := range w.Sessions.All() {
		root := filepath.Clean(sess.WorkspaceRoot())
		if !isWithin(root, path) {
			continue
		}
		if len(root) > bestLen {
			bestLen = len(root)
			best = sess
		}
	}
	return best
}

func isWithin(root, path string) bool {
	if root == path {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, strings.TrimSuffix(root, sep)+sep)
}
