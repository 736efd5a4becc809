// Package snapshot writes the per-workspace diagnostics.json file
// spec.md §6 describes, atomically (write to a temp file, then rename).
package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"lspbridge/internal/diagstore"
	"lspbridge/internal/lspsession"
)

type fileDoc struct {
	Summary      summaryDoc              `json:"summary"`
	ByFile       map[string][]diagDoc    `json:"by_file"`
	ErrorCount   int                     `json:"error_count"`
	WarningCount int                     `json:"warning_count"`
	UpdatedAt    string                  `json:"updated_at"`
}

type summaryDoc struct {
	TotalFiles       int `json:"total_files"`
	TotalDiagnostics int `json:"total_diagnostics"`
	Errors           int `json:"errors"`
	Warnings         int `json:"warnings"`
	Info             int `json:"info"`
}

type diagDoc struct {
	Severity  string `json:"severity"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
	Message   string `json:"message"`
	Source    string `json:"source,omitempty"`
	Code      string `json:"code,omitempty"`
}

// Writer persists diagnostics snapshots for one workspace.
type Writer struct {
	path string // <workspaceRoot>/.lsp-bridge/diagnostics.json
}

// New returns a Writer targeting the standard path under workspaceRoot.
func New(workspaceRoot string) *Writer {
	return &Writer{path: filepath.Join(workspaceRoot, ".lsp-bridge", "diagnostics.json")}
}

// Write renders summary/files into the schema and rewrites the file
// atomically.
func (w *Writer) Write(summary diagstore.Summary, files []diagstore.FileDiagnostics) error {
	doc := fileDoc{
		Summary: summaryDoc{
			TotalFiles:       summary.TotalFiles,
			TotalDiagnostics: summary.TotalDiagnostics,
			Errors:           summary.Errors,
			Warnings:         summary.Warnings,
			Info:             summary.Info,
		},
		ByFile:       make(map[string][]diagDoc, len(files)),
		ErrorCount:   summary.Errors,
		WarningCount: summary.Warnings,
		UpdatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	for _, fd := range files {
		path := lspsession.URIToPath(fd.URI)
		entries := make([]diagDoc, 0, len(fd.Diagnostics))
		for _, d := range fd.Diagnostics {
			entries = append(entries, diagDoc{
				Severity:  d.Severity.String(),
				Line:      d.Line,
				Character: d.Character,
				Message:   d.Message,
				Source:    d.Source,
				Code:      d.Code,
			})
		}
		doc.ByFile[path] = entries
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".diagnostics-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, w.path)
}
