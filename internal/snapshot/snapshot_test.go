package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"lspbridge/internal/diagstore"
	"lspbridge/internal/lspsession"
)

func TestWriteCreatesFileAtomically(t *testing.T) {
	root := t.TempDir()
	w := New(root)

	summary := diagstore.Summary{TotalFiles: 1, TotalDiagnostics: 1, Errors: 1}
	files := []diagstore.FileDiagnostics{
		{
			URI: lspsession.PathToURI(filepath.Join(root, "main.go")),
			Diagnostics: []diagstore.Diagnostic{
				{Severity: diagstore.SeverityError, Line: 3, Character: 1, Message: "boom"},
			},
		},
	}
	if err := w.Write(summary, files); err != nil {
		t.Fatalf("Write: %v", err)
	}

	path := filepath.Join(root, ".lsp-bridge", "diagnostics.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc["error_count"].(float64) != 1 {
		t.Errorf("expected error_count 1, got %v", doc["error_count"])
	}
	byFile, ok := doc["by_file"].(map[string]any)
	if !ok || len(byFile) != 1 {
		t.Errorf("expected exactly one file entry, got %v", doc["by_file"])
	}
}

func TestWriteOverwritesExisting(t *testing.T) {
	root := t.TempDir()
	w := New(root)

	w.Write(diagstore.Summary{Errors: 1}, nil)
	w.Write(diagstore.Summary{Errors: 0}, nil)

	data, err := os.ReadFile(filepath.Join(root, ".lsp-bridge", "diagnostics.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var doc map[string]any
	json.Unmarshal(data, &doc)
	if doc["error_count"].(float64) != 0 {
		t.Errorf("expected the second write to replace the first, got %v", doc["error_count"])
	}
}
