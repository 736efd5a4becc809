package lspsession

import (
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
)

// PathToURI converts an absolute filesystem path into a file:// URI
// (spec.md §6: forward-slash, URL-encoded, extra leading slash on
// non-POSIX).
func PathToURI(path string) string {
	p := filepath.ToSlash(path)
	if runtime.GOOS == "windows" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return "file://" + strings.Join(segments, "/")
}

// URIToPath is the inverse of PathToURI. Non-file:// URIs are returned
// unchanged.
func URIToPath(uri string) string {
	const prefix = "file://"
	if !strings.HasPrefix(uri, prefix) {
		return uri
	}
	raw := strings.TrimPrefix(uri, prefix)
	segments := strings.Split(raw, "/")
	for i, seg := range segments {
		if unescaped, err := url.PathUnescape(seg); err == nil {
			segments[i] = unescaped
		}
	}
	p := strings.Join(segments, "/")
	if runtime.GOOS == "windows" && strings.HasPrefix(p, "/") && len(p) > 2 && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p)
}

// languageIDByExt is the fixed extension -> LSP languageId table from
// spec.md §4.5.
var languageIDByExt = map[string]string{
	".scala": "scala",
	".sc":    "scala",
	".rs":    "rust",
	".ts":    "typescript",
	".tsx":   "typescriptreact",
	".js":    "javascript",
	".jsx":   "javascriptreact",
	".py":    "python",
	".go":    "go",
}

// LanguageIDForPath infers the LSP languageId from a file extension,
// defaulting to "plaintext".
func LanguageIDForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if id, ok := languageIDByExt[ext]; ok {
		return id
	}
	return "plaintext"
}
