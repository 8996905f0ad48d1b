// Package lang maps file extensions to languages and provides the
// language-specific knowledge the index needs without parsing anything:
// which extensions are indexable and where a module name could live on disk.
package lang

import (
	"path/filepath"
	"strings"
)

// Language identifies a supported source language.
type Language string

const (
	Python     Language = "python"
	Go         Language = "go"
	JavaScript Language = "javascript"
	Rust       Language = "rust"
	C          Language = "c"
)

// extensions maps a file extension to its language. Rust and C appear here
// so cross-reference detection can name them, even though no parser is
// registered for them.
var extensions = map[string]Language{
	".py":  Python,
	".go":  Go,
	".js":  JavaScript,
	".mjs": JavaScript,
	".cjs": JavaScript,
	".rs":  Rust,
	".c":   C,
	".h":   C,
}

// ForExtension returns the language for a file extension (e.g. ".py").
func ForExtension(ext string) (Language, bool) {
	l, ok := extensions[strings.ToLower(ext)]
	return l, ok
}

// ForPath returns the language for a file path.
func ForPath(path string) (Language, bool) {
	return ForExtension(filepath.Ext(path))
}

// ModuleCandidatePaths resolves a module name to candidate file paths,
// relative to the project root, for the requesting file's language. The
// candidates are guesses: the caller verifies each against the index. An
// empty result means the module cannot be mapped to project files (external
// packages, or languages without a file-per-module convention).
func ModuleCandidatePaths(module string, l Language) []string {
	switch l {
	case Python:
		base := strings.ReplaceAll(module, ".", "/")
		return []string{base + ".py", base + "/__init__.py"}
	case JavaScript:
		base := strings.TrimPrefix(module, "./")
		base = strings.TrimSuffix(base, ".js")
		return []string{base + ".js", base + ".mjs", base + "/index.js"}
	default:
		// Go import paths name packages, not files; dot-imported names go
		// through the optimistic fallback instead.
		return nil
	}
}
