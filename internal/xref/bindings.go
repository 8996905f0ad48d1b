// Package xref detects cross-language FFI references by correlating build
// manifests with the recorded import table. Each run replaces the cross_refs
// table wholesale.
package xref

import (
	"strings"

	"github.com/quarrylabs/quarry/internal/lang"
	"github.com/quarrylabs/quarry/internal/store"
)

// Binding describes one FFI mechanism: which files consume it, which
// languages sit on each side of the boundary, and how an import refers to a
// foreign module built with it.
type Binding struct {
	Name       string // ref_type value stored on matches
	SourceLang lang.Language
	TargetLang lang.Language
	// Extensions a consumer file may have. Imports from other files never
	// match this binding.
	Extensions map[string]bool
	// FixedModule, when set, marks the binding standalone: it needs no
	// manifest and matches imports of this module name directly.
	FixedModule string
}

// Consumes reports whether a file with the given extension can use this
// binding.
func (b *Binding) Consumes(ext string) bool {
	return b.Extensions[strings.ToLower(ext)]
}

// MatchesImport reports whether an import record refers to module through
// this binding. Submodule imports (module "m.sub" or "m/sub") count.
func (b *Binding) MatchesImport(imp store.ImportRecord, module string) bool {
	if imp.Name == module && imp.Module == "" {
		return true
	}
	if imp.Module == module {
		return true
	}
	for _, sep := range []string{".", "/"} {
		if strings.HasPrefix(imp.Module, module+sep) {
			return true
		}
		if imp.Module == "" && strings.HasPrefix(imp.Name, module+sep) {
			return true
		}
	}
	return false
}

// Binding mechanism names recorded in the ref_type column.
const (
	BindingPyO3        = "pyo3"
	BindingNapi        = "napi"
	BindingWasmBindgen = "wasm-bindgen"
	BindingCgo         = "cgo"
	BindingCtypes      = "ctypes"
	BindingCffi        = "cffi"
)

var (
	pyExt = map[string]bool{".py": true}
	jsExt = map[string]bool{".js": true, ".mjs": true, ".cjs": true}
	goExt = map[string]bool{".go": true}
)

// manifestBindings are looked up by name when a build manifest declares a
// foreign module.
var manifestBindings = map[string]*Binding{
	BindingPyO3: {
		Name: BindingPyO3, SourceLang: lang.Python, TargetLang: lang.Rust,
		Extensions: pyExt,
	},
	BindingNapi: {
		Name: BindingNapi, SourceLang: lang.JavaScript, TargetLang: lang.Rust,
		Extensions: jsExt,
	},
	BindingWasmBindgen: {
		Name: BindingWasmBindgen, SourceLang: lang.JavaScript, TargetLang: lang.Rust,
		Extensions: jsExt,
	},
}

// standaloneBindings need no manifest: the import itself names the FFI
// mechanism.
var standaloneBindings = []*Binding{
	{
		Name: BindingCtypes, SourceLang: lang.Python, TargetLang: lang.C,
		Extensions: pyExt, FixedModule: "ctypes",
	},
	{
		Name: BindingCffi, SourceLang: lang.Python, TargetLang: lang.C,
		Extensions: pyExt, FixedModule: "cffi",
	},
	{
		Name: BindingCgo, SourceLang: lang.Go, TargetLang: lang.C,
		Extensions: goExt, FixedModule: "C",
	},
}
