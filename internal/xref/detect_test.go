package xref

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/quarrylabs/quarry/internal/store"
)

func newTestDetector(t *testing.T) (*Detector, *store.Store, string) {
	t.Helper()
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	root := t.TempDir()
	return NewDetector(s, root), s, root
}

func trackManifest(t *testing.T, s *store.Store, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.UpsertFile(store.File{Path: rel, Mtime: 1}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

const pyo3Cargo = `
[package]
name = "fast-tokenizer"
version = "0.1.0"

[dependencies]
pyo3 = { version = "0.20", features = ["extension-module"] }
`

func TestRefreshCrossRefsPyO3(t *testing.T) {
	d, s, root := newTestDetector(t)
	trackManifest(t, s, root, "native/Cargo.toml", pyo3Cargo)
	if err := s.InsertImportBatch([]store.ImportRecord{
		{File: "app.py", Name: "fast_tokenizer", Line: 3},
		{File: "app.py", Module: "fast_tokenizer", Name: "tokenize", Line: 4},
		{File: "web.js", Name: "fast_tokenizer", Line: 1}, // wrong consumer language
	}); err != nil {
		t.Fatalf("insert imports: %v", err)
	}

	n, err := d.RefreshCrossRefs(context.Background())
	if err != nil {
		t.Fatalf("refresh cross refs: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 refs, got %d", n)
	}

	refs, err := s.CrossRefs("fast_tokenizer")
	if err != nil {
		t.Fatalf("cross refs: %v", err)
	}
	for _, r := range refs {
		if r.SourceFile != "app.py" || r.RefType != BindingPyO3 ||
			r.SourceLang != "python" || r.TargetLang != "rust" {
			t.Errorf("unexpected ref: %+v", r)
		}
	}
}

func TestRefreshCrossRefsStandaloneCtypes(t *testing.T) {
	d, s, _ := newTestDetector(t)
	if err := s.InsertImportBatch([]store.ImportRecord{
		{File: "ffi.py", Module: "ctypes", Name: "cdll", Line: 1},
		{File: "ffi.py", Name: "ctypes.util", Line: 2},
		{File: "clean.py", Name: "json", Line: 1},
	}); err != nil {
		t.Fatalf("insert imports: %v", err)
	}

	n, err := d.RefreshCrossRefs(context.Background())
	if err != nil {
		t.Fatalf("refresh cross refs: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 ctypes refs, got %d", n)
	}
	refs, err := s.CrossRefs("ctypes")
	if err != nil {
		t.Fatalf("cross refs: %v", err)
	}
	for _, r := range refs {
		if r.SourceFile != "ffi.py" || r.RefType != BindingCtypes || r.TargetLang != "c" {
			t.Errorf("unexpected ref: %+v", r)
		}
	}
}

func TestRefreshCrossRefsCgo(t *testing.T) {
	d, s, _ := newTestDetector(t)
	if err := s.InsertImportBatch([]store.ImportRecord{
		{File: "native.go", Name: "C", Alias: "C", Line: 5},
		{File: "other.go", Name: "fmt", Alias: "fmt", Line: 3},
	}); err != nil {
		t.Fatalf("insert imports: %v", err)
	}

	n, err := d.RefreshCrossRefs(context.Background())
	if err != nil {
		t.Fatalf("refresh cross refs: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 cgo ref, got %d", n)
	}
	refs, _ := s.CrossRefs("C")
	if len(refs) != 1 || refs[0].RefType != BindingCgo || refs[0].SourceFile != "native.go" {
		t.Errorf("unexpected refs: %+v", refs)
	}
}

func TestRefreshCrossRefsReplacesTable(t *testing.T) {
	d, s, _ := newTestDetector(t)
	if err := s.InsertImportBatch([]store.ImportRecord{
		{File: "ffi.py", Name: "ctypes", Line: 1},
	}); err != nil {
		t.Fatalf("insert imports: %v", err)
	}

	if _, err := d.RefreshCrossRefs(context.Background()); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	n, err := d.RefreshCrossRefs(context.Background())
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if n != 1 {
		t.Errorf("rerun duplicated rows: %d", n)
	}

	// Dropping the import drops the ref on the next run.
	if err := s.WithTransaction(func(tx *store.Store) error {
		return tx.DeleteFileDerived("ffi.py")
	}); err != nil {
		t.Fatalf("delete imports: %v", err)
	}
	n, err = d.RefreshCrossRefs(context.Background())
	if err != nil {
		t.Fatalf("third refresh: %v", err)
	}
	if n != 0 {
		t.Errorf("stale refs survived replacement: %d", n)
	}
}

func TestDetectManifestPyproject(t *testing.T) {
	content := []byte(`
[build-system]
requires = ["maturin>=1.0"]
build-backend = "maturin"

[project]
name = "speed-utils"
`)
	modules := DetectManifest("pyproject.toml", content)
	if len(modules) != 1 {
		t.Fatalf("expected 1 module, got %+v", modules)
	}
	if modules[0].Name != "speed_utils" || modules[0].Binding.Name != BindingPyO3 {
		t.Errorf("unexpected module: %+v", modules[0])
	}
}

func TestDetectManifestPyprojectModuleNameOverride(t *testing.T) {
	content := []byte(`
[build-system]
build-backend = "maturin"

[project]
name = "speed-utils"

[tool.maturin]
module-name = "speedutils._native"
`)
	modules := DetectManifest("pyproject.toml", content)
	if len(modules) != 1 || modules[0].Name != "speedutils._native" {
		t.Errorf("module-name override ignored: %+v", modules)
	}
}

func TestDetectManifestCargoLibName(t *testing.T) {
	content := []byte(`
[package]
name = "my-crate"

[lib]
name = "my_ext"
crate-type = ["cdylib"]

[dependencies]
pyo3 = "0.20"
wasm-bindgen = "0.2"
`)
	modules := DetectManifest("crates/ext/Cargo.toml", content)
	if len(modules) != 2 {
		t.Fatalf("expected pyo3 and wasm-bindgen, got %+v", modules)
	}
	for _, m := range modules {
		if m.Name != "my_ext" {
			t.Errorf("lib name not used: %+v", m)
		}
	}
}

func TestDetectManifestPackageJSONNapi(t *testing.T) {
	content := []byte(`{
	"name": "@acme/fastlib",
	"version": "1.0.0",
	"napi": {"name": "fastlib"}
}`)
	modules := DetectManifest("package.json", content)
	if len(modules) != 1 {
		t.Fatalf("expected 1 module, got %+v", modules)
	}
	if modules[0].Name != "@acme/fastlib" || modules[0].Binding.Name != BindingNapi {
		t.Errorf("unexpected module: %+v", modules[0])
	}
}

func TestDetectManifestPlainManifestsYieldNothing(t *testing.T) {
	if m := DetectManifest("package.json", []byte(`{"name": "web-app"}`)); len(m) != 0 {
		t.Errorf("plain package.json: %+v", m)
	}
	if m := DetectManifest("Cargo.toml", []byte("[package]\nname = \"tool\"\n")); len(m) != 0 {
		t.Errorf("plain Cargo.toml: %+v", m)
	}
	if m := DetectManifest("pyproject.toml", []byte("[project]\nname = \"app\"\n")); len(m) != 0 {
		t.Errorf("plain pyproject.toml: %+v", m)
	}
}
