package xref

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/quarrylabs/quarry/internal/lang"
	"github.com/quarrylabs/quarry/internal/store"
)

// ForeignModule is one module a build manifest declares as built for a
// foreign language boundary.
type ForeignModule struct {
	Name    string
	Binding *Binding
}

// manifestNames are the build-manifest filenames the detector inspects.
var manifestNames = map[string]bool{
	"Cargo.toml":     true,
	"pyproject.toml": true,
	"package.json":   true,
}

// Detector correlates build manifests and imports into cross_refs rows.
type Detector struct {
	store *store.Store
	root  string
}

// NewDetector creates a Detector over an opened store.
func NewDetector(s *store.Store, root string) *Detector {
	return &Detector{store: s, root: root}
}

// RefreshCrossRefs rebuilds the cross_refs table: scan indexed manifests for
// declared foreign modules, correlate them against the import table filtered
// by each binding's consumer extensions, then run the standalone pass for
// bindings that need no manifest. The table is replaced in one transaction.
func (d *Detector) RefreshCrossRefs(ctx context.Context) (int, error) {
	modules, err := d.scanManifests(ctx)
	if err != nil {
		return 0, err
	}
	imports, err := d.store.AllImports()
	if err != nil {
		return 0, err
	}

	var refs []store.CrossRef
	for _, m := range modules {
		refs = append(refs, matchImports(imports, m.Binding, m.Name)...)
	}
	for _, b := range standaloneBindings {
		refs = append(refs, matchImports(imports, b, b.FixedModule)...)
	}

	err = d.store.WithTransaction(func(tx *store.Store) error {
		return tx.ReplaceCrossRefs(refs)
	})
	if err != nil {
		return 0, err
	}
	slog.Info("xref.refresh", "modules", len(modules), "refs", len(refs))
	return len(refs), nil
}

// matchImports returns a cross-ref row for every import that consumes module
// through the binding.
func matchImports(imports []store.ImportRecord, b *Binding, module string) []store.CrossRef {
	var refs []store.CrossRef
	for _, imp := range imports {
		ext := filepath.Ext(imp.File)
		if !b.Consumes(ext) {
			continue
		}
		l, ok := lang.ForExtension(ext)
		if !ok || !b.MatchesImport(imp, module) {
			continue
		}
		refs = append(refs, store.CrossRef{
			SourceFile:   imp.File,
			SourceLang:   string(l),
			TargetModule: module,
			TargetLang:   string(b.TargetLang),
			RefType:      b.Name,
			Line:         imp.Line,
		})
	}
	return refs
}

// scanManifests reads every indexed build manifest and collects the foreign
// modules it declares. Unreadable manifests are skipped with a warning.
func (d *Detector) scanManifests(ctx context.Context) ([]ForeignModule, error) {
	files, err := d.store.AllFiles()
	if err != nil {
		return nil, err
	}
	var modules []ForeignModule
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.IsDir || !manifestNames[path.Base(f.Path)] {
			continue
		}
		content, err := os.ReadFile(filepath.Join(d.root, f.Path))
		if err != nil {
			slog.Warn("xref.read.err", "path", f.Path, "err", err)
			continue
		}
		modules = append(modules, DetectManifest(f.Path, content)...)
	}
	return modules, nil
}

// DetectManifest extracts the foreign modules one build manifest declares.
// Manifests that declare no FFI boundary yield nothing.
func DetectManifest(manifestPath string, content []byte) []ForeignModule {
	switch path.Base(filepath.ToSlash(manifestPath)) {
	case "Cargo.toml":
		return cargoModules(content)
	case "pyproject.toml":
		return pyprojectModules(content)
	case "package.json":
		return packageJSONModules(content)
	}
	return nil
}

type cargoManifest struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
	Lib struct {
		Name string `toml:"name"`
	} `toml:"lib"`
	Dependencies map[string]any `toml:"dependencies"`
}

// cargoModules reads a Cargo.toml: a pyo3 / napi / wasm-bindgen dependency
// marks the crate as a foreign module for that binding. The importable name
// is the lib name when set, else the crate name with dashes folded to
// underscores.
func cargoModules(content []byte) []ForeignModule {
	var m cargoManifest
	if err := toml.Unmarshal(content, &m); err != nil {
		return nil
	}
	name := m.Lib.Name
	if name == "" {
		name = strings.ReplaceAll(m.Package.Name, "-", "_")
	}
	if name == "" {
		return nil
	}

	var modules []ForeignModule
	add := func(binding string) {
		modules = append(modules, ForeignModule{Name: name, Binding: manifestBindings[binding]})
	}
	if _, ok := m.Dependencies["pyo3"]; ok {
		add(BindingPyO3)
	}
	if _, ok := m.Dependencies["napi"]; ok {
		add(BindingNapi)
	} else if _, ok := m.Dependencies["napi-derive"]; ok {
		add(BindingNapi)
	}
	if _, ok := m.Dependencies["wasm-bindgen"]; ok {
		add(BindingWasmBindgen)
	}
	return modules
}

type pyprojectManifest struct {
	BuildSystem struct {
		BuildBackend string `toml:"build-backend"`
	} `toml:"build-system"`
	Project struct {
		Name string `toml:"name"`
	} `toml:"project"`
	Tool struct {
		Maturin struct {
			ModuleName string `toml:"module-name"`
		} `toml:"maturin"`
	} `toml:"tool"`
}

// pyprojectModules reads a pyproject.toml: a maturin build backend means the
// project ships a pyo3 extension module.
func pyprojectModules(content []byte) []ForeignModule {
	var m pyprojectManifest
	if err := toml.Unmarshal(content, &m); err != nil {
		return nil
	}
	if !strings.Contains(m.BuildSystem.BuildBackend, "maturin") {
		return nil
	}
	name := m.Tool.Maturin.ModuleName
	if name == "" {
		name = strings.ReplaceAll(m.Project.Name, "-", "_")
	}
	if name == "" {
		return nil
	}
	return []ForeignModule{{Name: name, Binding: manifestBindings[BindingPyO3]}}
}

type packageJSONManifest struct {
	Name string          `json:"name"`
	Napi json.RawMessage `json:"napi"`
}

// packageJSONModules reads a package.json: a top-level "napi" config block
// marks the package as a napi-rs native module.
func packageJSONModules(content []byte) []ForeignModule {
	var m packageJSONManifest
	if err := json.Unmarshal(content, &m); err != nil {
		return nil
	}
	if len(m.Napi) == 0 || m.Name == "" {
		return nil
	}
	return []ForeignModule{{Name: m.Name, Binding: manifestBindings[BindingNapi]}}
}
