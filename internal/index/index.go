// Package index assembles the storage, tracking, extraction and
// cross-reference components into the FileIndex facade the CLI consumes.
package index

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/extract"
	"github.com/quarrylabs/quarry/internal/lang"
	"github.com/quarrylabs/quarry/internal/parser"
	"github.com/quarrylabs/quarry/internal/store"
	"github.com/quarrylabs/quarry/internal/tracker"
	"github.com/quarrylabs/quarry/internal/xref"
)

// FileIndex is the persistent source-code index for one project root. One
// instance owns one database connection; the query API is synchronous, and
// the only parallelism inside is the parsing phase of a full call-graph
// refresh.
type FileIndex struct {
	store   *store.Store
	root    string
	cfg     config.Config
	tracker *tracker.Tracker
	driver  *extract.Driver
	xref    *xref.Detector
}

// Open opens or creates the index for a project root, loading .quarry.yml
// when present. The store handles schema versioning and corruption recovery
// before anything else touches it.
func Open(root string) (*FileIndex, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	s, err := store.Open(cfg.IndexPath(root))
	if err != nil {
		return nil, err
	}
	return &FileIndex{
		store:   s,
		root:    root,
		cfg:     cfg,
		tracker: tracker.New(s, root, cfg),
		driver:  extract.NewDriver(s, root, parser.New, cfg.Workers),
		xref:    xref.NewDetector(s, root),
	}, nil
}

// Close closes the underlying database.
func (ix *FileIndex) Close() error {
	return ix.store.Close()
}

// Root returns the project root the index covers.
func (ix *FileIndex) Root() string {
	return ix.root
}

// Refresh rebuilds the file table from a full tree walk.
func (ix *FileIndex) Refresh(ctx context.Context) (int, error) {
	return ix.tracker.Refresh(ctx)
}

// IncrementalRefresh diffs the filesystem against the file table and applies
// the changes.
func (ix *FileIndex) IncrementalRefresh(ctx context.Context) (tracker.Diff, error) {
	return ix.tracker.IncrementalRefresh(ctx)
}

// NeedsRefresh runs the cost-bounded staleness heuristic.
func (ix *FileIndex) NeedsRefresh() (bool, error) {
	return ix.tracker.NeedsRefresh()
}

// RefreshCallGraph re-extracts symbols, calls and imports for every indexed
// parseable file.
func (ix *FileIndex) RefreshCallGraph(ctx context.Context) (extract.Counts, error) {
	return ix.driver.RefreshCallGraph(ctx)
}

// IncrementalCallGraphRefresh re-extracts only the files the tracker reports
// as changed, then records the new file states. Derived rows move first so a
// failure leaves mtimes stale and the files eligible for retry.
func (ix *FileIndex) IncrementalCallGraphRefresh(ctx context.Context) (extract.Counts, error) {
	diff, err := ix.tracker.ChangedFiles(ctx)
	if err != nil {
		return extract.Counts{}, err
	}
	counts, err := ix.driver.RefreshFiles(ctx, diff)
	if err != nil {
		return extract.Counts{}, err
	}
	if err := ix.tracker.ApplyDiff(diff); err != nil {
		return extract.Counts{}, err
	}
	return counts, nil
}

// SearchSymbols finds symbols by exact name, or substring when fuzzy is set.
func (ix *FileIndex) SearchSymbols(name string, fuzzy bool) ([]store.Symbol, error) {
	return ix.store.SearchSymbols(name, fuzzy)
}

// SymbolsInFile returns the symbols defined in one file.
func (ix *FileIndex) SymbolsInFile(path string) ([]store.Symbol, error) {
	return ix.store.SymbolsInFile(path)
}

// AllSymbolNames returns every distinct symbol name in the index.
func (ix *FileIndex) AllSymbolNames() ([]string, error) {
	return ix.store.AllSymbolNames()
}

// FindCallers resolves call sites naming a symbol, including Class.method
// scoped queries.
func (ix *FileIndex) FindCallers(name string) ([]store.CallerHit, error) {
	return ix.store.FindCallers(name)
}

// FindCallees returns the calls made from one symbol in one file.
func (ix *FileIndex) FindCallees(file, symbol string) ([]store.CallEdge, error) {
	return ix.store.FindCallees(file, symbol)
}

// FindImporters returns the import sites referencing a module.
func (ix *FileIndex) FindImporters(module string) ([]store.ImportRecord, error) {
	return ix.store.FindImporters(module)
}

// ImportsInFile returns the imports recorded for one file.
func (ix *FileIndex) ImportsInFile(path string) ([]store.ImportRecord, error) {
	return ix.store.ImportsInFile(path)
}

// Stats returns call-graph statistics.
func (ix *FileIndex) Stats() (*store.GraphStats, error) {
	return ix.store.Stats()
}

// RefreshCrossRefs rebuilds the cross-language reference table.
func (ix *FileIndex) RefreshCrossRefs(ctx context.Context) (int, error) {
	return ix.xref.RefreshCrossRefs(ctx)
}

// CrossRefs returns recorded FFI references, optionally filtered by target
// module.
func (ix *FileIndex) CrossRefs(targetModule string) ([]store.CrossRef, error) {
	return ix.store.CrossRefs(targetModule)
}

// ResolveImport resolves where an identifier used in file comes from,
// returning the source module and the identifier's original name. An empty
// module means the name is not imported at all.
//
// Direct imports and aliases win. Failing that, each wildcard import's
// module is mapped to candidate project files, and the first candidate
// defining name at the top level resolves it. When no candidate verifies
// but wildcard imports exist, the first wildcard's module is returned as an
// unverified guess: most wildcard sources are external packages that are
// never indexed, so a guess beats reporting nothing.
func (ix *FileIndex) ResolveImport(file, name string) (module, original string, err error) {
	row, err := ix.store.DirectImport(file, name)
	if err != nil {
		return "", "", err
	}
	if row != nil {
		if row.Module != "" {
			return row.Module, row.Name, nil
		}
		// Bare import: the module and the name coincide.
		return row.Name, row.Name, nil
	}

	wilds, err := ix.store.WildcardImports(file)
	if err != nil {
		return "", "", err
	}
	if len(wilds) == 0 {
		return "", "", nil
	}

	l, _ := lang.ForPath(file)
	for _, w := range wilds {
		for _, candidate := range lang.ModuleCandidatePaths(w.Module, l) {
			defined, err := ix.store.TopLevelSymbol(candidate, name)
			if err != nil {
				return "", "", err
			}
			if defined {
				return w.Module, name, nil
			}
		}
	}
	return wilds[0].Module, name, nil
}
