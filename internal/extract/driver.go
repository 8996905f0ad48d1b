package extract

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/quarrylabs/quarry/internal/lang"
	"github.com/quarrylabs/quarry/internal/store"
	"github.com/quarrylabs/quarry/internal/tracker"
)

// Driver runs call-graph refreshes over the tracked file set.
type Driver struct {
	store   *store.Store
	root    string
	factory Factory
	workers int
}

// NewDriver creates a Driver. workers caps the parallel pool; 0 means
// NumCPU.
func NewDriver(s *store.Store, root string, factory Factory, workers int) *Driver {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Driver{store: s, root: root, factory: factory, workers: workers}
}

// parseTask is the unit handed to a worker: a pure function from
// (path, content) to an owned FileResult.
type parseTask struct {
	path     string
	language lang.Language
}

// RefreshCallGraph re-extracts every indexed, parseable file. Parsing runs
// on a worker pool sharing one parser per language; the collected results
// are committed in one transaction that wipes and reinserts the symbol,
// call and import tables. Files that fail to read or parse contribute no
// rows; partial coverage beats total failure on heterogeneous trees.
func (d *Driver) RefreshCallGraph(ctx context.Context) (Counts, error) {
	parsers := make(map[lang.Language]Parser)
	tasks, err := d.selectTasks(parsers)
	if err != nil {
		return Counts{}, err
	}

	results := make([]*FileResult, len(tasks))

	workers := min(d.workers, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, task := range tasks {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = parseFile(parsers[task.language], d.root, task.path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Counts{}, err
	}

	var counts Counts
	err = d.store.WithTransaction(func(tx *store.Store) error {
		if err := tx.ClearDerived(); err != nil {
			return err
		}
		for _, r := range results {
			if r == nil {
				continue
			}
			if err := insertResult(tx, r); err != nil {
				return err
			}
			counts.add(r)
		}
		return nil
	})
	if err != nil {
		return Counts{}, err
	}
	slog.Info("extract.full",
		"files", len(tasks), "symbols", counts.Symbols, "calls", counts.Calls, "imports", counts.Imports)
	return counts, nil
}

// RefreshFiles applies a tracker diff to the derived tables: deleted files
// lose their rows, added/modified files are re-parsed sequentially and
// reinserted. The changed set is expected to be small, so this path trades
// parallelism for simplicity.
func (d *Driver) RefreshFiles(ctx context.Context, diff tracker.Diff) (Counts, error) {
	var counts Counts
	parsers := make(map[lang.Language]Parser)

	err := d.store.WithTransaction(func(tx *store.Store) error {
		for _, path := range diff.Deleted {
			if err := tx.DeleteFileDerived(path); err != nil {
				return err
			}
		}
		changed := append(append([]store.File{}, diff.Added...), diff.Modified...)
		for _, f := range changed {
			if err := ctx.Err(); err != nil {
				return err
			}
			if f.IsDir {
				continue
			}
			l, ok := lang.ForPath(f.Path)
			if !ok {
				continue
			}
			if err := tx.DeleteFileDerived(f.Path); err != nil {
				return err
			}
			p := d.resolveParser(parsers, l)
			if p == nil {
				continue
			}
			r := parseFile(p, d.root, f.Path)
			if r == nil {
				continue
			}
			if err := insertResult(tx, r); err != nil {
				return err
			}
			counts.add(r)
		}
		return nil
	})
	if err != nil {
		return Counts{}, err
	}
	slog.Info("extract.incremental",
		"changed", len(diff.Added)+len(diff.Modified), "deleted", len(diff.Deleted),
		"symbols", counts.Symbols, "calls", counts.Calls, "imports", counts.Imports)
	return counts, nil
}

// selectTasks picks indexed non-directory files whose extension has a
// registered parser, resolving each language's parser once into parsers for
// the workers to share.
func (d *Driver) selectTasks(parsers map[lang.Language]Parser) ([]parseTask, error) {
	files, err := d.store.AllFiles()
	if err != nil {
		return nil, err
	}
	var tasks []parseTask
	for _, f := range files {
		if f.IsDir {
			continue
		}
		l, ok := lang.ForPath(f.Path)
		if !ok {
			continue
		}
		if d.resolveParser(parsers, l) == nil {
			continue
		}
		tasks = append(tasks, parseTask{path: f.Path, language: l})
	}
	return tasks, nil
}

func parseFile(p Parser, root, relPath string) *FileResult {
	content, err := os.ReadFile(filepath.Join(root, relPath))
	if err != nil {
		slog.Warn("extract.read.err", "path", relPath, "err", err)
		return nil
	}
	r, err := p.Parse(relPath, content)
	if err != nil {
		slog.Warn("extract.parse.err", "path", relPath, "err", err)
		return nil
	}
	return r
}

// resolveParser caches one parser per language. A language without a parser
// caches nil so the factory is asked only once, never per file.
func (d *Driver) resolveParser(cache map[lang.Language]Parser, l lang.Language) Parser {
	if p, ok := cache[l]; ok {
		return p
	}
	p, err := d.factory(l)
	if err != nil {
		cache[l] = nil
		return nil
	}
	cache[l] = p
	return p
}

func insertResult(tx *store.Store, r *FileResult) error {
	if err := tx.InsertSymbolBatch(r.Symbols); err != nil {
		return err
	}
	if err := tx.InsertCallBatch(r.Calls); err != nil {
		return err
	}
	return tx.InsertImportBatch(r.Imports)
}
