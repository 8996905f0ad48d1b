// Package tracker walks the project tree, maintains the file table, and
// decides when a refresh is warranted. It owns change detection but no
// parsing: the extraction driver consumes its diffs.
package tracker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/store"
)

// staleWindow is how long after last_indexed NeedsRefresh assumes the index
// is fresh without touching the filesystem.
const staleWindow = 60 * time.Second

// sampleSize bounds the random mtime probe in NeedsRefresh.
const sampleSize = 100

// skipDirs are directory names never walked, independent of .gitignore.
var skipDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true, ".quarry": true,
	".venv": true, "venv": true, "__pycache__": true,
	".mypy_cache": true, ".pytest_cache": true, ".ruff_cache": true,
	"node_modules": true, "bower_components": true,
	"dist": true, "build": true, "target": true, "vendor": true,
	".idea": true, ".vscode": true, ".cache": true,
}

// Tracker maintains the file table for one project root.
type Tracker struct {
	store *store.Store
	root  string
	cfg   config.Config
}

// New creates a Tracker over an opened store.
func New(s *store.Store, root string, cfg config.Config) *Tracker {
	return &Tracker{store: s, root: root, cfg: cfg}
}

// Diff classifies filesystem changes against the file table.
type Diff struct {
	Added    []store.File
	Modified []store.File
	Deleted  []string
}

// Empty reports whether the diff contains no changes.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Deleted) == 0
}

// Refresh performs a full rebuild of the file table: walk the tree honoring
// ignore rules, delete all rows, reinsert one per entry. Runs in a single
// transaction and advances last_indexed.
func (t *Tracker) Refresh(ctx context.Context) (int, error) {
	files, err := t.walk(ctx)
	if err != nil {
		return 0, fmt.Errorf("walk: %w", err)
	}
	err = t.store.WithTransaction(func(tx *store.Store) error {
		if err := tx.ReplaceAllFiles(files); err != nil {
			return err
		}
		return tx.SetLastIndexed(time.Now().Unix())
	})
	if err != nil {
		return 0, err
	}
	slog.Info("tracker.refresh", "files", len(files))
	return len(files), nil
}

// ChangedFiles diffs the filesystem against the file table: unseen paths are
// added, newer mtimes are modified, and indexed paths no longer observed are
// deleted. Directories are diffed like files: a removed directory must lose
// its row, or the top-level staleness scan would report it forever.
func (t *Tracker) ChangedFiles(ctx context.Context) (Diff, error) {
	all, err := t.store.AllFiles()
	if err != nil {
		return Diff{}, err
	}
	indexed := make(map[string]int64, len(all))
	for _, f := range all {
		indexed[f.Path] = f.Mtime
	}
	current, err := t.walk(ctx)
	if err != nil {
		return Diff{}, fmt.Errorf("walk: %w", err)
	}

	var diff Diff
	seen := make(map[string]bool, len(current))
	for _, f := range current {
		seen[f.Path] = true
		stored, ok := indexed[f.Path]
		switch {
		case !ok:
			diff.Added = append(diff.Added, f)
		case f.Mtime > stored:
			diff.Modified = append(diff.Modified, f)
		}
	}
	for path := range indexed {
		if !seen[path] {
			diff.Deleted = append(diff.Deleted, path)
		}
	}
	return diff, nil
}

// ApplyDiff applies a diff to the file table inside one transaction and
// advances last_indexed.
func (t *Tracker) ApplyDiff(diff Diff) error {
	return t.store.WithTransaction(func(tx *store.Store) error {
		for _, path := range diff.Deleted {
			if err := tx.DeleteFile(path); err != nil {
				return err
			}
		}
		if err := tx.InsertFileBatch(diff.Added); err != nil {
			return err
		}
		if err := tx.InsertFileBatch(diff.Modified); err != nil {
			return err
		}
		return tx.SetLastIndexed(time.Now().Unix())
	})
}

// IncrementalRefresh computes and applies the change diff.
func (t *Tracker) IncrementalRefresh(ctx context.Context) (Diff, error) {
	diff, err := t.ChangedFiles(ctx)
	if err != nil {
		return Diff{}, err
	}
	if err := t.ApplyDiff(diff); err != nil {
		return Diff{}, err
	}
	slog.Info("tracker.incremental",
		"added", len(diff.Added), "modified", len(diff.Modified), "deleted", len(diff.Deleted))
	return diff, nil
}

// NeedsRefresh is a cost-bounded staleness heuristic, not an exact check.
// Never indexed means yes. Within the staleness window the answer is no
// without touching the filesystem, even if files changed. Past the window it
// scans top-level entries for additions/deletions, then stats a random
// sample of indexed files. An unsampled modified file can be missed; callers
// that need certainty call Refresh directly.
func (t *Tracker) NeedsRefresh() (bool, error) {
	last, err := t.store.LastIndexed()
	if err != nil {
		return false, err
	}
	if last == 0 {
		return true, nil
	}
	if time.Since(time.Unix(last, 0)) < staleWindow {
		return false, nil
	}

	changed, err := t.topLevelChanged()
	if err != nil || changed {
		return changed, err
	}
	return t.sampleModified()
}

// topLevelChanged compares the root directory's entries against the indexed
// top-level paths.
func (t *Tracker) topLevelChanged() (bool, error) {
	entries, err := os.ReadDir(t.root)
	if err != nil {
		return false, fmt.Errorf("read root: %w", err)
	}
	matcher := t.ignoreMatcher()
	onDisk := make(map[string]bool)
	for _, e := range entries {
		if t.skip(e.Name(), e.Name(), e.IsDir(), matcher) {
			continue
		}
		onDisk[e.Name()] = true
	}

	indexed := make(map[string]bool)
	all, err := t.store.AllFiles()
	if err != nil {
		return false, err
	}
	for _, f := range all {
		top := f.Path
		if i := strings.IndexByte(top, '/'); i >= 0 {
			top = top[:i]
		}
		indexed[top] = true
	}

	for name := range onDisk {
		if !indexed[name] {
			return true, nil
		}
	}
	for name := range indexed {
		if !onDisk[name] {
			return true, nil
		}
	}
	return false, nil
}

// sampleModified stats a bounded random subset of indexed files and reports
// whether any looks newer than its stored mtime.
func (t *Tracker) sampleModified() (bool, error) {
	mtimes, err := t.store.FileMtimes()
	if err != nil {
		return false, err
	}
	paths := make([]string, 0, len(mtimes))
	for p := range mtimes {
		paths = append(paths, p)
	}
	rand.Shuffle(len(paths), func(i, j int) { paths[i], paths[j] = paths[j], paths[i] })
	if len(paths) > sampleSize {
		paths = paths[:sampleSize]
	}
	for _, p := range paths {
		info, err := os.Stat(filepath.Join(t.root, p))
		if err != nil {
			return true, nil // deleted or unreadable: stale
		}
		if info.ModTime().Unix() > mtimes[p] {
			return true, nil
		}
	}
	return false, nil
}

// walk collects every entry under the root honoring ignore rules. Line
// counts are computed for regular files under the size ceiling; directories,
// unreadable files and oversized files get zero without failing the walk.
func (t *Tracker) walk(ctx context.Context) ([]store.File, error) {
	matcher := t.ignoreMatcher()
	var files []store.File

	err := filepath.WalkDir(t.root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(t.root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if t.skip(d.Name(), rel, d.IsDir(), matcher) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		f := store.File{
			Path:  rel,
			IsDir: d.IsDir(),
			Mtime: info.ModTime().Unix(),
		}
		if !d.IsDir() && info.Size() <= t.cfg.MaxFileSize {
			f.LineCount = countLines(path)
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (t *Tracker) skip(name, rel string, isDir bool, matcher *ignore.GitIgnore) bool {
	if isDir && skipDirs[name] {
		return true
	}
	if matcher != nil && matcher.MatchesPath(rel) {
		return true
	}
	for _, pattern := range t.cfg.Ignore {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// ignoreMatcher compiles the project's .gitignore, or nil when absent.
func (t *Tracker) ignoreMatcher() *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(t.root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}

// countLines reads a file as text and counts its lines. Unreadable or
// binary-looking content yields zero.
func countLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if bytes.IndexByte(scanner.Bytes(), 0) >= 0 {
			return 0 // binary content
		}
		count++
	}
	if scanner.Err() != nil {
		return 0
	}
	return count
}
