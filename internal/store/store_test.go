package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMetaRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if v, err := s.GetMeta("missing"); err != nil || v != "" {
		t.Fatalf("missing key: got %q, %v", v, err)
	}
	if err := s.SetMeta("k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetMeta("k", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, err := s.GetMeta("k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != "v2" {
		t.Errorf("expected v2, got %q", v)
	}
}

func TestLastIndexedMonotonic(t *testing.T) {
	s := openTestStore(t)

	if ts, err := s.LastIndexed(); err != nil || ts != 0 {
		t.Fatalf("never indexed: got %d, %v", ts, err)
	}
	if err := s.SetLastIndexed(100); err != nil {
		t.Fatalf("set: %v", err)
	}
	// Moving backwards is ignored.
	if err := s.SetLastIndexed(50); err != nil {
		t.Fatalf("set backwards: %v", err)
	}
	ts, err := s.LastIndexed()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ts != 100 {
		t.Errorf("expected 100, got %d", ts)
	}
}

func TestSchemaMismatchPreservesFiles(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	seed := func() {
		if err := s.UpsertFile(File{Path: "a.py", Mtime: 1, LineCount: 10}); err != nil {
			t.Fatalf("upsert file: %v", err)
		}
		if err := s.InsertSymbolBatch([]Symbol{{File: "a.py", Name: "foo", Kind: KindFunction}}); err != nil {
			t.Fatalf("insert symbol: %v", err)
		}
		if err := s.InsertCallBatch([]CallEdge{{CallerFile: "a.py", CallerSymbol: "foo", CalleeName: "bar"}}); err != nil {
			t.Fatalf("insert call: %v", err)
		}
		if err := s.InsertImportBatch([]ImportRecord{{File: "a.py", Name: "os"}}); err != nil {
			t.Fatalf("insert import: %v", err)
		}
		if err := s.ReplaceCrossRefs([]CrossRef{{SourceFile: "a.py", SourceLang: "python", TargetModule: "m", TargetLang: "rust", RefType: "pyo3"}}); err != nil {
			t.Fatalf("insert cross ref: %v", err)
		}
	}
	seed()

	// Simulate an older schema on disk.
	if err := s.SetMeta("schema_version", "1"); err != nil {
		t.Fatalf("downgrade version: %v", err)
	}
	s.Close()

	s, err = Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	files, err := s.CountFiles()
	if err != nil {
		t.Fatalf("count files: %v", err)
	}
	if files != 1 {
		t.Errorf("expected 1 file to survive, got %d", files)
	}
	symbols, _ := s.CountSymbols()
	calls, _ := s.CountCalls()
	imports, err := s.AllImports()
	if err != nil {
		t.Fatalf("all imports: %v", err)
	}
	refs, err := s.CrossRefs("")
	if err != nil {
		t.Fatalf("cross refs: %v", err)
	}
	if symbols != 0 || calls != 0 || len(imports) != 0 || len(refs) != 0 {
		t.Errorf("derived tables not wiped: %d symbols, %d calls, %d imports, %d refs",
			symbols, calls, len(imports), len(refs))
	}
	if v, _ := s.GetMeta("schema_version"); v == "1" {
		t.Error("schema_version not bumped")
	}
}

func TestCorruptionRecovery(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")
	if err := os.WriteFile(dbPath, []byte("this is not a sqlite database at all"), 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("expected recovery, got: %v", err)
	}
	defer s.Close()

	// The recovered index is empty but fully functional.
	if files, err := s.CountFiles(); err != nil || files != 0 {
		t.Fatalf("recovered index: %d files, %v", files, err)
	}
	if err := s.UpsertFile(File{Path: "a.py", Mtime: 1}); err != nil {
		t.Fatalf("write after recovery: %v", err)
	}
}

func TestIsCorrupt(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database disk image is malformed"), true},
		{errors.New("file is not a database"), true},
		{errIntegrity, true},
		{errors.New("no such table: files"), false},
		{errors.New("disk I/O error"), false},
	}
	for _, c := range cases {
		if got := IsCorrupt(c.err); got != c.want {
			t.Errorf("IsCorrupt(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestWithTransactionRollback(t *testing.T) {
	s := openTestStore(t)

	err := s.WithTransaction(func(tx *Store) error {
		if err := tx.UpsertFile(File{Path: "a.py"}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil {
		t.Fatal("expected error from callback")
	}
	files, err := s.CountFiles()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if files != 0 {
		t.Errorf("rollback left %d files", files)
	}
}
